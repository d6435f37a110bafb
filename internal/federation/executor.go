package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/agentic-research/fedgraph/internal/connector"
	"github.com/agentic-research/fedgraph/internal/graph"
)

// Connector opens connections to named sources. *connector.Registry
// satisfies it.
type Connector interface {
	Connect(ctx context.Context, source string) (connector.Connection, error)
}

// Executor answers reads by merging the contributions of every source
// projection and keeps the merged nodes, with their merge plans, in an
// optional cache source. Writes are routed to the source that owns the
// target path and invalidate the affected cached nodes.
//
// An Executor belongs to one session and is not safe for concurrent use.
type Executor struct {
	ops

	env         Environment
	connector   Connector
	cache       *Projection
	projections []*Projection
	sources     *SourceSet

	conns     map[string]connector.Connection
	connOrder []string
	closed    bool
}

// executorProcessor carries the graph.Processor methods so that they do not
// shadow the Session methods of the same name.
type executorProcessor struct{ *Executor }

var (
	_ Session         = (*Executor)(nil)
	_ graph.Processor = executorProcessor{}
)

// NewExecutor builds a federating executor. cache may be nil, in which case
// every read consults the sources.
func NewExecutor(c Connector, cache *Projection, projections []*Projection, env Environment) (*Executor, error) {
	if err := validateProjections(cache, projections); err != nil {
		return nil, err
	}
	e := &Executor{
		env:         env.withDefaults(),
		connector:   c,
		cache:       cache,
		projections: append([]*Projection(nil), projections...),
		sources:     newSourceSet(newSourceIndex()),
		conns:       make(map[string]connector.Connection),
	}
	for _, p := range projections {
		e.sources.Add(p.SourceName())
	}
	e.ops = ops{exec: e.Execute}
	return e, nil
}

func validateProjections(cache *Projection, projections []*Projection) error {
	if len(projections) == 0 {
		return ErrNoSources
	}
	seen := make(map[string]bool, len(projections)+1)
	if cache != nil {
		seen[cache.SourceName()] = true
	}
	for _, p := range projections {
		if p == nil {
			return ErrNoSources
		}
		if seen[p.SourceName()] {
			return fmt.Errorf("%s: %w", p.SourceName(), ErrDuplicateSource)
		}
		seen[p.SourceName()] = true
	}
	return nil
}

// Execute dispatches cmd. Request failures are recorded on cmd; the returned
// error reports a closed executor or a cancelled context.
func (e *Executor) Execute(ctx context.Context, cmd graph.Command) error {
	if e.closed {
		return ErrExecutorClosed
	}
	graph.Dispatch(ctx, executorProcessor{e}, cmd)
	return ctx.Err()
}

// SourceNames lists the sources currently federated, in registration order.
func (e *Executor) SourceNames() []string { return e.sources.Names() }

// RemoveSource stops federating the named source and closes its connection.
// Cached nodes merged from it become stale. It reports whether the source
// was known.
func (e *Executor) RemoveSource(name string) bool {
	idx := -1
	for i, p := range e.projections {
		if p.SourceName() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	e.projections = append(e.projections[:idx:idx], e.projections[idx+1:]...)
	e.sources.Remove(name)
	e.closeConnection(name)
	return true
}

// IsCurrent reports whether plan was built from exactly the sources now
// federated, each under the rules it is projected with now: none of its
// sources has been removed or re-projected and no federated source is
// missing from it.
func (e *Executor) IsCurrent(_ graph.Path, plan MergePlan) bool {
	if !e.sources.ContainsAll(plan.SourceNames()) {
		return false
	}
	for _, p := range e.projections {
		if !plan.IsSource(p.SourceName()) {
			return false
		}
		recorded, ok := plan.Annotation(rulesAnnotation(p.SourceName()))
		if !ok || !slices.Equal(recorded.Strings(), ruleStrings(p)) {
			return false
		}
	}
	return true
}

// recordProjections annotates plan with the rules of every projection it
// was merged under.
func (e *Executor) recordProjections(plan MergePlan) {
	for _, p := range e.projections {
		plan.SetAnnotation(graph.NewProperty(rulesAnnotation(p.SourceName()), ruleStrings(p)...))
	}
}

func rulesAnnotation(source string) string { return "rules:" + source }

func ruleStrings(p *Projection) []string {
	out := make([]string, len(p.Rules()))
	for i, r := range p.Rules() {
		out[i] = r.String()
	}
	return out
}

// Close closes every connection the executor opened. Failures are logged
// and counted; later calls return ErrExecutorClosed.
func (e *Executor) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	for _, name := range append([]string(nil), e.connOrder...) {
		e.closeConnection(name)
	}
	return nil
}

func (e *Executor) closeConnection(name string) {
	conn, ok := e.conns[name]
	if !ok {
		return
	}
	delete(e.conns, name)
	for i, n := range e.connOrder {
		if n == name {
			e.connOrder = append(e.connOrder[:i:i], e.connOrder[i+1:]...)
			break
		}
	}
	if err := conn.Close(); err != nil {
		e.env.Logger.Warn("closing source connection", slog.String("source", name), slog.Any("err", err))
		e.env.Metrics.CloseFailure(name)
	}
}

func (e *Executor) connection(ctx context.Context, name string) (connector.Connection, error) {
	if conn, ok := e.conns[name]; ok {
		return conn, nil
	}
	conn, err := e.connector.Connect(ctx, name)
	if err != nil {
		return nil, err
	}
	e.conns[name] = conn
	e.connOrder = append(e.connOrder, name)
	return conn, nil
}

func (e *Executor) check(ctx context.Context) error {
	if e.closed {
		return ErrExecutorClosed
	}
	return ctx.Err()
}

// GetNode returns the merged node at p.
func (e *Executor) GetNode(ctx context.Context, p graph.Path) (*graph.Node, error) {
	if err := e.check(ctx); err != nil {
		return nil, err
	}
	if !e.caches(p) {
		n, err := e.load(ctx, p, uuid.Nil)
		if err != nil {
			return nil, err
		}
		return n.Public(), nil
	}
	cached, err := e.readCache(ctx, p)
	var nf *graph.PathNotFoundError
	switch {
	case errors.As(err, &nf):
		e.env.Metrics.CacheMiss("absent")
		return e.loadMissing(ctx, p, nf.LowestExisting)
	case err != nil:
		return nil, err
	}
	return e.refresh(ctx, p, cached)
}

func (e *Executor) caches(p graph.Path) bool {
	return e.cache != nil && len(e.cache.PathsInSource(p)) > 0
}

// cachedNode is a node as stored in the cache, with its decoded plan. plan
// is nil when the node carries none or it cannot be decoded.
type cachedNode struct {
	node *graph.Node
	plan MergePlan
}

func (e *Executor) readCache(ctx context.Context, p graph.Path) (*cachedNode, error) {
	cmd := graph.NewReadNode(p)
	w, err := Project(cmd, e.cache)
	if err != nil {
		return nil, err
	}
	conn, err := e.connection(ctx, e.cache.SourceName())
	if err != nil {
		return nil, err
	}
	if err := conn.Execute(ctx, w); err != nil {
		return nil, err
	}
	if err := cmd.Err(); err != nil {
		var nf *graph.PathNotFoundError
		if errors.As(err, &nf) {
			lowest := graph.Root
			if paths := e.cache.PathsInRepository(nf.LowestExisting); len(paths) > 0 && paths[0].IsAtOrAbove(p) {
				lowest = paths[0]
			}
			return nil, graph.NotFound(p, lowest)
		}
		return nil, err
	}
	node := cmd.Node()
	node.Path = p
	out := &cachedNode{node: node}
	if prop, ok := node.Property(graph.UUIDProperty); ok {
		if id, err := uuid.Parse(prop.First()); err == nil {
			node.UUID = id
		}
	}
	if prop, ok := node.Property(graph.MergePlanProperty); ok && len(prop.Values) > 0 {
		plan, err := DecodePlan(prop.Values[0])
		if err != nil {
			e.env.Logger.Warn("discarding undecodable merge plan", slog.String("path", p.String()), slog.Any("err", err))
		} else {
			out.plan = plan
		}
	}
	return out, nil
}

// staleness returns why a cached plan cannot be used, or "" when it can.
func (e *Executor) staleness(p graph.Path, plan MergePlan) string {
	switch {
	case plan == nil:
		return "no-plan"
	case plan.IsExpired(e.env.Now()):
		return "expired"
	case !e.IsCurrent(p, plan):
		return "stale-sources"
	}
	return ""
}

func (e *Executor) refresh(ctx context.Context, p graph.Path, c *cachedNode) (*graph.Node, error) {
	reason := e.staleness(p, c.plan)
	if reason == "" {
		e.env.Metrics.CacheHit()
		return c.node.Public(), nil
	}
	e.env.Metrics.CacheMiss(reason)
	n, err := e.load(ctx, p, c.node.UUID)
	if err != nil {
		return nil, err
	}
	return n.Public(), nil
}

// loadMissing answers a read of a path the cache does not hold. A fresh
// cached ancestor is authoritative about its children; otherwise the node is
// loaded from the sources and written to the cache, with plan-less ancestors
// filling the gap.
func (e *Executor) loadMissing(ctx context.Context, p, lowest graph.Path) (*graph.Node, error) {
	if lowest.IsAncestorOf(p) && e.caches(lowest) {
		anc, err := e.readCache(ctx, lowest)
		var nf *graph.PathNotFoundError
		switch {
		case err == nil:
			next := p.Prefix(lowest.Len() + 1)
			if e.staleness(lowest, anc.plan) == "" && !graph.HasChild(anc.node.Children, next.Last()) {
				return nil, graph.NotFound(p, lowest)
			}
		case !errors.As(err, &nf):
			return nil, err
		}
	}
	n, err := e.load(ctx, p, uuid.Nil)
	if err != nil {
		return nil, err
	}
	return n.Public(), nil
}

// load fetches every contribution for p, merges them and, when p is cached,
// stores the result. id is kept as the node's identifier when non-nil.
func (e *Executor) load(ctx context.Context, p graph.Path, id uuid.UUID) (*graph.Node, error) {
	contributions, err := e.contributions(ctx, p)
	if err != nil {
		return nil, err
	}
	plan, err := NewMergePlan(contributions...)
	if err != nil {
		return nil, err
	}
	e.recordProjections(plan)
	e.env.Metrics.PlanSize(plan.ContributionCount())

	props, children, ok := merge(plan)
	if !ok && !p.IsRoot() {
		e.dropCached(ctx, p)
		return nil, graph.NotFound(p, p.Parent())
	}
	if id == uuid.Nil {
		id = e.env.NewUUID()
	}
	n := &graph.Node{Path: p, UUID: id, Properties: props, Children: children}
	if e.caches(p) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.writeCache(ctx, n, plan); err != nil {
			return nil, err
		}
	}
	e.env.Logger.Debug("merged node",
		slog.String("path", p.String()),
		slog.String("plan", PlanSummary(plan)),
		slog.Int("children", len(children)))
	return n, nil
}

// merge combines the non-empty contributions of plan in order. The first
// contribution to define a property wins; children are the union by segment
// in first-seen order. Two sources listing the same segment describe the
// same federated path, and reading that path merges both, so the segment is
// listed once. ok is false when every contribution is empty.
func merge(plan MergePlan) (props map[string]graph.Property, children []graph.Segment, ok bool) {
	props = make(map[string]graph.Property)
	for c := range plan.All() {
		if c.IsEmpty() {
			continue
		}
		ok = true
		for name, prop := range c.Properties() {
			if graph.IsReserved(name) {
				continue
			}
			if _, dup := props[name]; !dup {
				props[name] = prop
			}
		}
		for _, seg := range c.Children() {
			if !graph.HasChild(children, seg) {
				children = append(children, seg)
			}
		}
	}
	return props, children, ok
}

func (e *Executor) contributions(ctx context.Context, p graph.Path) ([]Contribution, error) {
	now := e.env.Now()
	out := make([]Contribution, 0, len(e.projections))
	for _, proj := range e.projections {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		paths := proj.PathsInSource(p)
		if len(paths) == 0 {
			out = append(out, e.placeholderOrEmpty(proj, p, now))
			continue
		}
		c, err := e.fetch(ctx, proj, p, paths, now)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	for _, c := range out {
		if err := CheckExpiration(c, now); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// placeholderOrEmpty is the contribution of a projection that does not map
// p: the children leading to its top-level paths, or nothing.
func (e *Executor) placeholderOrEmpty(proj *Projection, p graph.Path, now time.Time) Contribution {
	if kids := proj.ChildrenTowardTopLevel(p); len(kids) > 0 {
		return NewPlaceholderContribution(proj.SourceName(), kids, time.Time{})
	}
	return NewEmptyContribution(proj.SourceName(), now.Add(e.env.NoContributionTTL))
}

// fetch reads every source location of p. A source that fails contributes
// nothing for NoContributionTTL; only cancellation is returned as an error.
func (e *Executor) fetch(ctx context.Context, proj *Projection, p graph.Path, paths []graph.Path, now time.Time) (Contribution, error) {
	name := proj.SourceName()
	conn, err := e.connection(ctx, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.sourceFailed(name, "connect", p, err)
		return e.placeholderOrEmpty(proj, p, now), nil
	}

	cmds := make([]*graph.ReadNode, len(paths))
	batch := make([]graph.Command, len(paths))
	for i, sp := range paths {
		cmds[i] = graph.NewReadNode(sp)
		batch[i] = cmds[i]
	}
	e.env.Metrics.SourceFetch(name)
	if len(cmds) == 1 {
		err = conn.Execute(ctx, cmds[0])
	} else {
		err = conn.ExecuteBatch(ctx, batch)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.sourceFailed(name, "read", p, err)
		return e.placeholderOrEmpty(proj, p, now), nil
	}

	var (
		locations []graph.Path
		children  []graph.Segment
		expires   time.Time
		found     bool
	)
	props := make(map[string]graph.Property)
	for _, cmd := range cmds {
		if err := cmd.Err(); err != nil {
			if !errors.Is(err, graph.ErrNotFound) {
				e.sourceFailed(name, "read", p, err)
			}
			continue
		}
		loc := cmd.At()
		if actual, ok := cmd.ActualPath(); ok {
			loc = actual
		}
		policy := conn.DefaultCachePolicy()
		if cp, ok := cmd.CachePolicy(); ok {
			policy = cp
		}
		expires = earliest(expires, policy.ExpirationFrom(now), found)
		found = true
		locations = append(locations, loc)
		for pname, prop := range cmd.Properties() {
			if graph.IsReserved(pname) {
				continue
			}
			if _, dup := props[pname]; !dup {
				props[pname] = prop
			}
		}
		for _, seg := range cmd.Children() {
			for _, rp := range proj.PathsInRepository(loc.Child(seg)) {
				if !rp.IsRoot() && rp.Parent().Equal(p) && !graph.HasChild(children, rp.Last()) {
					children = append(children, rp.Last())
				}
			}
		}
	}
	for _, seg := range proj.ChildrenTowardTopLevel(p) {
		if !graph.HasChild(children, seg) {
			children = append(children, seg)
		}
	}
	if !found {
		return e.placeholderOrEmpty(proj, p, now), nil
	}
	return NewContribution(name, locations, props, children, expires), nil
}

// earliest returns the sooner of two expirations where the zero time means
// never. cur is ignored when haveCur is false.
func earliest(cur, next time.Time, haveCur bool) time.Time {
	switch {
	case !haveCur, cur.IsZero():
		return next
	case next.IsZero():
		return cur
	case next.Before(cur):
		return next
	}
	return cur
}

func (e *Executor) sourceFailed(source, op string, p graph.Path, err error) {
	e.env.Logger.Warn("source contributes nothing",
		slog.String("source", source),
		slog.String("op", op),
		slog.String("path", p.String()),
		slog.Any("err", err))
	e.env.Metrics.SourceFailure(source)
}

func (e *Executor) writeCache(ctx context.Context, n *graph.Node, plan MergePlan) error {
	planProp, err := PlanProperty(plan)
	if err != nil {
		return err
	}
	props := make([]graph.Property, 0, len(n.Properties)+2)
	for _, prop := range n.Properties {
		props = append(props, prop)
	}
	props = append(props, planProp, graph.NewProperty(graph.UUIDProperty, n.UUID.String()))

	if err := e.putCached(ctx, n.Path, props, n.Children); err != nil {
		return fmt.Errorf("cache %s: %w", n.Path, err)
	}
	e.env.Metrics.CacheWrite()
	return nil
}

// putCached writes a node to the cache. When its parent is missing, the
// ancestors are first written without a merge plan, so they are merged again
// on their next read.
func (e *Executor) putCached(ctx context.Context, p graph.Path, props []graph.Property, children []graph.Segment) error {
	err := e.execCache(ctx, graph.NewPutNode(p, props, children))
	var nf *graph.PathNotFoundError
	if p.IsRoot() || !errors.As(err, &nf) {
		return err
	}
	if err := e.putCached(ctx, p.Parent(), nil, []graph.Segment{p.Last()}); err != nil {
		return err
	}
	return e.execCache(ctx, graph.NewPutNode(p, props, children))
}

// execCache runs cmd against the cache source and returns its error,
// transport or request.
func (e *Executor) execCache(ctx context.Context, cmd graph.Command) error {
	w, err := Project(cmd, e.cache)
	if err != nil {
		return err
	}
	conn, err := e.connection(ctx, e.cache.SourceName())
	if err != nil {
		return err
	}
	if err := conn.Execute(ctx, w); err != nil {
		return err
	}
	return cmd.Err()
}

// invalidate clears the merge plan of a cached node so that the next read
// merges it again.
func (e *Executor) invalidate(ctx context.Context, p graph.Path) {
	if !e.caches(p) {
		return
	}
	err := e.execCache(ctx, graph.NewUpdateProperties(p, graph.Property{Name: graph.MergePlanProperty}))
	if err != nil && !errors.Is(err, graph.ErrNotFound) {
		e.env.Logger.Warn("invalidating cached node", slog.String("path", p.String()), slog.Any("err", err))
		return
	}
	if err == nil {
		e.env.Metrics.Invalidation()
	}
}

// dropCached removes a cached branch that no longer exists in any source.
func (e *Executor) dropCached(ctx context.Context, p graph.Path) {
	if p.IsRoot() || !e.caches(p) {
		return
	}
	err := e.execCache(ctx, graph.NewDeleteBranch(p))
	if err != nil && !errors.Is(err, graph.ErrNotFound) {
		e.env.Logger.Warn("dropping cached branch", slog.String("path", p.String()), slog.Any("err", err))
	}
}

func (e executorProcessor) ReadNode(ctx context.Context, cmd graph.ReadNodeCommand) {
	n, err := e.GetNode(ctx, cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(n.Path)
	for _, prop := range n.Properties {
		cmd.SetProperty(prop)
	}
	for _, seg := range n.Children {
		cmd.AddChild(seg)
	}
}

func (e executorProcessor) ReadChildren(ctx context.Context, cmd graph.ReadChildrenCommand) {
	n, err := e.GetNode(ctx, cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(n.Path)
	for _, seg := range n.Children {
		cmd.AddChild(seg)
	}
}

func (e executorProcessor) ReadProperties(ctx context.Context, cmd graph.ReadPropertiesCommand) {
	n, err := e.GetNode(ctx, cmd.At())
	if err != nil {
		cmd.SetError(err)
		return
	}
	cmd.SetActualPath(n.Path)
	for _, prop := range n.Properties {
		cmd.SetProperty(prop)
	}
}

// ReadBranch walks the merged tree breadth first from cmd.At().
func (e executorProcessor) ReadBranch(ctx context.Context, cmd graph.ReadBranchCommand) {
	type item struct {
		path  graph.Path
		depth int
	}
	queue := []item{{path: cmd.At()}}
	for len(queue) > 0 {
		it := queue[0]
		queue = queue[1:]
		n, err := e.GetNode(ctx, it.path)
		if err != nil {
			if it.depth > 0 && errors.Is(err, graph.ErrNotFound) && ctx.Err() == nil {
				continue
			}
			cmd.SetError(err)
			return
		}
		if it.depth == 0 {
			cmd.SetActualPath(n.Path)
		}
		cmd.AddNode(n.Path, n.Properties, n.Children)
		if limit := cmd.MaxDepth(); limit >= 0 && it.depth >= limit {
			continue
		}
		for _, child := range n.ChildPaths() {
			queue = append(queue, item{path: child, depth: it.depth + 1})
		}
	}
}

func (e executorProcessor) CreateNode(ctx context.Context, cmd graph.CreateNodeCommand) {
	if e.writeToOwner(ctx, cmd, cmd.Under()) {
		e.invalidate(ctx, cmd.Under())
		e.refreshTarget(ctx, cmd, cmd.Conflict(), false)
	}
}

func (e executorProcessor) UpdateProperties(ctx context.Context, cmd graph.UpdatePropertiesCommand) {
	if e.writeToOwner(ctx, cmd, cmd.At()) {
		e.invalidate(ctx, cmd.At())
	}
}

func (e executorProcessor) PutNode(ctx context.Context, cmd graph.PutNodeCommand) {
	if e.writeToOwner(ctx, cmd, cmd.At()) {
		e.invalidate(ctx, cmd.At())
		e.invalidate(ctx, cmd.At().Parent())
	}
}

// DeleteBranch removes the branch from every writable source that maps it.
// It fails with a not-found error only when no source had the branch.
func (e executorProcessor) DeleteBranch(ctx context.Context, cmd graph.DeleteBranchCommand) {
	p := cmd.At()
	if p.IsRoot() {
		cmd.SetError(graph.ErrRootOperation)
		return
	}
	owners, err := e.writableOwners(p)
	if err != nil {
		cmd.SetError(err)
		return
	}
	var (
		deleted  int
		firstErr error
	)
	for _, proj := range owners {
		sub := graph.NewDeleteBranch(p)
		err := e.execSource(ctx, proj, sub)
		switch {
		case err == nil:
			deleted++
		case errors.Is(err, graph.ErrNotFound):
		case firstErr == nil:
			firstErr = err
		}
	}
	switch {
	case firstErr != nil:
		cmd.SetError(firstErr)
	case deleted == 0:
		cmd.SetError(graph.NotFound(p, p.Parent()))
	}
	if deleted > 0 {
		e.dropCached(ctx, p)
		e.invalidate(ctx, p.Parent())
	}
}

func (e executorProcessor) MoveBranch(ctx context.Context, cmd graph.MoveBranchCommand) {
	if e.relocate(ctx, cmd, cmd.From(), cmd.Into()) {
		e.dropCached(ctx, cmd.From())
		e.invalidate(ctx, cmd.From().Parent())
		e.invalidate(ctx, cmd.Into())
		e.refreshTarget(ctx, cmd, cmd.Conflict(), true)
	}
}

func (e executorProcessor) CopyBranch(ctx context.Context, cmd graph.CopyBranchCommand) {
	if e.relocate(ctx, cmd, cmd.From(), cmd.Into()) {
		e.invalidate(ctx, cmd.Into())
		e.refreshTarget(ctx, cmd, cmd.Conflict(), true)
	}
}

func (e executorProcessor) CopyNode(ctx context.Context, cmd graph.CopyNodeCommand) {
	if e.relocate(ctx, cmd, cmd.From(), cmd.Into()) {
		e.invalidate(ctx, cmd.Into())
		e.refreshTarget(ctx, cmd, cmd.Conflict(), false)
	}
}

// refreshTarget makes the next read of the node a write landed on merge it
// again. A replaced node, or a branch overwritten by a relocation, may have
// lost descendants, so its cached branch is dropped instead.
func (e *Executor) refreshTarget(ctx context.Context, cmd graph.Located, conflict graph.ConflictBehavior, branch bool) {
	target, ok := cmd.ActualPath()
	if !ok {
		return
	}
	if conflict == graph.ConflictReplace || (branch && conflict == graph.ConflictUpdate) {
		e.dropCached(ctx, target)
		return
	}
	e.invalidate(ctx, target)
}

// writableOwners returns the writable projections that map p, in order.
func (e *Executor) writableOwners(p graph.Path) ([]*Projection, error) {
	var owners, writable []*Projection
	for _, proj := range e.projections {
		if len(proj.PathsInSource(p)) == 0 {
			continue
		}
		owners = append(owners, proj)
		if !proj.ReadOnly() {
			writable = append(writable, proj)
		}
	}
	switch {
	case len(owners) == 0:
		return nil, fmt.Errorf("%s: %w", p, ErrNoOwningSource)
	case len(writable) == 0:
		return nil, fmt.Errorf("%s: %w", p, graph.ErrReadOnly)
	}
	return writable, nil
}

// writeToOwner sends cmd to the first writable source mapping anchor and
// reports whether it succeeded.
func (e *Executor) writeToOwner(ctx context.Context, cmd graph.Command, anchor graph.Path) bool {
	owners, err := e.writableOwners(anchor)
	if err != nil {
		cmd.SetError(err)
		return false
	}
	if err := e.execSource(ctx, owners[0], cmd); err != nil {
		if cmd.Err() == nil {
			cmd.SetError(err)
		}
		return false
	}
	return true
}

// relocate sends a move or copy to the first writable source that maps both
// ends. Relocations between sources are not supported.
func (e *Executor) relocate(ctx context.Context, cmd graph.Command, from, into graph.Path) bool {
	var fromOwned, intoOwned, readOnly bool
	for _, proj := range e.projections {
		f := len(proj.PathsInSource(from)) > 0
		i := len(proj.PathsInSource(into)) > 0
		fromOwned = fromOwned || f
		intoOwned = intoOwned || i
		if !f || !i {
			continue
		}
		if proj.ReadOnly() {
			readOnly = true
			continue
		}
		if err := e.execSource(ctx, proj, cmd); err != nil {
			if cmd.Err() == nil {
				cmd.SetError(err)
			}
			return false
		}
		return true
	}
	switch {
	case readOnly:
		cmd.SetError(fmt.Errorf("%s: %w", from, graph.ErrReadOnly))
	case fromOwned && intoOwned:
		cmd.SetError(fmt.Errorf("%s to %s: %w", from, into, ErrCrossSource))
	default:
		cmd.SetError(fmt.Errorf("%s to %s: %w", from, into, ErrNoOwningSource))
	}
	return false
}

// execSource projects cmd onto proj's source and runs it, returning the
// transport or request error.
func (e *Executor) execSource(ctx context.Context, proj *Projection, cmd graph.Command) error {
	w, err := Project(cmd, proj)
	if err != nil {
		return err
	}
	conn, err := e.connection(ctx, proj.SourceName())
	if err != nil {
		return err
	}
	e.env.Metrics.Write(proj.SourceName(), cmd.Kind().String())
	if err := conn.Execute(ctx, w); err != nil {
		return err
	}
	return cmd.Err()
}
