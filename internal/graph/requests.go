package graph

// Concrete command types. Each is a plain struct that records its results in
// place; the federation layer wraps them to translate paths.

type status struct {
	err error
}

func (s *status) Err() error         { return s.err }
func (s *status) SetError(err error) { s.err = err }

type location struct {
	actual Path
	found  bool
}

func (l *location) ActualPath() (Path, bool) { return l.actual, l.found }
func (l *location) SetActualPath(p Path) {
	l.actual = p
	l.found = true
}

type cacheHint struct {
	policy CachePolicy
	set    bool
}

func (c *cacheHint) CachePolicy() (CachePolicy, bool) { return c.policy, c.set }
func (c *cacheHint) SetCachePolicy(p CachePolicy) {
	c.policy = p
	c.set = true
}

type propertySink struct {
	props map[string]Property
}

func (s *propertySink) Properties() map[string]Property {
	if s.props == nil {
		return map[string]Property{}
	}
	return s.props
}

func (s *propertySink) SetProperty(p Property) {
	if s.props == nil {
		s.props = make(map[string]Property)
	}
	s.props[p.Name] = p
}

type childSink struct {
	children []Segment
}

func (s *childSink) Children() []Segment { return s.children }
func (s *childSink) AddChild(seg Segment) {
	s.children = append(s.children, seg)
}

// ReadNode reads a node's properties and children.
type ReadNode struct {
	status
	location
	cacheHint
	propertySink
	childSink
	at Path
}

func NewReadNode(at Path) *ReadNode { return &ReadNode{at: at} }

func (c *ReadNode) Kind() CommandKind { return KindReadNode }
func (c *ReadNode) At() Path          { return c.at }

// Node assembles the result; it returns nil when the read failed.
func (c *ReadNode) Node() *Node {
	if c.err != nil {
		return nil
	}
	p := c.at
	if c.found {
		p = c.actual
	}
	return &Node{Path: p, Properties: c.Properties(), Children: c.children}
}

type ReadChildren struct {
	status
	location
	cacheHint
	childSink
	at Path
}

func NewReadChildren(at Path) *ReadChildren { return &ReadChildren{at: at} }

func (c *ReadChildren) Kind() CommandKind { return KindReadChildren }
func (c *ReadChildren) At() Path          { return c.at }

type ReadProperties struct {
	status
	location
	cacheHint
	propertySink
	at Path
}

func NewReadProperties(at Path) *ReadProperties { return &ReadProperties{at: at} }

func (c *ReadProperties) Kind() CommandKind { return KindReadProperties }
func (c *ReadProperties) At() Path          { return c.at }

type ReadBranch struct {
	status
	location
	at       Path
	maxDepth int
	nodes    []*Node
}

// NewReadBranch records the branch at `at`; maxDepth < 0 means unlimited.
func NewReadBranch(at Path, maxDepth int) *ReadBranch {
	return &ReadBranch{at: at, maxDepth: maxDepth}
}

func (c *ReadBranch) Kind() CommandKind { return KindReadBranch }
func (c *ReadBranch) At() Path          { return c.at }
func (c *ReadBranch) MaxDepth() int     { return c.maxDepth }
func (c *ReadBranch) Nodes() []*Node    { return c.nodes }

func (c *ReadBranch) AddNode(p Path, props map[string]Property, children []Segment) {
	c.nodes = append(c.nodes, &Node{Path: p, Properties: props, Children: children})
}

type CreateNode struct {
	status
	location
	under       Path
	name        string
	props       []Property
	children    []Segment
	hasChildren bool
	conflict    ConflictBehavior
}

func NewCreateNode(under Path, name string, conflict ConflictBehavior, props ...Property) *CreateNode {
	return &CreateNode{under: under, name: name, conflict: conflict, props: props}
}

// WithChildren sets the exact child list the created node should have.
func (c *CreateNode) WithChildren(children ...Segment) *CreateNode {
	c.children = children
	c.hasChildren = true
	return c
}

func (c *CreateNode) Kind() CommandKind              { return KindCreateNode }
func (c *CreateNode) Under() Path                    { return c.under }
func (c *CreateNode) Name() string                   { return c.name }
func (c *CreateNode) NodeProperties() []Property     { return c.props }
func (c *CreateNode) Conflict() ConflictBehavior     { return c.conflict }
func (c *CreateNode) NodeChildren() ([]Segment, bool) { return c.children, c.hasChildren }

type UpdateProperties struct {
	status
	location
	at      Path
	updates []Property
}

func NewUpdateProperties(at Path, updates ...Property) *UpdateProperties {
	return &UpdateProperties{at: at, updates: updates}
}

func (c *UpdateProperties) Kind() CommandKind   { return KindUpdateProperties }
func (c *UpdateProperties) At() Path            { return c.at }
func (c *UpdateProperties) Updates() []Property { return c.updates }

type DeleteBranch struct {
	status
	at Path
}

func NewDeleteBranch(at Path) *DeleteBranch { return &DeleteBranch{at: at} }

func (c *DeleteBranch) Kind() CommandKind { return KindDeleteBranch }
func (c *DeleteBranch) At() Path          { return c.at }

type relocation struct {
	status
	location
	from     Path
	into     Path
	newName  string
	conflict ConflictBehavior
}

func (r *relocation) From() Path                 { return r.from }
func (r *relocation) Into() Path                 { return r.into }
func (r *relocation) NewName() string            { return r.newName }
func (r *relocation) Conflict() ConflictBehavior { return r.conflict }

type MoveBranch struct{ relocation }

// NewMoveBranch moves from under into. An empty newName keeps the name.
func NewMoveBranch(from, into Path, newName string, conflict ConflictBehavior) *MoveBranch {
	return &MoveBranch{relocation{from: from, into: into, newName: newName, conflict: conflict}}
}

func (c *MoveBranch) Kind() CommandKind { return KindMoveBranch }

type CopyBranch struct{ relocation }

func NewCopyBranch(from, into Path, newName string, conflict ConflictBehavior) *CopyBranch {
	return &CopyBranch{relocation{from: from, into: into, newName: newName, conflict: conflict}}
}

func (c *CopyBranch) Kind() CommandKind { return KindCopyBranch }

type CopyNode struct{ relocation }

func NewCopyNode(from, into Path, newName string, conflict ConflictBehavior) *CopyNode {
	return &CopyNode{relocation{from: from, into: into, newName: newName, conflict: conflict}}
}

func (c *CopyNode) Kind() CommandKind { return KindCopyNode }

type PutNode struct {
	status
	location
	at       Path
	props    []Property
	children []Segment
}

func NewPutNode(at Path, props []Property, children []Segment) *PutNode {
	return &PutNode{at: at, props: props, children: children}
}

func (c *PutNode) Kind() CommandKind          { return KindPutNode }
func (c *PutNode) At() Path                   { return c.at }
func (c *PutNode) NodeProperties() []Property { return c.props }
func (c *PutNode) NodeChildren() []Segment    { return c.children }

// TargetName returns the name a relocated node takes under its new parent.
func TargetName(from Path, newName string) string {
	if newName != "" {
		return newName
	}
	if from.IsRoot() {
		return ""
	}
	return from.Last().Name
}

var (
	_ ReadNodeCommand         = (*ReadNode)(nil)
	_ ReadChildrenCommand     = (*ReadChildren)(nil)
	_ ReadPropertiesCommand   = (*ReadProperties)(nil)
	_ ReadBranchCommand       = (*ReadBranch)(nil)
	_ CreateNodeCommand       = (*CreateNode)(nil)
	_ UpdatePropertiesCommand = (*UpdateProperties)(nil)
	_ DeleteBranchCommand     = (*DeleteBranch)(nil)
	_ MoveBranchCommand       = (*MoveBranch)(nil)
	_ CopyBranchCommand       = (*CopyBranch)(nil)
	_ CopyNodeCommand         = (*CopyNode)(nil)
	_ PutNodeCommand          = (*PutNode)(nil)
)
