package graph

import (
	"context"
	"fmt"
)

// CommandKind identifies the operation a Command performs. Dispatch switches
// on the kind rather than the dynamic type so that decorators which embed a
// command interface are routed the same way as the command they wrap.
type CommandKind int

const (
	KindReadNode CommandKind = iota
	KindReadChildren
	KindReadProperties
	KindReadBranch
	KindCreateNode
	KindUpdateProperties
	KindDeleteBranch
	KindMoveBranch
	KindCopyBranch
	KindCopyNode
	KindPutNode
)

func (k CommandKind) String() string {
	switch k {
	case KindReadNode:
		return "read-node"
	case KindReadChildren:
		return "read-children"
	case KindReadProperties:
		return "read-properties"
	case KindReadBranch:
		return "read-branch"
	case KindCreateNode:
		return "create-node"
	case KindUpdateProperties:
		return "update-properties"
	case KindDeleteBranch:
		return "delete-branch"
	case KindMoveBranch:
		return "move-branch"
	case KindCopyBranch:
		return "copy-branch"
	case KindCopyNode:
		return "copy-node"
	case KindPutNode:
		return "put-node"
	default:
		return "unknown"
	}
}

// IsRead reports whether the kind only reads content.
func (k CommandKind) IsRead() bool {
	return k <= KindReadBranch
}

// Command is a single request against a repository. Results and the
// request-level error are recorded on the command itself; the error returned
// by Connection.Execute is reserved for transport-level failures.
type Command interface {
	Kind() CommandKind
	Err() error
	SetError(err error)
}

// ConflictBehavior decides what CreateNode, MoveBranch and CopyBranch do
// when the target name already exists under the parent.
type ConflictBehavior int

const (
	// ConflictAppend adds a new same-name sibling.
	ConflictAppend ConflictBehavior = iota
	// ConflictReplace removes the existing branch and creates a fresh node.
	ConflictReplace
	// ConflictUpdate keeps the existing node and overwrites its properties
	// (and its child list, when one is supplied).
	ConflictUpdate
	// ConflictDoNotReplace leaves the existing node untouched.
	ConflictDoNotReplace
)

var conflictNames = [...]string{"append", "replace", "update", "do-not-replace"}

func (c ConflictBehavior) String() string {
	if c < 0 || int(c) >= len(conflictNames) {
		return fmt.Sprintf("ConflictBehavior(%d)", int(c))
	}
	return conflictNames[c]
}

// ParseConflict maps "append", "replace", "update" or "do-not-replace" to
// a behavior. The empty string means append.
func ParseConflict(s string) (ConflictBehavior, error) {
	if s == "" {
		return ConflictAppend, nil
	}
	for i, name := range conflictNames {
		if s == name {
			return ConflictBehavior(i), nil
		}
	}
	return ConflictAppend, fmt.Errorf("unknown conflict behavior %q", s)
}

// Located is implemented by commands that report where the node actually
// ended up (or was found).
type Located interface {
	ActualPath() (Path, bool)
	SetActualPath(p Path)
}

// Cacheable is implemented by read commands on which a source may declare a
// cache policy that overrides its connection default.
type Cacheable interface {
	CachePolicy() (CachePolicy, bool)
	SetCachePolicy(c CachePolicy)
}

type ReadNodeCommand interface {
	Command
	Located
	Cacheable
	At() Path
	Properties() map[string]Property
	SetProperty(p Property)
	Children() []Segment
	AddChild(s Segment)
}

type ReadChildrenCommand interface {
	Command
	Located
	Cacheable
	At() Path
	Children() []Segment
	AddChild(s Segment)
}

type ReadPropertiesCommand interface {
	Command
	Located
	Cacheable
	At() Path
	Properties() map[string]Property
	SetProperty(p Property)
}

// ReadBranchCommand records a subtree rooted at At() down to MaxDepth levels
// below it. A negative MaxDepth means unlimited.
type ReadBranchCommand interface {
	Command
	Located
	At() Path
	MaxDepth() int
	AddNode(p Path, props map[string]Property, children []Segment)
	Nodes() []*Node
}

type CreateNodeCommand interface {
	Command
	Located
	Under() Path
	Name() string
	NodeProperties() []Property
	// NodeChildren returns the exact child list to establish, or ok=false to
	// leave children alone.
	NodeChildren() (children []Segment, ok bool)
	Conflict() ConflictBehavior
}

type UpdatePropertiesCommand interface {
	Command
	Located
	At() Path
	// Updates lists properties to set; a property with no values is removed.
	Updates() []Property
}

type DeleteBranchCommand interface {
	Command
	At() Path
}

// MoveBranchCommand moves From() to become a child of Into(), optionally
// renamed.
type MoveBranchCommand interface {
	Command
	Located
	From() Path
	Into() Path
	NewName() string
	Conflict() ConflictBehavior
}

type CopyBranchCommand interface {
	Command
	Located
	From() Path
	Into() Path
	NewName() string
	Conflict() ConflictBehavior
}

// CopyNodeCommand copies a single node's properties without its children.
type CopyNodeCommand interface {
	Command
	Located
	From() Path
	Into() Path
	NewName() string
	Conflict() ConflictBehavior
}

// PutNodeCommand writes the complete state of the node at At(): its
// properties are replaced and its child list is made exactly Children(). A
// missing node is appended to its parent, which must exist. The federation
// uses it to write merged nodes, including the root, into the cache.
type PutNodeCommand interface {
	Command
	Located
	At() Path
	NodeProperties() []Property
	NodeChildren() []Segment
}

// Processor executes commands; it is implemented by every connector and by
// the federating executors.
type Processor interface {
	ReadNode(ctx context.Context, cmd ReadNodeCommand)
	ReadChildren(ctx context.Context, cmd ReadChildrenCommand)
	ReadProperties(ctx context.Context, cmd ReadPropertiesCommand)
	ReadBranch(ctx context.Context, cmd ReadBranchCommand)
	CreateNode(ctx context.Context, cmd CreateNodeCommand)
	UpdateProperties(ctx context.Context, cmd UpdatePropertiesCommand)
	DeleteBranch(ctx context.Context, cmd DeleteBranchCommand)
	MoveBranch(ctx context.Context, cmd MoveBranchCommand)
	CopyBranch(ctx context.Context, cmd CopyBranchCommand)
	CopyNode(ctx context.Context, cmd CopyNodeCommand)
	PutNode(ctx context.Context, cmd PutNodeCommand)
}

// Dispatch routes cmd to the matching Processor method. A command whose kind
// does not match its method set records ErrUnsupported.
func Dispatch(ctx context.Context, p Processor, cmd Command) {
	if err := ctx.Err(); err != nil {
		cmd.SetError(err)
		return
	}
	ok := false
	switch cmd.Kind() {
	case KindReadNode:
		var c ReadNodeCommand
		if c, ok = cmd.(ReadNodeCommand); ok {
			p.ReadNode(ctx, c)
		}
	case KindReadChildren:
		var c ReadChildrenCommand
		if c, ok = cmd.(ReadChildrenCommand); ok {
			p.ReadChildren(ctx, c)
		}
	case KindReadProperties:
		var c ReadPropertiesCommand
		if c, ok = cmd.(ReadPropertiesCommand); ok {
			p.ReadProperties(ctx, c)
		}
	case KindReadBranch:
		var c ReadBranchCommand
		if c, ok = cmd.(ReadBranchCommand); ok {
			p.ReadBranch(ctx, c)
		}
	case KindCreateNode:
		var c CreateNodeCommand
		if c, ok = cmd.(CreateNodeCommand); ok {
			p.CreateNode(ctx, c)
		}
	case KindUpdateProperties:
		var c UpdatePropertiesCommand
		if c, ok = cmd.(UpdatePropertiesCommand); ok {
			p.UpdateProperties(ctx, c)
		}
	case KindDeleteBranch:
		var c DeleteBranchCommand
		if c, ok = cmd.(DeleteBranchCommand); ok {
			p.DeleteBranch(ctx, c)
		}
	case KindMoveBranch:
		var c MoveBranchCommand
		if c, ok = cmd.(MoveBranchCommand); ok {
			p.MoveBranch(ctx, c)
		}
	case KindCopyBranch:
		var c CopyBranchCommand
		if c, ok = cmd.(CopyBranchCommand); ok {
			p.CopyBranch(ctx, c)
		}
	case KindCopyNode:
		var c CopyNodeCommand
		if c, ok = cmd.(CopyNodeCommand); ok {
			p.CopyNode(ctx, c)
		}
	case KindPutNode:
		var c PutNodeCommand
		if c, ok = cmd.(PutNodeCommand); ok {
			p.PutNode(ctx, c)
		}
	}
	if !ok {
		cmd.SetError(ErrUnsupported)
	}
}
