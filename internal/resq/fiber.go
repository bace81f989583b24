package resq

// TypeKind tells which shape a fiber's element type takes.
type TypeKind int

const (
	// TypeNone covers null or unrecognised element types (host roots, text).
	TypeNone TypeKind = iota
	// TypeFunction is a component function or class.
	TypeFunction
	// TypeString is a host element tag such as "div".
	TypeString
	// TypeObject is a structured type: memo, forwardRef, styled wrappers.
	TypeObject
)

// ElementType is the type descriptor of a fiber.
type ElementType struct {
	Kind TypeKind
	// Name is the function name for TypeFunction and the tag for TypeString.
	Name string
	// DisplayName is set for functions and structured types that declare one.
	DisplayName string
	// StyledComponentID is the styled-components id of a structured type, if any.
	StyledComponentID string
}

// Descriptor is the structured identity of a node whose type is an object.
type Descriptor struct {
	DisplayName       string `json:"displayName,omitempty"`
	StyledComponentID string `json:"styledComponentId,omitempty"`
}

// HandleKind classifies a host node handle.
type HandleKind string

const (
	HandleElement HandleKind = "element"
	HandleText    HandleKind = "text"
	HandleOther   HandleKind = "other"
)

// Handle is an opaque reference to a rendered host node. Ref indexes the
// page-side handle table the snapshot was taken with.
type Handle struct {
	Kind   HandleKind `json:"kind"`
	Ref    int        `json:"ref"`
	Tag    string     `json:"tag,omitempty"`
	ID     string     `json:"id,omitempty"`
	TestID string     `json:"testId,omitempty"`
	Text   string     `json:"text,omitempty"`
}

// IsPlatform reports whether h refers to an element or a text node.
func (h *Handle) IsPlatform() bool {
	return h != nil && (h.Kind == HandleElement || h.Kind == HandleText)
}

func (*Handle) isOutput() {}

// HandleList is the rendered output of a fragment.
type HandleList []*Handle

func (HandleList) isOutput() {}

// Output is a node's rendered output: a *Handle, a HandleList, or nil.
type Output interface {
	isOutput()
}

// Fiber is one node of the runtime-owned component graph. Nothing about the
// graph is guaranteed: Return, Sibling or Child may point anywhere, including
// back at the node itself.
type Fiber struct {
	Type            ElementType
	Child           *Fiber
	Sibling         *Fiber
	Return          *Fiber
	MemoizedProps   Value
	MemoizedState   Value
	StateNode       *Handle
	ConstructorName string
}
