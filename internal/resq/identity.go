package resq

import "encoding/json"

// IdentityKind is the tag of an Identity.
type IdentityKind int

const (
	IdentityAbsent IdentityKind = iota
	// IdentityHost is a host element tag.
	IdentityHost
	// IdentityComponent is a component name taken from a function type or,
	// failing that, from a non-generic constructor name.
	IdentityComponent
	// IdentityDescriptor is a structured type descriptor.
	IdentityDescriptor
)

// Identity is the resolved name of a normalized node.
type Identity struct {
	Kind       IdentityKind
	Name       string
	Descriptor *Descriptor
	// fromFunction marks identities resolved from a function type, which are
	// the only ones eligible to become fragments.
	fromFunction bool
}

// Selectable returns the name selectors compare against. The empty string
// means there is nothing to compare.
func (id Identity) Selectable() string {
	switch id.Kind {
	case IdentityHost, IdentityComponent:
		return id.Name
	case IdentityDescriptor:
		if id.Descriptor == nil {
			return ""
		}
		return id.Descriptor.DisplayName
	default:
		return ""
	}
}

func (id Identity) String() string {
	return id.Selectable()
}

func (id Identity) MarshalJSON() ([]byte, error) {
	switch id.Kind {
	case IdentityHost, IdentityComponent:
		return json.Marshal(id.Name)
	case IdentityDescriptor:
		return json.Marshal(id.Descriptor)
	default:
		return []byte("null"), nil
	}
}

// resolveIdentity derives a node's identity from its fiber.
func resolveIdentity(f *Fiber) Identity {
	t := f.Type
	switch t.Kind {
	case TypeFunction:
		name := t.DisplayName
		if name == "" {
			name = t.Name
		}
		return Identity{Kind: IdentityComponent, Name: name, fromFunction: true}
	case TypeString:
		return Identity{Kind: IdentityHost, Name: t.Name}
	case TypeObject:
		return Identity{Kind: IdentityDescriptor, Descriptor: &Descriptor{
			DisplayName:       t.DisplayName,
			StyledComponentID: t.StyledComponentID,
		}}
	}
	if c := f.ConstructorName; c != "" && c != "Object" && c != "Function" {
		return Identity{Kind: IdentityComponent, Name: c}
	}
	return Identity{}
}
