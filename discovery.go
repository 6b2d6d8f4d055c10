package bus

import "reflect"

// Match is a discovered descriptor and how the dispatched message relates to
// its message type.
type Match struct {
	Descriptor *MessageDescriptor
	Kind       MatchKind

	cast caster
}

// convert returns msg as a value of the descriptor's message type.
func (m Match) convert(msg any) any {
	if m.cast == nil {
		return msg
	}
	return m.cast(msg)
}

// Discovery resolves the descriptor that applies to a message instance.
type Discovery interface {
	Discover(r *Registry, msg any) (Match, error)
}

// DiscoveryFunc is a function adapter for Discovery.
type DiscoveryFunc func(r *Registry, msg any) (Match, error)

// Discover implements the Discovery interface.
func (f DiscoveryFunc) Discover(r *Registry, msg any) (Match, error) {
	return f(r, msg)
}

// ExactOrFirstAssignable returns the Discovery used by all facades: the
// descriptor for the message's dynamic type if one exists, otherwise the
// first descriptor, in creation order, whose type the message is assignable
// to. When two unrelated supertypes both match, the earlier one wins.
func ExactOrFirstAssignable() Discovery {
	return exactOrFirstAssignable{}
}

type exactOrFirstAssignable struct{}

func (exactOrFirstAssignable) Discover(r *Registry, msg any) (Match, error) {
	t := reflect.TypeOf(msg)
	if m, ok := r.Exact(t); ok {
		return m, nil
	}
	if m, ok := r.FirstAssignable(t); ok {
		return m, nil
	}
	return Match{}, &NoHandlerFoundError{MessageType: t}
}

// ExactOnly returns a Discovery that ignores supertypes.
func ExactOnly() Discovery {
	return DiscoveryFunc(func(r *Registry, msg any) (Match, error) {
		t := reflect.TypeOf(msg)
		if m, ok := r.Exact(t); ok {
			return m, nil
		}
		return Match{}, &NoHandlerFoundError{MessageType: t}
	})
}
