package ingest

import "strings"

// Discriminator decides whether a source should parse a message, based on a
// View of it. Discriminators are cheap to evaluate compared to parsing.
type Discriminator interface {
	Match(v View) bool
}

// DiscriminatorFunc is a function adapter for Discriminator.
type DiscriminatorFunc func(v View) bool

// Match implements the Discriminator interface.
func (f DiscriminatorFunc) Match(v View) bool { return f(v) }

// HasFields matches when every path exists.
func HasFields(paths ...string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, p := range paths {
			if !v.Has(p) {
				return false
			}
		}
		return true
	})
}

// FieldEquals matches when path holds exactly the string value.
func FieldEquals(path, value string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.Text(path)
		return ok && s == value
	})
}

// FieldPrefix matches when path holds a string starting with prefix.
func FieldPrefix(path, prefix string) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		s, ok := v.Text(path)
		return ok && strings.HasPrefix(s, prefix)
	})
}

// And matches when all discriminators match. An empty And matches everything.
func And(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if !d.Match(v) {
				return false
			}
		}
		return true
	})
}

// Or matches when any discriminator matches. An empty Or matches nothing.
func Or(ds ...Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool {
		for _, d := range ds {
			if d.Match(v) {
				return true
			}
		}
		return false
	})
}

// Not inverts d.
func Not(d Discriminator) Discriminator {
	return DiscriminatorFunc(func(v View) bool { return !d.Match(v) })
}
