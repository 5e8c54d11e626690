package symbols

import "strings"

// VisibilityPolicy classifies leaf names as public or private.
// A leaf with exactly one leading underscore is private. Reserved dunder names
// (__init__, __call__) follow DunderPublic; name-mangled names (__secret)
// follow MangledPrivate.
type VisibilityPolicy struct {
	DunderPublic   bool
	MangledPrivate bool
}

func DefaultVisibility() VisibilityPolicy {
	return VisibilityPolicy{DunderPublic: true}
}

func (p VisibilityPolicy) Classify(name string) Visibility {
	switch {
	case isDunder(name):
		if p.DunderPublic {
			return Public
		}
		return Private
	case strings.HasPrefix(name, "__"):
		if p.MangledPrivate {
			return Private
		}
		return Public
	case strings.HasPrefix(name, "_"):
		return Private
	}
	return Public
}

func isDunder(name string) bool {
	return len(name) > 4 && strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")
}
