package permissions

import (
	"regexp"
	"strings"
	"sync"
)

// matcherKind is the shape of a compiled permission pattern
type matcherKind int

const (
	matchExact matcherKind = iota
	matchPrefix
	matchSuffix
	matchPattern
)

// Matcher is a precompiled permission pattern. Patterns are compiled once per
// distinct permission string and cached; the common single-wildcard forms
// ("tickets.*", "*.view_all") avoid regex entirely.
type Matcher struct {
	kind    matcherKind
	literal string
	re      *regexp.Regexp
}

var matcherCache sync.Map // string -> *Matcher

// CompileMatcher returns the cached matcher for a permission string,
// compiling it on first use.
func CompileMatcher(pattern string) *Matcher {
	if m, ok := matcherCache.Load(pattern); ok {
		return m.(*Matcher)
	}
	m := compile(pattern)
	actual, _ := matcherCache.LoadOrStore(pattern, m)
	return actual.(*Matcher)
}

func compile(pattern string) *Matcher {
	n := strings.Count(pattern, "*")
	switch {
	case n == 0:
		return &Matcher{kind: matchExact, literal: pattern}
	case n == 1 && strings.HasSuffix(pattern, "*"):
		return &Matcher{kind: matchPrefix, literal: strings.TrimSuffix(pattern, "*")}
	case n == 1 && strings.HasPrefix(pattern, "*"):
		return &Matcher{kind: matchSuffix, literal: strings.TrimPrefix(pattern, "*")}
	default:
		// Escape everything except the wildcards, which become ".*"
		parts := strings.Split(pattern, "*")
		for i, p := range parts {
			parts[i] = regexp.QuoteMeta(p)
		}
		re := regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
		return &Matcher{kind: matchPattern, re: re}
	}
}

// Matches reports whether the concrete permission name satisfies the pattern.
func (m *Matcher) Matches(name string) bool {
	switch m.kind {
	case matchExact:
		return m.literal == name
	case matchPrefix:
		return strings.HasPrefix(name, m.literal)
	case matchSuffix:
		return strings.HasSuffix(name, m.literal)
	default:
		return m.re.MatchString(name)
	}
}

// PermissionSatisfied reports whether a required permission is satisfied by
// the held set. Wildcards work in both directions: a held 'tickets.*'
// satisfies a required 'tickets.view_all', and a required 'tickets.*' is
// satisfied by any held 'tickets.x'.
func PermissionSatisfied(required string, held []string) bool {
	requiredMatcher := CompileMatcher(required)
	for _, h := range held {
		if h == required {
			return true
		}
		if strings.ContainsRune(h, '*') && CompileMatcher(h).Matches(required) {
			return true
		}
		if requiredMatcher.kind != matchExact && requiredMatcher.Matches(h) {
			return true
		}
	}
	return false
}
