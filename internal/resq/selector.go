package resq

import (
	"regexp"
	"strings"
)

// Wildcard matches any identity, including an absent one.
const Wildcard = "*"

// Selector is a compiled selector token.
type Selector struct {
	token   string
	pattern *regexp.Regexp
}

// CompileSelector compiles token. Each '*' stands for one or more characters;
// everything else matches literally.
func CompileSelector(token string) *Selector {
	s := &Selector{token: token}
	if token == Wildcard {
		return s
	}
	parts := strings.Split(token, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	s.pattern = regexp.MustCompile("^" + strings.Join(parts, ".+") + "$")
	return s
}

func (s *Selector) String() string {
	return s.token
}

// Match reports whether name satisfies the selector. The empty name means the
// node has no identity.
func (s *Selector) Match(name string) bool {
	if s.token == Wildcard {
		return true
	}
	if name == "" {
		return false
	}
	stripped, ok := StripHoC(name)
	if !ok {
		return false
	}
	return s.pattern.MatchString(stripped)
}

// MatchSelector compiles token and matches it against name.
func MatchSelector(token, name string) bool {
	return CompileSelector(token).Match(name)
}

// StripHoC unwraps a higher-order component name, so "withRouter(Foo)"
// becomes "Foo". It reports false when nothing usable remains.
func StripHoC(name string) (string, bool) {
	parts := strings.Split(name, "(")
	if len(parts) == 1 {
		return name, name != ""
	}
	for _, p := range parts {
		if strings.Contains(p, ")") {
			inner := strings.ReplaceAll(p, ")", "")
			return inner, inner != ""
		}
	}
	return "", false
}

// ParseSelector splits a selector string into its space-separated tokens,
// trimming each and dropping empty ones.
func ParseSelector(selector string) []string {
	var tokens []string
	for _, t := range strings.Split(selector, " ") {
		t = strings.TrimSpace(t)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
