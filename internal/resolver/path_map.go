package resolver

import (
	"fmt"
	"strings"

	"github.com/grafana/regexp"
)

type (
	// Rule rewrites a path. The boolean result reports whether the rule
	// applied.
	Rule interface {
		Apply(path string) (string, bool)
	}

	// PrefixRule replaces a leading Prefix with Replace.
	PrefixRule struct {
		Prefix  string `json:"prefix"`
		Replace string `json:"replace"`
	}

	// RegexRule replaces every match of Pattern, expanding $1-style
	// references in Replace.
	RegexRule struct {
		Pattern *regexp.Regexp
		Replace string
	}

	// PathMap applies the first matching rule to a path, in insertion
	// order.
	PathMap struct {
		rules []Rule
	}
)

func (r PrefixRule) Apply(path string) (string, bool) {
	if r.Prefix == "" || !strings.HasPrefix(path, r.Prefix) {
		return path, false
	}
	return r.Replace + path[len(r.Prefix):], true
}

func NewRegexRule(pattern, replace string) (RegexRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return RegexRule{}, fmt.Errorf("resolver: invalid path pattern %q: %w", pattern, err)
	}
	return RegexRule{Pattern: re, Replace: replace}, nil
}

func (r RegexRule) Apply(path string) (string, bool) {
	out := r.Pattern.ReplaceAllString(path, r.Replace)
	return out, out != path
}

// NewPathMap returns a path map applying rules in order.
func NewPathMap(rules ...Rule) *PathMap {
	return &PathMap{rules: rules}
}

func (m *PathMap) Add(rule Rule) {
	m.rules = append(m.rules, rule)
}

func (m *PathMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Apply returns the path rewritten by the first rule that changes it. A nil
// map returns the path unchanged.
func (m *PathMap) Apply(path string) string {
	if m == nil || path == "" {
		return path
	}
	for _, rule := range m.rules {
		if out, ok := rule.Apply(path); ok {
			return out
		}
	}
	return path
}

// ParsePathMap builds a path map from "from=to" rules. Rules starting with
// "re:" are regular expressions, every other rule replaces a prefix.
func ParsePathMap(rules []string) (*PathMap, error) {
	m := NewPathMap()
	for _, rule := range rules {
		from, to, ok := strings.Cut(rule, "=")
		if !ok || from == "" {
			return nil, fmt.Errorf("resolver: invalid path rule %q", rule)
		}
		if pattern, isRegex := strings.CutPrefix(from, "re:"); isRegex {
			r, err := NewRegexRule(pattern, to)
			if err != nil {
				return nil, err
			}
			m.Add(r)
			continue
		}
		m.Add(PrefixRule{Prefix: from, Replace: to})
	}
	return m, nil
}
