// Package filter prunes DOM subtrees matched by CSS exclusion selectors.
package filter

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// SelectorSyntaxError names a selector that could not be parsed
type SelectorSyntaxError struct {
	Selector string
	Err      error
}

func (e *SelectorSyntaxError) Error() string {
	return fmt.Sprintf("invalid selector %q: %v", e.Selector, e.Err)
}

func (e *SelectorSyntaxError) Unwrap() error {
	return e.Err
}

type rule struct {
	source string
	group  cascadia.SelectorGroup
}

// Filter is an ordered list of compiled exclusion rules. It holds no
// per-document state and is safe for concurrent use.
type Filter struct {
	rules []rule
}

// Compile parses every selector once. A single unparseable selector fails the
// whole call and no Filter is returned. Blank entries are ignored.
func Compile(selectors []string) (*Filter, error) {
	f := &Filter{rules: make([]rule, 0, len(selectors))}
	for _, s := range selectors {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		group, err := cascadia.ParseGroup(s)
		if err != nil {
			return nil, &SelectorSyntaxError{Selector: s, Err: err}
		}
		f.rules = append(f.rules, rule{source: s, group: group})
	}
	return f, nil
}

// MustCompile is like Compile but panics on a syntax error. Intended for
// package level selector tables.
func MustCompile(selectors []string) *Filter {
	f, err := Compile(selectors)
	if err != nil {
		panic(err)
	}
	return f
}

// Selectors returns the compiled selectors in application order
func (f *Filter) Selectors() []string {
	out := make([]string, len(f.rules))
	for i, r := range f.rules {
		out[i] = r.source
	}
	return out
}

// Len returns the number of rules
func (f *Filter) Len() int {
	return len(f.rules)
}

// Apply removes, rule by rule, every element matched by the rule together
// with its subtree. Each rule sees the tree already pruned by the rules before
// it. root is modified in place and returned; root itself is never removed.
// A second Apply is a no-op unless a rule depends on sibling position or
// emptiness (:first-child, :nth-child, :empty), which can match afresh.
func (f *Filter) Apply(root *html.Node) *html.Node {
	if root == nil {
		return nil
	}
	for _, r := range f.rules {
		// QueryAll returns matches in document order, so an ancestor is always
		// detached before its descendants. Detaching a node from an already
		// detached subtree is harmless.
		for _, n := range cascadia.QueryAll(root, r.group) {
			if n.Parent != nil {
				n.Parent.RemoveChild(n)
			}
		}
	}
	return root
}

// Prune compiles selectors and applies them to root
func Prune(root *html.Node, selectors []string) (*html.Node, error) {
	f, err := Compile(selectors)
	if err != nil {
		return nil, err
	}
	return f.Apply(root), nil
}

// Merge returns defaults followed by overrides, keeping only the first
// occurrence of an exact duplicate
func Merge(defaults, overrides []string) []string {
	seen := make(map[string]bool, len(defaults)+len(overrides))
	merged := make([]string, 0, len(defaults)+len(overrides))
	for _, list := range [][]string{defaults, overrides} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			merged = append(merged, s)
		}
	}
	return merged
}
