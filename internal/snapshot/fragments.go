package snapshot

import "strings"

// FragmentGroup holds the three ordered sequences of text fragments
// collected for one asset kind (CSS or JS) during head consolidation:
// inline fragments seen before the first external reference ("pre"),
// the fetched text of external references in document order
// ("external"), and inline fragments seen after ("post").
//
// The pre ++ external ++ post concatenation approximates natural
// application order. It is a documented approximation, not an
// execution-order simulation: no script runs and no cascade is
// computed, so deferred/async script semantics and CSS specificity
// are not modeled.
type FragmentGroup struct {
	pre, external, post []string

	// seenExternal is the split flag: once an external reference has
	// been encountered, later inline fragments belong to post.
	seenExternal bool
}

// AddInline records an inline fragment. Placement depends on whether an
// external reference has been seen yet at this point in document order.
func (g *FragmentGroup) AddInline(text string) {
	if g.seenExternal {
		g.post = append(g.post, text)
		return
	}
	g.pre = append(g.pre, text)
}

// AddExternal records the fetched text of an external reference and
// flips the split flag.
func (g *FragmentGroup) AddExternal(text string) {
	g.external = append(g.external, text)
	g.seenExternal = true
}

// MarkExternal flips the split flag without recording text. Used for
// external references whose content is kept as a separate file (non-text
// scripts): they still move later inline fragments into post.
func (g *FragmentGroup) MarkExternal() {
	g.seenExternal = true
}

// Join concatenates pre ++ external ++ post with blank-line separators.
func (g *FragmentGroup) Join() string {
	parts := make([]string, 0, len(g.pre)+len(g.external)+len(g.post))
	parts = append(parts, g.pre...)
	parts = append(parts, g.external...)
	parts = append(parts, g.post...)
	return strings.Join(parts, "\n\n")
}
