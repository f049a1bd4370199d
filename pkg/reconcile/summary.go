package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// Summary reports what a run did.
type Summary struct {
	RunID       string
	Incremental bool

	Scanned          int // distinct glyphs considered
	Tagged           int
	TagsRemoved      int
	Created          int
	Suspended        int // character notes
	Unsuspended      int // character notes
	VocabSuspended   int // vocabulary notes
	VocabUnsuspended int // vocabulary notes
	Failed           int

	Missing    []string
	Duplicates []Duplicate
	Failures   []*StoreActionError
}

// Changed reports whether any mutation succeeded. Hosts use this to decide on a follow-up sync.
func (s *Summary) Changed() bool {
	if s == nil {
		return false
	}
	return s.Tagged+s.TagsRemoved+s.Created+s.Suspended+s.Unsuspended+s.VocabSuspended+s.VocabUnsuspended > 0
}

// MissingPreview returns up to n missing literals, sorted, with an ellipsis when truncated.
func (s *Summary) MissingPreview(n int) string {
	if len(s.Missing) == 0 {
		return ""
	}
	sorted := append([]string(nil), s.Missing...)
	sort.Strings(sorted)
	if len(sorted) <= n {
		return strings.Join(sorted, ", ")
	}
	return strings.Join(sorted[:n], ", ") + "…"
}

// FailedLiterals returns the distinct targets of failed actions.
func (s *Summary) FailedLiterals() []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range s.Failures {
		t := f.Action.Literal
		if t == "" {
			t = fmt.Sprintf("note %d", f.Action.NoteID)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// Lines renders the summary as human-readable lines, one per non-zero counter.
func (s *Summary) Lines() []string {
	var out []string
	add := func(label string, n int) {
		if n > 0 {
			out = append(out, fmt.Sprintf("%s: %d", label, n))
		}
	}
	out = append(out, fmt.Sprintf("Kanji scanned: %d", s.Scanned))
	add("Tagged", s.Tagged)
	add("Tags removed", s.TagsRemoved)
	add("Created", s.Created)
	add("Suspended", s.Suspended)
	add("Unsuspended", s.Unsuspended)
	add("Vocabulary suspended", s.VocabSuspended)
	add("Vocabulary unsuspended", s.VocabUnsuspended)
	if len(s.Missing) > 0 {
		out = append(out, fmt.Sprintf("Missing dictionary entries: %d (%s)", len(s.Missing), s.MissingPreview(5)))
	}
	if len(s.Duplicates) > 0 {
		lits := make([]string, 0, len(s.Duplicates))
		for _, d := range s.Duplicates {
			lits = append(lits, d.Literal)
		}
		out = append(out, fmt.Sprintf("Duplicate kanji notes: %d (%s)", len(s.Duplicates), strings.Join(lits, ", ")))
	}
	if s.Failed > 0 {
		out = append(out, fmt.Sprintf("Failed actions: %d (%s)", s.Failed, strings.Join(s.FailedLiterals(), ", ")))
	}
	return out
}
