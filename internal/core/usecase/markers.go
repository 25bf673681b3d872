package usecase

import (
	"regexp"
	"strings"
)

// The [ref:ID] / [path:ID] markers and the rewrite marker are a wire-format
// convention shared with the external reasoner. All parsing of them lives
// here so the stages never scan for markers ad hoc.

var (
	refMarkerRe  = regexp.MustCompile(`\[ref:([^\[\]\s]+)\]`)
	pathMarkerRe = regexp.MustCompile(`\[path:([^\[\]\s]+)\]`)

	// Issue strings are prefixed with the sub-question node id, e.g.
	// "[abc12345] Lei(s) citada(s) ...".
	issuePrefixRe = regexp.MustCompile(`^\[([0-9a-zA-Z_-]{4,64})\]\s*(.*)$`)
)

// rewriteMarkerPrefix opens the bounded suffix the rewriter appends to a
// sub-question. Its presence makes a second rewrite a no-op.
const rewriteMarkerPrefix = "[busca-refinada:"

// ParseRefMarkers returns chunk ids cited as [ref:ID], in order, deduplicated.
func ParseRefMarkers(text string) []string {
	return parseMarkers(refMarkerRe, text)
}

// ParsePathMarkers returns path uids cited as [path:ID], in order, deduplicated.
func ParsePathMarkers(text string) []string {
	return parseMarkers(pathMarkerRe, text)
}

func parseMarkers(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// SplitIssuePrefix separates the "[nodeid] " prefix from the issue body.
// Issues without a prefix return ok=false.
func SplitIssuePrefix(issue string) (nodeID, body string, ok bool) {
	m := issuePrefixRe.FindStringSubmatch(strings.TrimSpace(issue))
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// HasRewriteMarker reports whether a sub-question was already rewritten.
func HasRewriteMarker(question string) bool {
	return strings.Contains(question, rewriteMarkerPrefix)
}
