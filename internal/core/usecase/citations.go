package usecase

import (
	"fmt"
	"strings"
)

// CitationHeuristics holds the tunable parts of the deterministic gate. The
// exact tolerances are heuristic for Brazilian legal citation conventions
// and load from configuration rather than living as constants.
type CitationHeuristics struct {
	AbstentionPhrases []string
}

func DefaultCitationHeuristics() CitationHeuristics {
	return CitationHeuristics{
		AbstentionPhrases: []string{
			"não há elementos suficientes",
			"não há evidências suficientes",
			"sem evidências suficientes",
			"não encontrei evidências",
			"não é possível afirmar",
			"evidências insuficientes",
			"insufficient evidence",
		},
	}
}

// IsAbstention reports whether the answer explicitly declines to answer.
// Abstaining answers are exempt from the citation-presence checks.
func (h CitationHeuristics) IsAbstention(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range h.AbstentionPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

type citedReference struct {
	display string
	digits  string
	// yearDigits is matched optionally: "Lei 8.112/90" is satisfied by
	// evidence containing either "8.112" or "8.112/90".
	yearDigits string
	// allowYearSuffix lets a run like "811290" satisfy a cited "8112"
	// when the evidence folded number and year into one token.
	allowYearSuffix bool
}

// scanCitations extracts the domain citation patterns from an answer:
// docket/process numbers, "Art. N", "Lei N[/AAAA]", "Súmula N".
func scanCitations(answer string) (articles, laws, sumulas, processes []citedReference) {
	for _, m := range articleRe.FindAllStringSubmatch(answer, -1) {
		articles = appendCited(articles, citedReference{display: m[1], digits: digitsOnly(m[1])})
	}
	for _, m := range lawRe.FindAllStringSubmatch(answer, -1) {
		ref := citedReference{display: m[1], digits: digitsOnly(m[1]), allowYearSuffix: true}
		if m[2] != "" {
			ref.display += "/" + m[2]
			ref.yearDigits = m[2]
		}
		laws = appendCited(laws, ref)
	}
	for _, m := range sumulaRe.FindAllStringSubmatch(answer, -1) {
		sumulas = appendCited(sumulas, citedReference{display: m[1], digits: digitsOnly(m[1])})
	}
	for _, m := range processNumberRe.FindAllString(answer, -1) {
		processes = appendCited(processes, citedReference{display: m, digits: digitsOnly(m)})
	}
	return articles, laws, sumulas, processes
}

func appendCited(list []citedReference, ref citedReference) []citedReference {
	for _, existing := range list {
		if existing.digits == ref.digits && existing.yearDigits == ref.yearDigits {
			return list
		}
	}
	return append(list, ref)
}

// evidenceDigitSet indexes the digit runs of the concatenated evidence text,
// including joins of adjacent runs so that "8.112/90" and "8.112 / 90" both
// yield "811290". Matching is digit-only with non-digit separators allowed.
type evidenceDigitSet map[string]struct{}

func buildEvidenceDigitSet(evidenceText string) evidenceDigitSet {
	runs := make([]string, 0, 64)
	for _, token := range strings.Fields(evidenceText) {
		if d := digitsOnly(token); d != "" {
			runs = append(runs, d)
		}
	}

	set := make(evidenceDigitSet, len(runs)*2)
	for i, run := range runs {
		set[run] = struct{}{}
		if i+1 < len(runs) {
			set[run+runs[i+1]] = struct{}{}
		}
	}
	return set
}

func (s evidenceDigitSet) contains(ref citedReference) bool {
	if _, ok := s[ref.digits]; ok {
		return true
	}
	if ref.yearDigits != "" {
		if _, ok := s[ref.digits+ref.yearDigits]; ok {
			return true
		}
	}
	if !ref.allowYearSuffix {
		return false
	}
	for run := range s {
		if strings.HasPrefix(run, ref.digits) {
			rest := strings.TrimPrefix(run, ref.digits)
			if rest == ref.yearDigits || len(rest) == 2 || len(rest) == 4 {
				return true
			}
		}
	}
	return false
}

// checkCitationPresence verifies that every cited legal reference appears in
// the evidence text. Returned issues are hard failures of the gate.
func checkCitationPresence(answer, evidenceText string, heur CitationHeuristics) []string {
	if heur.IsAbstention(answer) {
		return nil
	}

	articles, laws, sumulas, processes := scanCitations(answer)
	if len(articles)+len(laws)+len(sumulas)+len(processes) == 0 {
		return nil
	}

	digitSet := buildEvidenceDigitSet(evidenceText)

	var issues []string
	if missing := missingRefs(articles, digitSet); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Artigo(s) citado(s) não aparecem nas evidências: %s", strings.Join(missing, ", ")))
	}
	if missing := missingRefs(laws, digitSet); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Lei(s) citada(s) não aparecem nas evidências: %s", strings.Join(missing, ", ")))
	}
	if missing := missingRefs(sumulas, digitSet); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Súmula(s) citada(s) não aparecem nas evidências: %s", strings.Join(missing, ", ")))
	}
	if missing := missingRefs(processes, digitSet); len(missing) > 0 {
		issues = append(issues, fmt.Sprintf("Processo(s) citado(s) não aparecem nas evidências: %s", strings.Join(missing, ", ")))
	}
	return issues
}

func missingRefs(refs []citedReference, set evidenceDigitSet) []string {
	var missing []string
	for _, ref := range refs {
		if !set.contains(ref) {
			missing = append(missing, ref.display)
		}
	}
	return missing
}
