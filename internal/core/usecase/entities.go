package usecase

import (
	"regexp"
	"strings"

	"github.com/brlaw-ai/evidence-pipeline/internal/core/domain"
)

// Entity extraction is a pure function over the sub-question text: no LLM,
// no network. Empty results are normal for generic questions.

var (
	processNumberRe = regexp.MustCompile(`\b\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}\b`)
	lawRe           = regexp.MustCompile(`(?i)\blei\s+(?:complementar\s+)?(?:n[ºo°.]?\s*)?([\d.]{1,9})(?:\s*/\s*(\d{2,4}))?`)
	articleRe       = regexp.MustCompile(`(?i)\bart(?:igo)?s?\.?\s*(\d{1,5}(?:\.\d{3})*)(?:[ºo°])?`)
	sumulaRe        = regexp.MustCompile(`(?i)\bs[úu]mula\s+(?:vinculante\s+)?(?:n[ºo°.]?\s*)?(\d{1,4}(?:\.\d{3})*)`)
	acronymRe       = regexp.MustCompile(`\b[A-Z]{2,6}\b`)
	quotedRe        = regexp.MustCompile(`"([^"]{3,80})"`)
)

// acronyms that are sentence noise, not institutions.
var acronymStopList = map[string]struct{}{
	"DE": {}, "DA": {}, "DO": {}, "EM": {}, "NA": {}, "NO": {}, "AO": {}, "OS": {}, "AS": {},
	"LEI": {}, "ART": {},
}

const (
	entityTypeProcess = "processo"
	entityTypeLaw     = "lei"
	entityTypeArticle = "artigo"
	entityTypeSumula  = "sumula"
	entityTypeOrg     = "orgao"
	entityTypeTopic   = "tema"
)

// ExtractEntities pulls typed entity keys out of a sub-question.
func ExtractEntities(text string) []domain.EntityKey {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	out := make([]domain.EntityKey, 0, 8)
	seen := make(map[string]struct{}, 8)

	add := func(entityType, id, name string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		key := entityType + ":" + id
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, domain.EntityKey{Type: entityType, ID: id, Name: strings.TrimSpace(name)})
	}

	for _, m := range processNumberRe.FindAllString(text, -1) {
		add(entityTypeProcess, digitsOnly(m), m)
	}
	for _, m := range lawRe.FindAllStringSubmatch(text, -1) {
		id := digitsOnly(m[1])
		if m[2] != "" {
			id += "/" + m[2]
		}
		add(entityTypeLaw, id, strings.TrimSpace(m[0]))
	}
	// "1.009" and "1009" are the same article; ids carry digits only.
	for _, m := range articleRe.FindAllStringSubmatch(text, -1) {
		add(entityTypeArticle, digitsOnly(m[1]), strings.TrimSpace(m[0]))
	}
	for _, m := range sumulaRe.FindAllStringSubmatch(text, -1) {
		add(entityTypeSumula, digitsOnly(m[1]), strings.TrimSpace(m[0]))
	}
	for _, m := range acronymRe.FindAllString(text, -1) {
		if _, stop := acronymStopList[m]; stop {
			continue
		}
		add(entityTypeOrg, strings.ToLower(m), m)
	}
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		add(entityTypeTopic, strings.ToLower(strings.TrimSpace(m[1])), m[1])
	}

	return out
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
