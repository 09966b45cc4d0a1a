// Package catalog turns loosely structured ticket data (staff input or
// language-model output) into the fixed ticket catalog schema.  Every
// function here is total: bad input degrades to a default instead of an
// error so the extraction flow never blocks.
package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/allure/event-admin/internal/model"
)

// Keyword groups checked in order; the first group with a hit wins.
var keywordRules = []struct {
	key      string
	keywords []string
}{
	{model.CategoryCorporate, []string{"empres"}},
	{model.CategoryPremium, []string{"premium", "vip", "camarote"}},
	{model.CategoryTables, []string{"mesa", "table"}},
}

// NormalizeLabel lower-cases raw, strips diacritics, collapses every run of
// non [a-z0-9] characters into a single underscore and trims underscores at
// both ends.
func NormalizeLabel(raw string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(raw))
	if err != nil {
		folded = strings.ToLower(raw)
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}

// matchKeyword runs the substring heuristic against an already normalized
// string.
func matchKeyword(s string) (string, bool) {
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(s, kw) {
				return rule.key, true
			}
		}
	}
	return "", false
}

// MapCategoryLabel maps a free-form category label to a canonical key, or
// to its normalized form when no keyword matches (a custom category).
// Empty input maps to setores_mesa.
func MapCategoryLabel(raw string) string {
	key := NormalizeLabel(raw)
	if key == "" {
		return model.CategoryTables
	}
	if k, ok := matchKeyword(key); ok {
		return k
	}
	return key
}

// MapCategoryKey is MapCategoryLabel for an optional label.
func MapCategoryKey(raw *string) string {
	if raw == nil {
		return model.CategoryTables
	}
	return MapCategoryLabel(*raw)
}

// categoryFields are the ticket attributes treated as an explicit category.
var categoryFields = []string{"categoria", "category", "setor"}

// DetectCategoryFromTicket picks the category of a ticket-like object.  An
// explicit category attribute is mapped directly; otherwise the keyword
// heuristic runs over name and description, defaulting to setores_mesa.
func DetectCategoryFromTicket(t map[string]any) string {
	for _, f := range categoryFields {
		if s, ok := t[f].(string); ok && strings.TrimSpace(s) != "" {
			return MapCategoryLabel(s)
		}
	}
	text := NormalizeLabel(stringField(t, "nome", "nomeIngresso") + " " + stringField(t, "descricao", "detalhes"))
	if k, ok := matchKeyword(text); ok {
		return k
	}
	return model.CategoryTables
}

// stringField returns the first non-empty string value among keys.
func stringField(t map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := t[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
