package catalog

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/allure/event-admin/internal/model"
)

// Shape is the layout of the "ingressos" value returned by a model.
type Shape int

const (
	// ShapeEmpty: absent, null, or not a container.
	ShapeEmpty Shape = iota
	// ShapeList: a flat list of ticket objects.
	ShapeList
	// ShapeCategoryLists: category label -> list of ticket objects.
	ShapeCategoryLists
	// ShapeCategorySingle: category label -> one ticket object.
	ShapeCategorySingle
	// ShapeTicket: a bare ticket object with no category wrapper.
	ShapeTicket
)

func (s Shape) String() string {
	switch s {
	case ShapeList:
		return "list"
	case ShapeCategoryLists:
		return "category_lists"
	case ShapeCategorySingle:
		return "category_single"
	case ShapeTicket:
		return "ticket"
	}
	return "empty"
}

// ticketKeys mark an object as a ticket itself rather than a category map.
var ticketKeys = []string{"nome", "nomeIngresso", "preco", "descricao", "detalhes"}

// ClassifyShape decides which normalization applies to v.  v is a decoded
// JSON value; a map whose values are mixed lists and objects is classified
// by its first entry in key order and still normalized entry by entry.
func ClassifyShape(v any) Shape {
	switch t := v.(type) {
	case []any:
		return ShapeList
	case map[string]any:
		if len(t) == 0 {
			return ShapeEmpty
		}
		if looksLikeTicket(t) {
			return ShapeTicket
		}
		for _, k := range sortedKeys(t) {
			switch t[k].(type) {
			case []any:
				return ShapeCategoryLists
			case map[string]any:
				return ShapeCategorySingle
			}
		}
	}
	return ShapeEmpty
}

func looksLikeTicket(m map[string]any) bool {
	for _, k := range ticketKeys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch v.(type) {
		case []any, map[string]any:
		default:
			return true
		}
	}
	return false
}

// Result is the normalized catalog plus the custom category keys that were
// discovered, in discovery order.
type Result struct {
	Ingressos        model.Ingressos
	CustomCategories []string
}

type builder struct {
	out    model.Ingressos
	custom []string
	seen   map[string]bool
}

func newBuilder() *builder {
	return &builder{out: model.Ingressos{}, seen: map[string]bool{}}
}

func (b *builder) add(key string, t model.Ticket) {
	b.touch(key)
	b.out[key] = append(b.out[key], t)
}

// touch registers key as present, recording it when it is custom.
func (b *builder) touch(key string) {
	if _, ok := b.out[key]; !ok {
		b.out[key] = []model.Ticket{}
	}
	if !model.IsCanonical(key) && !b.seen[key] {
		b.seen[key] = true
		b.custom = append(b.custom, key)
	}
}

func (b *builder) result() Result {
	return Result{Ingressos: b.out, CustomCategories: b.custom}
}

// NormalizeExtractedTickets converts any supported model output into the
// canonical catalog.  v may be a decoded JSON value, json.RawMessage or
// []byte.  Every ticket object in the input appears exactly once in the
// output.
func NormalizeExtractedTickets(v any) Result {
	v = decodeIfRaw(v)
	b := newBuilder()
	switch ClassifyShape(v) {
	case ShapeList:
		normalizeList(b, v.([]any))
	case ShapeCategoryLists, ShapeCategorySingle:
		normalizeCategoryMap(b, v.(map[string]any))
	case ShapeTicket:
		normalizeList(b, []any{v})
	}
	return b.result()
}

// normalizeList routes each ticket through category detection.
func normalizeList(b *builder, items []any) {
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		b.add(DetectCategoryFromTicket(obj), buildTicket(obj))
	}
}

// normalizeCategoryMap places every ticket under the mapped source
// category; per-ticket detection is bypassed.  Values may be a list or a
// single object.
func normalizeCategoryMap(b *builder, m map[string]any) {
	for _, label := range sortedKeys(m) {
		key := MapCategoryLabel(label)
		switch val := m[label].(type) {
		case []any:
			b.touch(key)
			for _, it := range val {
				if obj, ok := it.(map[string]any); ok {
					b.add(key, buildTicket(obj))
				}
			}
		case map[string]any:
			b.add(key, buildTicket(val))
		}
	}
}

func buildTicket(obj map[string]any) model.Ticket {
	price := ParsePrice(obj["preco"])
	if price < 0 {
		price = 0
	}
	return model.Ticket{
		ID:        ticketID(obj["id"]),
		Nome:      stringField(obj, "nome", "nomeIngresso"),
		Preco:     price,
		Descricao: stringField(obj, "descricao", "detalhes"),
	}
}

func ticketID(v any) string {
	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) != "" {
			return id
		}
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	}
	return uuid.NewString()
}

func decodeIfRaw(v any) any {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		return v
	}
	if len(raw) == 0 {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
