// Package parser turns free-text near-expiry announcements into structured fields.
//
// Two independent strategies exist. The bracketed form ("【地點】山海樓") is tried
// first; the inline form ("地點: 山海樓") is used only when no bracketed group is
// present. The strategies are never mixed.
package parser

import (
	"regexp"
	"strings"

	"nearexpiry/internal/models"
)

var (
	bracketedGroup = regexp.MustCompile(`【([^【】]*)】([^【]*)`)
	inlineLabel    = buildInlineLabel()

	normalizer = strings.NewReplacer("\r\n", "\n", "\r", "\n", "：", ":")
	unbracket  = strings.NewReplacer("【", " ", "】", " ")
)

func buildInlineLabel() *regexp.Regexp {
	list := aliasesByLength()
	quoted := make([]string, len(list))
	for i, a := range list {
		quoted[i] = regexp.QuoteMeta(a)
	}
	return regexp.MustCompile(`(` + strings.Join(quoted, "|") + `)[ \t]*:`)
}

// Normalize strips a leading BOM, unifies line endings to "\n", converts
// full-width colons and trims surrounding whitespace.
func Normalize(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	return strings.TrimSpace(normalizer.Replace(text))
}

// MatchBracketed extracts "【label】value" groups. The returned count includes
// groups whose label is not a known alias.
func MatchBracketed(text string) (models.ParsedFields, int) {
	var out models.ParsedFields
	groups := bracketedGroup.FindAllStringSubmatch(text, -1)
	for _, g := range groups {
		field, ok := LookupAlias(g[1])
		if !ok {
			continue
		}
		value := strings.TrimSpace(g[2])
		value = strings.TrimSpace(strings.TrimPrefix(value, ":"))
		set(&out, field, value)
	}
	return out, len(groups)
}

// MatchInline extracts "label: value" pairs. A value runs until the next
// recognized label or the end of the text.
func MatchInline(text string) models.ParsedFields {
	var out models.ParsedFields
	text = unbracket.Replace(text)
	locs := inlineLabel.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		field, ok := LookupAlias(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		set(&out, field, strings.TrimSpace(text[loc[1]:end]))
	}
	return out
}

// Parse normalizes text and applies the bracketed strategy, falling back to the
// inline strategy only when zero bracketed groups matched.
func Parse(text string) models.ParsedFields {
	text = Normalize(text)
	if fields, n := MatchBracketed(text); n > 0 {
		return fields
	}
	return MatchInline(text)
}

type Validation struct {
	OK      bool                `json:"ok"`
	Missing []string            `json:"missing"`
	Data    models.ParsedFields `json:"data"`
}

// Validate parses text and reports which required fields are missing.
func Validate(text string) Validation {
	data := Parse(text)
	missing := Missing(data)
	return Validation{OK: len(missing) == 0, Missing: missing, Data: data}
}

// Missing lists the display labels of absent required fields, in order.
// An empty quantity counts as absent.
func Missing(f models.ParsedFields) []string {
	missing := []string{}
	for _, field := range RequiredFields {
		present := false
		switch field {
		case FieldLocation:
			present = f.Location != nil
		case FieldItem:
			present = f.Item != nil
		case FieldQuantity:
			present = f.Quantity != nil && strings.TrimSpace(string(*f.Quantity)) != ""
		case FieldDeadline:
			present = f.Deadline != nil
		}
		if !present {
			missing = append(missing, Labels[field])
		}
	}
	return missing
}

func set(out *models.ParsedFields, field Field, value string) {
	v := value
	switch field {
	case FieldLocation:
		out.Location = &v
	case FieldItem:
		out.Item = &v
	case FieldQuantity:
		q := models.Quantity(v)
		out.Quantity = &q
	case FieldDeadline:
		out.Deadline = &v
	case FieldNote:
		out.Note = &v
	}
}
