package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/vonshlovens/obsync-notion/internal/config"
	"github.com/vonshlovens/obsync-notion/internal/notion"
)

// ErrNoMappings is returned when a conversion to Notion properties is
// requested without field mappings; remote schema types cannot be
// inferred from local values alone.
var ErrNoMappings = errors.New("field mappings required for obsidian-to-notion conversion")

// relationPlaceholder substitutes for a related record whose title
// lookup failed.
const relationPlaceholder = "Untitled"

// Common date formats accepted in front-matter values.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02-01-2006",
	"02/01/2006",
}

// TitleResolver looks up the display title of a related record.
type TitleResolver interface {
	ResolveRecordTitle(ctx context.Context, recordID string) (string, error)
}

// ToFrontmatter converts a record's typed properties into front-matter
// values. With an empty mapping list every property is auto-converted
// under its lower-cased name, emitted even when empty so the document
// structure stays visible. With explicit mappings only mapped properties
// are emitted; a failed conversion is logged and skipped, never fatal.
func ToFrontmatter(ctx context.Context, props map[string]notion.Property, mappings []config.FieldMapping, resolver TitleResolver) map[string]any {
	fm := make(map[string]any)

	if len(mappings) == 0 {
		for name, prop := range props {
			value, err := convertValue(ctx, prop, resolver)
			if err != nil {
				slog.Warn("failed to convert property", "property", name, "error", err)
				continue
			}
			fm[strings.ToLower(name)] = value
		}
		return fm
	}

	for _, m := range mappings {
		prop, ok := props[m.NotionProperty]
		if !ok {
			continue
		}
		value, err := convertValue(ctx, prop, resolver)
		if err != nil {
			slog.Warn("failed to convert property", "property", m.NotionProperty, "error", err)
			continue
		}
		fm[m.ObsidianProperty] = value
	}
	return fm
}

// convertValue applies the fixed per-type conversion rules.
func convertValue(ctx context.Context, prop notion.Property, resolver TitleResolver) (any, error) {
	switch prop.Type {
	case notion.TypeTitle, notion.TypeRichText, notion.TypeURL, notion.TypeEmail,
		notion.TypePhone, notion.TypeSelect, notion.TypeStatus,
		notion.TypeCreatedBy, notion.TypeLastEditedBy:
		return prop.Text, nil

	case notion.TypeNumber:
		if !prop.HasNumber {
			return "", nil
		}
		return prop.Number, nil

	case notion.TypeCheckbox:
		return prop.Checked, nil

	case notion.TypeDate, notion.TypeCreatedTime, notion.TypeLastEditedTime:
		if prop.Time == nil {
			return "", nil
		}
		return prop.Time.Format(time.RFC3339), nil

	case notion.TypeMultiSelect, notion.TypePeople, notion.TypeFiles:
		if prop.List == nil {
			return []string{}, nil
		}
		return prop.List, nil

	case notion.TypeRelation:
		return resolveRelations(ctx, prop.Relations, resolver), nil

	case notion.TypeFormula:
		return formulaValue(prop), nil

	case notion.TypeRollup:
		if prop.HasNumber {
			return prop.Number, nil
		}
		if prop.Time != nil {
			return prop.Time.Format(time.RFC3339), nil
		}
		return "", nil

	default:
		tag := prop.RawType
		if tag == "" {
			tag = string(prop.Type)
		}
		return "[" + tag + "]", nil
	}
}

func formulaValue(prop notion.Property) any {
	switch {
	case prop.HasNumber:
		return prop.Number
	case prop.Time != nil:
		return prop.Time.Format(time.RFC3339)
	case prop.Text != "":
		return prop.Text
	case prop.Checked:
		return true
	default:
		return prop.Text
	}
}

// resolveRelations turns related record ids into a comma-joined list of
// display titles. A failed lookup substitutes a placeholder and never
// aborts the rest; output order matches input order.
func resolveRelations(ctx context.Context, ids []string, resolver TitleResolver) string {
	if len(ids) == 0 {
		return ""
	}

	titles := make([]string, 0, len(ids))
	for _, id := range ids {
		if resolver == nil {
			titles = append(titles, relationPlaceholder)
			continue
		}
		title, err := resolver.ResolveRecordTitle(ctx, id)
		if err != nil || title == "" {
			if err != nil {
				slog.Debug("failed to resolve relation title", "record_id", id, "error", err)
			}
			titles = append(titles, relationPlaceholder)
			continue
		}
		titles = append(titles, title)
	}
	return strings.Join(titles, ", ")
}

// ToProperties converts front-matter values into typed Notion
// properties, coercing each per its mapping's declared semantic type.
// Refused when mappings are empty.
func ToProperties(fm map[string]any, mappings []config.FieldMapping) (map[string]notion.Property, error) {
	if len(mappings) == 0 {
		return nil, ErrNoMappings
	}

	props := make(map[string]notion.Property)
	for _, m := range mappings {
		value, ok := fm[m.ObsidianProperty]
		if !ok {
			continue
		}

		switch m.Type {
		case config.MappingText:
			props[m.NotionProperty] = notion.NewRichText(stringify(value))

		case config.MappingList:
			props[m.NotionProperty] = notion.NewMultiSelect(toList(value))

		case config.MappingNumber:
			n, ok := toNumber(value)
			if !ok {
				// Invalid coercions are dropped, never written as zero.
				slog.Debug("dropping unparseable number", "key", m.ObsidianProperty, "value", value)
				continue
			}
			props[m.NotionProperty] = notion.NewNumber(n)

		case config.MappingCheckbox:
			props[m.NotionProperty] = notion.NewCheckbox(toBool(value))

		case config.MappingDate, config.MappingDateTime:
			t, ok := toDate(value)
			if !ok {
				slog.Debug("dropping unparseable date", "key", m.ObsidianProperty, "value", value)
				continue
			}
			props[m.NotionProperty] = notion.NewDate(t)

		default:
			slog.Warn("unknown mapping type, skipping", "type", m.Type, "property", m.NotionProperty)
		}
	}
	return props, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

func toList(v any) []string {
	switch val := v.(type) {
	case nil:
		return nil
	case []string:
		return val
	case []any:
		list := make([]string, 0, len(val))
		for _, item := range val {
			list = append(list, stringify(item))
		}
		return list
	case string:
		if val == "" {
			return nil
		}
		parts := strings.Split(val, ",")
		list := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return list
	default:
		return []string{stringify(val)}
	}
}

func toNumber(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	default:
		return false
	}
}

func toDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
