package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/vonshlovens/obsync-notion/internal/config"
	"github.com/vonshlovens/obsync-notion/internal/notion"
)

const (
	fallbackPrefix    = "Notion-Page-"
	maxFilenameLength = 100
)

var (
	invalidFilenameChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	repeatedWhitespace   = regexp.MustCompile(`\s+`)
)

// DeriveFilename picks a filename (without extension) for a record.
// Priority: a mapped property named "title" (any case) or "Name" holding
// a title; any title-typed property; a property literally named "Name";
// else a deterministic fallback from the record id.
func DeriveFilename(record *notion.Record, mappings []config.FieldMapping) string {
	for _, m := range mappings {
		if !strings.EqualFold(m.NotionProperty, "title") && m.NotionProperty != "Name" {
			continue
		}
		if p, ok := record.Properties[m.NotionProperty]; ok && p.Type == notion.TypeTitle && p.Text != "" {
			return SanitizeFilename(p.Text)
		}
	}

	if title := record.TitleText(); title != "" {
		return SanitizeFilename(title)
	}

	if p, ok := record.Properties["Name"]; ok && p.Type == notion.TypeTitle && p.Text != "" {
		return SanitizeFilename(p.Text)
	}

	id := record.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return fallbackPrefix + id
}

// SanitizeFilename strips filesystem-invalid characters, collapses
// whitespace, and truncates to a safe length.
func SanitizeFilename(name string) string {
	name = invalidFilenameChars.ReplaceAllString(name, "")
	name = repeatedWhitespace.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	if len(name) > maxFilenameLength {
		// Truncate on a rune boundary so multibyte titles stay valid.
		cut := maxFilenameLength
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = strings.TrimSpace(name[:cut])
	}
	return name
}
