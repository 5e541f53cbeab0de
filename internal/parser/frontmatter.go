package parser

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

const marker = "---"

// ParseDocument splits a document into its front-matter map and body.
// The block must sit at the very start of the document. A missing or
// malformed block never errors: it degrades to an empty map with the
// whole content as body.
func ParseDocument(content string) (map[string]any, string) {
	fm := make(map[string]any)

	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r") != marker {
		return fm, content
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r") == marker {
			end = i
			break
		}
	}
	if end == -1 {
		slog.Debug("unterminated front-matter block, treating content as body")
		return fm, content
	}

	for _, line := range lines[1:end] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx == -1 {
			slog.Debug("skipping front-matter line without key", "line", line)
			continue
		}
		key := strings.TrimSpace(line[:idx])
		if key == "" {
			continue
		}
		fm[key] = inferValue(strings.TrimSpace(line[idx+1:]))
	}

	body := strings.Join(lines[end+1:], "\n")
	return fm, body
}

// SerializeDocument renders a front-matter map and body back into
// document text. An empty map emits no block. Keys are written in
// sorted order so output is deterministic.
func SerializeDocument(fm map[string]any, body string) string {
	if len(fm) == 0 {
		return body
	}

	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(marker + "\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(formatValue(fm[k]))
		b.WriteString("\n")
	}
	b.WriteString(marker + "\n")
	b.WriteString(body)
	return b.String()
}

// inferValue decides a value's type from its lexical form.
func inferValue(raw string) any {
	if raw == "" {
		return ""
	}

	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		inner := strings.TrimSpace(raw[1 : len(raw)-1])
		if inner == "" {
			return []string{}
		}
		parts := strings.Split(inner, ",")
		list := make([]string, 0, len(parts))
		for _, part := range parts {
			list = append(list, unquote(strings.TrimSpace(part)))
		}
		return list
	}

	if strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2 {
		return raw[1 : len(raw)-1]
	}

	switch raw {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}

	return raw
}

// formatValue renders one front-matter value: strings double-quoted,
// lists bracketed with quoted elements, other scalars bare.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return `""`
	case string:
		return `"` + val + `"`
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		quoted := make([]string, 0, len(val))
		for _, s := range val {
			quoted = append(quoted, `"`+s+`"`)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	case []any:
		quoted := make([]string, 0, len(val))
		for _, item := range val {
			quoted = append(quoted, `"`+fmt.Sprint(item)+`"`)
		}
		return "[" + strings.Join(quoted, ", ") + "]"
	default:
		return `"` + fmt.Sprint(val) + `"`
	}
}

func unquote(s string) string {
	if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) && len(s) >= 2 {
		return s[1 : len(s)-1]
	}
	return s
}
