// Package tools renders tool calls and their results into short
// human-readable summaries for streamed events: an emoji, a label, and a
// one-line detail extracted from the call's arguments, in the vein of
// "📖 Reading: internal/agent/context/filter.go".
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Display is a tool call's formatted display info.
type Display struct {
	Name   string
	Emoji  string
	Title  string
	Label  string
	Detail string
}

// Spec defines display configuration for one tool.
type Spec struct {
	Emoji      string
	Title      string
	Label      string
	DetailKeys []string
}

// Config is the full display configuration: a per-tool Spec lookup plus a
// fallback used for any tool without one.
type Config struct {
	Fallback Spec
	Tools    map[string]Spec
}

// MaxDetailEntries limits the number of detail items a summary line shows.
const MaxDetailEntries = 8

// DefaultConfig describes the display for every built-in tool the
// conversation engine ships: the filesystem tools, the web tools, and the
// conversation-scoped task list and document search.
func DefaultConfig() *Config {
	return &Config{
		Fallback: Spec{Emoji: "🧩"},
		Tools: map[string]Spec{
			"read": {
				Emoji:      "📖",
				Title:      "Read",
				Label:      "Reading",
				DetailKeys: []string{"path"},
			},
			"write": {
				Emoji:      "✏️",
				Title:      "Write",
				Label:      "Writing",
				DetailKeys: []string{"file_path", "path"},
			},
			"edit": {
				Emoji:      "✏️",
				Title:      "Edit",
				Label:      "Editing",
				DetailKeys: []string{"file_path", "path"},
			},
			"apply_patch": {
				Emoji:      "🩹",
				Title:      "Apply Patch",
				Label:      "Patching",
				DetailKeys: []string{"path"},
			},
			"web_search": {
				Emoji:      "🔎",
				Title:      "Web Search",
				Label:      "Searching the web",
				DetailKeys: []string{"query"},
			},
			"web_fetch": {
				Emoji:      "🌐",
				Title:      "Web Fetch",
				Label:      "Fetching",
				DetailKeys: []string{"url"},
			},
			"task_list": {
				Emoji:      "📋",
				Title:      "Task List",
				Label:      "Updating tasks",
				DetailKeys: []string{"action"},
			},
			"document_search": {
				Emoji:      "📚",
				Title:      "Document Search",
				Label:      "Searching documents",
				DetailKeys: []string{"query"},
			},
		},
	}
}

// ResolveDisplay resolves the display info for a tool call given its raw
// arguments (already unmarshaled into the usual map[string]interface{} /
// []interface{} / scalar shapes).
func ResolveDisplay(name string, args interface{}) *Display {
	config := DefaultConfig()
	normalized := normalizeToolName(name)

	display := &Display{Name: name, Title: defaultTitle(name)}

	spec, found := config.Tools[normalized]
	if !found {
		spec = config.Fallback
	}

	if spec.Emoji != "" {
		display.Emoji = spec.Emoji
	} else {
		display.Emoji = config.Fallback.Emoji
	}
	if spec.Title != "" {
		display.Title = spec.Title
	}
	display.Label = spec.Label
	if display.Label == "" {
		display.Label = display.Title
	}

	display.Detail = resolveDetail(normalized, args, spec.DetailKeys)
	return display
}

// Summary renders a complete one-line tool summary, e.g. "📖 Reading:
// internal/agent/context/filter.go".
func Summary(display *Display) string {
	parts := make([]string, 0, 2)
	if display.Emoji != "" {
		parts = append(parts, display.Emoji)
	}
	if display.Label != "" {
		parts = append(parts, display.Label)
	}
	summary := strings.Join(parts, " ")
	if display.Detail != "" {
		summary += ": " + display.Detail
	}
	return summary
}

// normalizeToolName strips namespace prefixes ("mcp__server__tool",
// "server.tool") and a trailing "_tool" suffix, then lowercases.
func normalizeToolName(name string) string {
	normalized := strings.ToLower(name)
	if strings.Contains(normalized, "__") {
		parts := strings.Split(normalized, "__")
		normalized = parts[len(parts)-1]
	}
	if strings.Contains(normalized, ".") {
		parts := strings.Split(normalized, ".")
		normalized = parts[len(parts)-1]
	}
	return strings.TrimSuffix(normalized, "_tool")
}

func defaultTitle(name string) string {
	normalized := normalizeToolName(name)
	normalized = strings.ReplaceAll(normalized, "_", " ")
	normalized = strings.ReplaceAll(normalized, "-", " ")

	words := strings.Fields(normalized)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func coerceDisplayValue(value interface{}) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case int, int64, int32:
		return fmt.Sprintf("%d", v)
	case []interface{}:
		if len(v) == 0 {
			return ""
		}
		items := make([]string, 0, len(v))
		for _, item := range v {
			if s := coerceDisplayValue(item); s != "" {
				items = append(items, s)
			}
		}
		return strings.Join(items, ", ")
	case map[string]interface{}:
		for _, key := range []string{"name", "id", "path", "value"} {
			if val, ok := v[key]; ok {
				return coerceDisplayValue(val)
			}
		}
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func lookupValueByPath(args interface{}, path string) interface{} {
	if args == nil || path == "" {
		return nil
	}
	current := args
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		val, ok := m[part]
		if !ok {
			return nil
		}
		current = val
	}
	return current
}

func resolveDetailFromKeys(args interface{}, keys []string) string {
	if args == nil || len(keys) == 0 {
		return ""
	}

	details := make([]string, 0, len(keys))
	for _, key := range keys {
		if len(details) >= MaxDetailEntries {
			break
		}
		value := lookupValueByPath(args, key)
		if value == nil {
			continue
		}
		strValue := coerceDisplayValue(value)
		if strValue == "" {
			continue
		}
		details = append(details, shortenHomePath(strValue))
	}
	return strings.Join(details, " · ")
}

// resolveReadDetail renders "path (offset-limit)" for the read tool.
func resolveReadDetail(args interface{}) string {
	argsMap, ok := args.(map[string]interface{})
	if !ok {
		return ""
	}

	path := ""
	if p, ok := argsMap["path"].(string); ok {
		path = shortenHomePath(p)
	} else if p, ok := argsMap["file_path"].(string); ok {
		path = shortenHomePath(p)
	}
	if path == "" {
		return ""
	}

	offset, hasOffset := argsMap["offset"]
	limit, hasLimit := argsMap["limit"]
	if !hasOffset && !hasLimit {
		return path
	}

	offsetVal := coerceDisplayValue(offset)
	limitVal := coerceDisplayValue(limit)
	if offsetVal == "" && limitVal == "" {
		return path
	}

	detail := path + " ("
	detail += offsetVal
	if offsetVal != "" && limitVal != "" {
		detail += "-"
	}
	detail += limitVal + ")"
	return detail
}

// resolveWriteDetail renders the target path for the write/edit/apply_patch
// tools.
func resolveWriteDetail(args interface{}) string {
	argsMap, ok := args.(map[string]interface{})
	if !ok {
		return ""
	}
	if p, ok := argsMap["path"].(string); ok {
		return shortenHomePath(p)
	}
	if p, ok := argsMap["file_path"].(string); ok {
		return shortenHomePath(p)
	}
	return ""
}

// shortenHomePath replaces the caller's home directory prefix with "~".
func shortenHomePath(path string) string {
	if path == "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	cleanPath := filepath.Clean(path)
	cleanHome := filepath.Clean(home)
	if strings.HasPrefix(cleanPath, cleanHome) {
		return "~" + cleanPath[len(cleanHome):]
	}
	return path
}

// resolveDetail picks a tool-specific detail renderer where one exists,
// otherwise falls back to the spec's configured detail keys.
func resolveDetail(normalizedName string, args interface{}, detailKeys []string) string {
	switch normalizedName {
	case "read":
		return resolveReadDetail(args)
	case "write", "edit", "apply_patch":
		return resolveWriteDetail(args)
	}
	if len(detailKeys) > 0 {
		return resolveDetailFromKeys(args, detailKeys)
	}
	return ""
}
