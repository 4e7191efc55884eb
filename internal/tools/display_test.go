package tools

import "testing"

func TestNormalizeToolName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"read", "read"},
		{"READ", "read"},
		{"read_tool", "read"},
		{"mcp__server__read", "read"},
		{"server.read", "read"},
		{"mcp__files__write_tool", "write"},
	}

	for _, tt := range tests {
		if got := normalizeToolName(tt.input); got != tt.expected {
			t.Errorf("normalizeToolName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestResolveDisplay_KnownTool(t *testing.T) {
	args := map[string]interface{}{"path": "internal/agent/context/filter.go"}
	display := ResolveDisplay("read", args)

	if display.Emoji != "📖" {
		t.Errorf("Emoji = %q, want 📖", display.Emoji)
	}
	if display.Label != "Reading" {
		t.Errorf("Label = %q, want Reading", display.Label)
	}
	if display.Detail != "internal/agent/context/filter.go" {
		t.Errorf("Detail = %q, want the path", display.Detail)
	}
}

func TestResolveDisplay_UnknownToolUsesFallback(t *testing.T) {
	display := ResolveDisplay("some_mcp_tool", nil)
	if display.Emoji != "🧩" {
		t.Errorf("Emoji = %q, want fallback 🧩", display.Emoji)
	}
	if display.Title != "Some Mcp Tool" {
		t.Errorf("Title = %q, want Some Mcp Tool", display.Title)
	}
}

func TestResolveDisplay_ReadDetailIncludesOffsetAndLimit(t *testing.T) {
	args := map[string]interface{}{
		"file_path": "main.go",
		"offset":    float64(10),
		"limit":     float64(50),
	}
	display := ResolveDisplay("read", args)
	if display.Detail != "main.go (10-50)" {
		t.Errorf("Detail = %q, want main.go (10-50)", display.Detail)
	}
}

func TestResolveDisplay_WriteDetailIsPath(t *testing.T) {
	display := ResolveDisplay("write", map[string]interface{}{"file_path": "/tmp/out.txt"})
	if display.Detail != "/tmp/out.txt" {
		t.Errorf("Detail = %q, want /tmp/out.txt", display.Detail)
	}
}

func TestResolveDisplay_WebSearchUsesQueryDetailKey(t *testing.T) {
	display := ResolveDisplay("web_search", map[string]interface{}{"query": "golang context package"})
	if display.Detail != "golang context package" {
		t.Errorf("Detail = %q, want the query", display.Detail)
	}
}

func TestSummary_CombinesEmojiLabelAndDetail(t *testing.T) {
	display := &Display{Emoji: "📖", Label: "Reading", Detail: "main.go"}
	if got := Summary(display); got != "📖 Reading: main.go" {
		t.Errorf("Summary() = %q, want %q", got, "📖 Reading: main.go")
	}
}

func TestSummary_NoDetailOmitsColon(t *testing.T) {
	display := &Display{Emoji: "📋", Label: "Updating tasks"}
	if got := Summary(display); got != "📋 Updating tasks" {
		t.Errorf("Summary() = %q, want %q", got, "📋 Updating tasks")
	}
}

func TestCoerceDisplayValue_IntegerFloatRendersWithoutDecimal(t *testing.T) {
	if got := coerceDisplayValue(float64(42)); got != "42" {
		t.Errorf("coerceDisplayValue(42.0) = %q, want 42", got)
	}
}

func TestCoerceDisplayValue_FractionalFloatRendersCompactly(t *testing.T) {
	if got := coerceDisplayValue(0.5); got != "0.5" {
		t.Errorf("coerceDisplayValue(0.5) = %q, want 0.5", got)
	}
}

func TestLookupValueByPath_NestedMap(t *testing.T) {
	args := map[string]interface{}{
		"target": map[string]interface{}{"path": "a/b.go"},
	}
	if got := lookupValueByPath(args, "target.path"); got != "a/b.go" {
		t.Errorf("lookupValueByPath = %v, want a/b.go", got)
	}
}

func TestLookupValueByPath_MissingKeyReturnsNil(t *testing.T) {
	args := map[string]interface{}{"a": 1}
	if got := lookupValueByPath(args, "b"); got != nil {
		t.Errorf("lookupValueByPath = %v, want nil", got)
	}
}
