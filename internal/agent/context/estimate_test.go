package context

import (
	"testing"

	"github.com/loomrun/loom/pkg/models"
)

func TestEstimateTokens_JSONUsesTighterDivisor(t *testing.T) {
	text := `{"key":"value","nested":{"a":1,"b":2}}`
	jsonTokens := EstimateTokens(text, 1.0)
	proseTokens := int(float64(len(text)) / proseCharsPerToken)
	if jsonTokens >= proseTokens {
		t.Errorf("JSON estimate %d should be tighter than prose estimate %d for the same text", jsonTokens, proseTokens)
	}
}

func TestEstimateTokens_SafetyMarginInflatesEstimate(t *testing.T) {
	text := "a plain sentence of prose with nothing special in it"
	withMargin := EstimateTokens(text, 0.9)
	withoutMargin := EstimateTokens(text, 1.0)
	if withMargin <= withoutMargin {
		t.Errorf("a safety margin below 1.0 should inflate the estimate: %d vs %d", withMargin, withoutMargin)
	}
}

func TestEstimateTokens_Empty(t *testing.T) {
	if got := EstimateTokens("", DefaultSafetyMargin); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}

func TestEstimateMessageTokens_CachesResult(t *testing.T) {
	msg := models.ChatMessage{Content: "hello world"}
	first := EstimateMessageTokens(&msg, DefaultSafetyMargin)
	if msg.TokenCount != first {
		t.Fatalf("TokenCount not cached: got %d, want %d", msg.TokenCount, first)
	}

	msg.Content = "a completely different and much longer string of text"
	second := EstimateMessageTokens(&msg, DefaultSafetyMargin)
	if second != first {
		t.Errorf("EstimateMessageTokens recomputed despite a cached TokenCount: got %d, want %d", second, first)
	}
}

func TestClassify_CodeLikeContent(t *testing.T) {
	code := "func main() {\n  x := 1;\n  y := 2;\n  fmt.Println(x, y);\n}"
	if classify(code) != codeCharsPerToken {
		t.Errorf("expected code to classify at %v chars/token", codeCharsPerToken)
	}
}
