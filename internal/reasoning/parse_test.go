package reasoning

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mneme/internal/domain"
)

func TestParseOutcome_PlainJSON(t *testing.T) {
	raw := `{"inner_monologue": "thinking...", "public_response": "hello there"}`
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeFinalText, out.Kind)
	require.Equal(t, "hello there", out.Text)
}

func TestParseOutcome_FencedJSON(t *testing.T) {
	raw := "```json\n{\"public_response\": \"fenced reply\"}\n```"
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeFinalText, out.Kind)
	require.Equal(t, "fenced reply", out.Text)
}

func TestParseOutcome_JSONWithSurroundingChatter(t *testing.T) {
	raw := `Sure, here you go: {"public_response": "wrapped reply"} hope that helps`
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeFinalText, out.Kind)
	require.Equal(t, "wrapped reply", out.Text)
}

func TestParseOutcome_ToolInvocation(t *testing.T) {
	raw := `{"tool_call": {"name": "search_web", "arguments": {"query": "weather"}}}`
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeToolInvocation, out.Kind)
	require.Equal(t, "search_web", out.ToolName)
	require.Equal(t, "weather", out.ToolArguments["query"])
}

func TestParseOutcome_Silent(t *testing.T) {
	raw := `{"silent": true, "public_response": ""}`
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeSilence, out.Kind)
}

func TestParseOutcome_ModalityReply(t *testing.T) {
	raw := `{"public_response": "a picture of a cat", "modality": "image"}`
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeModalityReply, out.Kind)
	require.Equal(t, "image", out.Modality)
}

func TestParseOutcome_NeverLeaksInnerMonologueIntoText(t *testing.T) {
	raw := `{"inner_monologue": "secret plan", "public_response": "visible text"}`
	out := ParseOutcome(raw)
	require.NotContains(t, out.Text, "secret plan")
}

func TestParseOutcome_MalformedJSONFallsBackToRegexExtraction(t *testing.T) {
	raw := `{"public_response": "partial reply" "broken": }`
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeFinalText, out.Kind)
	require.Equal(t, "partial reply", out.Text)
}

func TestParseOutcome_UnparseableTextFallsBackToPlainText(t *testing.T) {
	raw := "just plain text with no JSON at all"
	out := ParseOutcome(raw)
	require.Equal(t, domain.OutcomeFinalText, out.Kind)
	require.Equal(t, raw, out.Text)
}

func TestParseOutcome_EmptyInputIsSilence(t *testing.T) {
	out := ParseOutcome("   ")
	require.Equal(t, domain.OutcomeSilence, out.Kind)
}
