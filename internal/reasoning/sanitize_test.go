package reasoning

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSanitise_StripsActionAsides(t *testing.T) {
	out := Sanitise("hello *looks away awkwardly* how are you", ChannelCasual)
	require.Equal(t, "hello  how are you", out)
}

func TestSanitise_StripsMarkdownHeadersAndBulletsInCasual(t *testing.T) {
	out := Sanitise("# Title\n- one\n- two\nplain text", ChannelCasual)
	require.NotContains(t, out, "#")
	require.NotContains(t, out, "- one")
	require.Contains(t, out, "plain text")
}

func TestSanitise_LeavesCodeBlocksAloneInTechnical(t *testing.T) {
	input := "explanation\n```go\n# not a header\n- not a bullet\n```\nmore text"
	out := Sanitise(input, ChannelTechnical)
	require.Contains(t, out, "```go")
	require.Contains(t, out, "# not a header")
	require.Contains(t, out, "- not a bullet")
}

func TestSanitise_IsIdempotent(t *testing.T) {
	inputs := []string{
		"hello *aside* world",
		"**0*text*",
		"# Header\n- bullet\nplain",
		"no markers here at all",
		"*unterminated aside",
	}
	for _, in := range inputs {
		once := Sanitise(in, ChannelCasual)
		twice := Sanitise(once, ChannelCasual)
		require.Equal(t, once, twice, "not idempotent for input %q", in)
	}
}

func TestSanitise_OverlappingAsteriskMarkersDoNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		Sanitise("**0*text*", ChannelCasual)
	})
}
