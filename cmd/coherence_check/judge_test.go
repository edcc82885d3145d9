package main

import "testing"

func TestClamp1to5_ClampsOutOfRangeValues(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 5: 5, 9: 5}
	for in, want := range cases {
		if got := clamp1to5(in); got != want {
			t.Errorf("clamp1to5(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestExtractFirstJSONObject_FindsBalancedObject(t *testing.T) {
	raw := "here is the verdict: {\"reasoning\": \"ok\", \"personality_score\": 4} trailing text"
	got := extractFirstJSONObject(raw)
	want := `{"reasoning": "ok", "personality_score": 4}`
	if got != want {
		t.Errorf("extractFirstJSONObject() = %q, want %q", got, want)
	}
}

func TestExtractFirstJSONObject_HandlesNestedBraces(t *testing.T) {
	raw := `{"reasoning": "nested {braces} inside a string", "memory_score": 2}`
	got := extractFirstJSONObject(raw)
	if got != raw {
		t.Errorf("extractFirstJSONObject() = %q, want %q", got, raw)
	}
}

func TestExtractFirstJSONObject_NoObjectReturnsEmpty(t *testing.T) {
	if got := extractFirstJSONObject("no json here"); got != "" {
		t.Errorf("extractFirstJSONObject() = %q, want empty", got)
	}
}
