// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type triage struct {
	Scenario string `json:"scenario"`
	Cause    string `json:"cause"`
}

func TestParseJSONResponse(t *testing.T) {
	cases := []struct {
		name     string
		response string
	}{
		{"plain", `[{"scenario":"login","cause":"timeout"}]`},
		{"fenced", "```json\n[{\"scenario\":\"login\",\"cause\":\"timeout\"}]\n```"},
		{"chatty", "Here is the triage:\n[{\"scenario\":\"login\",\"cause\":\"timeout\"}]\nHope it helps."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJSONResponse[[]triage](tc.response)
			require.NoError(t, err)
			assert.Equal(t, []triage{{Scenario: "login", Cause: "timeout"}}, *got)
		})
	}
}

func TestParseJSONResponseObject(t *testing.T) {
	got, err := ParseJSONResponse[triage]("Sure! {\"scenario\":\"loan\",\"cause\":\"[denied]\"}")
	require.NoError(t, err)
	assert.Equal(t, "[denied]", got.Cause)
}

func TestParseJSONResponseInvalid(t *testing.T) {
	_, err := ParseJSONResponse[[]triage]("no json here")
	assert.ErrorContains(t, err, "failed to unmarshal LLM JSON response")
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, "# Title\n\ntext", StripFence("```markdown\n# Title\n\ntext\n```\n"))
	assert.Equal(t, "no fence", StripFence("  no fence \n"))
	assert.Equal(t, "a ``` b", StripFence("a ``` b"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdef", 2))
	assert.Equal(t, "", Truncate("abc", 0))
	// "é" is two bytes; cutting inside it backs off to the rune start.
	assert.Equal(t, "caf...", Truncate("café au lait", 4))
}
