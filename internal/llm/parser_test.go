package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"kind":"expense","amount":50}`,
			want:  `{"kind":"expense","amount":50}`,
		},
		{
			name:  "fenced with language tag",
			reply: "```json\n{\"kind\":\"income\"}\n```",
			want:  `{"kind":"income"}`,
		},
		{
			name:  "surrounding prose",
			reply: `Sure! Here is the result: {"amount": 12.5} hope that helps`,
			want:  `{"amount": 12.5}`,
		},
		{
			name:  "nested object",
			reply: `{"a":{"b":1},"c":2}`,
			want:  `{"a":{"b":1},"c":2}`,
		},
		{
			name:  "brace inside string value",
			reply: `{"description":"a } in text","amount":1}`,
			want:  `{"description":"a } in text","amount":1}`,
		},
		{
			name:  "literal newline inside string",
			reply: "{\"description\":\"line one\nline two\"}",
			want:  "{\"description\":\"line one\\nline two\"}",
		},
		{
			name:    "no object at all",
			reply:   "I could not determine that.",
			wantErr: true,
		},
		{
			name:    "unbalanced object",
			reply:   `{"kind":"expense"`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		Kind   string  `json:"kind"`
		Amount float64 `json:"amount"`
	}

	err := Decode("```json\n{\"kind\": \"expense\", \"amount\": 50}\n```", &out)
	require.NoError(t, err)
	assert.Equal(t, "expense", out.Kind)
	assert.InDelta(t, 50.0, out.Amount, 0.001)

	err = Decode("no json here", &out)
	assert.Error(t, err)
}
