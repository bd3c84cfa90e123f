package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	ChangeType string  `json:"change_type"`
	Confidence float64 `json:"confidence"`
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     payload
	}{
		{"plain", `{"change_type":"modified","confidence":0.8}`, payload{"modified", 0.8}},
		{"fenced", "Here you go:\n```json\n{\"change_type\":\"added\",\"confidence\":0.5}\n```", payload{"added", 0.5}},
		{"surrounding text", `Sure! {"change_type":"removed","confidence":1} Hope this helps.`, payload{"removed", 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON[payload](tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseJSON_Errors(t *testing.T) {
	_, err := ParseJSON[payload]("no json here")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "missing '{'")

	_, err = ParseJSON[payload](`{"change_type": `)
	assert.Error(t, err)

	_, err = ParseJSON[payload](`{"change_type": 5}`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal JSON")
}

func TestParseJSON_Map(t *testing.T) {
	got, err := ParseJSON[map[string]any]("```\n{\"risk_level\":\"high\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "high", got["risk_level"])
}
