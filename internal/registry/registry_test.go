package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerlab/qaeval/internal/model"
)

func TestLoad_EmbeddedDefault(t *testing.T) {
	reg, err := Load("")
	require.NoError(t, err)
	require.Len(t, reg.Assistants, 2)
	assert.Equal(t, "competitor_a", reg.Assistants[0].ID)
	assert.Equal(t, KindHTTP, reg.Assistants[0].Kind)
	assert.Equal(t, "competitor_b", reg.Assistants[1].ID)
	assert.Equal(t, KindAnthropic, reg.Assistants[1].Kind)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{
			name:    "empty roster",
			doc:     "assistants: []",
			wantErr: "no assistants",
		},
		{
			name: "missing id",
			doc: `assistants:
  - kind: http
    base_url: http://x`,
			wantErr: "no id",
		},
		{
			name: "duplicate id",
			doc: `assistants:
  - id: a
    kind: http
    base_url: http://x
  - id: a
    kind: http
    base_url: http://y`,
			wantErr: "duplicate",
		},
		{
			name: "http without base_url",
			doc: `assistants:
  - id: a
    kind: http`,
			wantErr: "base_url",
		},
		{
			name: "unknown kind",
			doc: `assistants:
  - id: a
    kind: grpc`,
			wantErr: "unknown kind",
		},
		{
			name: "bad timeout",
			doc: `assistants:
  - id: a
    kind: http
    base_url: http://x
    timeout: soon`,
			wantErr: "timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGenerators_BuildsEveryEntry(t *testing.T) {
	reg, err := Parse([]byte(`assistants:
  - id: competitor_a
    kind: http
    base_url: http://localhost:8091
    rps: 5
    timeout: 30s
  - id: competitor_b
    kind: anthropic
    model: claude-sonnet-4-5-20250929`))
	require.NoError(t, err)

	gens, err := reg.Generators()
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.NotNil(t, gens[model.AssistantCompetitorA])
	assert.NotNil(t, gens[model.AssistantCompetitorB])
}

func TestGenerators_RejectsInternal(t *testing.T) {
	reg, err := Parse([]byte(`assistants:
  - id: internal
    kind: http
    base_url: http://localhost:8090`))
	require.NoError(t, err)

	_, err = reg.Generators()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "internal assistant")
}
