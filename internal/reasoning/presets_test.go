package reasoning

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetRegistry_ListSortedAndComplete(t *testing.T) {
	r, err := NewPresetRegistry()
	require.NoError(t, err)

	list := r.List()
	require.Len(t, list, 5)
	assert.True(t, sort.SliceIsSorted(list, func(i, j int) bool { return list[i].Name < list[j].Name }))

	for _, p := range list {
		assert.NotEmpty(t, p.Description, p.Name)
		assert.NotEmpty(t, p.RecommendedFor, p.Name)
		assert.NoError(t, ValidateMode(p.Mode), p.Name)
		for _, a := range p.Agents {
			assert.NotZero(t, a.MaxTokens, "%s/%s should carry defaults", p.Name, a.Name)
		}
	}
}

func TestPresetRegistry_DefaultPairsCritiqueAndSynthesis(t *testing.T) {
	r, err := NewPresetRegistry()
	require.NoError(t, err)

	p, err := r.Get(DefaultPresetName)
	require.NoError(t, err)
	assert.Equal(t, ModeRefinement, p.Mode)
	require.Len(t, p.Agents, 2)
	assert.Equal(t, "consultant", p.Agents[0].Name)
	assert.Equal(t, "analyst", p.Agents[1].Name)
}

func TestPresetRegistry_GetUnknown(t *testing.T) {
	r, err := NewPresetRegistry()
	require.NoError(t, err)

	_, err = r.Get("nonexistent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPresetRegistry_ListReturnsCopies(t *testing.T) {
	r, err := NewPresetRegistry()
	require.NoError(t, err)

	list := r.List()
	list[0].Agents[0].Name = "mutated"

	again := r.List()
	assert.NotEqual(t, "mutated", again[0].Agents[0].Name)
}

func TestPresetRegistry_ExtraPresets(t *testing.T) {
	custom := Preset{
		Name:        "pm-duo",
		Description: "PM and engineer",
		Agents: []AgentConfig{
			{Name: "pm", SystemPrompt: "You are a PM."},
			{Name: "engineer", SystemPrompt: "You are an engineer."},
		},
	}
	r, err := NewPresetRegistry(custom)
	require.NoError(t, err)

	p, err := r.Get("pm-duo")
	require.NoError(t, err)
	assert.Equal(t, ModeRefinement, p.Mode, "mode defaults to refinement")
	assert.Equal(t, "pm", p.Agents[0].Role, "role defaults to name")
	assert.Len(t, r.List(), 6)
}

func TestPresetRegistry_ExtraPresetValidation(t *testing.T) {
	valid := []AgentConfig{{Name: "a", SystemPrompt: "x"}}

	tests := []struct {
		name   string
		preset Preset
	}{
		{"shadows builtin", Preset{Name: DefaultPresetName, Agents: valid}},
		{"empty name", Preset{Name: " ", Agents: valid}},
		{"no agents", Preset{Name: "empty"}},
		{"bad mode", Preset{Name: "odd", Mode: "chaos", Agents: valid}},
		{"duplicate agents", Preset{Name: "dup", Agents: append(valid, valid...)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPresetRegistry(tt.preset)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestBuiltinPresets_Validate(t *testing.T) {
	for _, p := range builtinPresets() {
		t.Run(p.Name, func(t *testing.T) {
			require.NoError(t, ValidateMode(p.Mode))
			agents, err := validateAgents(p.Agents)
			require.NoError(t, err)
			assert.Len(t, agents, len(p.Agents))
			for _, a := range agents {
				require.NotNil(t, a.Temperature, a.Name)
			}
		})
	}
}
