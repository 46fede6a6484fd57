package reasoning

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultPresetName is used when start receives neither agents nor a preset.
const DefaultPresetName = "consultant-analyst"

// Preset is a named bundle of agent configurations and a dialogue mode.
type Preset struct {
	Name           string        `json:"name" yaml:"name"`
	Description    string        `json:"description" yaml:"description"`
	Mode           Mode          `json:"mode" yaml:"mode"`
	Agents         []AgentConfig `json:"agents" yaml:"agents"`
	RecommendedFor []string      `json:"recommended_for" yaml:"recommended_for"`
}

// PresetRegistry is the static preset catalog. The catalog is built on first
// use and never changes afterwards.
type PresetRegistry struct {
	extra []Preset

	once   sync.Once
	byName map[string]Preset
	sorted []Preset
}

// NewPresetRegistry creates a registry holding the built-in presets plus
// extra. Extra presets are validated here; they may not reuse a built-in name.
func NewPresetRegistry(extra ...Preset) (*PresetRegistry, error) {
	builtin := make(map[string]bool)
	for _, p := range builtinPresets() {
		builtin[p.Name] = true
	}

	seen := make(map[string]bool)
	checked := make([]Preset, 0, len(extra))
	for _, p := range extra {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("%w: preset name is required", ErrInvalidArgument)
		}
		if builtin[p.Name] || seen[p.Name] {
			return nil, fmt.Errorf("%w: preset %q is already registered", ErrInvalidArgument, p.Name)
		}
		if p.Mode == "" {
			p.Mode = ModeRefinement
		}
		if err := ValidateMode(p.Mode); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		agents, err := validateAgents(p.Agents)
		if err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
		p.Agents = agents
		seen[p.Name] = true
		checked = append(checked, p)
	}

	return &PresetRegistry{extra: checked}, nil
}

func (r *PresetRegistry) init() {
	r.once.Do(func() {
		all := builtinPresets()
		for i := range all {
			agents, err := validateAgents(all[i].Agents)
			if err != nil {
				panic(fmt.Sprintf("built-in preset %q: %v", all[i].Name, err))
			}
			all[i].Agents = agents
		}
		all = append(all, r.extra...)

		r.byName = make(map[string]Preset, len(all))
		for _, p := range all {
			r.byName[p.Name] = p
		}
		r.sorted = make([]Preset, 0, len(r.byName))
		for _, p := range r.byName {
			r.sorted = append(r.sorted, p)
		}
		sort.Slice(r.sorted, func(i, j int) bool { return r.sorted[i].Name < r.sorted[j].Name })
	})
}

// List returns every preset sorted by name. The result is a copy.
func (r *PresetRegistry) List() []Preset {
	r.init()
	out := make([]Preset, len(r.sorted))
	for i, p := range r.sorted {
		out[i] = p.clone()
	}
	return out
}

// Get returns the named preset or ErrNotFound.
func (r *PresetRegistry) Get(name string) (Preset, error) {
	r.init()
	p, ok := r.byName[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: preset %q", ErrNotFound, name)
	}
	return p.clone(), nil
}

func (p Preset) clone() Preset {
	p.Agents = append([]AgentConfig(nil), p.Agents...)
	p.RecommendedFor = append([]string(nil), p.RecommendedFor...)
	return p
}

// builtinPresets returns the catalog shipped with the server.
func builtinPresets() []Preset {
	return []Preset{
		{
			Name: DefaultPresetName,
			Description: "A senior consultant critiques the current proposal and an analyst " +
				"revises it, iterating until the analyst rates the result above threshold.",
			Mode: ModeRefinement,
			Agents: []AgentConfig{
				{
					Name: "consultant",
					Role: "Strategic Consultant",
					SystemPrompt: "You are a senior strategic consultant. Challenge assumptions, " +
						"find gaps, risks and ambiguities in the latest proposal, and state " +
						"concrete, prioritized improvements. Do not rewrite the proposal yourself.",
					Temperature: Float(0.7),
				},
				{
					Name: "analyst",
					Role: "Requirements Analyst",
					SystemPrompt: "You are a meticulous requirements analyst. Produce a complete, " +
						"revised version of the proposal that addresses every critique in the " +
						"transcript. Be specific, testable and unambiguous.",
					Temperature: Float(0.4),
				},
			},
			RecommendedFor: []string{"MVP scoping", "proposal hardening", "objective refinement"},
		},
		{
			Name: "requirements-review",
			Description: "An author drafts or amends requirements and a reviewer scores them " +
				"for necessity, ambiguity and verifiability.",
			Mode: ModeReview,
			Agents: []AgentConfig{
				{
					Name: "author",
					Role: "Requirements Author",
					SystemPrompt: "You write formal requirements with unique IDs and MoSCoW " +
						"priorities. Amend the latest draft to resolve every review finding.",
					Temperature: Float(0.5),
				},
				{
					Name: "reviewer",
					Role: "Requirements Reviewer",
					SystemPrompt: "You review requirements against IEEE 29148 quality attributes. " +
						"List findings per requirement ID and judge overall readiness.",
					Temperature: Float(0.3),
				},
			},
			RecommendedFor: []string{"requirements review", "acceptance criteria", "spec audits"},
		},
		{
			Name: "exploration-panel",
			Description: "Three perspectives take turns opening each round to widen and then " +
				"narrow the option space.",
			Mode: ModeExploration,
			Agents: []AgentConfig{
				{
					Name:         "visionary",
					Role:         "Product Visionary",
					SystemPrompt: "You propose ambitious, user-centred directions and unexplored options.",
					Temperature:  Float(0.9),
				},
				{
					Name:         "pragmatist",
					Role:         "Delivery Lead",
					SystemPrompt: "You weigh options by cost, risk and time to value, and cut scope ruthlessly.",
					Temperature:  Float(0.5),
				},
				{
					Name:         "skeptic",
					Role:         "Risk Analyst",
					SystemPrompt: "You look for failure modes, hidden dependencies and weak evidence.",
					Temperature:  Float(0.6),
				},
			},
			RecommendedFor: []string{"early discovery", "option generation", "roadmap brainstorming"},
		},
		{
			Name: "structured-debate",
			Description: "An advocate and a challenger argue opposing positions while an " +
				"arbiter judges each round.",
			Mode: ModeDebate,
			Agents: []AgentConfig{
				{
					Name:         "advocate",
					Role:         "Advocate",
					SystemPrompt: "You argue for the proposal on the table with the strongest honest case.",
					Temperature:  Float(0.7),
				},
				{
					Name:         "challenger",
					Role:         "Challenger",
					SystemPrompt: "You argue against the proposal and propose the best alternative.",
					Temperature:  Float(0.7),
				},
				{
					Name: "arbiter",
					Role: "Arbiter",
					SystemPrompt: "You weigh both sides impartially, state which arguments hold, " +
						"and write the current best decision with its rationale.",
					Temperature: Float(0.2),
				},
			},
			RecommendedFor: []string{"architecture decisions", "build vs buy", "trade-off analysis"},
		},
		{
			Name: "synthesis-council",
			Description: "A researcher and a strategist contribute, and a synthesizer merges " +
				"their input into one plan each round.",
			Mode: ModeSynthesis,
			Agents: []AgentConfig{
				{
					Name:         "researcher",
					Role:         "Researcher",
					SystemPrompt: "You gather relevant facts, precedents and constraints for the topic.",
					Temperature:  Float(0.5),
				},
				{
					Name:         "strategist",
					Role:         "Strategist",
					SystemPrompt: "You turn facts into goals, sequencing and measurable outcomes.",
					Temperature:  Float(0.6),
				},
				{
					Name:         "synthesizer",
					Role:         "Synthesizer",
					SystemPrompt: "You merge every contribution into a single coherent plan or playbook.",
					Temperature:  Float(0.3),
				},
			},
			RecommendedFor: []string{"playbooks", "implementation plans", "multi-source summaries"},
		},
	}
}
