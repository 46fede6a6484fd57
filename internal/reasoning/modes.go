package reasoning

// --- Mode strategies ---
//
// Each Mode carries an ordering strategy, the framing text given to
// agents and the label for what the opening speaker of an iteration
// delivers. The engine never branches on the mode tag itself; it asks the
// mode for the turn order and the framing.

type modeStrategy struct {
	instruction string
	opening     string
	order       func(agents, iteration int) []int
}

var modeStrategies = map[Mode]modeStrategy{
	ModeRefinement: {
		instruction: "This is an iterative refinement dialogue. Critique concretely, " +
			"then revise: each turn must improve on the latest draft in the transcript.",
		opening: "proposal",
		order:   sequentialOrder,
	},
	ModeReview: {
		instruction: "This is a review dialogue. The first speaker drafts or amends the " +
			"artifact; later speakers review it against the topic and flag gaps precisely.",
		opening: "draft",
		order:   sequentialOrder,
	},
	ModeSynthesis: {
		instruction: "This is a synthesis dialogue. Contribute your perspective; the last " +
			"speaker of each round merges every contribution into one coherent answer.",
		opening: "perspective",
		order:   sequentialOrder,
	},
	ModeExploration: {
		instruction: "This is an exploration dialogue. Widen the option space: propose " +
			"alternatives the transcript has not covered yet before narrowing down.",
		opening: "option",
		order:   roundRobinOrder,
	},
	ModeDebate: {
		instruction: "This is a structured debate. Argue your assigned position against the " +
			"latest opposing argument; the final speaker of each round judges the exchange.",
		opening: "opening argument",
		order:   debateOrder,
	},
}

// turnOrder returns agent indexes in speaking order for the iteration.
func (m Mode) turnOrder(agents, iteration int) []int {
	strat, ok := modeStrategies[m]
	if !ok {
		return sequentialOrder(agents, iteration)
	}
	return strat.order(agents, iteration)
}

// instruction returns the mode's framing text.
func (m Mode) instruction() string {
	return modeStrategies[m].instruction
}

// opening returns what the first speaker of an iteration delivers.
func (m Mode) opening() string {
	if strat, ok := modeStrategies[m]; ok {
		return strat.opening
	}
	return "proposal"
}

// sequentialOrder keeps the configured order every iteration.
func sequentialOrder(agents, _ int) []int {
	order := make([]int, agents)
	for i := range order {
		order[i] = i
	}
	return order
}

// roundRobinOrder rotates the opening speaker: iteration i starts at
// agent (i-1) mod n.
func roundRobinOrder(agents, iteration int) []int {
	order := make([]int, agents)
	if agents == 0 {
		return order
	}
	start := (iteration - 1) % agents
	if start < 0 {
		start += agents
	}
	for i := range order {
		order[i] = (start + i) % agents
	}
	return order
}

// debateOrder keeps the last agent as arbiter and reverses the debaters on
// even iterations so neither side always opens.
func debateOrder(agents, iteration int) []int {
	if agents == 0 {
		return nil
	}
	debaters := agents - 1
	order := make([]int, 0, agents)
	for i := 0; i < debaters; i++ {
		if iteration%2 == 0 {
			order = append(order, debaters-1-i)
		} else {
			order = append(order, i)
		}
	}
	return append(order, agents-1)
}
