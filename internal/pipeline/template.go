package pipeline

// Sub-step kinds of the buildSimulation stage, one per simulation sub-phase.
const (
	KindSimProblems        StepKind = "extractProblems"
	KindSimHypotheses      StepKind = "formHypotheses"
	KindSimMetrics         StepKind = "deriveMetrics"
	KindSimInsights        StepKind = "generateInsights"
	KindSimRecommendations StepKind = "draftRecommendations"
	KindSimNextSteps       StepKind = "planNextSteps"
)

// SimulationSubKeys maps each buildSimulation sub-step to the payload key
// holding its slice of the simulation result.
var SimulationSubKeys = map[StepKind]string{
	KindSimProblems:        "problems",
	KindSimHypotheses:      "hypotheses",
	KindSimMetrics:         "metrics",
	KindSimInsights:        "insights",
	KindSimRecommendations: "recommendations",
	KindSimNextSteps:       "nextSteps",
}

// stepTemplate is the canonical step list. Template returns deep copies so a
// run can never mutate the master list.
var stepTemplate = []Step{
	{
		ID:          KindJudgeChallenge,
		Title:       "Judge Suitability",
		Description: "Judge whether the entity is suitable for automated diligence analysis.",
		Status:      StatusPending,
	},
	{
		ID:          KindQueryHistory,
		Title:       "Query History",
		Description: "Retrieve the entity's historical analysis and metric records.",
		Status:      StatusPending,
	},
	{
		ID:          KindQueryKnowledgeBase,
		Title:       "Query Knowledge Base",
		Description: "Retrieve domain knowledge relevant to the entity's industry and challenge.",
		Status:      StatusPending,
	},
	{
		ID:          KindBuildSimulation,
		Title:       "Build Simulation",
		Description: "Build the causal simulation: problems, hypotheses, metrics, insights, recommendations, next steps.",
		Status:      StatusPending,
		SubSteps: []Step{
			{ID: KindSimProblems, Title: "Extract Problems", Status: StatusPending},
			{ID: KindSimHypotheses, Title: "Form Hypotheses", Status: StatusPending},
			{ID: KindSimMetrics, Title: "Derive Metrics", Status: StatusPending},
			{ID: KindSimInsights, Title: "Generate Insights", Status: StatusPending},
			{ID: KindSimRecommendations, Title: "Draft Recommendations", Status: StatusPending},
			{ID: KindSimNextSteps, Title: "Plan Next Steps", Status: StatusPending},
		},
	},
	{
		ID:          KindAnswerChallenge,
		Title:       "Answer Challenge",
		Description: "Answer the analysis challenge against the simulation result.",
		Status:      StatusPending,
	},
	{
		ID:          KindGenerateReport,
		Title:       "Generate Report",
		Description: "Produce the final diligence report with findings and recommendations.",
		Status:      StatusPending,
	},
}

// Template returns a fresh deep copy of the canonical six-step list.
func Template() []Step {
	out := make([]Step, len(stepTemplate))
	for i, s := range stepTemplate {
		out[i] = s.Clone()
	}
	return out
}
