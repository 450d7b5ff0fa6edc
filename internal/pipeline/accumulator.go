package pipeline

// Accumulator result keys, one per owning step.
const (
	KeyJudgeChallengeResult     = "judgeChallengeResult"
	KeyQueryHistoryResult       = "queryHistoryResult"
	KeyQueryKnowledgeBaseResult = "queryKnowledgeBaseResult"
	KeySimulationResult         = "simulationResult"
	KeyGenerateReportResult     = "generateReportResult"
)

// Accumulator is the monotonically-growing record of step results passed
// forward through the pipeline. Once a step populates its key, later steps
// may read the value but never remove it: merges replace only the keys they
// name.
type Accumulator struct {
	Entity  *Entity                   `json:"entity"`
	Results map[string]map[string]any `json:"results"`
}

// NewAccumulator seeds an accumulator carrying only the subject entity.
func NewAccumulator(entity *Entity) *Accumulator {
	return &Accumulator{
		Entity:  entity,
		Results: make(map[string]map[string]any),
	}
}

// Merge returns a copy of the accumulator with the overlay's keys replaced.
// Keys absent from the overlay are carried over untouched; the receiver is
// not modified.
func (a *Accumulator) Merge(overlay map[string]map[string]any) *Accumulator {
	out := &Accumulator{
		Entity:  a.Entity,
		Results: make(map[string]map[string]any, len(a.Results)+len(overlay)),
	}
	for k, v := range a.Results {
		out.Results[k] = v
	}
	for k, v := range overlay {
		out.Results[k] = v
	}
	return out
}

// Result returns the payload stored under key, if any.
func (a *Accumulator) Result(key string) (map[string]any, bool) {
	v, ok := a.Results[key]
	return v, ok
}

// Has reports whether key has been populated.
func (a *Accumulator) Has(key string) bool {
	_, ok := a.Results[key]
	return ok
}
