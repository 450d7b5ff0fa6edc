package pipeline

import (
	"time"
)

// StepKind identifies a pipeline stage. The engine ships six known kinds;
// the registry treats the set as open so deployments can plug in more.
type StepKind string

const (
	// KindJudgeChallenge judges whether the entity is suitable for analysis.
	KindJudgeChallenge StepKind = "judgeChallenge"

	// KindQueryHistory retrieves the entity's historical analysis records.
	KindQueryHistory StepKind = "queryHistory"

	// KindQueryKnowledgeBase retrieves domain knowledge relevant to the entity.
	KindQueryKnowledgeBase StepKind = "queryKnowledgeBase"

	// KindBuildSimulation builds the causal simulation over the entity.
	KindBuildSimulation StepKind = "buildSimulation"

	// KindAnswerChallenge answers the analysis challenge using the simulation.
	KindAnswerChallenge StepKind = "answerChallenge"

	// KindGenerateReport produces the final diligence report.
	KindGenerateReport StepKind = "generateReport"
)

// AllKinds returns the six built-in step kinds in execution order.
func AllKinds() []StepKind {
	return []StepKind{
		KindJudgeChallenge,
		KindQueryHistory,
		KindQueryKnowledgeBase,
		KindBuildSimulation,
		KindAnswerChallenge,
		KindGenerateReport,
	}
}

// ResultKey returns the accumulator key a kind writes its result under.
// answerChallenge overlays the simulation result rather than owning a key.
func (k StepKind) ResultKey() string {
	switch k {
	case KindJudgeChallenge:
		return KeyJudgeChallengeResult
	case KindQueryHistory:
		return KeyQueryHistoryResult
	case KindQueryKnowledgeBase:
		return KeyQueryKnowledgeBaseResult
	case KindBuildSimulation, KindAnswerChallenge:
		return KeySimulationResult
	case KindGenerateReport:
		return KeyGenerateReportResult
	default:
		return string(k) + "Result"
	}
}

// StepStatus represents the lifecycle state of a single step.
type StepStatus string

const (
	StatusPending    StepStatus = "pending"
	StatusInProgress StepStatus = "in-progress"
	StatusCompleted  StepStatus = "completed"
	StatusError      StepStatus = "error"
)

// Terminal reports whether the status is a terminal state.
func (s StepStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Step is a pipeline stage descriptor. Result is nil until the step reaches
// a terminal status.
type Step struct {
	ID          StepKind       `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      StepStatus     `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	SubSteps    []Step         `json:"subSteps,omitempty"`
}

// Clone returns a deep copy of the step, including sub-steps and result.
func (s Step) Clone() Step {
	out := s
	if s.Result != nil {
		out.Result = cloneMap(s.Result)
	}
	if len(s.SubSteps) > 0 {
		out.SubSteps = make([]Step, len(s.SubSteps))
		for i, sub := range s.SubSteps {
			out.SubSteps[i] = sub.Clone()
		}
	}
	return out
}

// DeriveStatus recomputes a parent step's status from its children:
// completed only when every child completed, in-progress while any child has
// produced a result. Steps without children are left untouched.
func (s *Step) DeriveStatus() {
	if len(s.SubSteps) == 0 {
		return
	}
	completed := 0
	resulted := 0
	for i := range s.SubSteps {
		if s.SubSteps[i].Status == StatusCompleted {
			completed++
		}
		if s.SubSteps[i].Result != nil {
			resulted++
		}
	}
	switch {
	case completed == len(s.SubSteps):
		s.Status = StatusCompleted
	case resulted > 0:
		s.Status = StatusInProgress
	}
}

// Approval is the tri-state manual approval flag on a step context.
type Approval int

const (
	// ApprovalUnset means no approval decision has been recorded.
	ApprovalUnset Approval = iota

	// ApprovalGranted means the operator approved progression past the step.
	ApprovalGranted

	// ApprovalDenied means the step awaits an explicit approval.
	ApprovalDenied
)

// StepContext carries per-step retry state. Contexts are created lazily on
// first need, keyed by step index, and cleared only by a full reset.
type StepContext struct {
	// AdditionalInfo is a free-text hint supplied by the operator for a retry.
	AdditionalInfo string `json:"additionalInfo,omitempty"`

	// ManualApproval gates progression in manual mode.
	ManualApproval Approval `json:"manualApproval"`

	// RetryCount counts user-initiated reruns of this step.
	RetryCount int `json:"retryCount"`
}

// Entity is the business entity under analysis.
type Entity struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Industry    string         `json:"industry,omitempty"`
	Description string         `json:"description,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// Agent identifies the analysis agent driving the run.
type Agent struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Model string `json:"model,omitempty"`
}

// ExecContext is the ephemeral context handed to a processor for a single
// execution attempt. It is built fresh per attempt and never persisted.
type ExecContext struct {
	Entity      *Entity
	Accumulator *Accumulator
	StepContext *StepContext
	Agent       *Agent
	Index       int
}

// Continuation tells the driver what to do after a step finishes.
type Continuation int

const (
	// ContinueNext proceeds to the next step in order.
	ContinueNext Continuation = iota

	// Halt stops the pipeline without advancing the index.
	Halt

	// Jump moves the pipeline to Result.JumpIndex. Reserved; the default
	// sequencing never emits it.
	Jump
)

// FailureKind classifies why an execution did not proceed normally.
type FailureKind string

const (
	FailureNone            FailureKind = ""
	FailureUnknownStep     FailureKind = "unknown_step"
	FailureBlocked         FailureKind = "precondition_blocked"
	FailureExternalService FailureKind = "external_service_error"
	FailureGateRejection   FailureKind = "gate_rejection"
	FailureUserRejection   FailureKind = "user_rejection"
)

// LogEntry is a structured, human-readable log record emitted during
// execution. Timestamp is set at emission; entries are never reordered.
type LogEntry struct {
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// Log entry types.
const (
	LogTypeSystem   = "system"
	LogTypeStep     = "step"
	LogTypeAnalysis = "analysis"
)

// Log entry statuses.
const (
	LogStatusInfo    = "info"
	LogStatusWarning = "warning"
	LogStatusError   = "error"
	LogStatusSuccess = "success"
)

// NewLog builds a log entry stamped with the current time.
func NewLog(logType, title, description, status string) LogEntry {
	return LogEntry{
		Type:        logType,
		Title:       title,
		Description: description,
		Status:      status,
		Timestamp:   time.Now(),
	}
}

// Result is the outcome of a single step execution. Processors normalize
// every failure into a Result; nothing escapes as a panic or raw error.
type Result struct {
	// Success reports whether the step did its work. A gate rejection is
	// still a success: the step ran and deliberately decided to halt.
	Success bool `json:"success"`

	// Payload is the opaque result recorded on the step.
	Payload map[string]any `json:"result,omitempty"`

	// Err carries the failure message when Success is false.
	Err string `json:"error,omitempty"`

	// Failure classifies the halt reason for events and logs.
	Failure FailureKind `json:"failureKind,omitempty"`

	// Continuation tells the driver whether to advance.
	Continuation Continuation `json:"-"`

	// JumpIndex is the target index when Continuation is Jump.
	JumpIndex int `json:"-"`

	// Updated is the accumulator overlay to merge on success.
	Updated map[string]map[string]any `json:"-"`

	// Logs are flushed through the registry's log sink after execution.
	Logs []LogEntry `json:"logs,omitempty"`
}

// Failed builds a halting failure result with the given classification.
func Failed(kind FailureKind, msg string) Result {
	return Result{
		Success:      false,
		Err:          msg,
		Failure:      kind,
		Continuation: Halt,
	}
}

// Report is the derived diligence report produced by the generateReport step.
type Report struct {
	Summary         string   `json:"summary"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
	ConfidenceScore float64  `json:"confidenceScore"`
	IsLogical       bool     `json:"isLogical"`
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
