package domain

import "time"

// OutputType values used in emitted records besides node types.
const OutputUnknown = "unknown"

// Output is a record emitted by the engine for one visited node.
// Content is a plain string or one of the structured types below.
type Output struct {
	NodeID  string `json:"nodeId"`
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// QuestionAnswer records a question prompt together with the supplied answer.
type QuestionAnswer struct {
	Prompt   string `json:"prompt"`
	Answer   any    `json:"answer"`
	Variable string `json:"variable,omitempty"`
}

// ConfirmationAnswer records a confirmation prompt and the normalized answer.
type ConfirmationAnswer struct {
	Prompt string `json:"prompt"`
	Answer string `json:"answer"`
}

// CodeOutcome records the execution of a code node.
type CodeOutcome struct {
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
	Timestamp time.Time `json:"timestamp"`
}

// Pause describes the input a run is waiting for.
type Pause struct {
	Type     NodeType `json:"type"`
	NodeID   string   `json:"nodeId"`
	Message  string   `json:"message"`
	Variable string   `json:"variable,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// RunResult is the outcome of one engine invocation. It is not persisted.
type RunResult struct {
	Outputs   []Output `json:"outputs"`
	PausedFor *Pause   `json:"pausedFor,omitempty"`

	// NextNodeID is the last node visited when the run did not pause.
	NextNodeID string `json:"nextNodeId,omitempty"`

	// Variables is the session's variable bag after the run.
	Variables map[string]any `json:"variables"`

	// Finished reports that the flow reached a terminal state.
	Finished bool `json:"finished"`
}

// Paused reports whether the run stopped waiting for input.
func (r *RunResult) Paused() bool {
	return r != nil && r.PausedFor != nil
}

// BranchSelection records the option a user picked on a branch node.
type BranchSelection struct {
	SelectedOptionNodeID string `json:"selectedOptionNodeId"`
	Selected             any    `json:"selected"`
}
