package models

// ActionType tags the variant of an AgentDecision.
type ActionType string

const (
	ActionLLMCall     ActionType = "LLM_CALL"
	ActionToolCall    ActionType = "TOOL_CALL"
	ActionFinalAnswer ActionType = "FINAL_ANSWER"
)

// Valid reports whether the tag names a known decision variant.
func (a ActionType) Valid() bool {
	switch a {
	case ActionLLMCall, ActionToolCall, ActionFinalAnswer:
		return true
	}
	return false
}

// DecisionStatus is the per-step status the model attaches to a decision.
type DecisionStatus string

const (
	StatusComplete       DecisionStatus = "COMPLETE"
	StatusError          DecisionStatus = "ERROR"
	StatusNextStep       DecisionStatus = "NEXT_STEP"
	StatusToolDispatched DecisionStatus = "TOOL_DISPATCHED"
	StatusParallelPend   DecisionStatus = "PARALLEL_PENDING"
)

// AgentDecision is the model's per-step choice of next action. It is a
// tagged variant: ActionType selects which payload fields are meaningful.
//
//   - LLM_CALL carries NextPrompt and Reasoning.
//   - TOOL_CALL carries ToolName, ToolArguments, and Reasoning.
//   - FINAL_ANSWER carries FinalAnswer and Reasoning.
type AgentDecision struct {
	ActionType    ActionType     `json:"actionType"`
	Status        DecisionStatus `json:"status,omitempty"`
	Reasoning     string         `json:"reasoning,omitempty"`
	NextPrompt    string         `json:"nextPrompt,omitempty"`
	ToolName      string         `json:"toolName,omitempty"`
	ToolArguments map[string]any `json:"toolArguments,omitempty"`
	FinalAnswer   string         `json:"finalAnswer,omitempty"`
}
