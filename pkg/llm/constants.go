package llm

// StopReason constants define normalized reasons for LLM generation termination.
// All providers must normalize their native stop reasons to these values.
const (
	StopReasonStop   = "stop"   // Normal completion
	StopReasonLength = "length" // Output truncated due to token limit
)

// ContentBlock Type constants define the supported content block formats
// used throughout the message pipeline.
const (
	BlockTypeText     = "text"     // Plain text content
	BlockTypeThinking = "thinking" // Internal reasoning/chain-of-thought
	BlockTypeError    = "error"    // Error message displayed to user
)

// Transcript roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message kinds for orchestrator-authored turns.
const (
	KindNotice   = "notice"   // user-visible only (cancellation, apology)
	KindFeedback = "feedback" // corrective instruction for the model
)

// Tool choice policies passed to the model endpoint.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceNone = "none"
)
