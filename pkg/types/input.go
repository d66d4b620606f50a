package types

// InputType defines the type of input being sent to the agent.
type InputType string

const (
	InputTypeCancel    InputType = "cancel"     // InputTypeCancel indicates a cancellation request for the running turn.
	InputTypeUserInput InputType = "user_input" // InputTypeUserInput indicates a text message from the user.
)

// Input is a message delivered by a channel for one session.
type Input struct {
	// SessionID names the conversation the input belongs to. Inputs of one
	// session are processed in arrival order.
	SessionID string

	// Channel names the surface the input arrived on (cli, mcp, ...).
	Channel string

	// Content is the text content for user input.
	Content string

	// Type indicates the kind of input.
	Type InputType
}

// NewCancelInput creates a new cancellation input.
func NewCancelInput(sessionID string) *Input {
	return &Input{
		Type:      InputTypeCancel,
		SessionID: sessionID,
	}
}

// NewUserInput creates a new user text input.
func NewUserInput(sessionID, content string) *Input {
	return &Input{
		Type:      InputTypeUserInput,
		SessionID: sessionID,
		Content:   content,
	}
}

// WithChannel sets the originating channel and returns the input for chaining.
func (i *Input) WithChannel(channel string) *Input {
	i.Channel = channel
	return i
}

// IsCancel returns true if this is a cancellation input.
func (i *Input) IsCancel() bool {
	return i.Type == InputTypeCancel
}

// IsUserInput returns true if this is a user text input.
func (i *Input) IsUserInput() bool {
	return i.Type == InputTypeUserInput
}
