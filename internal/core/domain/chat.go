package domain

// ChatRole identifies the author of a conversation turn
type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatMessage is one conversation turn, immutable once written.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// NewUserMessage creates a user turn.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleUser, Content: content}
}

// NewAssistantMessage creates an assistant turn.
func NewAssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: ChatRoleAssistant, Content: content}
}

// StreamResult reports which model variant satisfied a generation request.
type StreamResult struct {
	ModelUsed string `json:"model_used"`
}
