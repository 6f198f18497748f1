package llm

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message represents a single message in a conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content string  `json:"content"`
	Images  []Image `json:"images,omitempty"` // Optional attachments (for multimodal)
}

// UserMessage builds a user message with the given text and image attachments.
func UserMessage(content string, images ...Image) Message {
	return Message{
		Role:    RoleUser,
		Content: content,
		Images:  images,
	}
}
