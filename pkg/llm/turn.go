package llm

// ConversationTurn is a completed request-response pair, the unit recorded
// into a transcript.
type ConversationTurn struct {
	Request  *ChatRequest  `json:"request"`
	Response *ChatResponse `json:"response"`
}
