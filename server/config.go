package server

// Config is the HTTP server configuration.
type Config struct {
	// Address to listen on (e.g., ":8080")
	ListenAddr string

	// Model used by /api/describe and by chat requests that omit one.
	Model string

	// Prompt is the default describe prompt. Empty means describe.DefaultPrompt.
	Prompt string

	// DBPath is the path to the SQLite transcript database.
	// Use ":memory:" for an in-memory database, or empty for in-memory.
	DBPath string

	// HistoryWindow caps the messages returned per conversation. Zero
	// returns every message.
	HistoryWindow int
}
