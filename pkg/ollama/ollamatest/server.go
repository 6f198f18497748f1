// Package ollamatest provides an in-process fake of the Ollama HTTP API for tests.
package ollamatest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/ollama/ollama/api"
)

// DefaultReply is the assistant content returned by a new Server.
const DefaultReply = "The image shows a small red square on a white background."

// Server answers /api/chat and /api/tags for a fixed set of loaded models.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	models   []string
	reply    string
	stream   bool
	requests []api.ChatRequest
}

// NewServer starts a fake backend with the given models loaded.
func NewServer(models ...string) *Server {
	s := &Server{
		models: models,
		reply:  DefaultReply,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/api/tags", s.handleTags)
	mux.HandleFunc("/api/chat", s.handleChat)
	s.Server = httptest.NewServer(mux)

	return s
}

// SetReply changes the assistant content of subsequent responses.
func (s *Server) SetReply(reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reply = reply
}

// SetStreaming makes the server answer chats with one NDJSON frame per
// word and an empty final frame, whatever the request's stream flag says.
// Proxies in front of a real backend can behave this way.
func (s *Server) SetStreaming(stream bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = stream
}

// Requests returns the chat requests received so far.
func (s *Server) Requests() []api.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.ChatRequest(nil), s.requests...)
}

func (s *Server) hasModel(name string) bool {
	for _, m := range s.models {
		if m == name {
			return true
		}
	}
	return false
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprint(w, "Ollama is running")
}

func (s *Server) handleTags(w http.ResponseWriter, _ *http.Request) {
	resp := api.ListResponse{}
	for _, m := range s.models {
		resp.Models = append(resp.Models, api.ListModelResponse{
			Name:       m,
			Model:      m,
			Size:       7_900_000_000,
			ModifiedAt: time.Date(2024, 11, 6, 12, 0, 0, 0, time.UTC),
			Details:    api.ModelDetails{Family: "mllama", ParameterSize: "10.7B"},
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	reply, stream := s.reply, s.stream
	s.mu.Unlock()

	if !s.hasModel(req.Model) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q not found, try pulling it first", req.Model))
		return
	}

	resp := api.ChatResponse{
		Model:      req.Model,
		CreatedAt:  time.Now().UTC(),
		Message:    api.Message{Role: "assistant", Content: reply},
		Done:       true,
		DoneReason: "stop",
		Metrics: api.Metrics{
			TotalDuration:   1500 * time.Millisecond,
			LoadDuration:    200 * time.Millisecond,
			PromptEvalCount: 14,
			EvalCount:       12,
		},
	}

	if stream {
		writeFrames(w, resp)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func writeFrames(w http.ResponseWriter, final api.ChatResponse) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)

	for _, word := range strings.SplitAfter(final.Message.Content, " ") {
		_ = enc.Encode(api.ChatResponse{
			Model:     final.Model,
			CreatedAt: final.CreatedAt,
			Message:   api.Message{Role: "assistant", Content: word},
		})
	}

	final.Message.Content = ""
	_ = enc.Encode(final)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
