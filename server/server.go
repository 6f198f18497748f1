// Package server exposes the chat shim and the image describer over HTTP and
// records every completed turn in a merkle DAG.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/glimpse/pkg/describe"
	"github.com/papercomputeco/glimpse/pkg/llm"
	"github.com/papercomputeco/glimpse/pkg/merkle"
	"github.com/papercomputeco/glimpse/pkg/timing"
	"github.com/papercomputeco/glimpse/pkg/transcript"
)

// uploads are base64 images or multipart files; fiber's 4MB default is too small
const bodyLimit = 32 * 1024 * 1024

const requestIDKey = "request_id"

// Server is the glimpse HTTP surface.
type Server struct {
	config   Config
	storer   merkle.Storer
	recorder *transcript.Recorder
	backend  llm.Chatter
	logger   *zap.Logger
	app      *fiber.App
}

// DescribeResponse is the body returned by /api/describe.
type DescribeResponse struct {
	Description    string  `json:"description"`
	Model          string  `json:"model"`
	ElapsedMinutes float64 `json:"elapsed_minutes"`
}

// IngestResponse is the body returned by /transcripts/nodes.
type IngestResponse struct {
	New       int `json:"new"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
}

// New creates a Server whose chat calls go through backend.
func New(config Config, backend llm.Chatter, logger *zap.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("server requires a chatter")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var storer merkle.Storer
	if config.DBPath != "" {
		sqlite, err := merkle.NewSQLiteStorer(config.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storer: %w", err)
		}
		storer = sqlite
		logger.Info("using SQLite storage", zap.String("path", config.DBPath))
	} else {
		storer = merkle.NewMemoryStorer()
		logger.Info("using in-memory storage")
	}

	s := &Server{
		config:   config,
		storer:   storer,
		recorder: transcript.NewRecorder(storer, logger, transcript.WithWindow(config.HistoryWindow)),
		backend:  backend,
		logger:   logger,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             bodyLimit,
	})
	s.app.Use(s.requestID)

	s.app.Post("/api/chat", s.handleChat)
	s.app.Post("/api/describe", s.handleDescribe)

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(map[string]string{"status": "ok"})
	})

	s.app.Get("/transcripts", s.handleListHistories)
	s.app.Get("/transcripts/stats", s.handleStats)
	s.app.Post("/transcripts/nodes", s.handleIngest)
	s.app.Get("/transcripts/nodes/:hash", s.handleGetNode)
	s.app.Get("/transcripts/:hash", s.handleGetHistory)

	return s, nil
}

// Run starts the server on the configured listening address.
func (s *Server) Run() error {
	s.logger.Info("starting server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("model", s.config.Model),
	)

	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener serves on an existing listener.
func (s *Server) RunWithListener(ln net.Listener) error {
	s.logger.Info("starting server", zap.String("listen", ln.Addr().String()))
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Close releases the transcript store.
func (s *Server) Close() error {
	return s.storer.Close()
}

func (s *Server) requestID(c *fiber.Ctx) error {
	id := c.Get(fiber.HeaderXRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(fiber.HeaderXRequestID, id)
	c.Locals(requestIDKey, id)

	return c.Next()
}

// chatter builds the chain for one request. The timer sits inside the
// recorder so elapsed time covers the backend call only.
func (s *Server) chatter() (llm.Chatter, *timing.Chatter) {
	timed := timing.Timed(s.backend, nil)
	return s.recorder.Wrap(timed), timed
}

func (s *Server) requestLogger(c *fiber.Ctx) *zap.Logger {
	id, _ := c.Locals(requestIDKey).(string)
	return s.logger.With(zap.String("request_id", id))
}

// handleChat answers an Ollama-shaped chat request. Streaming is never
// requested from the backend, so the reply is always a single JSON object.
func (s *Server) handleChat(c *fiber.Ctx) error {
	log := s.requestLogger(c)

	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		log.Error("failed to parse request", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}
	if req.Model == "" {
		req.Model = s.config.Model
	}

	log.Debug("received chat request",
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
	)

	chatter, timed := s.chatter()
	resp, err := chatter.Chat(c.UserContext(), &req)
	if err != nil {
		return s.writeError(c, log, err)
	}

	log.Debug("received response from backend",
		zap.String("model", resp.Model),
		zap.Float64("elapsed_minutes", timed.LastMinutes()),
	)

	return c.JSON(resp)
}

// handleDescribe describes a multipart-uploaded image.
func (s *Server) handleDescribe(c *fiber.Ctx) error {
	log := s.requestLogger(c)

	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "image file is required"})
	}

	f, err := fh.Open()
	if err != nil {
		log.Error("failed to open upload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "could not read image"})
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		log.Error("failed to read upload", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "could not read image"})
	}

	model := c.FormValue("model", s.config.Model)
	prompt := c.FormValue("prompt", s.config.Prompt)

	opts := []describe.Option{describe.WithLogger(log)}
	if prompt != "" {
		opts = append(opts, describe.WithPrompt(prompt))
	}
	chatter, timed := s.chatter()
	describer := describe.New(chatter, model, opts...)

	description, err := describer.Describe(c.UserContext(), llm.ImageFromBytes(data))
	if err != nil {
		return s.writeError(c, log, err)
	}

	log.Info("described image",
		zap.String("filename", fh.Filename),
		zap.Int("bytes", len(data)),
	)

	return c.JSON(DescribeResponse{
		Description:    description,
		Model:          model,
		ElapsedMinutes: timed.LastMinutes(),
	})
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.recorder.Stats(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to compute stats"})
	}

	return c.JSON(stats)
}

func (s *Server) handleGetNode(c *fiber.Ctx) error {
	node, err := s.storer.Get(c.UserContext(), c.Params("hash"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.JSON(node)
}

// handleListHistories returns one conversation history per leaf node.
func (s *Server) handleListHistories(c *fiber.Ctx) error {
	histories, err := s.recorder.Histories(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to get leaves"})
	}

	return c.JSON(map[string]any{
		"count":     len(histories),
		"histories": histories,
	})
}

// handleGetHistory returns the conversation ending at :hash. A "window"
// query parameter overrides the configured history window; 0 returns every
// message.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	window := s.recorder.Window()
	if raw := c.Query("window"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "window must be a non-negative integer"})
		}
		window = n
	}

	history, err := s.recorder.HistoryWindow(c.UserContext(), c.Params("hash"), window)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: "node not found"})
	}

	return c.JSON(history)
}

// handleIngest stores nodes pushed from another glimpse transcript database.
// Nodes whose hash does not match their content are counted as errors.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	log := s.requestLogger(c)

	var nodes []*merkle.Node
	if err := json.Unmarshal(c.Body(), &nodes); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid request body"})
	}

	var result IngestResponse
	for _, node := range nodes {
		if node == nil || !node.Verify() {
			result.Errors++
			continue
		}

		isNew, err := s.storer.Put(c.UserContext(), node)
		if err != nil {
			log.Warn("failed to store pushed node", zap.String("hash", node.Hash), zap.Error(err))
			result.Errors++
			continue
		}
		if isNew {
			result.New++
		} else {
			result.Duplicate++
		}
	}

	log.Info("ingested nodes",
		zap.Int("new", result.New),
		zap.Int("duplicate", result.Duplicate),
		zap.Int("errors", result.Errors),
	)

	return c.JSON(result)
}

func (s *Server) writeError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		log.Error("chat request failed", zap.Error(err))
	} else {
		log.Warn("chat request rejected", zap.Error(err))
	}

	return c.Status(status).JSON(llm.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var (
		invalid  llm.InvalidInputError
		notFound llm.ModelNotFoundError
		conn     llm.ConnectionError
	)

	switch {
	case errors.As(err, &invalid):
		return fiber.StatusBadRequest
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &conn):
		return fiber.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
