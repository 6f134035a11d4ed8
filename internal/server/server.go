// Package server exposes the turn engine to host applications over HTTP and a websocket event stream.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/directive"
	"github.com/DomeenoH/dual/internal/logging"
	"github.com/DomeenoH/dual/internal/notepad"
	"github.com/DomeenoH/dual/internal/step"
	"github.com/DomeenoH/dual/internal/telemetry"
)

// ProfileResolver looks up model profiles by name
type ProfileResolver interface {
	Profile(name string) (ai.ModelProfile, error)
}

// SnapshotStore is the failure snapshot storage the server can list and resume from
type SnapshotStore interface {
	Get(stepID string) (*step.FailureSnapshot, error)
	List() ([]step.FailureSnapshot, error)
	Delete(stepID string) error
}

// Server runs steps in the background and tracks a cancel token per running step
type Server struct {
	executor  *step.Executor
	hub       *Hub
	snapshots SnapshotStore
	profiles  ProfileResolver
	baseCtx   context.Context
	log       *logrus.Entry

	mu      sync.Mutex
	running map[string]*step.CancelToken
	wg      sync.WaitGroup
}

// New creates a server. Steps started through it run under baseCtx, so cancelling baseCtx cancels them all.
func New(baseCtx context.Context, executor *step.Executor, hub *Hub, snapshots SnapshotStore, profiles ProfileResolver) *Server {
	return &Server{
		executor:  executor,
		hub:       hub,
		snapshots: snapshots,
		profiles:  profiles,
		baseCtx:   baseCtx,
		log:       logging.NewLogger("server"),
		running:   make(map[string]*step.CancelToken),
	}
}

// Router builds the gin engine serving the API
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	api := router.Group("/api")
	api.POST("/parse", s.handleParse)
	api.POST("/notepad/apply", s.handleApply)
	api.GET("/schema", s.handleSchema)
	api.POST("/steps", s.handleRunStep)
	api.DELETE("/steps/:id", s.handleCancelStep)
	api.GET("/snapshots", s.handleListSnapshots)
	api.POST("/snapshots/:id/resume", s.handleResume)
	api.DELETE("/snapshots/:id", s.handleDeleteSnapshot)
	api.GET("/messages", s.handleMessages)

	router.GET("/ws", s.handleWebSocket)
	return router
}

// Wait blocks until every background step has finished
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("Handled request")
	}
}

type parseRequest struct {
	Text string `json:"text"`
}

type parsedView struct {
	SpokenText string                `json:"spokenText"`
	Directives []directive.Directive `json:"directives"`
	EndSignal  bool                  `json:"endSignal"`
	ParseError string                `json:"parseError,omitempty"`
	Rejected   []string              `json:"rejected,omitempty"`
}

func viewOf(p directive.ParsedResponse) parsedView {
	v := parsedView{SpokenText: p.SpokenText, Directives: p.Directives, EndSignal: p.EndSignal}
	if v.Directives == nil {
		v.Directives = []directive.Directive{}
	}
	if p.ParseError != nil {
		v.ParseError = p.ParseError.Error()
	}
	for _, r := range p.Rejected {
		v.Rejected = append(v.Rejected, r.Error())
	}
	return v
}

func (s *Server) handleParse(c *gin.Context) {
	var req parseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(directive.Parse(req.Text)))
}

type applyRequest struct {
	Document   string          `json:"document"`
	Directives json.RawMessage `json:"directives"`
}

type applyResponse struct {
	Document string   `json:"document"`
	Errors   []string `json:"errors"`
	Rejected []string `json:"rejected"`
}

func (s *Server) handleApply(c *gin.Context) {
	var req applyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	directives, rejected, err := directive.DecodeList(req.Directives)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, span := telemetry.StartApply(c.Request.Context(), "http")
	result := notepad.Apply(req.Document, directives)
	telemetry.RecordApply(ctx, len(directives)-len(result.Errors), len(result.Errors), len(rejected))
	span.End()

	resp := applyResponse{Document: result.Document, Errors: []string{}, Rejected: []string{}}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}
	for _, r := range rejected {
		resp.Rejected = append(resp.Rejected, r.Error())
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSchema(c *gin.Context) {
	b, err := directive.SchemaJSON()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/schema+json", b)
}

func (s *Server) handleMessages(c *gin.Context) {
	c.JSON(http.StatusOK, s.hub.Messages())
}
