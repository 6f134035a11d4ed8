package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/step"
	"github.com/DomeenoH/dual/internal/telemetry"
)

type runStepRequest struct {
	StepID            string              `json:"stepId"`
	Prompt            string              `json:"prompt" binding:"required"`
	SystemInstruction string              `json:"systemInstruction"`
	Profile           string              `json:"profile" binding:"required"`
	Role              string              `json:"role"`
	Purpose           string              `json:"purpose"`
	Image             *ai.Image           `json:"image"`
	Resume            *step.ResumeContext `json:"resume"`
}

type stepView struct {
	StepID    string      `json:"stepId"`
	Status    string      `json:"status"`
	MessageID string      `json:"messageId,omitempty"`
	Attempts  int         `json:"attempts,omitempty"`
	Parsed    *parsedView `json:"parsed,omitempty"`
	Error     string      `json:"error,omitempty"`
}

const (
	stepRunning   = "running"
	stepCompleted = "completed"
	stepCancelled = "cancelled"
	stepFailed    = "failed"
)

func (s *Server) handleRunStep(c *gin.Context) {
	var req runStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	profile, err := s.profiles.Profile(req.Profile)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.StepID == "" {
		req.StepID = telemetry.NewStepID()
	}

	stepReq := step.Request{
		StepID:            req.StepID,
		Prompt:            req.Prompt,
		SystemInstruction: req.SystemInstruction,
		Profile:           profile,
		Role:              req.Role,
		Purpose:           req.Purpose,
		Image:             req.Image,
		Resume:            req.Resume,
	}
	s.start(c, stepReq.StepID, func(ctx context.Context) (*step.Outcome, error) {
		return s.executor.Execute(ctx, stepReq)
	})
}

func (s *Server) handleResume(c *gin.Context) {
	id := c.Param("id")
	snapshot, err := s.snapshots.Get(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if snapshot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no failure snapshot for step " + id})
		return
	}
	s.start(c, id, func(ctx context.Context) (*step.Outcome, error) {
		outcome, err := s.executor.Resume(ctx, *snapshot)
		if err == nil {
			if err := s.snapshots.Delete(id); err != nil {
				s.log.WithError(err).WithField("step", id).Warn("Failed to delete resumed snapshot")
			}
		}
		return outcome, err
	})
}

// start registers a cancel token for id and runs fn. With ?wait=true the response carries the finished step,
// otherwise it is reported on the event stream.
func (s *Server) start(c *gin.Context, id string, fn func(ctx context.Context) (*step.Outcome, error)) {
	token := step.NewCancelToken(s.baseCtx)
	s.mu.Lock()
	if _, busy := s.running[id]; busy {
		s.mu.Unlock()
		token.Cancel()
		c.JSON(http.StatusConflict, gin.H{"error": "step " + id + " is already running"})
		return
	}
	s.running[id] = token
	s.mu.Unlock()

	run := func() stepView {
		outcome, err := fn(token.Context())
		s.mu.Lock()
		delete(s.running, id)
		s.mu.Unlock()
		token.Cancel()

		view := s.finish(id, outcome, err)
		s.hub.Publish(Event{Type: EventStepFinished, Step: &view})
		return view
	}

	if c.Query("wait") == "true" {
		view := run()
		c.JSON(statusFor(view), view)
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run()
	}()
	c.JSON(http.StatusAccepted, stepView{StepID: id, Status: stepRunning})
}

func (s *Server) finish(id string, outcome *step.Outcome, err error) stepView {
	view := stepView{StepID: id}
	switch {
	case err == nil:
		parsed := viewOf(outcome.Parsed)
		view.Status = stepCompleted
		view.MessageID = outcome.MessageID
		view.Attempts = outcome.Attempts
		view.Parsed = &parsed
	case errors.Is(err, step.ErrCancelled):
		view.Status = stepCancelled
	default:
		view.Status = stepFailed
		view.Error = err.Error()
		if snapshot, ok := step.IsTerminal(err); ok {
			view.Attempts = snapshot.Attempts
		}
	}
	return view
}

func statusFor(view stepView) int {
	switch view.Status {
	case stepCompleted:
		return http.StatusOK
	case stepCancelled:
		return 499
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleCancelStep(c *gin.Context) {
	id := c.Param("id")
	s.mu.Lock()
	token, ok := s.running[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "step " + id + " is not running"})
		return
	}
	token.Cancel()
	c.JSON(http.StatusOK, gin.H{"stepId": id, "status": stepCancelled})
}

func (s *Server) handleListSnapshots(c *gin.Context) {
	list, err := s.snapshots.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleDeleteSnapshot(c *gin.Context) {
	if err := s.snapshots.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
