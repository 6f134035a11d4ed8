// Package step runs one model turn: streaming into a placeholder message, retrying transient failures and capturing a
// resumable snapshot when retries run out.
package step

import (
	"context"
	"time"

	"github.com/DomeenoH/dual/internal/ai"
	"github.com/DomeenoH/dual/internal/directive"
)

// Utterance is one entry of the discussion so far
type Utterance struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ResumeContext locates a turn within its discussion so a failed turn can be replayed
type ResumeContext struct {
	DiscussionLog []Utterance `json:"discussionLog"`
	TurnIndex     int         `json:"turnIndex"`
	PreviousEnded bool        `json:"previousEnded"`
}

// Request is one issued turn. It is passed by value and never modified by the executor.
type Request struct {
	StepID            string          `json:"stepId"`
	Prompt            string          `json:"prompt"`
	SystemInstruction string          `json:"systemInstruction,omitempty"`
	Profile           ai.ModelProfile `json:"profile"`
	Role              string          `json:"role"`
	Purpose           string          `json:"purpose"`
	Image             *ai.Image       `json:"image,omitempty"`
	Resume            *ResumeContext  `json:"resume,omitempty"`
}

// MessageStatus is the lifecycle state of a streamed message
type MessageStatus string

const (
	StatusStreaming MessageStatus = "streaming"
	StatusDone      MessageStatus = "done"
	StatusFailed    MessageStatus = "failed"
	StatusCancelled MessageStatus = "cancelled"
)

// StreamedMessage is the visible message a single attempt writes into
type StreamedMessage struct {
	ID       string        `json:"id"`
	Role     string        `json:"role"`
	Purpose  string        `json:"purpose"`
	Text     string        `json:"text"`
	Thoughts string        `json:"thoughts,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
	Status   MessageStatus `json:"status"`
}

// MessageUpdate carries the cumulative state of a message
type MessageUpdate struct {
	Text     string
	Thoughts string
	Elapsed  time.Duration
	Status   MessageStatus
}

// MessageStore receives placeholder messages and their live updates
type MessageStore interface {
	// Create makes a new empty message and returns its id
	Create(role, purpose string) (string, error)
	Update(id string, update MessageUpdate) error
}

// FailureSnapshot is everything needed to replay a turn whose retries were exhausted
type FailureSnapshot struct {
	Request   Request   `json:"request"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	FailedAt  time.Time `json:"failedAt"`
}

// FailureSink persists failure snapshots
type FailureSink interface {
	Record(ctx context.Context, snapshot FailureSnapshot) error
}

// NoticeKind distinguishes the notices emitted while a step runs
type NoticeKind string

const (
	NoticeRetry  NoticeKind = "retry"
	NoticeFailed NoticeKind = "failed"
)

// Notice reports a transient or terminal failure to the user
type Notice struct {
	Kind    NoticeKind
	StepID  string
	Attempt int
	Err     error
}

// Notifier receives step notices
type Notifier interface {
	Notify(notice Notice)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Outcome is a completed turn
type Outcome struct {
	MessageID string
	Text      string
	Thoughts  string
	Elapsed   time.Duration
	Attempts  int
	Parsed    directive.ParsedResponse
}
