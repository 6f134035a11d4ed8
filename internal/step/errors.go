package step

import (
	"errors"
	"fmt"
)

// ErrCancelled is returned for every cancelled step, whatever point the cancellation was noticed at
var ErrCancelled = errors.New("step cancelled")

// ProviderError is a stream the provider ended abnormally
type ProviderError struct {
	Tag string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider ended the stream abnormally: %s", e.Tag)
}

// TerminalError is returned once retries are exhausted. The snapshot has already been handed to the failure sink.
type TerminalError struct {
	Snapshot FailureSnapshot
	Err      error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("step %s failed after %d attempts: %v", e.Snapshot.Request.StepID, e.Snapshot.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error {
	return e.Err
}
