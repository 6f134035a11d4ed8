package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DomeenoH/dual/internal/step"
)

func TestTerminalStore_PrintsOnlyNewText(t *testing.T) {
	var out bytes.Buffer
	store := newTerminalStore(&out, true)

	id, err := store.Create("critic", "discussion")
	require.NoError(t, err)
	require.NoError(t, store.Update(id, step.MessageUpdate{Thoughts: "hmm "}))
	require.NoError(t, store.Update(id, step.MessageUpdate{Thoughts: "hmm ", Text: "Hel"}))
	require.NoError(t, store.Update(id, step.MessageUpdate{Thoughts: "hmm ", Text: "Hello", Status: step.StatusDone}))

	assert.Equal(t, "\n── critic (discussion) ──\nhmm Hello\n", out.String())
}

func TestTerminalStore_Notices(t *testing.T) {
	var out bytes.Buffer
	store := newTerminalStore(&out, false)

	store.Notify(step.Notice{Kind: step.NoticeRetry, Attempt: 1, Err: errors.New("boom")})
	store.Notify(step.Notice{Kind: step.NoticeFailed, StepID: "s1", Attempt: 3, Err: errors.New("boom")})

	assert.Contains(t, out.String(), "Attempt 1 failed: boom. Retrying...")
	assert.Contains(t, out.String(), "dual resume s1")
}
