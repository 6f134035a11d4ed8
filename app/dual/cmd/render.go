package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/DomeenoH/dual/internal/step"
)

// terminalStore prints streamed messages to a terminal as they grow. It only ever appends output, so each update
// writes the part of the text not yet shown.
type terminalStore struct {
	*step.MemoryStore

	mu           sync.Mutex
	out          io.Writer
	showThoughts bool
	shownText    map[string]int
	shownThought map[string]int

	header  *color.Color
	thought *color.Color
	warn    *color.Color
	fail    *color.Color
}

func newTerminalStore(out io.Writer, showThoughts bool) *terminalStore {
	ts := &terminalStore{
		MemoryStore:  step.NewMemoryStore(),
		out:          out,
		showThoughts: showThoughts,
		shownText:    map[string]int{},
		shownThought: map[string]int{},
		header:       color.New(color.FgCyan, color.Bold),
		thought:      color.New(color.Faint, color.Italic),
		warn:         color.New(color.FgYellow),
		fail:         color.New(color.FgRed, color.Bold),
	}
	colorize := false
	if f, ok := out.(*os.File); ok {
		colorize = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	for _, c := range []*color.Color{ts.header, ts.thought, ts.warn, ts.fail} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return ts
}

func (t *terminalStore) Create(role, purpose string) (string, error) {
	id, err := t.MemoryStore.Create(role, purpose)
	if err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	label := role
	if purpose != "" {
		label = fmt.Sprintf("%s (%s)", role, purpose)
	}
	t.header.Fprintf(t.out, "\n── %s ──\n", label)
	return id, nil
}

func (t *terminalStore) Update(id string, update step.MessageUpdate) error {
	if err := t.MemoryStore.Update(id, update); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.showThoughts && len(update.Thoughts) > t.shownThought[id] {
		t.thought.Fprint(t.out, update.Thoughts[t.shownThought[id]:])
		t.shownThought[id] = len(update.Thoughts)
	}
	if len(update.Text) > t.shownText[id] {
		fmt.Fprint(t.out, update.Text[t.shownText[id]:])
		t.shownText[id] = len(update.Text)
	}
	switch update.Status {
	case step.StatusDone:
		if !strings.HasSuffix(update.Text, "\n") {
			fmt.Fprintln(t.out)
		}
	case step.StatusFailed:
		t.fail.Fprintln(t.out, "\n[attempt failed]")
	case step.StatusCancelled:
		t.warn.Fprintln(t.out, "\n[cancelled]")
	}
	return nil
}

func (t *terminalStore) Notify(n step.Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch n.Kind {
	case step.NoticeRetry:
		t.warn.Fprintf(t.out, "Attempt %d failed: %v. Retrying...\n", n.Attempt, n.Err)
	case step.NoticeFailed:
		t.fail.Fprintf(t.out, "Step %s failed after %d attempts: %v\nResume it with: dual resume %s\n", n.StepID, n.Attempt, n.Err, n.StepID)
	}
}
