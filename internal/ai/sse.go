package ai

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// doneSentinel terminates an OpenAI-compatible event stream
const doneSentinel = "[DONE]"

var dataPrefix = []byte("data:")

// readEvents reads "data:" frames from r and hands each payload to onData until the done sentinel or EOF. It reports
// whether the sentinel was seen. Blank lines, comments and other fields are skipped.
func readEvents(r io.Reader, onData func(payload []byte) error) (bool, error) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimSpace(line)
			if bytes.HasPrefix(line, dataPrefix) {
				payload := bytes.TrimSpace(line[len(dataPrefix):])
				if string(payload) == doneSentinel {
					return true, nil
				}
				if len(payload) > 0 {
					if cbErr := onData(payload); cbErr != nil {
						return false, cbErr
					}
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, fmt.Errorf("failed to read event stream: %w", err)
		}
	}
}
