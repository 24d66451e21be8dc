package llm

import (
	"bufio"
	"io"
	"strings"
)

// sseDone is the sentinel payload that terminates an event stream.
const sseDone = "[DONE]"

// readSSE calls fn with the payload of every "data:" line in r until
// the stream ends, the [DONE] sentinel arrives, or fn returns false.
// Comment lines, event names, and blank separators are ignored.
func readSSE(r io.Reader, fn func(data string) bool) error {
	scanner := bufio.NewScanner(r)
	// Increase scanner buffer for large responses
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == sseDone {
			return nil
		}
		if !fn(data) {
			return nil
		}
	}
	return scanner.Err()
}
