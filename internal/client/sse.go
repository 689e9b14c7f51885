package client

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fentz26/tripassist/internal/models"
)

// ErrStreamClosed is returned when the stream ends without a data event.
var ErrStreamClosed = errors.New("stream closed before a result arrived")

// readEvent returns the first data event on an SSE stream. Comment lines such as
// keep-alives are skipped.
func readEvent(r io.Reader) (models.Result, error) {
	scanner := bufio.NewScanner(r)
	// Itineraries can be large; the default 64KB line limit is not enough.
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()

		// Skip comments and empty lines
		if strings.HasPrefix(line, ":") || line == "" {
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			var result models.Result
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &result); err != nil {
				return models.Result{}, fmt.Errorf("decode stream event: %w", err)
			}
			return result, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return models.Result{}, fmt.Errorf("read stream: %w", err)
	}
	return models.Result{}, ErrStreamClosed
}
