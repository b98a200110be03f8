package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/burrowfs/burrow/pkg/protocol"
)

// Events subscribes to the server's change event stream. The channel
// closes when the connection drops or ctx ends; callers reconnect by
// calling Events again.
func (c *Client) Events(ctx context.Context) (<-chan protocol.Event, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/api/v1/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	c.applyAuth(req)

	// The shared client enforces a request timeout, which would cut a
	// long-lived stream short. Use the transport directly.
	resp, err := c.httpClient.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("event stream returned %d", resp.StatusCode)
	}

	out := make(chan protocol.Event, 16)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue // event names and heartbeats
			}
			var event protocol.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
