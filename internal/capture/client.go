package capture

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"hogsim/internal/events"
)

// Client reads back what a capture server has stored.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a Client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Count returns how many stored events are named name, or the total when
// name is empty.
func (c *Client) Count(ctx context.Context, name string) (int, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/stats")
	if err != nil {
		return 0, err
	}
	if name == "" {
		return int(gjson.GetBytes(body, "stored").Int()), nil
	}
	return int(gjson.GetBytes(body, "by_event."+gjson.Escape(name)).Int()), nil
}

// Events returns stored records, optionally filtered by event name.
func (c *Client) Events(ctx context.Context, name string) ([]events.Record, error) {
	path := "/api/events"
	if name != "" {
		path += "?event=" + url.QueryEscape(name)
	}
	body, err := c.do(ctx, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	var out []events.Record
	if err := json.Unmarshal([]byte(gjson.GetBytes(body, "results").Raw), &out); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return out, nil
}

// Reset deletes every stored event.
func (c *Client) Reset(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/events")
	return err
}

func (c *Client) do(ctx context.Context, method, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, gjson.GetBytes(body, "error").String())
	}
	return body, nil
}
