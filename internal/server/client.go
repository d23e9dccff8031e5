package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/runnerr0/tabtidy/internal/suspender"
	"github.com/runnerr0/tabtidy/internal/tabs"
)

// ErrDaemonUnreachable is returned when nothing answers at the daemon's
// address.
var ErrDaemonUnreachable = errors.New("daemon not reachable")

// Client talks to a running daemon's API.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Status(ctx context.Context) (suspender.Status, error) {
	var st suspender.Status
	err := c.do(ctx, http.MethodGet, "/api/status", &st)
	return st, err
}

func (c *Client) Suspended(ctx context.Context) ([]suspender.SuspendedEntry, error) {
	var out []suspender.SuspendedEntry
	err := c.do(ctx, http.MethodGet, "/api/suspended", &out)
	return out, err
}

func (c *Client) Tidy(ctx context.Context) (suspender.TidyResult, error) {
	var res suspender.TidyResult
	err := c.do(ctx, http.MethodPost, "/api/tidy", &res)
	return res, err
}

func (c *Client) Restore(ctx context.Context, id tabs.TabID) (string, error) {
	var res struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tabs/"+id.String()+"/restore", &res)
	return res.URL, err
}

func (c *Client) SetPinned(ctx context.Context, id tabs.TabID, pinned bool) error {
	method := http.MethodPost
	if !pinned {
		method = http.MethodDelete
	}
	return c.do(ctx, method, "/api/tabs/"+id.String()+"/pin", nil)
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w at %s: %v", ErrDaemonUnreachable, c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var body struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return fmt.Errorf("daemon: %s (%d)", body.Error, resp.StatusCode)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
