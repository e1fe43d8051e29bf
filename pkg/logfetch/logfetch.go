// Package logfetch implements the agent log retrieval collaborator from
// spec.md §6: before any status update other than LOST is applied, the
// dispatcher fetches the task's stdout/stderr from the agent that ran it
// (skipped for a lost task, since the agent itself may be unreachable).
package logfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cuemby/schedcore/pkg/types"
)

// Logs holds the retrieved stdout/stderr for a single task.
type Logs struct {
	Stdout string
	Stderr string
}

// Fetcher retrieves logs for a completed task.
type Fetcher interface {
	Fetch(ctx context.Context, taskID types.TaskID, stdoutURL, stderrURL string) (Logs, error)
}

// HTTPFetcher fetches logs over plain HTTP from the agent's log endpoints,
// as recorded on the TaskHandle when the task's RUNNING update is applied.
type HTTPFetcher struct {
	Client  *http.Client
	Timeout time.Duration
}

// NewHTTPFetcher builds a fetcher with a sane default timeout and client.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client:  http.DefaultClient,
		Timeout: 5 * time.Second,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, taskID types.TaskID, stdoutURL, stderrURL string) (Logs, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var logs Logs
	var err error
	if stdoutURL != "" {
		if logs.Stdout, err = f.get(ctx, stdoutURL); err != nil {
			return Logs{}, fmt.Errorf("logfetch: stdout for task %s: %w", taskID, err)
		}
	}
	if stderrURL != "" {
		if logs.Stderr, err = f.get(ctx, stderrURL); err != nil {
			return Logs{}, fmt.Errorf("logfetch: stderr for task %s: %w", taskID, err)
		}
	}
	return logs, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
