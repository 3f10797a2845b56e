package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDispatcher posts events to the notification service.
type HTTPDispatcher struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTPDispatcher targets {baseURL}/notifications with a bounded timeout.
func NewHTTPDispatcher(baseURL, token string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDispatcher{
		url:        strings.TrimRight(baseURL, "/") + "/notifications",
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Notify sends {userId, type, title, message}.
func (d *HTTPDispatcher) Notify(ctx context.Context, ev Event) error {
	if ev.UserID == "" {
		return errors.New("notification has no recipient")
	}
	body, err := json.Marshal(ev.Notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notification request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}
	return nil
}
