// Package mirror copies approved students into the independently owned
// student-records service.
package mirror

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

	"schoolreg/internal/models"
)

const maxErrorBody = 64 << 10

// ErrNotConfigured is returned when no student-records URL is set.
var ErrNotConfigured = errors.New("student-records service not configured")

// TokenSource returns the bearer credential for one outbound call.
type TokenSource func() (string, error)

// StaticToken returns a TokenSource that always yields token.
func StaticToken(token string) TokenSource {
	return func() (string, error) { return token, nil }
}

// StudentPayload is the body accepted by POST /students.
type StudentPayload struct {
	FirstName      string  `json:"firstName"`
	LastName       string  `json:"lastName"`
	DateOfBirth    string  `json:"dateOfBirth"`
	Gender         string  `json:"gender"`
	Address        string  `json:"address"`
	ParentName     string  `json:"parentName"`
	ParentPhone    string  `json:"parentPhone"`
	ParentEmail    string  `json:"parentEmail"`
	Program        string  `json:"program"`
	Session        string  `json:"session"`
	SecondaryLevel string  `json:"secondaryLevel"`
	TuitionAmount  float64 `json:"tuitionAmount"`
	Status         string  `json:"status"`
	ApplicationID  string  `json:"applicationId"`
	UserID         string  `json:"userId"`
}

// PayloadFor builds the mirror body for a provisioned student and its account.
func PayloadFor(s *models.Student, userID string) StudentPayload {
	p := StudentPayload{
		FirstName:     s.FirstName,
		LastName:      s.LastName,
		DateOfBirth:   s.DateOfBirth.Format("2006-01-02"),
		Gender:        string(s.Gender),
		Address:       s.Address,
		ParentName:    s.ParentName,
		ParentPhone:   s.ParentPhone,
		ParentEmail:   s.ParentEmail,
		Program:       s.Program,
		Session:       s.Session,
		TuitionAmount: s.TuitionAmount,
		Status:        string(s.Status),
		UserID:        userID,
	}
	if s.SecondaryLevel != nil {
		p.SecondaryLevel = *s.SecondaryLevel
	}
	if s.ApplicationID != nil {
		p.ApplicationID = *s.ApplicationID
	}
	return p
}

// Client calls the student-records service.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
}

// NewClient creates a client with a bounded per-call timeout.
func NewClient(baseURL string, token TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if token == nil {
		token = StaticToken("")
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CreateStudent posts the student and returns the id assigned by the
// records service.
func (c *Client) CreateStudent(ctx context.Context, s *models.Student, userID string) (string, error) {
	if c.baseURL == "" {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(PayloadFor(s, userID))
	if err != nil {
		return "", fmt.Errorf("marshal student payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/students", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	token, err := c.token()
	if err != nil {
		return "", fmt.Errorf("service token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mirror request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("mirror request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", fmt.Errorf("decode mirror response: %w", err)
	}
	id := strings.Trim(string(out.ID), `"`)
	if id == "" || id == "null" {
		return "", errors.New("mirror response has no id")
	}
	return id, nil
}
