package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// HTTPGenerator calls the external summary generation flow over HTTP.
// The flow owns where the content comes from; this client only carries the
// request and enforces the caller's deadline.
type HTTPGenerator struct {
	url    string
	client *http.Client
}

// NewHTTPGenerator creates a generator client for the given flow endpoint.
// The http.Client carries no timeout of its own; the per-run deadline
// arrives through the request context.
func NewHTTPGenerator(url string) *HTTPGenerator {
	return &HTTPGenerator{
		url:    url,
		client: &http.Client{},
	}
}

type generateRequest struct {
	UserID      string `json:"user_id"`
	SummaryDate string `json:"summary_date"`
}

type generateResponse struct {
	Content string `json:"content"`
}

// Generate requests summary content for one user and logical date
func (g *HTTPGenerator) Generate(ctx context.Context, userID string, summaryDate time.Time) (string, error) {
	body, err := json.Marshal(generateRequest{
		UserID:      userID,
		SummaryDate: summaryDate.Format("2006-01-02"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summary flow request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded slice of the body for the failure reason
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("summary flow returned status %d: %s", resp.StatusCode, snippet)
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("failed to decode generation response: %w", err)
	}
	if decoded.Content == "" {
		return "", fmt.Errorf("summary flow returned empty content")
	}

	log.WithFields(log.Fields{
		"userID":   userID,
		"duration": time.Since(start),
	}).Debug("Summary content generated")

	return decoded.Content, nil
}
