// Package titlegen provides clients for the external title-generation
// collaborator: a service that turns a flattened conversation transcript
// into a short human-readable title.
package titlegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrEmptyTitle is returned when the collaborator answers without a title.
var ErrEmptyTitle = errors.New("title generator returned an empty title")

// Generator produces a conversation title from a flattened transcript.
type Generator interface {
	Generate(ctx context.Context, conversation string) (string, error)
}

// request and response mirror the collaborator's wire contract.
type request struct {
	Conversation string `json:"conversation"`
}

type response struct {
	Title string `json:"title,omitempty"`
	Error string `json:"error,omitempty"`
}

// HTTPGenerator calls a title-generation endpoint over plain
// request/response HTTP, no streaming.
type HTTPGenerator struct {
	endpoint string
	client   *http.Client
}

// NewHTTPGenerator creates a client for the given endpoint. A nil client
// defaults to a 15-second-timeout http.Client.
func NewHTTPGenerator(endpoint string, client *http.Client) *HTTPGenerator {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGenerator{endpoint: endpoint, client: client}
}

func (g *HTTPGenerator) Generate(ctx context.Context, conversation string) (string, error) {
	body, err := json.Marshal(request{Conversation: conversation})
	if err != nil {
		return "", fmt.Errorf("encoding title request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building title request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling title generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("title generator returned status %d", resp.StatusCode)
	}

	var parsed response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding title response: %w", err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("title generator: %s", parsed.Error)
	}
	if parsed.Title == "" {
		return "", ErrEmptyTitle
	}
	return parsed.Title, nil
}
