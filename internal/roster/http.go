package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPSource fetches the roster and signals from the management surface.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

// NewHTTPSource creates a source against the management surface base URL.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (s *HTTPSource) getJSON(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// Team fetches /api/team.
func (s *HTTPSource) Team(ctx context.Context) ([]Member, error) {
	var members []Member
	if err := s.getJSON(ctx, "/api/team", &members); err != nil {
		return nil, err
	}
	return Normalize(members), nil
}

// Signals fetches /api/signals and returns the trimmed snapshot text.
func (s *HTTPSource) Signals(ctx context.Context) (string, error) {
	var body struct {
		Signals string `json:"signals"`
	}
	if err := s.getJSON(ctx, "/api/signals", &body); err != nil {
		return "", err
	}
	return strings.TrimSpace(body.Signals), nil
}

var _ Source = (*HTTPSource)(nil)
