package roster

import (
	"context"
	"encoding/json"
	"os"
	"strings"
)

// FileSource reads the team from a JSON file and signals from an optional
// plain-text file. Missing files yield an empty team / empty signals.
type FileSource struct {
	TeamPath    string
	SignalsPath string
}

// Team reads and normalizes the team file. Entries without an id are
// dropped.
func (s *FileSource) Team(ctx context.Context) ([]Member, error) {
	raw, err := os.ReadFile(s.TeamPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Member{}, nil
		}
		return nil, err
	}
	var members []Member
	if err := json.Unmarshal(raw, &members); err != nil {
		return nil, err
	}
	kept := members[:0]
	for _, m := range members {
		if m.ID == "" {
			continue
		}
		kept = append(kept, m)
	}
	return Normalize(kept), nil
}

// Signals reads the signals file. No path configured means no signals.
func (s *FileSource) Signals(ctx context.Context) (string, error) {
	if s.SignalsPath == "" {
		return "", nil
	}
	raw, err := os.ReadFile(s.SignalsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

var _ Source = (*FileSource)(nil)
