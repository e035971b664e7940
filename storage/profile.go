package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ilievs/pinboard/core"
)

// Profile is the seed file format: the dashboards of one or more users.
type Profile struct {
	Dashboards []*core.Dashboard `json:"dashboards"`
}

// LoadProfile reads dashboards from a JSON profile file.
func LoadProfile(path string) ([]*core.Dashboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	seen := make(map[int]bool, len(p.Dashboards))
	for _, d := range p.Dashboards {
		if seen[d.ID] {
			return nil, fmt.Errorf("profile %s: duplicate dashboard %d", path, d.ID)
		}
		seen[d.ID] = true
	}
	return p.Dashboards, nil
}
