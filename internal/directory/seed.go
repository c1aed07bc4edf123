package directory

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rovshanmuradov/tipstark/internal/domain"
)

// LoadSeed reads a JSON array of creators. An empty path yields no creators.
func LoadSeed(path string) ([]*domain.Creator, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var creators []*domain.Creator
	if err := json.Unmarshal(data, &creators); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for _, c := range creators {
		if _, err := domain.ParseCategory(string(c.Category)); err != nil {
			return nil, fmt.Errorf("seed creator %q: %w", c.Name, err)
		}
	}
	return creators, nil
}
