// Package corpus supplies the fixed, ordered prompt corpus every job is
// evaluated against. The corpus is owned by the surrounding product's
// domain catalog; this package carries an embedded default and can load a
// replacement from disk. Ordering is significant: a prompt's corpus index
// identifies it for the lifetime of a job.
package corpus

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"bias-eval-service/internal/entity"
)

//go:embed corpus.json
var embedded []byte

// Default returns the embedded corpus. It panics only if the embedded file
// is broken, which a test guards against.
func Default() []entity.PromptUnit {
	units, err := parse(embedded)
	if err != nil {
		panic("embedded corpus is invalid: " + err.Error())
	}
	return units
}

// Load reads a corpus from a JSON file (same shape as the embedded one).
func Load(path string) ([]entity.PromptUnit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading corpus file: %w", err)
	}
	units, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("corpus file %s: %w", path, err)
	}
	return units, nil
}

func parse(data []byte) ([]entity.PromptUnit, error) {
	var units []entity.PromptUnit
	if err := json.Unmarshal(data, &units); err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}
	for i, u := range units {
		if strings.TrimSpace(u.Prompt) == "" {
			return nil, fmt.Errorf("corpus entry %d has an empty prompt", i)
		}
		if strings.TrimSpace(u.Category) == "" {
			return nil, fmt.Errorf("corpus entry %d has an empty category", i)
		}
	}
	return units, nil
}
