package warmup

import (
	"encoding/json"
	"fmt"
	"io"
)

// manifest is the persisted-operation manifest layout emitted by the
// schema registry tooling.
type manifest struct {
	Operations []manifestOperation `json:"operations"`
}

type manifestOperation struct {
	ID   string `json:"id"`
	Body string `json:"body"`
	Name string `json:"name"`
}

// LoadManifest parses a persisted-operation manifest into a warm-up
// corpus. Entries without an ID are skipped; the ID doubles as the
// pre-hashed document identifier.
func LoadManifest(r io.Reader) ([]Operation, error) {
	var m manifest
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("warmup: decode manifest: %w", err)
	}

	ops := make([]Operation, 0, len(m.Operations))
	for _, entry := range m.Operations {
		if entry.ID == "" {
			continue
		}
		ops = append(ops, Operation{
			QueryHash:     entry.ID,
			QueryText:     entry.Body,
			OperationName: entry.Name,
		})
	}
	return ops, nil
}
