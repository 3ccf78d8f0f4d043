package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and validates a snapshot. Files ending in .toml are decoded as
// TOML, everything else as JSON.
func Load(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read feed: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return DecodeTOML(data)
	}
	return DecodeJSON(data)
}

// DecodeJSON parses and validates a JSON snapshot.
func DecodeJSON(data []byte) (Snapshot, error) {
	var snap Snapshot
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse feed json: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// DecodeTOML parses and validates a TOML snapshot.
func DecodeTOML(data []byte) (Snapshot, error) {
	var snap Snapshot
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse feed toml: %w", err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
