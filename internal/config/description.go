package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nvandessel/cdnet/internal/models"
)

// LoadDescription reads a network description from a .json, .yaml or .yml
// file. Unknown fields are rejected so typos in parameter names surface
// here rather than as missing parameters later.
func LoadDescription(path string) (models.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Description{}, fmt.Errorf("reading network description: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return ParseDescriptionJSON(data)
	case ".yaml", ".yml":
		return ParseDescriptionYAML(data)
	default:
		return models.Description{}, fmt.Errorf("unsupported network description format %q (want .json, .yaml or .yml)", ext)
	}
}

// ParseDescriptionJSON decodes a JSON network description.
func ParseDescriptionJSON(data []byte) (models.Description, error) {
	var desc models.Description
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&desc); err != nil {
		return models.Description{}, fmt.Errorf("parsing network description: %w", err)
	}
	return desc, nil
}

// ParseDescriptionYAML decodes a YAML network description.
func ParseDescriptionYAML(data []byte) (models.Description, error) {
	var desc models.Description
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&desc); err != nil {
		return models.Description{}, fmt.Errorf("parsing network description: %w", err)
	}
	return desc, nil
}

// ParseDescription decodes an inline description: JSON when the first
// non-blank byte is '{', YAML otherwise.
func ParseDescription(data []byte) (models.Description, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return models.Description{}, fmt.Errorf("parsing network description: empty document")
	}
	if trimmed[0] == '{' {
		return ParseDescriptionJSON(trimmed)
	}
	return ParseDescriptionYAML(trimmed)
}
