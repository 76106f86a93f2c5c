package config

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	maxConfigSize = 1 << 20 // config files are small
	maxJSONDepth  = 32
	maxEnvVarLen  = 10000
)

// isYAML reports whether path names a YAML layer
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// readConfigFile reads a regular .json, .yaml or .yml file no larger than
// maxConfigSize
func readConfigFile(path string) ([]byte, error) {
	if path == "" {
		return nil, stderrors.New("empty config path")
	}
	if !strings.EqualFold(filepath.Ext(path), ".json") && !isYAML(path) {
		return nil, fmt.Errorf("only JSON or YAML config files allowed: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot stat config file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes > %d", info.Size(), maxConfigSize)
	}

	return os.ReadFile(path)
}

// validateJSONDepth rejects documents nested deeper than maxJSONDepth
func validateJSONDepth(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	depth := 0
	for {
		tok, err := dec.Token()
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > maxJSONDepth {
				return fmt.Errorf("JSON nesting too deep: %d > %d", depth, maxJSONDepth)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}

// decodeYAML parses a YAML layer into the same generic shape JSON decoding
// produces, rejecting documents nested deeper than maxJSONDepth
func decodeYAML(data []byte) (map[string]any, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if d := yamlDepth(&node); d > maxJSONDepth {
		return nil, fmt.Errorf("YAML nesting too deep: %d > %d", d, maxJSONDepth)
	}

	raw := map[string]any{}
	if len(node.Content) == 0 {
		return raw, nil
	}
	if err := node.Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func yamlDepth(n *yaml.Node) int {
	deepest := 0
	for _, c := range n.Content {
		if d := yamlDepth(c); d > deepest {
			deepest = d
		}
	}
	if n.Kind == yaml.MappingNode || n.Kind == yaml.SequenceNode {
		return deepest + 1
	}
	return deepest
}

func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}
