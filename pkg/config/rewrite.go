package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetValue replaces the value at the dotted key (e.g. "thresholds.rain_amount")
// in the YAML file at path. The document is edited as a node tree so comments
// and key order survive. A missing leaf key is appended to its parent mapping;
// sequence values are given comma separated.
func SetValue(path, key, value string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	out, err := setValue(data, key, value)
	if err != nil {
		return err
	}

	// Validate before replacing the file so a bad command cannot brick the job.
	if _, err := Parse(out); err != nil {
		return fmt.Errorf("rejected %s=%q: %w", key, value, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.yaml")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

func setValue(data []byte, key, value string) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fmt.Errorf("config is not a YAML document")
	}

	node := root.Content[0]
	parts := strings.Split(key, ".")
	for i, part := range parts {
		if node.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("key %s: %s is not a mapping", key, strings.Join(parts[:i], "."))
		}
		next := lookup(node, part)
		if next == nil {
			if i < len(parts)-1 {
				return nil, fmt.Errorf("key %s: section %s not found", key, part)
			}
			next = &yaml.Node{Kind: yaml.ScalarNode}
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: part},
				next,
			)
		}
		node = next
	}

	switch node.Kind {
	case yaml.ScalarNode:
		node.Value = value
		node.Tag = ""
	case yaml.SequenceNode:
		node.Content = node.Content[:0]
		for _, item := range strings.Split(value, ",") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: item})
		}
	default:
		return nil, fmt.Errorf("key %s does not hold a scalar or list", key)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
