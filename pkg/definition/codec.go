package definition

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a file encoding for a Definition.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatDOT  Format = "dot"
)

// ParseFormat maps a format name to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "dot", "gv":
		return FormatDOT, nil
	default:
		return "", fmt.Errorf("unknown format %q: use json, yaml or dot", name)
	}
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer format of %q: no extension", path)
	}
	return ParseFormat(ext)
}

// Decode parses data in the given format.
func Decode(data []byte, f Format) (*Definition, error) {
	var d Definition
	switch f {
	case FormatJSON:
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("json decode: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("yaml decode: %w", err)
		}
	case FormatDOT:
		return ParseDOT(string(data))
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
	return &d, nil
}

// Encode serialises d in the given format.
func Encode(d *Definition, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.MarshalIndent(d.filled(), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("json encode: %w", err)
		}
		return append(data, '\n'), nil
	case FormatYAML:
		data, err := yaml.Marshal(d.filled())
		if err != nil {
			return nil, fmt.Errorf("yaml encode: %w", err)
		}
		return data, nil
	case FormatDOT:
		return []byte(FormatDOTString(d)), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
}

// ReadFile loads a definition, picking the format from the extension.
func ReadFile(path string) (*Definition, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Decode(data, f)
}
