package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// yamlPort mirrors Port but leaves Required unset when the file omits it, so
// the loader can default it to true.
type yamlPort struct {
	Key         string   `yaml:"key"`
	Type        PortType `yaml:"type"`
	Description string   `yaml:"description"`
	Required    *bool    `yaml:"required"`
}

type yamlManifest struct {
	Key         string     `yaml:"key"`
	Name        string     `yaml:"name"`
	Kind        Kind       `yaml:"kind"`
	Description string     `yaml:"description"`
	InputPorts  []yamlPort `yaml:"input_ports"`
	OutputPorts []yamlPort `yaml:"output_ports"`
}

// ParseYAML decodes a single manifest document. Kind defaults to tool and
// ports default to required.
func ParseYAML(data []byte) (Manifest, error) {
	var raw yamlManifest
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Manifest{}, fmt.Errorf("manifest yaml: %w", err)
	}
	if raw.Key == "" {
		return Manifest{}, fmt.Errorf("manifest yaml: missing key")
	}
	m := Manifest{
		Key:         raw.Key,
		Name:        raw.Name,
		Kind:        raw.Kind,
		Description: raw.Description,
		InputPorts:  convertPorts(raw.InputPorts),
		OutputPorts: convertPorts(raw.OutputPorts),
	}
	if m.Name == "" {
		m.Name = m.Key
	}
	switch m.Kind {
	case KindLLM, KindTool:
	case "":
		m.Kind = KindTool
	default:
		return Manifest{}, fmt.Errorf("manifest %q: unknown kind %q", m.Key, m.Kind)
	}
	return m, nil
}

func convertPorts(in []yamlPort) []Port {
	out := make([]Port, 0, len(in))
	for _, p := range in {
		required := true
		if p.Required != nil {
			required = *p.Required
		}
		out = append(out, Port{Key: p.Key, Type: p.Type, Description: p.Description, Required: required})
	}
	return out
}

// LoadDir reads every *.yaml / *.yml file in dir in name order. A file that
// fails to parse is logged and skipped. A missing directory yields no
// manifests and no error.
func LoadDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("manifest directory not found", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Manifest
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable manifest", "path", path, "error", err)
			continue
		}
		m, err := ParseYAML(data)
		if err != nil {
			slog.Warn("skipping invalid manifest", "path", path, "error", err)
			continue
		}
		slog.Debug("loaded operator manifest", "operator", m.Key, "path", path)
		out = append(out, m)
	}
	return out, nil
}
