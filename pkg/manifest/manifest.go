// Package manifest describes the operators a pipeline can reference: their
// display kind and typed input/output ports.
package manifest

// Kind is the display category of an operator.
type Kind string

const (
	KindLLM  Kind = "llm"
	KindTool Kind = "tool"
)

// PortType names the kind of data flowing through a port.
type PortType string

const (
	PortText     PortType = "text"
	PortJSON     PortType = "json"
	PortImages   PortType = "images"
	PortPDFBytes PortType = "pdf_bytes"
	PortCards    PortType = "cards"
)

// Port is a typed, named input or output slot on an operator.
type Port struct {
	Key         string   `json:"key" yaml:"key"`
	Type        PortType `json:"type" yaml:"type"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool     `json:"required" yaml:"required"`
}

// Manifest is the read-only description of one operator.
type Manifest struct {
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	Kind        Kind   `json:"kind" yaml:"kind"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	InputPorts  []Port `json:"input_ports" yaml:"input_ports"`
	OutputPorts []Port `json:"output_ports" yaml:"output_ports"`
}

// InputPort looks up an input port by key.
func (m Manifest) InputPort(key string) (Port, bool) { return findPort(m.InputPorts, key) }

// OutputPort looks up an output port by key.
func (m Manifest) OutputPort(key string) (Port, bool) { return findPort(m.OutputPorts, key) }

func findPort(ports []Port, key string) (Port, bool) {
	for _, p := range ports {
		if p.Key == key {
			return p, true
		}
	}
	return Port{}, false
}

// Clone returns a copy whose port slices are not shared with m.
func (m Manifest) Clone() Manifest {
	out := m
	out.InputPorts = append([]Port(nil), m.InputPorts...)
	out.OutputPorts = append([]Port(nil), m.OutputPorts...)
	return out
}
