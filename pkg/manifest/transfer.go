package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
)

// TransferType tags the drag payload produced when a palette item is picked up.
const TransferType = "application/x-pipecanvas-operator"

// ErrInvalidTransfer is returned for drop payloads that do not carry an
// operator manifest.
var ErrInvalidTransfer = errors.New("invalid operator transfer payload")

type transferEnvelope struct {
	Type     string   `json:"type"`
	Manifest Manifest `json:"manifest"`
}

// EncodeTransfer serialises m into the blob carried by a drag gesture.
func EncodeTransfer(m Manifest) ([]byte, error) {
	data, err := json.Marshal(transferEnvelope{Type: TransferType, Manifest: m})
	if err != nil {
		return nil, fmt.Errorf("encode transfer: %w", err)
	}
	return data, nil
}

// DecodeTransfer parses a drop payload back into a manifest. An empty kind
// defaults to tool; any other unknown kind is rejected.
func DecodeTransfer(data []byte) (Manifest, error) {
	var env transferEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Manifest{}, fmt.Errorf("%w: %v", ErrInvalidTransfer, err)
	}
	if env.Type != TransferType {
		return Manifest{}, fmt.Errorf("%w: unexpected type %q", ErrInvalidTransfer, env.Type)
	}
	m := env.Manifest
	if m.Key == "" {
		return Manifest{}, fmt.Errorf("%w: manifest has no key", ErrInvalidTransfer)
	}
	switch m.Kind {
	case KindLLM, KindTool:
	case "":
		m.Kind = KindTool
	default:
		return Manifest{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidTransfer, m.Kind)
	}
	return m, nil
}
