package canvas

// EventType identifies the kind of canvas event.
type EventType string

const (
	EventLoaded      EventType = "loaded"
	EventNodeAdded   EventType = "node_added"
	EventNodeRemoved EventType = "node_removed"
	EventNodeMoved   EventType = "node_moved"
	EventNodeUpdated EventType = "node_updated"
	EventEdgeAdded   EventType = "edge_added"
	EventEdgeRemoved EventType = "edge_removed"
	EventSelected    EventType = "selected"
	EventDeselected  EventType = "deselected"
	EventSaved       EventType = "saved"
	EventSaveFailed  EventType = "save_failed"
	EventCloned      EventType = "cloned"
)

// Event is emitted after every applied change so observers such as the
// inspector can follow the canvas without polling it.
type Event struct {
	Type   EventType `json:"type"`
	NodeID string    `json:"node_id,omitempty"`
	EdgeID string    `json:"edge_id,omitempty"`
	Error  string    `json:"error,omitempty"`
}
