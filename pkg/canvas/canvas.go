// Package canvas owns the live editing session for one pipeline template: the
// visual graph, the current selection, the dirty and saving flags and the
// read-only policy for system templates.
//
// Every gesture runs synchronously under the canvas lock. Network calls made
// by Open, Save and Clone run outside it, so gestures keep working while a
// request is in flight.
package canvas

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/graph"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// Gateway is the persistence boundary the canvas talks to.
type Gateway interface {
	ListManifests(ctx context.Context) ([]manifest.Manifest, error)
	LoadTemplate(ctx context.Context, id string) (*definition.Template, error)
	SaveDefinition(ctx context.Context, id string, def *definition.Definition) (*definition.Template, error)
	CloneTemplate(ctx context.Context, id string) (*definition.Template, error)
}

// ErrNoTemplate is reported by Save and Clone before any template was loaded.
var ErrNoTemplate = errors.New("no template loaded")

// Canvas is the explicit editor state. The zero value is not usable; call New.
type Canvas struct {
	gw     Gateway
	log    *slog.Logger
	newID  func(prefix string) string
	events chan<- Event

	mu       sync.Mutex
	graph    *graph.Graph
	registry *manifest.Registry
	template *definition.Template
	source   *definition.Definition
	boundary []definition.Edge
	warnings []definition.Issue
	selected string
	dirty    bool
	saving   bool
	readOnly bool
	revision uint64
	// generation counts loads; a request started under an older
	// generation must not touch the session when it completes.
	generation uint64
}

// Option configures a Canvas.
type Option func(*Canvas)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Canvas) { c.log = l }
}

// WithEvents provides a channel for event emission. Sends never block; events
// are dropped when the channel is full.
func WithEvents(ch chan<- Event) Option {
	return func(c *Canvas) { c.events = ch }
}

// WithIDGenerator replaces the uuid-based id source. The prefix is the
// operator key for dropped operators, "e" for edges and "step" for groups.
func WithIDGenerator(fn func(prefix string) string) Option {
	return func(c *Canvas) { c.newID = fn }
}

// New creates an empty canvas bound to gw. gw may be nil for offline use, in
// which case Open, Save and Clone report ErrNoTemplate or a nil-gateway error.
func New(gw Gateway, opts ...Option) *Canvas {
	c := &Canvas{
		gw:       gw,
		log:      slog.Default(),
		newID:    shortID,
		graph:    graph.New(),
		boundary: []definition.Edge{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func shortID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

// ─── state accessors ──────────────────────────────────────────────────────────

// Dirty reports whether the graph has unsaved structural changes.
func (c *Canvas) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Saving reports whether a save request is in flight.
func (c *Canvas) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

// ReadOnly reports whether the loaded template is protected.
func (c *Canvas) ReadOnly() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readOnly
}

// Selected returns the selected node id, or "" when nothing is selected.
func (c *Canvas) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Graph returns a deep copy of the live graph.
func (c *Canvas) Graph() *graph.Graph {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Clone()
}

// Node returns a copy of the node with the given id.
func (c *Canvas) Node(id string) (graph.Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.graph.Clone().Node(id)
}

// Template returns the loaded template metadata, or nil.
func (c *Canvas) Template() *definition.Template {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyTemplate(c.template)
}

// Warnings returns the structural warnings reported by the last expansion.
func (c *Canvas) Warnings() []definition.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]definition.Issue(nil), c.warnings...)
}

// Registry returns the manifest registry in use, or nil before manifests
// arrived.
func (c *Canvas) Registry() *manifest.Registry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry
}

// Definition collapses the live graph into a definition, boundary edges
// included, without touching any state.
func (c *Canvas) Definition() *definition.Definition {
	c.mu.Lock()
	defer c.mu.Unlock()
	def, _ := c.collapse()
	return def
}

func (c *Canvas) collapse() (*definition.Definition, []definition.Issue) {
	def := graph.Collapse(c.graph)
	issues := graph.Reattach(def, c.boundary)
	return def, issues
}

// ─── loading ──────────────────────────────────────────────────────────────────

// SetManifests installs the manifest registry. A pending definition is
// expanded now. A clean graph is re-expanded so ports and kinds reflect the
// new registry; a dirty one keeps the user's edits and only has its operator
// nodes re-resolved in place.
func (c *Canvas) SetManifests(ms []manifest.Manifest) []definition.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry = manifest.NewRegistry(ms...)
	if c.source == nil {
		return nil
	}
	if c.dirty {
		c.resolveNodes()
		return append([]definition.Issue(nil), c.warnings...)
	}
	return c.expand()
}

// LoadTemplate replaces the session with t. System templates are opened
// read-only.
func (c *Canvas) LoadTemplate(t *definition.Template) []definition.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.template = copyTemplate(t)
	c.readOnly = t.IsSystem
	return c.load(&t.Definition)
}

// Load replaces the live graph with the expansion of def and resets dirty.
// Until manifests have been set the expansion is deferred and the graph
// stays empty.
func (c *Canvas) Load(def *definition.Definition) []definition.Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.load(def)
}

func (c *Canvas) load(def *definition.Definition) []definition.Issue {
	c.source = def.Clone()
	c.selected = ""
	c.dirty = false
	c.saving = false
	c.revision++
	c.generation++
	if c.registry == nil {
		c.graph = graph.New()
		c.boundary = []definition.Edge{}
		c.warnings = nil
		c.log.Debug("definition loaded, waiting for manifests", "steps", len(def.Steps))
		return nil
	}
	return c.expand()
}

func (c *Canvas) expand() []definition.Issue {
	p := graph.Expand(c.source, c.registry)
	c.graph = p.Graph
	c.boundary = p.Boundary
	c.warnings = p.Warnings
	c.dirty = false
	if c.selected != "" {
		if _, ok := c.graph.Node(c.selected); !ok {
			c.selected = ""
		}
	}
	for _, w := range p.Warnings {
		c.log.Warn("definition expanded with warning", "kind", w.Kind, "subject", w.Subject, "message", w.Message)
	}
	c.log.Debug("definition expanded",
		"containers", len(c.graph.Containers()),
		"operators", len(c.graph.Operators()),
		"edges", len(c.graph.Edges),
	)
	c.emit(Event{Type: EventLoaded})
	return append([]definition.Issue(nil), p.Warnings...)
}

func (c *Canvas) resolveNodes() {
	for _, op := range c.graph.Operators() {
		m, known := c.registry.Resolve(op.OperatorKey)
		op.OperatorKind = m.Kind
		op.InputPorts = append([]manifest.Port{}, m.InputPorts...)
		op.OutputPorts = append([]manifest.Port{}, m.OutputPorts...)
		if !op.Resolved && known && op.Label == op.OperatorKey {
			op.Label = m.Name
		}
		op.Resolved = known
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// touch records a structural change. Callers hold c.mu.
func (c *Canvas) touch() {
	c.dirty = true
	c.revision++
}

func (c *Canvas) emit(e Event) {
	if c.events != nil {
		select {
		case c.events <- e:
		default:
		}
	}
}
