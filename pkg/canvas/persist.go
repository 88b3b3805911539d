package canvas

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

// Status tells the caller what a Save or Clone call did.
type Status string

const (
	StatusSaved    Status = "saved"
	StatusCloned   Status = "cloned"
	StatusFailed   Status = "failed"
	StatusReadOnly Status = "read_only" // save skipped: template is protected
	StatusClean    Status = "clean"     // save skipped: nothing changed
	StatusInFlight Status = "in_flight" // save skipped: another save is running
	StatusEditable Status = "editable"  // clone skipped: template is already editable
)

// SaveResult is the outcome of Save. Issues holds lint findings on the saved
// definition and any input edges that had to be dropped; they never block a
// save. Err is set only when Status is StatusFailed.
type SaveResult struct {
	Status   Status
	Template *definition.Template
	Issues   []definition.Issue
	Err      error
}

// CloneResult is the outcome of Clone.
type CloneResult struct {
	Status   Status
	Template *definition.Template
	Err      error
}

var errNoGateway = errors.New("canvas has no gateway")

// Open fetches the manifest list and the template concurrently, installs the
// manifests and then loads the template, so the expansion always runs
// against the freshly fetched registry.
func (c *Canvas) Open(ctx context.Context, templateID string) ([]definition.Issue, error) {
	if c.gw == nil {
		return nil, errNoGateway
	}
	var (
		ms []manifest.Manifest
		t  *definition.Template
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ms, err = c.gw.ListManifests(gctx)
		if err != nil {
			return fmt.Errorf("list manifests: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		t, err = c.gw.LoadTemplate(gctx, templateID)
		if err != nil {
			return fmt.Errorf("load template %q: %w", templateID, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("load template %q: gateway returned no template", templateID)
	}

	c.SetManifests(ms)
	issues := c.LoadTemplate(t)
	c.log.Info("template opened", "template", t.ID, "name", t.Name, "read_only", t.IsSystem, "warnings", len(issues))
	return issues, nil
}

// Save collapses the live graph and submits it. It does nothing on a
// read-only or clean canvas, or while another save is in flight. On failure
// the canvas stays dirty so the user can retry.
func (c *Canvas) Save(ctx context.Context) SaveResult {
	c.mu.Lock()
	switch {
	case c.readOnly:
		c.mu.Unlock()
		return SaveResult{Status: StatusReadOnly}
	case !c.dirty:
		c.mu.Unlock()
		return SaveResult{Status: StatusClean}
	case c.saving:
		c.mu.Unlock()
		return SaveResult{Status: StatusInFlight}
	case c.template == nil:
		c.mu.Unlock()
		return SaveResult{Status: StatusFailed, Err: ErrNoTemplate}
	case c.gw == nil:
		c.mu.Unlock()
		return SaveResult{Status: StatusFailed, Err: errNoGateway}
	}
	c.saving = true
	def, issues := c.collapse()
	issues = append(issues, definition.Lint(def, c.registry)...)
	id := c.template.ID
	rev := c.revision
	gen := c.generation
	c.mu.Unlock()

	saved, err := c.gw.SaveDefinition(ctx, id, def)
	if err != nil {
		err = fmt.Errorf("save template %q: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// Another template was loaded meanwhile; report without touching it.
		c.log.Info("save finished after the session was replaced", "template", id, "error", err)
		if err != nil {
			return SaveResult{Status: StatusFailed, Issues: issues, Err: err}
		}
		return SaveResult{Status: StatusSaved, Template: copyTemplate(saved), Issues: issues}
	}
	c.saving = false
	if err != nil {
		c.log.Error("save failed", "template", id, "error", err)
		c.emit(Event{Type: EventSaveFailed, Error: err.Error()})
		return SaveResult{Status: StatusFailed, Issues: issues, Err: err}
	}

	if saved != nil {
		c.template = copyTemplate(saved)
	}
	c.source = def
	c.boundary = boundaryEdges(def)
	if c.revision == rev {
		c.dirty = false
	}
	c.log.Info("template saved",
		"template", id,
		"steps", len(def.Steps),
		"operators", def.OperatorCount(),
		"edges", len(def.Edges),
		"issues", len(issues),
	)
	c.emit(Event{Type: EventSaved})
	return SaveResult{Status: StatusSaved, Template: copyTemplate(saved), Issues: issues}
}

// Clone asks the gateway for an editable copy of the loaded system template
// and switches the session to it. It does nothing on an editable template.
// If another template is loaded while the request runs, the copy is still
// returned but the session stays on the newer template.
func (c *Canvas) Clone(ctx context.Context) CloneResult {
	c.mu.Lock()
	switch {
	case c.template == nil:
		c.mu.Unlock()
		return CloneResult{Status: StatusFailed, Err: ErrNoTemplate}
	case !c.readOnly:
		c.mu.Unlock()
		return CloneResult{Status: StatusEditable}
	case c.gw == nil:
		c.mu.Unlock()
		return CloneResult{Status: StatusFailed, Err: errNoGateway}
	}
	id := c.template.ID
	gen := c.generation
	c.mu.Unlock()

	t, err := c.gw.CloneTemplate(ctx, id)
	if err == nil && t == nil {
		err = fmt.Errorf("gateway returned no template")
	}
	if err != nil {
		err = fmt.Errorf("clone template %q: %w", id, err)
		c.log.Error("clone failed", "template", id, "error", err)
		return CloneResult{Status: StatusFailed, Err: err}
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.log.Info("clone finished after the session was replaced", "from", id, "to", t.ID)
		return CloneResult{Status: StatusCloned, Template: copyTemplate(t)}
	}
	c.template = copyTemplate(t)
	c.readOnly = t.IsSystem
	c.load(&t.Definition)
	c.mu.Unlock()
	c.log.Info("template cloned", "from", id, "to", t.ID)
	c.emit(Event{Type: EventCloned})
	return CloneResult{Status: StatusCloned, Template: copyTemplate(t)}
}

func boundaryEdges(d *definition.Definition) []definition.Edge {
	out := []definition.Edge{}
	for _, e := range d.Edges {
		if e.IsBoundary() {
			out = append(out, e)
		}
	}
	return out
}

func copyTemplate(t *definition.Template) *definition.Template {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Definition = *t.Definition.Clone()
	return &cp
}
