package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
)

// PaperDefaultID is the fixed id of the built-in paper processing template.
const PaperDefaultID = "00000000-0000-0000-0000-000000000001"

// SystemTemplates returns the templates shipped with the editor.
func SystemTemplates() []definition.Template {
	return []definition.Template{{
		ID:          PaperDefaultID,
		Name:        "Paper Processing (Default)",
		Description: "Default pipeline for processing academic papers: fetch PDF, generate summary, reading notes and flashcards, then extract and associate figures.",
		IsSystem:    true,
		Definition:  *PaperDefault(),
	}}
}

// PaperDefault is the definition of the default paper pipeline. Its two
// input edges feed the paper URL into pdf_fetch and extract_figures.
func PaperDefault() *definition.Definition {
	op := func(id, key string, cfg map[string]any) definition.OperatorRef {
		if cfg == nil {
			cfg = map[string]any{}
		}
		return definition.OperatorRef{ID: id, OperatorKey: key, ConfigOverrides: cfg}
	}
	edge := func(id, src, srcPort, dst, dstPort string) definition.Edge {
		return definition.Edge{ID: id, SourceOp: src, SourcePort: srcPort, TargetOp: dst, TargetPort: dstPort}
	}
	return &definition.Definition{
		Steps: []definition.Step{
			{
				Key: "fetch", Label: "Fetch PDF", Position: definition.Position{X: 0, Y: 250},
				Operators: []definition.OperatorRef{op("pdf_fetch", "pdf_fetch", nil)},
			},
			{
				Key: "summarize", Label: "Generate Summary", Position: definition.Position{X: 300, Y: 0},
				Operators: []definition.OperatorRef{
					op("summary", "summary", nil),
					op("save_summary", "save_summary", nil),
				},
			},
			{
				Key: "notes", Label: "Reading Notes", Position: definition.Position{X: 300, Y: 180},
				Operators: []definition.OperatorRef{
					op("reading_notes", "reading_notes", nil),
					op("save_reading_notes", "save_cards", map[string]any{"card_type": "reading_note"}),
				},
			},
			{
				Key: "flashcards", Label: "Flashcards", Position: definition.Position{X: 300, Y: 360},
				Operators: []definition.OperatorRef{
					op("study_quiz", "study_quiz", nil),
					op("save_flashcards", "save_cards", map[string]any{"card_type": "flashcard"}),
				},
			},
			{
				Key: "figures", Label: "Figure Extraction & Association", Position: definition.Position{X: 300, Y: 540},
				Operators: []definition.OperatorRef{
					op("extract_figures", "extract_figures", nil),
					op("figure_association", "figure_association", nil),
					op("apply_figure_associations", "apply_figure_associations", nil),
				},
			},
		},
		Edges: []definition.Edge{
			edge("e0", definition.InputSentinel, "url", "pdf_fetch", "url"),
			edge("e1", "pdf_fetch", "text", "summary", "text"),
			edge("e2", "pdf_fetch", "text", "reading_notes", "text"),
			edge("e3", "pdf_fetch", "text", "study_quiz", "text"),
			edge("e4", "pdf_fetch", "pdf_bytes", "extract_figures", "pdf_bytes"),
			edge("e4b", definition.InputSentinel, "url", "extract_figures", "url"),
			edge("e5", "extract_figures", "images", "figure_association", "images"),
			edge("e7", "reading_notes", "notes", "figure_association", "notes"),
			edge("e8", "summary", "summary", "save_summary", "summary"),
			edge("e9", "reading_notes", "notes", "save_reading_notes", "items"),
			edge("e10", "study_quiz", "flashcards", "save_flashcards", "items"),
			edge("e11", "figure_association", "associations", "apply_figure_associations", "associations"),
			edge("e12", "extract_figures", "saved_paths", "apply_figure_associations", "saved_paths"),
		},
	}
}

// Seed upserts the system templates so their definitions always match the
// current release. It is safe to call on every start.
func Seed(ctx context.Context, s *Templates) error {
	for _, t := range SystemTemplates() {
		now := s.now()
		t.CreatedAt = now
		t.UpdatedAt = now
		if err := s.b.upsert(ctx, &t); err != nil {
			return fmt.Errorf("seed template %q: %w", t.ID, err)
		}
		slog.Info("system template seeded", "template", t.ID, "name", t.Name)
	}
	return nil
}
