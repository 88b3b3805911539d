package manifest

// Builtins returns the manifests of the operators shipped with the paper
// processing pipeline.
func Builtins() []Manifest {
	return []Manifest{
		{
			Key: "pdf_fetch", Name: "Fetch PDF", Kind: KindTool,
			Description: "Downloads a PDF and extracts its text.",
			InputPorts:  []Port{{Key: "url", Type: PortText, Description: "PDF or arXiv URL", Required: true}},
			OutputPorts: []Port{
				{Key: "text", Type: PortText, Description: "Extracted full text"},
				{Key: "pdf_bytes", Type: PortPDFBytes, Description: "Raw PDF bytes"},
			},
		},
		{
			Key: "summary", Name: "TL;DR Summary", Kind: KindLLM,
			Description: "Generates a concise summary of the source content.",
			InputPorts:  []Port{{Key: "text", Type: PortText, Description: "Source text to summarise", Required: true}},
			OutputPorts: []Port{{Key: "summary", Type: PortText, Description: "Generated summary"}},
		},
		{
			Key: "save_summary", Name: "Save Summary", Kind: KindTool,
			Description: "Persists the summary on the source material.",
			InputPorts:  []Port{{Key: "summary", Type: PortText, Required: true}},
			OutputPorts: []Port{{Key: "done", Type: PortText}},
		},
		{
			Key: "reading_notes", Name: "Reading Notes", Kind: KindLLM,
			Description: "Generates structured research report sections from a paper.",
			InputPorts:  []Port{{Key: "text", Type: PortText, Description: "Paper full text", Required: true}},
			OutputPorts: []Port{{Key: "notes", Type: PortJSON, Description: "List of {title, content} note sections"}},
		},
		{
			Key: "study_quiz", Name: "Flashcard Generator", Kind: KindLLM,
			Description: "Generates quiz questions and glossary terms for active recall.",
			InputPorts:  []Port{{Key: "text", Type: PortText, Description: "Paper full text", Required: true}},
			OutputPorts: []Port{{Key: "flashcards", Type: PortJSON, Description: "List of {question, answer} flashcards"}},
		},
		{
			Key: "save_cards", Name: "Save Cards", Kind: KindTool,
			Description: "Persists card items to the database.",
			InputPorts: []Port{
				{Key: "items", Type: PortJSON, Description: "Card-shaped items", Required: true},
				{Key: "card_type", Type: PortText, Description: "Card type, usually set through config overrides", Required: true},
			},
			OutputPorts: []Port{
				{Key: "batch_id", Type: PortText},
				{Key: "count", Type: PortText},
			},
		},
		{
			Key: "extract_figures", Name: "Extract Figures", Kind: KindTool,
			Description: "Pulls figures out of a PDF or its arXiv source.",
			InputPorts: []Port{
				{Key: "pdf_bytes", Type: PortPDFBytes, Required: true},
				{Key: "url", Type: PortText, Required: false},
			},
			OutputPorts: []Port{
				{Key: "images", Type: PortImages},
				{Key: "saved_paths", Type: PortJSON},
			},
		},
		{
			Key: "optimize_images", Name: "Optimize Images", Kind: KindTool,
			Description: "Resizes and compresses images for multimodal input.",
			InputPorts:  []Port{{Key: "images", Type: PortImages, Required: true}},
			OutputPorts: []Port{{Key: "images", Type: PortImages}},
		},
		{
			Key: "figure_association", Name: "Figure Association", Kind: KindLLM,
			Description: "Associates extracted PDF figures with reading note sections.",
			InputPorts: []Port{
				{Key: "notes", Type: PortJSON, Description: "Reading notes data", Required: true},
				{Key: "images", Type: PortImages, Description: "Optimised figure image bytes", Required: false},
			},
			OutputPorts: []Port{{Key: "associations", Type: PortJSON, Description: "Section-to-figure mapping"}},
		},
		{
			Key: "apply_figure_associations", Name: "Apply Figure Associations", Kind: KindTool,
			Description: "Updates reading note cards with figure images.",
			InputPorts: []Port{
				{Key: "associations", Type: PortJSON, Required: true},
				{Key: "saved_paths", Type: PortJSON, Required: true},
			},
			OutputPorts: []Port{{Key: "updated_count", Type: PortText}},
		},
	}
}
