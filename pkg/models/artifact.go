package models

// ArtifactType classifies extracted artifact content.
type ArtifactType string

const (
	ArtifactCode     ArtifactType = "code"
	ArtifactMarkdown ArtifactType = "markdown"
	ArtifactImage    ArtifactType = "image"
	ArtifactTable    ArtifactType = "table"
)

// Artifact is a structured record extracted from message content, primarily
// a fenced code block. Artifacts are derived, never independently owned.
type Artifact struct {
	ID       string       `json:"id"`
	Type     ArtifactType `json:"type"`
	Title    string       `json:"title"`
	Content  string       `json:"content"`
	Language string       `json:"language,omitempty"`
	// Expanded is UI-only presentation state.
	Expanded bool `json:"is_expanded"`
}
