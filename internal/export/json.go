package export

import (
	"encoding/json"
	"io"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// JSONExporter exports debates to JSON format.
type JSONExporter struct{}

// Export writes the full session as indented JSON.
func (e *JSONExporter) Export(session *core.Session, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(session)
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return "json"
}

// ContentType returns the MIME type for JSON.
func (e *JSONExporter) ContentType() string {
	return "application/json"
}
