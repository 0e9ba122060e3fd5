package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// DefaultTranscriptPath is where the transcript goes when no path is configured.
const DefaultTranscriptPath = "debate.md"

// FilePersister renders concluded sessions to a file, overwriting any
// previous transcript at the same path.
type FilePersister struct {
	// Path is the output file. When empty, a name is generated inside Dir.
	Path   string
	Dir    string
	Format Format
}

// Persist writes the transcript and returns its path. Failures are
// *core.PersistenceError.
func (p *FilePersister) Persist(session *core.Session) (string, error) {
	format := p.Format
	if format == "" {
		format = FormatMarkdown
	}
	exporter, err := GetExporter(format)
	if err != nil {
		return "", &core.PersistenceError{Path: p.Path, Err: err}
	}

	path := p.Path
	if path == "" {
		path = filepath.Join(p.Dir, GenerateFilename(session, exporter.FileExtension()))
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", &core.PersistenceError{Path: path, Err: err}
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return "", &core.PersistenceError{Path: path, Err: err}
	}

	if err := exporter.Export(session, f); err != nil {
		f.Close()
		return "", &core.PersistenceError{Path: path, Err: fmt.Errorf("render %s: %w", format, err)}
	}
	if err := f.Close(); err != nil {
		return "", &core.PersistenceError{Path: path, Err: err}
	}

	return path, nil
}
