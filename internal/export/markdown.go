package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// MarkdownExporter writes the debate results document: topic, every agent's
// final memory in roster order, then the manager's conclusion.
type MarkdownExporter struct{}

// Export writes the debate as Markdown.
func (e *MarkdownExporter) Export(session *core.Session, w io.Writer) error {
	var sb strings.Builder

	sb.WriteString("# Debate Results\n\n")
	fmt.Fprintf(&sb, "## Topic\n\n%s\n\n---\n\n", session.Topic)
	sb.WriteString("## Final Agent Responses\n\n")

	for _, agent := range session.Agents {
		fmt.Fprintf(&sb, "### %s (%s)\n\n%s\n\n", agent.ID, agent.Backend, agent.Memory)
	}

	sb.WriteString("---\n\n## Final Conclusion\n\n")
	sb.WriteString(session.Conclusion())

	_, err := io.WriteString(w, sb.String())
	return err
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return "md"
}

// ContentType returns the MIME type for Markdown.
func (e *MarkdownExporter) ContentType() string {
	return "text/markdown; charset=utf-8"
}
