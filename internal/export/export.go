// Package export renders debate transcripts and writes them to disk.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// Format represents an export format.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatJSON     Format = "json"
)

// Exporter renders a session into one document format.
type Exporter interface {
	Export(session *core.Session, w io.Writer) error
	FileExtension() string
	ContentType() string
}

var exporters = map[Format]func() Exporter{
	FormatMarkdown: func() Exporter { return &MarkdownExporter{} },
	FormatPDF:      func() Exporter { return &PDFExporter{} },
	FormatJSON:     func() Exporter { return &JSONExporter{} },
}

var aliases = map[string]Format{
	"":   FormatMarkdown,
	"md": FormatMarkdown,
}

// ParseFormat accepts a format name or a file extension such as ".md".
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "."))
	if f, ok := aliases[name]; ok {
		return f, nil
	}
	if _, ok := exporters[Format(name)]; ok {
		return Format(name), nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// GetExporter returns an exporter for the given format.
func GetExporter(format Format) (Exporter, error) {
	newExporter, ok := exporters[format]
	if !ok {
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
	return newExporter(), nil
}

const maxTopicRunes = 50

// GenerateFilename names an export after the session date and a slug of the
// topic, e.g. debate_20250314_Tabs_or_spaces.md.
func GenerateFilename(session *core.Session, ext string) string {
	date := session.CreatedAt.Format("20060102")
	if slug := topicSlug(session.Topic); slug != "" {
		return fmt.Sprintf("debate_%s_%s.%s", date, slug, ext)
	}
	return fmt.Sprintf("debate_%s.%s", date, ext)
}

// topicSlug keeps letters and digits and collapses every other run of
// characters into a single underscore.
func topicSlug(topic string) string {
	var out []rune
	gap := false
	for _, r := range topic {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			gap = len(out) > 0
			continue
		}
		if gap {
			out = append(out, '_')
			gap = false
		}
		out = append(out, r)
		if len(out) >= maxTopicRunes {
			break
		}
	}
	return strings.TrimRight(string(out), "_")
}

func formatDuration(start, end time.Time) string {
	switch d := end.Sub(start); {
	case d < time.Minute:
		return fmt.Sprintf("%d seconds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	default:
		return fmt.Sprintf("%.1f hours", d.Hours())
	}
}
