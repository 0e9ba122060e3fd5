package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/thiagofdso/adapta-chat/internal/core"
)

// PDFExporter exports debates to PDF format.
type PDFExporter struct{}

type rgb [3]int

// agent header colors, cycled by roster position
var agentColors = []rgb{
	{200, 230, 255},
	{200, 255, 200},
	{255, 235, 200},
	{235, 215, 255},
	{255, 255, 200},
}

var (
	colorWhite     = rgb{255, 255, 255}
	colorConcluded = rgb{200, 255, 200}
	colorFallback  = rgb{255, 200, 200}
)

const pdfTimeLayout = "January 2, 2006 at 3:04 PM"

// FileExtension returns the file extension for PDF.
func (e *PDFExporter) FileExtension() string { return "pdf" }

// ContentType returns the MIME type for PDF.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Export writes the setup, every round's outcomes and the conclusion.
func (e *PDFExporter) Export(session *core.Session, w io.Writer) error {
	d := newPDFDoc()

	d.title(session.Topic)
	d.writeInfo(session)
	colors := d.writeParticipants(session.Agents)
	d.writeRounds(session.Rounds, colors)
	if session.Synthesis != nil {
		d.writeConclusion(session.Synthesis)
	}

	return d.pdf.Output(w)
}

// pdfDoc wraps gofpdf with the few layout primitives the transcript uses.
type pdfDoc struct {
	pdf *gofpdf.Fpdf
	tr  func(string) string
}

func newPDFDoc() *pdfDoc {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("")

	d := &pdfDoc{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("adapta-chat - page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()
	return d
}

// text prepares a string for the core fonts: typographic punctuation the
// cp1252 translator would drop is flattened first.
func (d *pdfDoc) text(s string) string {
	return d.tr(punctuation.Replace(s))
}

var punctuation = strings.NewReplacer(
	"\u2018", "'", "\u2019", "'",
	"\u201C", "\"", "\u201D", "\"",
	"\u2013", "-", "\u2014", "--",
	"\u2026", "...", "\u2022", "*",
	"\u00A0", " ",
)

func (d *pdfDoc) title(s string) {
	d.pdf.SetFont("Arial", "B", 18)
	d.pdf.MultiCell(0, 10, d.text(s), "", "C", false)
	d.pdf.Ln(5)
}

func (d *pdfDoc) section(name string) {
	d.pdf.SetFont("Arial", "B", 12)
	d.pdf.Cell(0, 8, name)
	d.pdf.Ln(8)
}

// block writes a filled header bar followed by body text.
func (d *pdfDoc) block(fill rgb, header, body string, italic bool) {
	d.pdf.SetFillColor(fill[0], fill[1], fill[2])
	d.pdf.SetFont("Arial", "B", 10)
	d.pdf.CellFormat(0, 7, d.text(header), "", 1, "", true, 0, "")

	style := ""
	if italic {
		style = "I"
	}
	d.pdf.SetFont("Arial", style, 9)
	d.pdf.MultiCell(0, 5, d.text(body), "", "", false)
}

// breakBefore starts a new page when less than the given height remains.
func (d *pdfDoc) breakBefore(height float64) {
	_, pageH := d.pdf.GetPageSize()
	_, _, _, bottom := d.pdf.GetMargins()
	if d.pdf.GetY()+height > pageH-bottom {
		d.pdf.AddPage()
	}
}

func (d *pdfDoc) writeInfo(s *core.Session) {
	d.section("Debate Information")

	rows := [][2]string{
		{"ID:", shortSessionID(s.ID)},
		{"Agents:", fmt.Sprint(s.NumAgents)},
		{"Rounds:", fmt.Sprint(s.NumRounds)},
		{"Manager:", s.Manager},
		{"Status:", string(s.Status)},
		{"Created:", s.CreatedAt.Format(pdfTimeLayout)},
	}
	if s.CompletedAt != nil {
		rows = append(rows,
			[2]string{"Completed:", s.CompletedAt.Format(pdfTimeLayout)},
			[2]string{"Duration:", formatDuration(s.CreatedAt, *s.CompletedAt)},
		)
	}
	for _, row := range rows {
		d.pdf.SetFont("Arial", "B", 10)
		d.pdf.Cell(30, 5, row[0])
		d.pdf.SetFont("Arial", "", 10)
		d.pdf.Cell(0, 5, d.text(row[1]))
		d.pdf.Ln(5)
	}
	d.pdf.Ln(5)
}

func (d *pdfDoc) writeParticipants(agents []core.AgentState) map[string]rgb {
	d.section("Participants")

	colors := make(map[string]rgb, len(agents))
	for i, a := range agents {
		c := agentColors[i%len(agentColors)]
		colors[a.ID] = c
		d.block(c, fmt.Sprintf("%s (%s)", a.ID, a.Backend), a.CustomInstructions, true)
		d.pdf.Ln(2)
	}
	d.pdf.Ln(4)
	return colors
}

func (d *pdfDoc) writeRounds(rounds []core.RoundResult, colors map[string]rgb) {
	d.section("Debate")

	if len(rounds) == 0 {
		d.pdf.SetFont("Arial", "I", 10)
		d.pdf.Cell(0, 6, "No rounds recorded.")
		d.pdf.Ln(6)
		return
	}
	for _, round := range rounds {
		for _, o := range round.Outcomes {
			d.breakBefore(25)
			header := fmt.Sprintf("Round %d - %s (%s)", round.Round, o.AgentID, o.Backend)
			if o.OK() {
				d.block(colors[o.AgentID], header, o.Content, false)
			} else {
				d.block(colors[o.AgentID], header, o.Error, true)
			}
			d.pdf.Ln(5)
		}
	}
}

func (d *pdfDoc) writeConclusion(syn *core.Synthesis) {
	d.breakBefore(45)
	d.section("Final Conclusion")

	fill := colorConcluded
	if syn.Fallback {
		fill = colorFallback
	}
	d.block(fill, "Synthesized by "+syn.Backend, syn.Content, false)
	d.pdf.SetFillColor(colorWhite[0], colorWhite[1], colorWhite[2])
}

func shortSessionID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
