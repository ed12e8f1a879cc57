package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/noah-isme/qms-manual-api/internal/models"
)

// RenderOptions tune the PDF rendition of a manual snapshot.
type RenderOptions struct {
	// Watermark is stamped diagonally across every page when non-empty.
	Watermark string
	// HighlightKeys marks structural nodes (by locator key) with a change
	// bar and a CHANGED label in the margin.
	HighlightKeys map[string]struct{}
}

// PDFRenderer renders manual snapshots into paginated PDF documents.
type PDFRenderer struct{}

// NewPDFRenderer constructs a PDF renderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// Render produces the PDF bytes for a snapshot.
func (r *PDFRenderer) Render(snapshot models.ManualSnapshot, opts RenderOptions) ([]byte, error) {
	if snapshot.Manual.Title == "" {
		return nil, fmt.Errorf("pdf requires a manual title")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)

	if opts.Watermark != "" {
		watermark := strings.ToUpper(opts.Watermark)
		pdf.SetHeaderFunc(func() {
			pdf.SetFont("Arial", "B", 60)
			pdf.SetTextColor(225, 225, 225)
			pdf.TransformBegin()
			pdf.TransformRotate(45, 105, 150)
			pdf.Text(35, 160, watermark)
			pdf.TransformEnd()
			pdf.SetTextColor(0, 0, 0)
			pdf.SetXY(15, 20)
		})
	}

	pdf.AddPage()
	r.renderCover(pdf, snapshot.Manual)

	for _, section := range snapshot.Sections {
		if section.PageBreak {
			pdf.AddPage()
		}
		r.renderSection(pdf, section, opts)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *PDFRenderer) renderCover(pdf *gofpdf.Fpdf, core models.ManualCore) {
	pdf.SetFont("Arial", "B", 18)
	pdf.MultiCell(0, 10, core.Title, "", "C", false)
	pdf.Ln(3)

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(0, 7, core.Organization, "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Document Code: %s", core.DocumentCode), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 7, fmt.Sprintf("Revision: %s", core.CurrentRevision), "", 1, "C", false, 0, "")
	if core.EffectiveDate != nil {
		pdf.CellFormat(0, 7, fmt.Sprintf("Effective: %s", core.EffectiveDate.Format("2006-01-02")), "", 1, "C", false, 0, "")
	}
	if core.Description != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 6, core.Description, "", "C", false)
	}
	pdf.Ln(8)
}

func (r *PDFRenderer) renderSection(pdf *gofpdf.Fpdf, section models.SectionSnapshot, opts RenderOptions) {
	key := section.LocatorKey()
	_, highlighted := opts.HighlightKeys[key]

	pdf.SetFont("Arial", "B", headingSize(section))
	heading := fmt.Sprintf("%s  %s", key, section.Heading)
	if highlighted {
		pdf.SetTextColor(160, 30, 30)
		heading += "  [CHANGED]"
	}
	pdf.MultiCell(0, 8, heading, "", "L", false)
	pdf.SetTextColor(0, 0, 0)

	pdf.SetFont("Arial", "", 10)
	for _, block := range section.Blocks {
		if highlighted {
			x := pdf.GetX()
			y := pdf.GetY()
			pdf.SetDrawColor(160, 30, 30)
			pdf.SetLineWidth(0.8)
			pdf.Line(12, y, 12, y+6)
			pdf.SetDrawColor(0, 0, 0)
			pdf.SetLineWidth(0.2)
			pdf.SetXY(x, y)
		}
		pdf.MultiCell(0, 6, blockText(block), "", "L", false)
		pdf.Ln(2)
	}

	for _, remark := range section.Remarks {
		pdf.SetFont("Arial", "I", 9)
		pdf.MultiCell(0, 5, fmt.Sprintf("Remark (%s): %s", remark.Author, remark.Text), "", "L", false)
		pdf.SetFont("Arial", "", 10)
	}
	pdf.Ln(3)
}

func headingSize(section models.SectionSnapshot) float64 {
	switch {
	case section.SectionNumber == nil:
		return 14
	case section.SubsectionNumber == nil:
		return 12
	default:
		return 11
	}
}

// blockText extracts a printable body from an opaque content block. Blocks
// carrying plain JSON strings are printed as-is; anything else falls back
// to its serialized form so nothing is silently dropped.
func blockText(block models.ContentBlock) string {
	var text string
	if err := json.Unmarshal(block.Body, &text); err == nil {
		return text
	}
	return string(block.Body)
}
