package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/signintech/gopdf"
)

const (
	pdfMarginLeft = 40.0
	pdfLineHeight = 18.0
	pdfPageBottom = 800.0
)

// SavePDF renders the group compliance summary to a PDF file and returns
// its path.
func (g *Generator) SavePDF(groupID int64) (string, error) {
	summary, err := g.agg.GroupSummary(groupID)
	if err != nil {
		return "", err
	}

	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("body", g.fontPath); err != nil {
		return "", fmt.Errorf("loading report font: %w", err)
	}

	y := 40.0
	line := func(size float64, text string) error {
		if y > pdfPageBottom {
			pdf.AddPage()
			y = 40.0
		}
		if err := pdf.SetFont("body", "", size); err != nil {
			return err
		}
		pdf.SetXY(pdfMarginLeft, y)
		if err := pdf.Cell(nil, text); err != nil {
			return err
		}
		y += pdfLineHeight
		return nil
	}

	if err := line(18, fmt.Sprintf("Compliance Report: %s", summary.GroupName)); err != nil {
		return "", err
	}
	line(11, fmt.Sprintf("Target: %s", summary.TargetName))
	line(11, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04:05")))
	line(11, fmt.Sprintf("Status: %s", summary.Status))
	y += pdfLineHeight

	line(14, fmt.Sprintf("Overall score: %.1f%%", summary.ComplianceScore))
	line(11, fmt.Sprintf("Benchmarks: %d (%d completed)", summary.TotalStigs, summary.CompletedStigs))
	line(11, fmt.Sprintf("Checks: %d total, %d passed, %d failed", summary.TotalChecks, summary.Passed, summary.Failed))
	line(11, fmt.Sprintf("Not applicable: %d, not reviewed: %d, errors: %d",
		summary.NotApplicable, summary.NotReviewed, summary.Errors))
	y += pdfLineHeight

	line(14, "Benchmarks")
	for _, js := range summary.Jobs {
		title := js.Title
		if title == "" {
			title = js.BenchmarkID
		}
		if len(title) > 70 {
			title = title[:70] + "..."
		}
		line(11, fmt.Sprintf("%s (%s)", title, js.Status))
		line(10, fmt.Sprintf("    %d checks, %d passed, %d failed, score %.1f%%",
			js.TotalChecks, js.Passed, js.Failed, js.ComplianceScore))
	}

	os.MkdirAll(g.reportsDir, 0755)
	filename := fmt.Sprintf("group-%d-%s.pdf", groupID, time.Now().Format("20060102-150405"))
	path := filepath.Join(g.reportsDir, filename)

	if err := pdf.WritePdf(path); err != nil {
		return "", fmt.Errorf("writing pdf: %w", err)
	}
	return path, nil
}
