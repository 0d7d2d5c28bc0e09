package plagiarism

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
)

var (
	ErrNotCompleted = errors.New("plagiarism: check has no result yet")
	ErrRender       = errors.New("plagiarism: rendering failed")
)

type Kind string

const (
	KindCertificate Kind = "certificate"
	KindReport      Kind = "report"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCertificate, KindReport:
		return k, nil
	}
	return "", fmt.Errorf("unknown artifact kind %q", s)
}

// Layout is a fully laid out artifact, ready to be rasterized.
type Layout struct {
	Title    string
	Subtitle string
	Fields   [][2]string
	Scores   [][2]string
	Sources  [][4]string
}

// Surface lays out an artifact off screen. Ready is closed once the layout
// is complete; Layout must not be read before that.
type Surface struct {
	ready  chan struct{}
	layout Layout
	err    error
}

// Mount starts laying out job as kind for checker.
func Mount(job Job, kind Kind, checker string) *Surface {
	s := &Surface{ready: make(chan struct{})}
	go func() {
		defer close(s.ready)
		s.layout, s.err = layout(job, kind, checker)
	}()
	return s
}

func (s *Surface) Ready() <-chan struct{} { return s.ready }

func (s *Surface) Layout() (Layout, error) {
	<-s.ready
	return s.layout, s.err
}

func layout(job Job, kind Kind, checker string) (Layout, error) {
	r := job.Result
	if r == nil {
		return Layout{}, ErrNotCompleted
	}
	l := Layout{
		Subtitle: "Hisobot \"Antiplag.Uz\" servisi tomonidan taqdim etilgan",
		Fields: [][2]string{
			{"Tekshiruvchi", checker},
			{"Fayl nomi", job.FileName},
			{"Yuklangan vaqti", job.CreatedAt.Format(time.DateTime)},
			{"Tranzaksiya", job.MerchantTransactionID},
		},
		Scores: [][2]string{
			{"O'zlashtirib olishlar", fmt.Sprintf("%.2f%%", r.PlagiarismPercent)},
			{"Originallik", fmt.Sprintf("%.2f%%", r.OriginalityPercent)},
		},
	}
	switch kind {
	case KindCertificate:
		l.Title = "Originallik sertifikati"
	case KindReport:
		l.Title = "Hujjat tekshirish natijalari"
		l.Fields = append(l.Fields, [2]string{"Qidirish modullari", strings.Join(moduleLabels[:], ", ")})
		for i, src := range r.Sources {
			l.Sources = append(l.Sources, [4]string{
				fmt.Sprintf("[%02d]", i+1),
				fmt.Sprintf("%.2f%%", src.SimilarityPercent),
				src.SourceLink,
				src.ModuleType,
			})
		}
	default:
		return Layout{}, fmt.Errorf("unknown artifact kind %q", kind)
	}
	return l, nil
}

// RenderArtifact writes job as a PDF certificate or report to w. It waits for
// the surface to finish laying out, or for ctx, before rasterizing.
func RenderArtifact(ctx context.Context, w io.Writer, job Job, kind Kind, checker string) error {
	if job.Status != StatusCompleted || job.Result == nil {
		return ErrNotCompleted
	}

	s := Mount(job, kind, checker)
	select {
	case <-s.Ready():
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrRender, ctx.Err())
	}
	l, err := s.Layout()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}

	pdf := rasterize(l)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	return nil
}

func rasterize(l Layout) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(l.Title, true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, tr(l.Title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(85, 85, 85)
	pdf.CellFormat(0, 6, tr(l.Subtitle), "B", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "", 11)
	for _, f := range l.Fields {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(50, 7, tr(f[0]+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 7, tr(f[1]), "", "L", false)
	}
	pdf.Ln(6)

	for _, s := range l.Scores {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(90, 10, tr(strings.ToUpper(s[0])), "1", 0, "C", false, 0, "")
		pdf.SetFont("Helvetica", "B", 16)
		pdf.CellFormat(0, 10, s[1], "1", 1, "C", false, 0, "")
	}

	if len(l.Sources) == 0 {
		return pdf
	}

	pdf.Ln(8)
	widths := []float64{14, 22, 104, 50}
	header := []string{"No", "Ulushi", "Manba", "Qidirish moduli"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(242, 242, 242)
	for i, h := range header {
		pdf.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range l.Sources {
		for i, cell := range row {
			pdf.CellFormat(widths[i], 7, tr(cell), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	return pdf
}
