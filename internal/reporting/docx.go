package reporting

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulnreport/internal/observability"
	"github.com/xkilldash9x/vulnreport/internal/results"
)

const (
	defaultTitle = "Vulnerability Assessment"
	chartPart    = "word/media/chart.png"
	chartRelID   = "rId1"

	referencesPlaceholder = "n/a"
)

// Two-column detail table: label column and value column.
var detailWidths = []int{2340, contentWidth - 2340}

// Summary table: number, finding, severity, host count.
var summaryWidths = []int{720, 5400, 1620, contentWidth - 720 - 5400 - 1620}

// DocxReporter renders a report model as an Office Open XML document.
// Write lays the document out in memory; Close packages and writes it.
type DocxReporter struct {
	writer      io.WriteCloser
	logger      *zap.Logger
	toolVersion string
	opts        Options

	newID func() uuid.UUID
	now   func() time.Time

	model  *results.Model
	doc    *etree.Document
	chart  *ChartFile
	closed bool
}

// NewDocxReporter creates a reporter that takes ownership of writer.
func NewDocxReporter(writer io.WriteCloser, toolVersion string, opts Options) *DocxReporter {
	return &DocxReporter{
		writer:      writer,
		logger:      observability.GetLogger().Named("docx_reporter"),
		toolVersion: toolVersion,
		opts:        opts.withDefaults(),
		newID:       uuid.New,
		now:         time.Now,
	}
}

// Write lays out the title page, scope, summary and one detail section per
// finding. The chart image, if any, stays on disk until Close.
func (r *DocxReporter) Write(model *results.Model) error {
	if model == nil {
		return errors.New("report model is nil")
	}
	if r.closed {
		return errors.New("reporter is closed")
	}
	if r.model != nil {
		return errors.New("report already written")
	}
	startTime := time.Now()
	r.model = model

	doc, b := newDocument()
	if err := r.titlePage(b); err != nil {
		return err
	}
	b.pageBreak()
	r.scopeSection(b)
	r.summarySection(b)
	b.pageBreak()
	r.detailSections(b)
	b.finish()
	r.doc = doc

	r.logger.Debug("Laid out report",
		zap.Int("findings", len(model.Findings)),
		zap.Int("scope", len(model.Scope)),
		zap.Bool("chart", r.chart != nil),
		zap.Duration("duration", time.Since(startTime)),
	)
	return nil
}

func (r *DocxReporter) title() string {
	if r.model.Title != "" {
		return r.model.Title
	}
	return defaultTitle
}

func (r *DocxReporter) titlePage(b body) error {
	m := r.model
	b.centered(r.title(), runStyle{Bold: true, Size: 56})
	if m.Source != "" {
		b.centered("Source: "+m.Source, runStyle{Size: 24})
	}
	b.centered("Generated: "+m.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"), runStyle{Size: 24})

	switch {
	case m.Empty():
		b.centered("No findings", runStyle{Bold: true, Size: 28})
	case m.ChartTotal() == 0:
		b.centered("No findings with a charted severity", runStyle{Bold: true, Size: 28})
	default:
		renderer := ChartRenderer{
			Title:   r.title(),
			Width:   r.opts.ChartWidth,
			Height:  r.opts.ChartHeight,
			TempDir: r.opts.TempDir,
		}
		chart, err := renderer.Render(m.Chart)
		if err != nil {
			return fmt.Errorf("failed to render severity chart: %w", err)
		}
		r.chart = chart
		b.image(chartRelID, "chart.png", chartEMU, chartEMU*chart.Height/chart.Width)
	}

	legend := b.table("Legend", evenWidths(3)...)
	legend.row(
		styled("Severity", cellStyle{Shade: shadeHeader, Run: runStyle{Bold: true}}),
		styled("Findings", cellStyle{Shade: shadeHeader, Run: runStyle{Bold: true}}),
		styled("Occurrences", cellStyle{Shade: shadeHeader, Run: runStyle{Bold: true}}),
	)
	for i, s := range m.Chart {
		occurrences := 0
		if i < len(m.Occurrences) {
			occurrences = m.Occurrences[i].Count
		}
		legend.row(
			styled(s.Label, cellStyle{Run: runStyle{Bold: true, Color: s.Color}}),
			plain(strconv.Itoa(s.Count)),
			plain(strconv.Itoa(occurrences)),
		)
	}

	if m.Skipped > 0 {
		b.paragraph(fmt.Sprintf("%d malformed input rows were skipped.", m.Skipped), runStyle{Size: 18})
	}
	return nil
}

func (r *DocxReporter) scopeSection(b body) {
	b.heading("Scope")
	hosts := r.model.Scope
	if len(hosts) == 0 {
		b.paragraph("No hosts in scope.", runStyle{})
		return
	}

	n := r.opts.ScopeColumns
	t := b.table("Scope", evenWidths(n)...)
	for start := 0; start < len(hosts); start += n {
		cells := make([]cell, n)
		for i := range cells {
			if start+i < len(hosts) {
				cells[i] = plain(hosts[start+i])
			}
		}
		t.row(cells...)
	}
}

func (r *DocxReporter) summarySection(b body) {
	b.heading("Summary")
	if r.model.Empty() {
		b.paragraph("No findings.", runStyle{})
		return
	}

	bold := cellStyle{Shade: shadeHeader, Run: runStyle{Bold: true}}
	t := b.table("Summary", summaryWidths...)
	t.row(styled("#", bold), styled("Finding", bold), styled("Severity", bold), styled("Affected Hosts", bold))
	for _, e := range r.model.Findings {
		t.row(
			plain(strconv.Itoa(e.Number)),
			plain(e.Name),
			styled(e.SeverityLabel, cellStyle{Shade: e.Color, Run: runStyle{Bold: true, Color: colorWhite}}),
			plain(strconv.Itoa(len(e.Hosts))),
		)
	}
}

func (r *DocxReporter) detailSections(b body) {
	for _, e := range r.model.Findings {
		b.paragraph(fmt.Sprintf("%d. %s", e.Number, e.Name), runStyle{Bold: true, Size: 28, Color: colorHeading})

		label := cellStyle{Run: runStyle{Bold: true}}
		t := b.table("Finding "+strconv.Itoa(e.Number), detailWidths...)
		t.row(styled("Risk", label), styled(e.SeverityLabel, cellStyle{Run: runStyle{Bold: true, Color: e.Color}}))
		t.row(styled("Affected Hosts", label), plain(strings.Join(e.Hosts, ", ")))

		refs := e.References
		if refs == "" {
			refs = referencesPlaceholder
		}
		t.row(styled("References", label), plain(refs))

		merged := cellStyle{Span: 2, Shade: shadeSubtitle, Run: runStyle{Bold: true}}
		if e.Description != "" {
			t.row(styled("Description", merged))
			t.row(styled(e.Description, cellStyle{Span: 2}))
		}
		if e.Remediation != "" {
			t.row(styled("Recommendations", merged))
			t.row(styled(e.Remediation, cellStyle{Span: 2}))
		}
		b.pageBreak()
	}
}

// Close packages the document and closes the output. The chart image is
// removed whether or not packaging succeeds.
func (r *DocxReporter) Close() (err error) {
	if r.closed {
		return nil
	}
	r.closed = true
	startTime := time.Now()

	defer func() {
		if relErr := r.chart.Release(); relErr != nil {
			r.logger.Warn("Failed to remove chart image", zap.Error(relErr))
		}
	}()

	if r.doc == nil {
		r.logger.Warn("Closing reporter before a model was written")
		if closeErr := r.writer.Close(); closeErr != nil {
			return fmt.Errorf("failed to close output writer: %w", closeErr)
		}
		return nil
	}

	packErr := r.pack()
	// Always attempt to close the writer, regardless of packaging success.
	closeErr := r.writer.Close()

	if packErr != nil {
		r.logger.Error("Failed to package document", zap.Error(packErr))
		return fmt.Errorf("failed to write document: %w", packErr)
	}
	if closeErr != nil {
		r.logger.Error("Failed to close output writer", zap.Error(closeErr))
		return fmt.Errorf("failed to close output writer: %w", closeErr)
	}

	r.logger.Info("Successfully wrote DOCX report",
		zap.Int("findings", len(r.model.Findings)),
		zap.Duration("duration_ms", time.Since(startTime)),
	)
	return nil
}

// part is one entry of the zip package.
type part struct {
	name  string
	write func(io.Writer) error
}

func (r *DocxReporter) pack() error {
	parts := []part{
		{"[Content_Types].xml", writeXML(r.contentTypes())},
		{"_rels/.rels", writeXML(packageRels())},
		{"word/document.xml", writeXML(r.doc)},
		{"word/_rels/document.xml.rels", writeXML(r.documentRels())},
		{"docProps/core.xml", writeXML(r.coreProps())},
	}
	if r.chart != nil {
		parts = append(parts, part{chartPart, copyFile(r.chart.Path)})
	}

	zw := zip.NewWriter(r.writer)
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("creating %s: %w", p.name, err)
		}
		if err := p.write(w); err != nil {
			return fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

func writeXML(doc *etree.Document) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := doc.WriteTo(w)
		return err
	}
}

func copyFile(path string) func(io.Writer) error {
	return func(w io.Writer) error {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, f)
		return err
	}
}

func newPart(root, ns string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	el := doc.CreateElement(root)
	el.CreateAttr("xmlns", ns)
	return doc, el
}

func (r *DocxReporter) contentTypes() *etree.Document {
	doc, types := newPart("Types", nsContentTypes)
	def := func(ext, ct string) {
		d := types.CreateElement("Default")
		d.CreateAttr("Extension", ext)
		d.CreateAttr("ContentType", ct)
	}
	override := func(name, ct string) {
		o := types.CreateElement("Override")
		o.CreateAttr("PartName", name)
		o.CreateAttr("ContentType", ct)
	}
	def("rels", "application/vnd.openxmlformats-package.relationships+xml")
	def("xml", "application/xml")
	if r.chart != nil {
		def("png", "image/png")
	}
	override("/word/document.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml")
	override("/docProps/core.xml", "application/vnd.openxmlformats-package.core-properties+xml")
	return doc
}

func addRel(rels *etree.Element, id, typ, target string) {
	rel := rels.CreateElement("Relationship")
	rel.CreateAttr("Id", id)
	rel.CreateAttr("Type", typ)
	rel.CreateAttr("Target", target)
}

func packageRels() *etree.Document {
	doc, rels := newPart("Relationships", nsPackageRels)
	addRel(rels, "rId1", relOfficeDocument, "word/document.xml")
	addRel(rels, "rId2", relCoreProps, "docProps/core.xml")
	return doc
}

func (r *DocxReporter) documentRels() *etree.Document {
	doc, rels := newPart("Relationships", nsPackageRels)
	if r.chart != nil {
		addRel(rels, chartRelID, relImage, strings.TrimPrefix(chartPart, "word/"))
	}
	return doc
}

func (r *DocxReporter) coreProps() *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	props := doc.CreateElement("cp:coreProperties")
	props.CreateAttr("xmlns:cp", nsCoreProps)
	props.CreateAttr("xmlns:dc", "http://purl.org/dc/elements/1.1/")
	props.CreateAttr("xmlns:dcterms", "http://purl.org/dc/terms/")
	props.CreateAttr("xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance")

	props.CreateElement("dc:title").SetText(xmlSafe(r.title()))
	props.CreateElement("dc:creator").SetText(xmlSafe(r.opts.Author))
	props.CreateElement("dc:identifier").SetText("urn:uuid:" + r.newID().String())
	if r.model.Source != "" {
		props.CreateElement("dc:subject").SetText(xmlSafe(r.model.Source))
	}
	if r.toolVersion != "" {
		props.CreateElement("cp:keywords").SetText("vulnreport " + r.toolVersion)
	}
	created := props.CreateElement("dcterms:created")
	created.CreateAttr("xsi:type", "dcterms:W3CDTF")
	stamp := r.model.GeneratedAt
	if stamp.IsZero() {
		stamp = r.now()
	}
	created.SetText(stamp.UTC().Format(time.RFC3339))
	return doc
}
