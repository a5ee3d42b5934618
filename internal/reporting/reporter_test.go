package reporting

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/vulnreport/internal/findings"
	"github.com/xkilldash9x/vulnreport/internal/ingest"
	"github.com/xkilldash9x/vulnreport/internal/results"
)

const testToolVersion = "v1.0.0-test"

// -- Test Helpers --

type rec struct {
	name, host, port, severity, refs, desc, fix string
}

func buildModel(rows ...rec) *results.Model {
	records := make([]ingest.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, ingest.Record{
			ingest.FieldFindingName: r.name,
			ingest.FieldHost:        r.host,
			ingest.FieldPort:        r.port,
			ingest.FieldSeverity:    r.severity,
			ingest.FieldReferences:  r.refs,
			ingest.FieldDescription: r.desc,
			ingest.FieldRemediation: r.fix,
		})
	}
	return results.Build(findings.Collect(slices.Values(records)), results.BuildOptions{
		Title:  "Quarterly Assessment",
		Source: "scan.csv",
		Now:    func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func scenarioModel() *results.Model {
	return buildModel(
		rec{name: "SQLi", host: "10.0.0.1", port: "443", severity: "Critical", refs: "CVE-2024-0001", desc: "Injection in login\nand search", fix: "Use prepared statements"},
		rec{name: "SQLi", host: "10.0.0.1", port: "443", severity: "Critical"},
		rec{name: "Banner", host: "10.0.0.3", port: "22", severity: "Informational"},
		rec{name: "Weak Cipher", host: "10.0.0.2", severity: "Low"},
		rec{name: "SQLi", host: "10.0.0.4", port: "8443", severity: "Critical"},
	)
}

// render writes model through a DocxReporter backed by memory and returns the package.
func render(t *testing.T, model *results.Model, opts Options) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	r := NewDocxReporter(&nopWriteCloser{&buf}, testToolVersion, opts)
	require.NoError(t, r.Write(model))
	require.NoError(t, r.Close())

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err, "output must be a valid zip package")
	return zr
}

func partNames(zr *zip.Reader) []string {
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func readPart(t *testing.T, zr *zip.Reader, name string) *etree.Document {
	t.Helper()
	f, err := zr.Open(name)
	require.NoError(t, err, "missing part %s", name)
	defer f.Close()

	doc := etree.NewDocument()
	_, err = doc.ReadFrom(f)
	require.NoError(t, err, "part %s is not well-formed XML", name)
	return doc
}

func textOf(el *etree.Element) string {
	var parts []string
	for _, t := range el.FindElements(".//w:t") {
		parts = append(parts, t.Text())
	}
	return strings.Join(parts, "\n")
}

// bodyParagraphs returns the text of each top-level paragraph.
func bodyParagraphs(doc *etree.Document) []string {
	var out []string
	for _, p := range doc.FindElements("//w:body/w:p") {
		out = append(out, textOf(p))
	}
	return out
}

func tableByCaption(t *testing.T, doc *etree.Document, caption string) *etree.Element {
	t.Helper()
	for _, tbl := range doc.FindElements("//w:tbl") {
		if c := tbl.FindElement("./w:tblPr/w:tblCaption"); c != nil && c.SelectAttrValue("w:val", "") == caption {
			return tbl
		}
	}
	t.Fatalf("no table with caption %q", caption)
	return nil
}

func hasTable(doc *etree.Document, caption string) bool {
	for _, c := range doc.FindElements("//w:tblCaption") {
		if c.SelectAttrValue("w:val", "") == caption {
			return true
		}
	}
	return false
}

func rows(tbl *etree.Element) [][]*etree.Element {
	var out [][]*etree.Element
	for _, tr := range tbl.SelectElements("w:tr") {
		out = append(out, tr.SelectElements("w:tc"))
	}
	return out
}

func rowTexts(tbl *etree.Element) [][]string {
	var out [][]string
	for _, cells := range rows(tbl) {
		var texts []string
		for _, tc := range cells {
			texts = append(texts, textOf(tc))
		}
		out = append(out, texts)
	}
	return out
}

func attrOf(el *etree.Element, path, attr string) string {
	found := el.FindElement(path)
	if found == nil {
		return ""
	}
	return found.SelectAttrValue(attr, "")
}

func pageBreaks(doc *etree.Document) int {
	n := 0
	for _, br := range doc.FindElements("//w:br") {
		if br.SelectAttrValue("w:type", "") == "page" {
			n++
		}
	}
	return n
}

func tempEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// -- Factory --

func TestNew_Success_File(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "report.docx")

	r, err := New("docx", out, testToolVersion, Options{TempDir: dir})
	require.NoError(t, err)
	require.NoError(t, r.Write(scenarioModel()))
	require.NoError(t, r.Close())

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	assert.Contains(t, partNames(&zr.Reader), "word/document.xml")
	assert.Equal(t, []string{"report.docx"}, tempEntries(t, dir), "chart image must be removed")
}

func TestNew_FormatIsCaseInsensitive(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.docx")
	r, err := New("DOCX", out, testToolVersion, Options{})
	require.NoError(t, err)
	assert.NoError(t, r.Close())
}

func TestNew_Failure_UnsupportedFormat(t *testing.T) {
	out := filepath.Join(t.TempDir(), "report.sarif")

	r, err := New("sarif", out, testToolVersion, Options{})
	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), "sarif")

	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no output file is created for an unknown format")
}

func TestNew_Failure_FileCreation(t *testing.T) {
	// A directory cannot be opened as an output file.
	r, err := New("docx", t.TempDir(), testToolVersion, Options{})
	assert.Error(t, err)
	assert.Nil(t, r)
	assert.Contains(t, err.Error(), "failed to create output file")
}

func TestNopWriteCloser(t *testing.T) {
	var buf bytes.Buffer
	nwc := &nopWriteCloser{&buf}

	n, err := nwc.Write([]byte("test"))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "test", buf.String())
	assert.NoError(t, nwc.Close())
}

// -- Package structure --

func TestDocx_PackageParts(t *testing.T) {
	zr := render(t, scenarioModel(), Options{TempDir: t.TempDir(), ChartWidth: 320, ChartHeight: 240})

	names := partNames(zr)
	assert.Equal(t, "[Content_Types].xml", names[0], "content types must be the first entry")
	assert.ElementsMatch(t, []string{
		"[Content_Types].xml",
		"_rels/.rels",
		"word/document.xml",
		"word/_rels/document.xml.rels",
		"docProps/core.xml",
		"word/media/chart.png",
	}, names)

	types := readPart(t, zr, "[Content_Types].xml")
	var exts []string
	for _, d := range types.FindElements("//Default") {
		exts = append(exts, d.SelectAttrValue("Extension", ""))
	}
	assert.Contains(t, exts, "png")

	rels := readPart(t, zr, "word/_rels/document.xml.rels")
	rel := rels.FindElement("//Relationship")
	require.NotNil(t, rel)
	assert.Equal(t, "rId1", rel.SelectAttrValue("Id", ""))
	assert.Equal(t, "media/chart.png", rel.SelectAttrValue("Target", ""))

	doc := readPart(t, zr, "word/document.xml")
	assert.Equal(t, "rId1", attrOf(doc.Root(), ".//a:blip", "r:embed"))
	assert.Equal(t, strconv.Itoa(chartEMU), attrOf(doc.Root(), ".//wp:extent", "cx"))
	assert.Equal(t, strconv.Itoa(chartEMU*240/320), attrOf(doc.Root(), ".//wp:extent", "cy"))

	f, err := zr.Open("word/media/chart.png")
	require.NoError(t, err)
	defer f.Close()
	magic := make([]byte, 8)
	_, err = io.ReadFull(f, magic)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), magic)
}

func TestDocx_CoreProperties(t *testing.T) {
	var buf bytes.Buffer
	r := NewDocxReporter(&nopWriteCloser{&buf}, testToolVersion, Options{Author: "Red Team", TempDir: t.TempDir()})
	fixed := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	r.newID = func() uuid.UUID { return fixed }

	require.NoError(t, r.Write(scenarioModel()))
	require.NoError(t, r.Close())
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	core := readPart(t, zr, "docProps/core.xml").Root()
	assert.Equal(t, "Quarterly Assessment", core.FindElement("./dc:title").Text())
	assert.Equal(t, "Red Team", core.FindElement("./dc:creator").Text())
	assert.Equal(t, "urn:uuid:"+fixed.String(), core.FindElement("./dc:identifier").Text())
	assert.Equal(t, "scan.csv", core.FindElement("./dc:subject").Text())
	assert.Equal(t, "vulnreport "+testToolVersion, core.FindElement("./cp:keywords").Text())
	assert.Equal(t, "2024-05-01T12:00:00Z", core.FindElement("./dcterms:created").Text())
}

// -- Layout --

func TestDocx_TitlePage(t *testing.T) {
	zr := render(t, scenarioModel(), Options{TempDir: t.TempDir()})
	doc := readPart(t, zr, "word/document.xml")

	paras := bodyParagraphs(doc)
	require.NotEmpty(t, paras)
	assert.Equal(t, "Quarterly Assessment", paras[0])
	assert.Contains(t, paras, "Source: scan.csv")
	assert.Contains(t, paras, "Generated: 2024-05-01 12:00 UTC")
	assert.NotContains(t, paras, "No findings")

	legend := rowTexts(tableByCaption(t, doc, "Legend"))
	assert.Equal(t, [][]string{
		{"Severity", "Findings", "Occurrences"},
		{"Critical", "1", "3"},
		{"High", "0", "0"},
		{"Medium", "0", "0"},
		{"Low", "1", "1"},
	}, legend)

	legendRows := rows(tableByCaption(t, doc, "Legend"))
	assert.Equal(t, string(findings.ColorDarkRed), attrOf(legendRows[1][0], ".//w:color", "w:val"))
	assert.Equal(t, string(findings.ColorDarkGreen), attrOf(legendRows[4][0], ".//w:color", "w:val"))
}

func TestDocx_SummaryAndDetailNumberingAgree(t *testing.T) {
	zr := render(t, scenarioModel(), Options{TempDir: t.TempDir()})
	doc := readPart(t, zr, "word/document.xml")

	summary := rowTexts(tableByCaption(t, doc, "Summary"))
	require.Len(t, summary, 4)
	assert.Equal(t, []string{"#", "Finding", "Severity", "Affected Hosts"}, summary[0])
	assert.Equal(t, []string{"1", "SQLi", "Critical", "2"}, summary[1])
	assert.Equal(t, []string{"2", "Weak Cipher", "Low", "1"}, summary[2])
	assert.Equal(t, []string{"3", "Banner", "Informational", "1"}, summary[3])

	paras := bodyParagraphs(doc)
	for _, row := range summary[1:] {
		heading := row[0] + ". " + row[1]
		assert.Contains(t, paras, heading)
		assert.True(t, hasTable(doc, "Finding "+row[0]))
	}

	// Title page, after the summary, and one per finding.
	assert.Equal(t, 2+3, pageBreaks(doc))
}

func TestDocx_SeverityColors(t *testing.T) {
	zr := render(t, scenarioModel(), Options{TempDir: t.TempDir()})
	doc := readPart(t, zr, "word/document.xml")

	summary := rows(tableByCaption(t, doc, "Summary"))
	assert.Equal(t, string(findings.ColorDarkRed), attrOf(summary[1][2], ".//w:shd", "w:fill"))
	assert.Equal(t, string(findings.ColorDarkGreen), attrOf(summary[2][2], ".//w:shd", "w:fill"))
	assert.Equal(t, string(findings.ColorBlack), attrOf(summary[3][2], ".//w:shd", "w:fill"))

	for number, want := range map[string]findings.Color{
		"1": findings.ColorDarkRed,
		"2": findings.ColorDarkGreen,
		"3": findings.ColorBlack,
	} {
		detail := rows(tableByCaption(t, doc, "Finding "+number))
		assert.Equal(t, "Risk", textOf(detail[0][0]))
		assert.Equal(t, string(want), attrOf(detail[0][1], ".//w:color", "w:val"), "finding %s", number)
	}
}

func TestDocx_DetailTable(t *testing.T) {
	zr := render(t, scenarioModel(), Options{TempDir: t.TempDir()})
	doc := readPart(t, zr, "word/document.xml")

	sqli := tableByCaption(t, doc, "Finding 1")
	assert.Equal(t, [][]string{
		{"Risk", "Critical"},
		{"Affected Hosts", "10.0.0.1:443, 10.0.0.4:8443"},
		{"References", "CVE-2024-0001"},
		{"Description"},
		{"Injection in login\nand search"},
		{"Recommendations"},
		{"Use prepared statements"},
	}, rowTexts(sqli))

	merged := rows(sqli)
	assert.Equal(t, "2", attrOf(merged[3][0], "./w:tcPr/w:gridSpan", "w:val"))
	assert.Equal(t, "2", attrOf(merged[4][0], "./w:tcPr/w:gridSpan", "w:val"))

	// Multi-line text is split with line breaks inside one run.
	run := merged[4][0].FindElement(".//w:r")
	require.NotNil(t, run)
	assert.Len(t, run.SelectElements("w:t"), 2)
	assert.Len(t, run.SelectElements("w:br"), 1)

	weak := tableByCaption(t, doc, "Finding 2")
	assert.Equal(t, [][]string{
		{"Risk", "Low"},
		{"Affected Hosts", "10.0.0.2"},
		{"References", "n/a"},
	}, rowTexts(weak), "empty description and recommendations are omitted")

	for _, p := range doc.FindElements("//w:body/w:p") {
		if textOf(p) == "1. SQLi" {
			assert.Equal(t, string(colorHeading), attrOf(p, ".//w:color", "w:val"))
			assert.NotNil(t, p.FindElement(".//w:b"))
		}
	}
}

func TestDocx_ScopeTable(t *testing.T) {
	model := buildModel(
		rec{name: "A", host: "e", severity: "High"},
		rec{name: "A", host: "d", severity: "High"},
		rec{name: "B", host: "c", severity: "Low"},
		rec{name: "B", host: "b", severity: "Low"},
		rec{name: "B", host: "a", severity: "Low"},
	)
	zr := render(t, model, Options{ScopeColumns: 2, TempDir: t.TempDir()})
	doc := readPart(t, zr, "word/document.xml")

	assert.Equal(t, [][]string{
		{"a", "b"},
		{"c", "d"},
		{"e", ""},
	}, rowTexts(tableByCaption(t, doc, "Scope")))
}

func TestDocx_EmptyModel(t *testing.T) {
	dir := t.TempDir()
	zr := render(t, buildModel(), Options{TempDir: dir})

	assert.NotContains(t, partNames(zr), "word/media/chart.png")
	assert.Empty(t, tempEntries(t, dir), "no chart image is rendered for an empty model")

	doc := readPart(t, zr, "word/document.xml")
	paras := bodyParagraphs(doc)
	assert.Contains(t, paras, "No findings")
	assert.Contains(t, paras, "No hosts in scope.")
	assert.Nil(t, doc.FindElement("//w:drawing"))
	assert.False(t, hasTable(doc, "Summary"))

	rels := readPart(t, zr, "word/_rels/document.xml.rels")
	assert.Nil(t, rels.FindElement("//Relationship"))
}

func TestDocx_OnlyUnrecognizedSeverities(t *testing.T) {
	model := buildModel(rec{name: "Banner", host: "h", severity: "Informational"})
	zr := render(t, model, Options{TempDir: t.TempDir()})
	doc := readPart(t, zr, "word/document.xml")

	paras := bodyParagraphs(doc)
	assert.Contains(t, paras, "No findings with a charted severity", "chart weight is zero")
	assert.NotContains(t, paras, "No findings")
	assert.Contains(t, paras, "1. Banner", "the finding is still detailed")
	assert.Nil(t, doc.FindElement("//w:drawing"))
}

// -- Lifecycle --

type failingWriter struct {
	closed bool
}

func (w *failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }
func (w *failingWriter) Close() error {
	w.closed = true
	return nil
}

func TestDocx_ChartReleasedWhenWriterFails(t *testing.T) {
	dir := t.TempDir()
	w := &failingWriter{}
	r := NewDocxReporter(w, testToolVersion, Options{TempDir: dir})

	require.NoError(t, r.Write(scenarioModel()))
	require.Len(t, tempEntries(t, dir), 1, "chart image exists until Close")

	err := r.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.True(t, w.closed, "writer is closed even when packaging fails")
	assert.Empty(t, tempEntries(t, dir))
}

func TestDocx_CloseWithoutWrite(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	r := NewDocxReporter(&nopWriteCloser{&buf}, testToolVersion, Options{TempDir: dir})

	assert.NoError(t, r.Close())
	assert.Zero(t, buf.Len())
	assert.NoError(t, r.Close(), "Close is idempotent")
}

func TestDocx_WriteErrors(t *testing.T) {
	r := NewDocxReporter(&nopWriteCloser{io.Discard}, testToolVersion, Options{TempDir: t.TempDir()})
	assert.Error(t, r.Write(nil))

	require.NoError(t, r.Write(buildModel()))
	assert.EqualError(t, r.Write(buildModel()), "report already written")

	require.NoError(t, r.Close())
	assert.EqualError(t, r.Write(buildModel()), "reporter is closed")
}

// -- Chart --

func TestChartRenderer_Render(t *testing.T) {
	dir := t.TempDir()
	renderer := ChartRenderer{Title: "Vulnerability Assessment", Width: 300, Height: 300, TempDir: dir}

	model := scenarioModel()
	chart, err := renderer.Render(model.Chart)
	require.NoError(t, err)
	require.NotNil(t, chart)

	assert.Equal(t, dir, filepath.Dir(chart.Path))
	assert.True(t, strings.HasPrefix(filepath.Base(chart.Path), "vulnreport-chart-"))
	data, err := os.ReadFile(chart.Path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	hist := colorHistogram(t, chart.Path)
	assert.Positive(t, hist[findings.ColorDarkRed], "critical slice is filled")
	assert.Positive(t, hist[findings.ColorDarkGreen], "low slice is filled")

	require.NoError(t, chart.Release())
	assert.Empty(t, tempEntries(t, dir))
	assert.NoError(t, chart.Release(), "Release is idempotent")
}

func TestChartRenderer_SingleSeverityIsFilled(t *testing.T) {
	dir := t.TempDir()
	renderer := ChartRenderer{Title: "Vulnerability Assessment", Width: 640, Height: 480, TempDir: dir}

	model := buildModel(
		rec{name: "SQLi", host: "10.0.0.1", port: "443", severity: "Critical"},
		rec{name: "RCE", host: "10.0.0.2", port: "8080", severity: "Critical"},
		rec{name: "RCE", host: "10.0.0.3", port: "8080", severity: "Critical"},
	)
	chart, err := renderer.Render(model.Chart)
	require.NoError(t, err)
	defer chart.Release()

	hist := colorHistogram(t, chart.Path)
	assert.Greater(t, hist[findings.ColorDarkRed], 640*480/10, "the whole disc carries the severity color")
	for c := range hist {
		assert.NotContains(t, []findings.Color{findings.ColorRed, findings.ColorOrange, findings.ColorDarkGreen}, c)
	}
}

// colorHistogram counts the opaque pixels of a PNG by color.
func colorHistogram(t *testing.T, path string) map[findings.Color]int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)

	hist := make(map[findings.Color]int)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A != 0xff {
				continue
			}
			hist[findings.Color(fmt.Sprintf("%02X%02X%02X", c.R, c.G, c.B))]++
		}
	}
	return hist
}

func TestChartRenderer_Empty(t *testing.T) {
	dir := t.TempDir()
	renderer := ChartRenderer{Width: 100, Height: 100, TempDir: dir}

	chart, err := renderer.Render(buildModel().Chart)
	assert.Nil(t, chart)
	assert.ErrorIs(t, err, ErrEmptyChart)
	assert.Empty(t, tempEntries(t, dir))
}

func TestChartFile_ReleaseNil(t *testing.T) {
	var f *ChartFile
	assert.NoError(t, f.Release())
}

func TestXMLSafe(t *testing.T) {
	assert.Equal(t, "ab\tc\nd", xmlSafe("a\x00b\tc\nd\x1b"))
	assert.Equal(t, "plain", xmlSafe("plain"))
}
