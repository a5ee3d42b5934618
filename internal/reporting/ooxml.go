package reporting

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/vulnreport/internal/findings"
)

// Namespaces used by the generated WordprocessingML parts.
const (
	nsW   = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsR   = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"

	nsContentTypes = "http://schemas.openxmlformats.org/package/2006/content-types"
	nsPackageRels  = "http://schemas.openxmlformats.org/package/2006/relationships"
	nsCoreProps    = "http://schemas.openxmlformats.org/package/2006/metadata/core-properties"

	relOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	relCoreProps      = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
	relImage          = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"
)

// Page geometry in twentieths of a point (US Letter, one inch margins).
const (
	pageWidth    = 12240
	pageHeight   = 15840
	pageMargin   = 1440
	contentWidth = pageWidth - 2*pageMargin

	emuPerInch = 914400
	chartEMU   = 5 * emuPerInch
)

// Colors that are not tied to a severity.
const (
	colorHeading  findings.Color = "0000FF"
	colorWhite    findings.Color = "FFFFFF"
	shadeHeader   findings.Color = "D9D9D9"
	shadeSubtitle findings.Color = "F2F2F2"
)

// runStyle is the subset of character formatting the report uses.
type runStyle struct {
	Bold  bool
	Size  int // half-points, 0 keeps the default
	Color findings.Color
}

// cellStyle is the subset of table cell formatting the report uses.
type cellStyle struct {
	Span  int
	Shade findings.Color
	Run   runStyle
}

// body wraps the w:body element with the paragraph and table builders.
type body struct {
	el *etree.Element
}

func newDocument() (*etree.Document, body) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8" standalone="yes"`)
	root := doc.CreateElement("w:document")
	root.CreateAttr("xmlns:w", nsW)
	root.CreateAttr("xmlns:r", nsR)
	root.CreateAttr("xmlns:wp", nsWP)
	root.CreateAttr("xmlns:a", nsA)
	root.CreateAttr("xmlns:pic", nsPic)
	return doc, body{el: root.CreateElement("w:body")}
}

// finish appends the section properties, which must be the last body child.
func (b body) finish() {
	sect := b.el.CreateElement("w:sectPr")
	sz := sect.CreateElement("w:pgSz")
	sz.CreateAttr("w:w", strconv.Itoa(pageWidth))
	sz.CreateAttr("w:h", strconv.Itoa(pageHeight))
	mar := sect.CreateElement("w:pgMar")
	for _, side := range []string{"w:top", "w:right", "w:bottom", "w:left"} {
		mar.CreateAttr(side, strconv.Itoa(pageMargin))
	}
}

func (b body) paragraph(text string, style runStyle) *etree.Element {
	p := b.el.CreateElement("w:p")
	addRun(p, text, style)
	return p
}

func (b body) centered(text string, style runStyle) *etree.Element {
	p := b.el.CreateElement("w:p")
	center(p)
	addRun(p, text, style)
	return p
}

func (b body) heading(text string) *etree.Element {
	return b.paragraph(text, runStyle{Bold: true, Size: 32})
}

func (b body) pageBreak() {
	r := b.el.CreateElement("w:p").CreateElement("w:r")
	r.CreateElement("w:br").CreateAttr("w:type", "page")
}

// center must run before any run is added; w:pPr is the first child of w:p.
func center(p *etree.Element) {
	p.CreateElement("w:pPr").CreateElement("w:jc").CreateAttr("w:val", "center")
}

// addRun appends a run to p. Line breaks in text become w:br elements.
func addRun(p *etree.Element, text string, style runStyle) *etree.Element {
	r := p.CreateElement("w:r")
	if style != (runStyle{}) {
		rPr := r.CreateElement("w:rPr")
		if style.Bold {
			rPr.CreateElement("w:b")
		}
		if style.Color != "" {
			rPr.CreateElement("w:color").CreateAttr("w:val", string(style.Color))
		}
		if style.Size > 0 {
			rPr.CreateElement("w:sz").CreateAttr("w:val", strconv.Itoa(style.Size))
		}
	}
	lines := strings.Split(strings.ReplaceAll(xmlSafe(text), "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i > 0 {
			r.CreateElement("w:br")
		}
		t := r.CreateElement("w:t")
		t.CreateAttr("xml:space", "preserve")
		t.SetText(line)
	}
	return r
}

// table is a bordered, full-width grid.
type table struct {
	el     *etree.Element
	widths []int
}

func (b body) table(caption string, widths ...int) *table {
	tbl := b.el.CreateElement("w:tbl")
	pr := tbl.CreateElement("w:tblPr")
	w := pr.CreateElement("w:tblW")
	w.CreateAttr("w:w", strconv.Itoa(contentWidth))
	w.CreateAttr("w:type", "dxa")
	borders := pr.CreateElement("w:tblBorders")
	for _, edge := range []string{"w:top", "w:left", "w:bottom", "w:right", "w:insideH", "w:insideV"} {
		e := borders.CreateElement(edge)
		e.CreateAttr("w:val", "single")
		e.CreateAttr("w:sz", "4")
		e.CreateAttr("w:space", "0")
		e.CreateAttr("w:color", "auto")
	}
	pr.CreateElement("w:tblCaption").CreateAttr("w:val", caption)
	grid := tbl.CreateElement("w:tblGrid")
	for _, width := range widths {
		grid.CreateElement("w:gridCol").CreateAttr("w:w", strconv.Itoa(width))
	}
	return &table{el: tbl, widths: widths}
}

// evenWidths splits the content width into n equal columns.
func evenWidths(n int) []int {
	widths := make([]int, n)
	for i := range widths {
		widths[i] = contentWidth / n
	}
	return widths
}

// row appends a row. Cells span one grid column unless their style says otherwise.
func (t *table) row(cells ...cell) {
	tr := t.el.CreateElement("w:tr")
	col := 0
	for _, c := range cells {
		span := max(c.style.Span, 1)
		width := 0
		for i := col; i < col+span && i < len(t.widths); i++ {
			width += t.widths[i]
		}
		col += span

		tc := tr.CreateElement("w:tc")
		pr := tc.CreateElement("w:tcPr")
		w := pr.CreateElement("w:tcW")
		w.CreateAttr("w:w", strconv.Itoa(width))
		w.CreateAttr("w:type", "dxa")
		if span > 1 {
			pr.CreateElement("w:gridSpan").CreateAttr("w:val", strconv.Itoa(span))
		}
		if c.style.Shade != "" {
			shd := pr.CreateElement("w:shd")
			shd.CreateAttr("w:val", "clear")
			shd.CreateAttr("w:color", "auto")
			shd.CreateAttr("w:fill", string(c.style.Shade))
		}
		// Every cell needs at least one paragraph, even when empty.
		addRun(tc.CreateElement("w:p"), c.text, c.style.Run)
	}
}

type cell struct {
	text  string
	style cellStyle
}

func plain(text string) cell { return cell{text: text} }

func styled(text string, style cellStyle) cell { return cell{text: text, style: style} }

// image appends a centered paragraph with an inline picture referencing relID.
func (b body) image(relID, name string, cx, cy int) {
	p := b.el.CreateElement("w:p")
	center(p)
	drawing := p.CreateElement("w:r").CreateElement("w:drawing")

	inline := drawing.CreateElement("wp:inline")
	for _, d := range []string{"distT", "distB", "distL", "distR"} {
		inline.CreateAttr(d, "0")
	}
	extent := inline.CreateElement("wp:extent")
	extent.CreateAttr("cx", strconv.Itoa(cx))
	extent.CreateAttr("cy", strconv.Itoa(cy))
	docPr := inline.CreateElement("wp:docPr")
	docPr.CreateAttr("id", "1")
	docPr.CreateAttr("name", name)

	graphicData := inline.CreateElement("a:graphic").CreateElement("a:graphicData")
	graphicData.CreateAttr("uri", nsPic)
	pic := graphicData.CreateElement("pic:pic")

	nv := pic.CreateElement("pic:nvPicPr")
	cNvPr := nv.CreateElement("pic:cNvPr")
	cNvPr.CreateAttr("id", "0")
	cNvPr.CreateAttr("name", name)
	nv.CreateElement("pic:cNvPicPr")

	fill := pic.CreateElement("pic:blipFill")
	fill.CreateElement("a:blip").CreateAttr("r:embed", relID)
	fill.CreateElement("a:stretch").CreateElement("a:fillRect")

	spPr := pic.CreateElement("pic:spPr")
	xfrm := spPr.CreateElement("a:xfrm")
	off := xfrm.CreateElement("a:off")
	off.CreateAttr("x", "0")
	off.CreateAttr("y", "0")
	ext := xfrm.CreateElement("a:ext")
	ext.CreateAttr("cx", strconv.Itoa(cx))
	ext.CreateAttr("cy", strconv.Itoa(cy))
	geom := spPr.CreateElement("a:prstGeom")
	geom.CreateAttr("prst", "rect")
	geom.CreateElement("a:avLst")
}

// xmlSafe drops characters that XML 1.0 cannot carry. Scanner exports
// occasionally contain raw control bytes copied from service banners.
func xmlSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\t', r == '\n', r == '\r':
			return r
		case r < 0x20, r == 0xFFFE, r == 0xFFFF:
			return -1
		case r >= 0xD800 && r <= 0xDFFF:
			return -1
		}
		return r
	}, s)
}
