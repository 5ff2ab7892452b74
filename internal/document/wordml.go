package document

import (
	"encoding/xml"
	"strconv"
	"strings"
)

// run is a piece of text with uniform formatting.
type run struct {
	text      string
	bold      bool
	italic    bool
	underline bool
	// size in half-points, 0 keeps the document default
	size int
}

// paragraph renders as one w:p element.
type paragraph struct {
	runs   []run
	before int
	after  int
	indent int
}

func text(s string) run { return run{text: s} }

func bold(s string) run { return run{text: s, bold: true} }

func italic(s string) run { return run{text: s, italic: true} }

func (p paragraph) write(b *strings.Builder) {
	b.WriteString("<w:p>")
	if p.before > 0 || p.after > 0 || p.indent > 0 {
		b.WriteString("<w:pPr>")
		if p.before > 0 || p.after > 0 {
			b.WriteString(`<w:spacing w:before="` + strconv.Itoa(p.before) + `" w:after="` + strconv.Itoa(p.after) + `"/>`)
		}
		if p.indent > 0 {
			b.WriteString(`<w:ind w:left="` + strconv.Itoa(p.indent) + `" w:hanging="240"/>`)
		}
		b.WriteString("</w:pPr>")
	}

	for _, r := range p.runs {
		if r.text == "" {
			continue
		}
		b.WriteString("<w:r>")
		if r.bold || r.italic || r.underline || r.size > 0 {
			b.WriteString("<w:rPr>")
			if r.bold {
				b.WriteString("<w:b/>")
			}
			if r.italic {
				b.WriteString("<w:i/>")
			}
			if r.underline {
				b.WriteString(`<w:u w:val="single"/>`)
			}
			if r.size > 0 {
				b.WriteString(`<w:sz w:val="` + strconv.Itoa(r.size) + `"/>`)
			}
			b.WriteString("</w:rPr>")
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		_ = xml.EscapeText(b, []byte(r.text))
		b.WriteString("</w:t></w:r>")
	}
	b.WriteString("</w:p>")
}

type body struct {
	paragraphs []paragraph
}

func (d *body) add(runs ...run) *paragraph {
	d.paragraphs = append(d.paragraphs, paragraph{runs: runs})
	return &d.paragraphs[len(d.paragraphs)-1]
}

func (d *body) section(title string) {
	d.paragraphs = append(d.paragraphs, paragraph{
		runs:   []run{{text: title, bold: true, underline: true, size: 24}},
		before: 240,
		after:  120,
	})
}

func (d *body) bullet(s string) {
	d.paragraphs = append(d.paragraphs, paragraph{runs: []run{text("• " + s)}, indent: 360})
}

func (d *body) xml() string {
	var b strings.Builder
	for _, p := range d.paragraphs {
		p.write(&b)
	}
	if b.Len() == 0 {
		return "<w:p/>"
	}
	return b.String()
}
