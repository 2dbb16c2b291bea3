package render

import (
	"bytes"
	"fmt"
	"strconv"
)

const (
	linesPerPage = 48
	maxLineRunes = 95
)

// writePDF lays out lines of text on A4 pages using the standard Helvetica
// font. No timestamps or random ids are written.
func writePDF(title string, lines []string) []byte {
	pages := paginate(wrap(lines))

	// Object numbers: 1 catalog, 2 page tree, 3 font, 4 info, then a page
	// and its content stream per page.
	objCount := 4 + 2*len(pages)
	offsets := make([]int, objCount+1)
	buf := &bytes.Buffer{}
	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	writeObj := func(num int, body string) {
		offsets[num] = buf.Len()
		fmt.Fprintf(buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	kids := &bytes.Buffer{}
	for i := range pages {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(kids, "%d 0 R", 5+2*i)
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(pages)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	writeObj(4, fmt.Sprintf("<< /Producer (contractseal) /Title %s >>", pdfString(title)))

	for i, page := range pages {
		pageNum := 5 + 2*i
		contentNum := pageNum + 1
		writeObj(pageNum, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			contentNum,
		))
		stream := contentStream(page)
		writeObj(contentNum, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(buf, "xref\n0 %d\n", objCount+1)
	buf.WriteString("0000000000 65535 f \n")
	for num := 1; num <= objCount; num++ {
		fmt.Fprintf(buf, "%010d 00000 n \n", offsets[num])
	}
	fmt.Fprintf(buf, "trailer\n<< /Size %d /Root 1 0 R /Info 4 0 R >>\nstartxref\n%d\n%%%%EOF\n", objCount+1, xref)
	return buf.Bytes()
}

func contentStream(lines []string) string {
	b := &bytes.Buffer{}
	b.WriteString("BT\n/F1 11 Tf\n14 TL\n56 790 Td\n")
	for _, line := range lines {
		b.WriteString(pdfString(line))
		b.WriteString(" Tj T*\n")
	}
	b.WriteString("ET")
	return b.String()
}

func wrap(lines []string) []string {
	var out []string
	for _, line := range lines {
		runes := []rune(line)
		for len(runes) > maxLineRunes {
			out = append(out, string(runes[:maxLineRunes]))
			runes = runes[maxLineRunes:]
		}
		out = append(out, string(runes))
	}
	return out
}

func paginate(lines []string) [][]string {
	if len(lines) == 0 {
		return [][]string{{}}
	}
	var pages [][]string
	for len(lines) > linesPerPage {
		pages = append(pages, lines[:linesPerPage])
		lines = lines[linesPerPage:]
	}
	return append(pages, lines)
}

// pdfString encodes s as a literal string. Runes outside Latin-1 have no
// glyph in WinAnsi Helvetica and are written as octal escapes of '?'.
func pdfString(s string) string {
	b := &bytes.Buffer{}
	b.WriteByte('(')
	for _, r := range s {
		switch {
		case r == '(' || r == ')' || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r >= 0x20 && r < 0x7f:
			b.WriteRune(r)
		case r >= 0xa0 && r <= 0xff:
			b.WriteString("\\" + strconv.FormatInt(int64(r), 8))
		default:
			b.WriteString("\\077")
		}
	}
	b.WriteByte(')')
	return b.String()
}
