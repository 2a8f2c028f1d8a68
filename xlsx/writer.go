package xlsx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/sheetkit/sheetkit/sheet"
)

const (
	nsMain = "http://schemas.openxmlformats.org/spreadsheetml/2006/main"
	nsRels = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

const contentTypesTemplate = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/xl/workbook.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sheet.main+xml"/>
<Override PartName="/xl/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.styles+xml"/>
<Override PartName="/xl/sharedStrings.xml" ContentType="application/vnd.openxmlformats-officedocument.spreadsheetml.sharedStrings+xml"/>
%s</Types>
`

const rootRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="xl/workbook.xml"/>
</Relationships>
`

const minimalStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<styleSheet xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main">
<fonts count="1"><font><sz val="11"/><name val="Calibri"/></font></fonts>
<fills count="1"><fill><patternFill patternType="none"/></fill></fills>
<borders count="1"><border/></borders>
<cellStyleXfs count="1"><xf/></cellStyleXfs>
<cellXfs count="1"><xf/></cellXfs>
</styleSheet>
`

// writer-side XML shapes. These are separate from the reader shapes
// because output needs explicit namespaces and omitted empty fields.

type xlsxSST struct {
	XMLName     xml.Name     `xml:"sst"`
	XMLNS       string       `xml:"xmlns,attr"`
	Count       int          `xml:"count,attr"`
	UniqueCount int          `xml:"uniqueCount,attr"`
	Items       []xlsxSSItem `xml:"si"`
}

type xlsxSSItem struct {
	Text xlsxText `xml:"t"`
}

// xlsxText carries xml:space="preserve" so leading and trailing blanks
// survive the round trip
type xlsxText struct {
	Space string `xml:"xml:space,attr,omitempty"`
	Value string `xml:",chardata"`
}

type xlsxWorksheet struct {
	XMLName   xml.Name  `xml:"worksheet"`
	XMLNS     string    `xml:"xmlns,attr"`
	SheetData []xlsxRow `xml:"sheetData>row"`
}

type xlsxRow struct {
	R     int        `xml:"r,attr"`
	Cells []xlsxCell `xml:"c"`
}

type xlsxCell struct {
	R string `xml:"r,attr"`
	T string `xml:"t,attr,omitempty"`
	F string `xml:"f,omitempty"`
	V string `xml:"v,omitempty"`
}

// Save writes the workbook to an .xlsx file
func Save(wb *sheet.Workbook, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create %s: %w", filename, err)
	}
	if err := Write(wb, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filename, err)
	}
	return nil
}

// Write serializes the workbook as an OOXML package. Formula cells are
// written with their cached results so other applications can display
// the file without recalculating it.
func Write(wb *sheet.Workbook, w io.Writer) error {
	names := wb.Sheets()
	if len(names) == 0 {
		return fmt.Errorf("workbook has no worksheets")
	}

	archive := zip.NewWriter(w)
	table := NewSharedStrings()

	// worksheets first so the shared string table is complete before
	// sharedStrings.xml is written
	sheetParts := make([][]byte, len(names))
	for i, name := range names {
		ws, _ := wb.Sheet(name)
		part, err := marshalWorksheet(ws, table)
		if err != nil {
			return fmt.Errorf("worksheet %s: %w", name, err)
		}
		sheetParts[i] = part
	}

	if err := writePart(archive, "[Content_Types].xml", contentTypes(len(names))); err != nil {
		return err
	}
	if err := writePart(archive, "_rels/.rels", []byte(rootRels)); err != nil {
		return err
	}
	if err := writePart(archive, "xl/workbook.xml", workbookPart(names)); err != nil {
		return err
	}
	if err := writePart(archive, "xl/_rels/workbook.xml.rels", workbookRels(len(names))); err != nil {
		return err
	}
	if err := writePart(archive, "xl/styles.xml", []byte(minimalStyles)); err != nil {
		return err
	}

	sst, err := marshalSharedStrings(table)
	if err != nil {
		return err
	}
	if err := writePart(archive, "xl/sharedStrings.xml", sst); err != nil {
		return err
	}

	for i, part := range sheetParts {
		name := fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
		if err := writePart(archive, name, part); err != nil {
			return err
		}
	}

	if err := archive.Close(); err != nil {
		return fmt.Errorf("finalize package: %w", err)
	}
	return nil
}

func writePart(archive *zip.Writer, name string, data []byte) error {
	part, err := archive.Create(name)
	if err != nil {
		return fmt.Errorf("create part %s: %w", name, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write part %s: %w", name, err)
	}
	return nil
}

func contentTypes(sheetCount int) []byte {
	var overrides bytes.Buffer
	for i := 1; i <= sheetCount; i++ {
		fmt.Fprintf(&overrides,
			"<Override PartName=\"/xl/worksheets/sheet%d.xml\" ContentType=\"application/vnd.openxmlformats-officedocument.spreadsheetml.worksheet+xml\"/>\n", i)
	}
	return []byte(fmt.Sprintf(contentTypesTemplate, overrides.String()))
}

// workbookPart builds xl/workbook.xml by hand: encoding/xml cannot emit
// prefixed attributes like r:id cleanly
func workbookPart(names []string) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	fmt.Fprintf(&buf, `<workbook xmlns=%q xmlns:r=%q>`+"\n", nsMain, nsRels)
	buf.WriteString("<sheets>\n")
	for i, name := range names {
		fmt.Fprintf(&buf, `<sheet name="%s" sheetId="%d" r:id="rId%d"/>`+"\n", xmlEscape(name), i+1, i+1)
	}
	buf.WriteString("</sheets>\n</workbook>\n")
	return buf.Bytes()
}

func workbookRels(sheetCount int) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	buf.WriteString(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` + "\n")
	for i := 1; i <= sheetCount; i++ {
		fmt.Fprintf(&buf,
			`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet" Target="worksheets/sheet%d.xml"/>`+"\n", i, i)
	}
	fmt.Fprintf(&buf,
		`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>`+"\n", sheetCount+1)
	fmt.Fprintf(&buf,
		`<Relationship Id="rId%d" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/sharedStrings" Target="sharedStrings.xml"/>`+"\n", sheetCount+2)
	buf.WriteString("</Relationships>\n")
	return buf.Bytes()
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

func marshalSharedStrings(table *SharedStrings) ([]byte, error) {
	sst := xlsxSST{
		XMLNS:       nsMain,
		Count:       table.TotalRefs(),
		UniqueCount: table.Count(),
	}
	table.Each(func(id int, text string) {
		sst.Items = append(sst.Items, xlsxSSItem{Text: newXlsxText(text)})
	})

	data, err := xml.Marshal(sst)
	if err != nil {
		return nil, fmt.Errorf("marshal shared strings: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

func newXlsxText(text string) xlsxText {
	t := xlsxText{Value: text}
	if len(text) > 0 && (text[0] == ' ' || text[len(text)-1] == ' ') {
		t.Space = "preserve"
	}
	return t
}

func marshalWorksheet(ws *sheet.Worksheet, table *SharedStrings) ([]byte, error) {
	// sparse map to sorted rows of sorted cells
	byRow := make(map[int][]sheet.CellKey)
	ws.Each(func(key sheet.CellKey, _ *sheet.Cell) {
		byRow[key.Row] = append(byRow[key.Row], key)
	})
	rowNums := make([]int, 0, len(byRow))
	for row := range byRow {
		rowNums = append(rowNums, row)
	}
	sort.Ints(rowNums)

	doc := xlsxWorksheet{XMLNS: nsMain}
	for _, row := range rowNums {
		keys := byRow[row]
		sort.Slice(keys, func(i, j int) bool { return keys[i].Col < keys[j].Col })

		outRow := xlsxRow{R: row + 1}
		for _, key := range keys {
			cell := ws.Cell(key.Row, key.Col)
			out, err := encodeCell(key, cell, table)
			if err != nil {
				return nil, err
			}
			outRow.Cells = append(outRow.Cells, out)
		}
		doc.SheetData = append(doc.SheetData, outRow)
	}

	data, err := xml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal sheet data: %w", err)
	}
	return append([]byte(xml.Header), data...), nil
}

func encodeCell(key sheet.CellKey, cell *sheet.Cell, table *SharedStrings) (xlsxCell, error) {
	out := xlsxCell{R: sheet.CellName(key.Row, key.Col)}

	if cell.IsFormula() {
		out.F = cell.Formula[1:] // stored text always begins with =
		// cached results are written inline, strings as t="str"
		t, v := encodeValue(cell.Result, nil)
		out.T = t
		out.V = v
		return out, nil
	}

	t, v := encodeValue(cell.Value, table)
	out.T = t
	out.V = v
	return out, nil
}

// encodeValue maps a primitive to an OOXML cell type and value text.
// Strings go through the shared table when one is supplied.
func encodeValue(value sheet.Primitive, table *SharedStrings) (t, v string) {
	switch val := value.(type) {
	case nil:
		return "", ""
	case float64:
		return "", formatNumber(val)
	case bool:
		if val {
			return "b", "1"
		}
		return "b", "0"
	case string:
		if table != nil {
			return "s", strconv.Itoa(table.Intern(val))
		}
		return "str", val
	case *sheet.CellError:
		return "e", val.Token()
	default:
		return "str", sheet.ToString(value)
	}
}

func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
