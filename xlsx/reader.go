package xlsx

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/sheetkit/sheetkit/sheet"
)

// XML shapes for the parts of an OOXML package the reader consumes.
// Attribute and element names match by local name, so the documents'
// namespace prefixes do not matter here.

type workbookXML struct {
	Sheets []struct {
		Name    string `xml:"name,attr"`
		SheetID string `xml:"sheetId,attr"`
		RID     string `xml:"id,attr"`
	} `xml:"sheets>sheet"`
}

type relationshipsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type sstXML struct {
	Items []struct {
		Plain *string  `xml:"t"`
		Runs  []string `xml:"r>t"`
	} `xml:"si"`
}

type worksheetXML struct {
	Rows []struct {
		Cells []cellXML `xml:"c"`
	} `xml:"sheetData>row"`
}

type cellXML struct {
	Ref     string  `xml:"r,attr"`
	Type    string  `xml:"t,attr"`
	Value   string  `xml:"v"`
	Formula *string `xml:"f"`
	Inline  *struct {
		Text string `xml:"t"`
	} `xml:"is"`
}

// Open reads an .xlsx file into a workbook. Formula cells carry their
// formula text; call Calculate on the result to populate them.
func Open(filename string) (*sheet.Workbook, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filename, err)
	}
	return Read(f, info.Size())
}

// Read loads an .xlsx package from a reader
func Read(r io.ReaderAt, size int64) (*sheet.Workbook, error) {
	archive, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("read package: %w", err)
	}

	parts := make(map[string]*zip.File, len(archive.File))
	for _, file := range archive.File {
		parts[file.Name] = file
	}

	var book workbookXML
	if err := decodePart(parts, "xl/workbook.xml", &book); err != nil {
		return nil, err
	}

	var rels relationshipsXML
	if err := decodePart(parts, "xl/_rels/workbook.xml.rels", &rels); err != nil {
		return nil, err
	}
	targets := make(map[string]string, len(rels.Rels))
	for _, rel := range rels.Rels {
		targets[rel.ID] = rel.Target
	}

	sharedStrings, err := readSharedStrings(parts)
	if err != nil {
		return nil, err
	}

	wb := sheet.NewWorkbook()
	for _, entry := range book.Sheets {
		target, ok := targets[entry.RID]
		if !ok {
			return nil, fmt.Errorf("worksheet %s: no part for relationship %s", entry.Name, entry.RID)
		}
		if err := wb.AddSheet(entry.Name); err != nil {
			return nil, fmt.Errorf("worksheet %s: %w", entry.Name, err)
		}
		if err := readWorksheet(parts, partPath(target), entry.Name, sharedStrings, wb); err != nil {
			return nil, fmt.Errorf("worksheet %s: %w", entry.Name, err)
		}
	}
	return wb, nil
}

// partPath resolves a workbook-relative relationship target to its
// package path
func partPath(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join("xl", target)
}

func decodePart(parts map[string]*zip.File, name string, into any) error {
	part, ok := parts[name]
	if !ok {
		return fmt.Errorf("package is missing %s", name)
	}
	rc, err := part.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()

	if err := xml.NewDecoder(rc).Decode(into); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func readSharedStrings(parts map[string]*zip.File) (*SharedStrings, error) {
	table := NewSharedStrings()
	if _, ok := parts["xl/sharedStrings.xml"]; !ok {
		// the part is optional in workbooks without text cells
		return table, nil
	}

	var sst sstXML
	if err := decodePart(parts, "xl/sharedStrings.xml", &sst); err != nil {
		return nil, err
	}
	for _, item := range sst.Items {
		if item.Plain != nil {
			table.Intern(*item.Plain)
			continue
		}
		// rich-text items keep their concatenated runs, formatting dropped
		table.Intern(strings.Join(item.Runs, ""))
	}
	return table, nil
}

func readWorksheet(parts map[string]*zip.File, partName, sheetName string, table *SharedStrings, wb *sheet.Workbook) error {
	var ws worksheetXML
	if err := decodePart(parts, partName, &ws); err != nil {
		return err
	}

	target, _ := wb.Sheet(sheetName)
	for _, row := range ws.Rows {
		for _, cell := range row.Cells {
			addr, ok := sheet.ParseCellRef(cell.Ref)
			if !ok {
				return fmt.Errorf("invalid cell reference %q", cell.Ref)
			}
			addr.Sheet = sheetName

			value, isFormula, err := decodeCell(cell, table)
			if err != nil {
				return fmt.Errorf("cell %s: %w", cell.Ref, err)
			}
			if value == nil {
				continue
			}
			if isFormula {
				if err := wb.Set(addr.String(), value); err != nil {
					return fmt.Errorf("cell %s: %w", cell.Ref, err)
				}
				continue
			}
			// constants bypass Set so literal text beginning with = is
			// never mistaken for a formula
			target.SetValue(addr.Row, addr.Col, value)
		}
	}
	return nil
}

// decodeCell converts one OOXML cell into a workbook primitive.
// Formula cells come back as "=..." strings so Set re-parses them.
func decodeCell(cell cellXML, table *SharedStrings) (value sheet.Primitive, isFormula bool, err error) {
	if cell.Formula != nil && *cell.Formula != "" {
		return "=" + *cell.Formula, true, nil
	}

	switch cell.Type {
	case "s":
		id, err := strconv.Atoi(cell.Value)
		if err != nil {
			return nil, false, fmt.Errorf("bad shared string index %q", cell.Value)
		}
		text, ok := table.String(id)
		if !ok {
			return nil, false, fmt.Errorf("shared string index %d out of range", id)
		}
		return text, false, nil

	case "str", "inlineStr":
		if cell.Inline != nil {
			return cell.Inline.Text, false, nil
		}
		return cell.Value, false, nil

	case "b":
		return cell.Value == "1", false, nil

	case "e":
		kind, ok := sheet.ErrKindFromToken(cell.Value)
		if !ok {
			return nil, false, fmt.Errorf("unknown error token %q", cell.Value)
		}
		return sheet.NewCellError(kind, ""), false, nil

	case "", "n":
		if cell.Value == "" {
			return nil, false, nil
		}
		num, err := strconv.ParseFloat(cell.Value, 64)
		if err != nil {
			return nil, false, fmt.Errorf("bad numeric value %q", cell.Value)
		}
		return num, false, nil

	default:
		return nil, false, fmt.Errorf("unsupported cell type %q", cell.Type)
	}
}
