package tabular

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xlsx")
}

// Read decodes the first worksheet of a workbook. The first row is the header;
// data rows wider than the header extend it with "Unnamed: N" columns and
// rows without any value are skipped.
func (xlsxReader) Read(name string, data []byte) (*Table, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &FormatError{Name: name, Ext: ".xlsx", Reason: "content is not an xlsx workbook"}
	}
	workbookXML := readZipFile(zr, "xl/workbook.xml")
	if len(workbookXML) == 0 {
		return nil, &ParseError{Name: name, Err: errors.New("xl/workbook.xml not found")}
	}
	sheets := parseWorkbook(workbookXML)
	rels := parseRelationships(readZipFile(zr, "xl/_rels/workbook.xml.rels"))
	target := ""
	if len(sheets) > 0 {
		if rel, ok := rels[sheets[0].RID]; ok {
			target = normalizeRelPath(rel)
		}
	}
	if target == "" {
		target = "xl/worksheets/sheet1.xml"
	}
	sheetXML := readZipFile(zr, target)
	if len(sheetXML) == 0 {
		return nil, &ParseError{Name: name, Err: errors.New("worksheet " + target + " not found")}
	}
	shared := parseSharedStrings(readZipFile(zr, "xl/sharedStrings.xml"))

	rr := newSheetRowReader(sheetXML, shared)
	header, ok := rr.Next()
	if !ok || len(header) == 0 {
		return nil, &ParseError{Name: name, Err: errors.New("no columns to parse from file")}
	}
	var rows [][]string
	width := len(header)
	for {
		row, ok := rr.Next()
		if !ok {
			break
		}
		if blankRow(row) {
			continue
		}
		width = max(width, len(row))
		rows = append(rows, row)
	}
	if err := rr.Err(); err != nil {
		return nil, &ParseError{Name: name, Err: err}
	}
	for len(header) < width {
		header = append(header, "")
	}
	t := &Table{Name: name, Header: normalizeHeader(header)}
	for _, row := range rows {
		padded := make([]string, width)
		copy(padded, row)
		t.Records = append(t.Records, padded)
	}
	return t, nil
}

// xlsReader claims legacy binary workbooks so they fail with a clear
// UnsupportedFormat instead of being treated as unknown files.
type xlsReader struct{}

func (xlsReader) CanRead(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ".xls")
}

func (xlsReader) Read(name string, _ []byte) (*Table, error) {
	return nil, &FormatError{Name: name, Ext: ".xls", Reason: "legacy binary workbooks are not supported; save the file as .xlsx"}
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

type wbSheet struct {
	Name    string
	SheetID int
	RID     string
}

// parseWorkbook extracts sheet entries with names and relationship ids.
func parseWorkbook(data []byte) []wbSheet {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var sheets []wbSheet
	for {
		tok, err := dec.Token()
		if err != nil {
			return sheets
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}
		var s wbSheet
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "name":
				s.Name = a.Value
			case "sheetId":
				s.SheetID = atoiSafe(a.Value)
			case "id":
				s.RID = a.Value // r: namespace
			}
		}
		sheets = append(sheets, s)
	}
}

// parseRelationships returns map[r:id]Target.
func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}
		var id, target string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "Id":
				id = a.Value
			case "Target":
				target = a.Value
			}
		}
		if id != "" && target != "" {
			out[id] = target
		}
	}
}

func readZipFile(zr *zip.Reader, name string) []byte {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil
			}
			defer rc.Close()
			b, _ := io.ReadAll(rc)
			return b
		}
	}
	return nil
}

func parseSharedStrings(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var out []string
	var buf strings.Builder
	var inT bool
	for {
		tok, err := dec.Token()
		if err != nil {
			return out
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "si" {
				buf.Reset()
			}
			if se.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			if se.Name.Local == "t" {
				inT = false
			}
			if se.Name.Local == "si" {
				out = append(out, buf.String())
				buf.Reset()
			}
		case xml.CharData:
			if inT {
				buf.Write(se)
			}
		}
	}
}

type sheetRowReader struct {
	dec    *xml.Decoder
	shared []string
	inRow  bool
	curRow []string
	err    error
}

func newSheetRowReader(data []byte, shared []string) *sheetRowReader {
	return &sheetRowReader{dec: xml.NewDecoder(bytes.NewReader(data)), shared: shared}
}

// Err returns the first decode error other than end of input.
func (r *sheetRowReader) Err() error { return r.err }

func (r *sheetRowReader) Next() ([]string, bool) {
	for {
		tok, err := r.dec.Token()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			return nil, false
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "row" {
				r.inRow = true
				r.curRow = nil
			}
			if r.inRow && se.Name.Local == "c" {
				var rAttr, tAttr string
				for _, a := range se.Attr {
					switch a.Name.Local {
					case "r":
						rAttr = a.Value
					case "t":
						tAttr = a.Value
					}
				}
				colIdx := len(r.curRow)
				if idx := colIndexFromRef(rAttr); idx >= 0 {
					colIdx = idx
				}
				val := r.readCellValue(tAttr)
				if len(r.curRow) <= colIdx {
					tmp := make([]string, colIdx+1)
					copy(tmp, r.curRow)
					r.curRow = tmp
				}
				r.curRow[colIdx] = val
			}
		case xml.EndElement:
			if se.Name.Local == "row" {
				r.inRow = false
				return r.curRow, true
			}
		}
	}
}

// readCellValue consumes tokens up to </c>, capturing <v> or <is><t>.
func (r *sheetRowReader) readCellValue(tAttr string) string {
	var val string
	for {
		tok, err := r.dec.Token()
		if err != nil {
			return val
		}
		switch se := tok.(type) {
		case xml.StartElement:
			if se.Name.Local == "v" || se.Name.Local == "t" {
				var sb strings.Builder
				for {
					tk, er := r.dec.Token()
					if er != nil {
						break
					}
					if ed, ok := tk.(xml.EndElement); ok && (ed.Name.Local == "v" || ed.Name.Local == "t") {
						break
					}
					if ch, ok := tk.(xml.CharData); ok {
						sb.Write(ch)
					}
				}
				val += sb.String()
			}
		case xml.EndElement:
			if se.Name.Local == "c" {
				switch tAttr {
				case "s":
					idx := atoiSafe(val)
					if idx >= 0 && idx < len(r.shared) {
						return r.shared[idx]
					}
					return ""
				case "b":
					if val == "1" {
						return "True"
					}
					return "False"
				case "e":
					return ""
				}
				return val
			}
		}
	}
}

// colIndexFromRef maps refs like "C12" to a 0-based column index.
func colIndexFromRef(ref string) int {
	i := 0
	for i < len(ref) {
		c := ref[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' {
			i++
			continue
		}
		break
	}
	s := strings.ToUpper(ref[:i])
	idx := 0
	for j := 0; j < len(s); j++ {
		idx = idx*26 + int(s[j]-'A'+1)
	}
	return idx - 1
}

func atoiSafe(s string) int {
	n := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// normalizeRelPath converts relationship Target paths to ZIP entry names.
// Targets may carry a leading slash ("/xl/worksheets/sheet1.xml") or be
// relative to xl/ ("worksheets/sheet1.xml").
func normalizeRelPath(rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	if strings.HasPrefix(rel, "xl/") {
		return rel
	}
	return path.Join("xl", rel)
}
