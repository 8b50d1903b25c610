package normalizer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	// errNotThisFormat means an engine does not recognise the file at all.
	errNotThisFormat = errors.New("not this format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
	zipMagic      = []byte{0x50, 0x4B, 0x03, 0x04}
	oleMagic      = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// engine turns a report file into raw rows of trimmed-or-not cell text.
type engine interface {
	Name() string
	ReadRows(path string, head []byte, sheet string) ([][]string, error)
}

// defaultEngines lists the readers in priority order.
func defaultEngines() []engine {
	return []engine{xlsxEngine{}, xlsEngine{}, htmlEngine{}, csvEngine{}}
}

type xlsxEngine struct{}

func (xlsxEngine) Name() string { return "xlsx" }

func (xlsxEngine) ReadRows(path string, head []byte, sheet string) ([][]string, error) {
	if !bytes.HasPrefix(head, zipMagic) {
		return nil, errNotThisFormat
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in workbook (sheets: %s)", sheet, strings.Join(f.GetSheetList(), ", "))
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return rows, nil
}

type xlsEngine struct{}

func (xlsEngine) Name() string { return "xls" }

func (xlsEngine) ReadRows(path string, head []byte, sheet string) (rows [][]string, err error) {
	if !bytes.HasPrefix(head, oleMagic) {
		return nil, errNotThisFormat
	}

	// The BIFF parser panics on some truncated files.
	defer func() {
		if p := recover(); p != nil {
			rows = nil
			err = fmt.Errorf("failed to parse xls: %v", p)
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open xls: %w", err)
	}

	var ws *xls.WorkSheet
	var names []string
	for i := 0; i < wb.NumSheets(); i++ {
		candidate := wb.GetSheet(i)
		if candidate == nil {
			continue
		}
		names = append(names, candidate.Name)
		if candidate.Name == sheet {
			ws = candidate
			break
		}
	}
	if ws == nil {
		return nil, fmt.Errorf("sheet %q not found in workbook (sheets: %s)", sheet, strings.Join(names, ", "))
	}

	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// htmlEngine reads reports that are an HTML table saved under a spreadsheet
// extension, which web report generators commonly emit.
type htmlEngine struct{}

func (htmlEngine) Name() string { return "html" }

func (htmlEngine) ReadRows(path string, head []byte, sheet string) ([][]string, error) {
	if !looksLikeHTML(path, head) {
		return nil, errNotThisFormat
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open html report: %w", err)
	}
	defer file.Close()

	doc, err := goquery.NewDocumentFromReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html report: %w", err)
	}

	// The largest table is the report body; smaller ones are page chrome.
	var best *goquery.Selection
	bestRows := 0
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		n := table.Find("tr").Length()
		if n > bestRows {
			best, bestRows = table, n
		}
	})
	if best == nil {
		return nil, errNotThisFormat
	}

	var rows [][]string
	best.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		var cells []string
		tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, cell.Text())
		})
		rows = append(rows, cells)
	})
	return rows, nil
}

var htmlMarkers = [][]byte{[]byte("<html"), []byte("<!doctype"), []byte("<table"), []byte("<head")}

// looksLikeHTML accepts any head carrying a markup marker. Page scaffolding
// can push the first table past the sniffed head, so only the binary
// workbook formats and marker-free .csv files are ruled out here; the parse
// decides the rest.
func looksLikeHTML(path string, head []byte) bool {
	if bytes.HasPrefix(head, zipMagic) || bytes.HasPrefix(head, oleMagic) {
		return false
	}
	lower := bytes.ToLower(head)
	for _, marker := range htmlMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return strings.ToLower(filepath.Ext(path)) != ".csv"
}

type csvEngine struct{}

func (csvEngine) Name() string { return "csv" }

func (csvEngine) ReadRows(path string, head []byte, sheet string) ([][]string, error) {
	if strings.ToLower(filepath.Ext(path)) != ".csv" {
		return nil, errNotThisFormat
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

// readHead returns up to 4KiB from the start of the file for format sniffing.
func readHead(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buf := make([]byte, 4096)
	n, err := file.Read(buf)
	if err != nil && n == 0 {
		return nil, err
	}
	return buf[:n], nil
}
