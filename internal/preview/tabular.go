package preview

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// ParseCSV splits UTF-8 text into a bounded grid. Fields are split on
// bare commas with no quoted-field handling; exports feeding this
// preview are known not to contain embedded commas, and the naive
// split is a documented limitation preserved on purpose.
func ParseCSV(data []byte, bounds Bounds) (*Grid, error) {
	bounds = bounds.Clamp()
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimRight(text, "\n")

	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		if len(rows) >= bounds.MaxRows {
			break
		}
		rows = append(rows, strings.Split(line, ","))
	}
	rows = clampGrid(rows, bounds)

	return &Grid{
		Rows: rows,
		Meta: Meta{RowCount: len(rows), ColCount: maxColCount(rows)},
	}, nil
}

// ParseXLSX reads the first worksheet into a bounded grid using the
// streaming row iterator, so a huge workbook never parses past the
// preview bound, and separately recovers embedded images from the raw
// ZIP structure.
func ParseXLSX(data []byte, bounds Bounds, budget ImageBudget, thumb Thumbnailer) (*Grid, error) {
	bounds = bounds.Clamp()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, newError(KindParse, "unable to open workbook", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, newError(KindParse, "workbook has no worksheet", nil)
	}

	iter, err := f.Rows(sheet)
	if err != nil {
		return nil, newError(KindParse, "unable to read worksheet rows", err)
	}
	defer func() { _ = iter.Close() }()

	var rows [][]string
	for iter.Next() {
		if len(rows) >= bounds.MaxRows {
			break
		}
		row, err := iter.Columns()
		if err != nil {
			return nil, newError(KindParse, "unable to read worksheet row", err)
		}
		rows = append(rows, row)
	}
	rows = clampGrid(rows, bounds)

	grid := &Grid{}
	images, meta, err := ExtractImages(data, bounds, budget, thumb)
	if err == nil && len(images) > 0 {
		rows = padGridForImages(rows, images, bounds)
	}
	grid.Rows = rows
	grid.Meta = Meta{RowCount: len(rows), ColCount: maxColCount(rows)}
	if err == nil {
		grid.Images = images
		grid.Meta.TotalImages = meta.TotalImages
		grid.Meta.IncludedImages = meta.IncludedImages
		grid.Meta.OmittedImages = meta.OmittedImages
		grid.Meta.OmittedBytes = meta.OmittedBytes
	}
	return grid, nil
}

// ParseXLS reads a legacy binary workbook into a bounded grid. Older
// uploads still arrive in this format.
func ParseXLS(data []byte, bounds Bounds) (*Grid, error) {
	bounds = bounds.Clamp()

	workbook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, newError(KindParse, "unable to open legacy workbook", err)
	}
	if workbook.NumSheets() == 0 {
		return nil, newError(KindParse, "legacy workbook has no worksheet", nil)
	}

	rows := workbook.ReadAllCells(bounds.MaxRows)
	if len(rows) == 0 {
		return nil, newError(KindParse, "legacy worksheet is empty", nil)
	}
	rows = clampGrid(rows, bounds)

	return &Grid{
		Rows: rows,
		Meta: Meta{RowCount: len(rows), ColCount: maxColCount(rows)},
	}, nil
}

// FileKind buckets an attachment by extension for preview routing.
type FileKind string

const (
	FileCSV     FileKind = "csv"
	FileXLSX    FileKind = "xlsx"
	FileXLS     FileKind = "xls"
	FileImage   FileKind = "image"
	FilePDF     FileKind = "pdf"
	FileOffice  FileKind = "office"
	FileUnknown FileKind = "unknown"
)

// ClassifyPath maps a stored path (or declared type) to a FileKind.
func ClassifyPath(path string) FileKind {
	lower := strings.ToLower(path)
	dot := strings.LastIndex(lower, ".")
	ext := ""
	if dot >= 0 {
		ext = lower[dot:]
	}
	switch ext {
	case ".csv":
		return FileCSV
	case ".xlsx":
		return FileXLSX
	case ".xls":
		return FileXLS
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return FileImage
	case ".pdf":
		return FilePDF
	case ".doc", ".docx", ".ppt", ".pptx":
		return FileOffice
	default:
		return FileUnknown
	}
}

// MIMEForExt maps a media file extension to its MIME type, with a
// binary fallback for unrecognized formats.
func MIMEForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	case ".emf", ".wmf":
		return fmt.Sprintf("image/x-%s", strings.TrimPrefix(strings.ToLower(ext), "."))
	default:
		return "application/octet-stream"
	}
}
