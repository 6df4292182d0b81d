package preview

import (
	"errors"
	"fmt"
)

// Bounds limits how much of a document a preview renders. Values beyond
// the bound are dropped outright, not truncated with ellipsis.
type Bounds struct {
	MaxRows int
	MaxCols int
}

const (
	DefaultMaxRows = 60
	DefaultMaxCols = 20
	HardMaxRows    = 500
	HardMaxCols    = 60
)

func DefaultBounds() Bounds {
	return Bounds{MaxRows: DefaultMaxRows, MaxCols: DefaultMaxCols}
}

// Clamp normalizes requested bounds into the allowed range.
func (b Bounds) Clamp() Bounds {
	if b.MaxRows <= 0 {
		b.MaxRows = DefaultMaxRows
	}
	if b.MaxCols <= 0 {
		b.MaxCols = DefaultMaxCols
	}
	if b.MaxRows > HardMaxRows {
		b.MaxRows = HardMaxRows
	}
	if b.MaxCols > HardMaxCols {
		b.MaxCols = HardMaxCols
	}
	return b
}

// ImageBudget caps embedded preview images by count and by cumulative
// bytes. Overflow is counted, never silently dropped.
type ImageBudget struct {
	MaxImages     int
	MaxTotalBytes int64
}

func DefaultImageBudget() ImageBudget {
	return ImageBudget{MaxImages: 6, MaxTotalBytes: 2 << 20}
}

// CellImage is one embedded image attached to a grid cell.
type CellImage struct {
	MIME string
	Data []byte
}

// Meta reports what the preview included and what the bounds cut.
type Meta struct {
	RowCount       int   `json:"row_count"`
	ColCount       int   `json:"col_count"`
	TotalImages    int   `json:"total_images"`
	IncludedImages int   `json:"included_images"`
	OmittedImages  int   `json:"omitted_images"`
	OmittedBytes   int64 `json:"omitted_bytes"`
}

// Grid is the bounded, row-major text representation of a tabular
// document, with optional per-cell images keyed "{row}:{col}". Row 0
// is always rendered as the header row.
type Grid struct {
	Rows   [][]string
	Images map[string][]CellImage
	Meta   Meta
}

// CellKey builds the side-map key for a cell.
func CellKey(row, col int) string {
	return fmt.Sprintf("%d:%d", row, col)
}

// clampGrid drops rows and columns beyond the bounds.
func clampGrid(rows [][]string, bounds Bounds) [][]string {
	if len(rows) > bounds.MaxRows {
		rows = rows[:bounds.MaxRows]
	}
	out := make([][]string, len(rows))
	for i, row := range rows {
		if len(row) > bounds.MaxCols {
			row = row[:bounds.MaxCols]
		}
		out[i] = row
	}
	return out
}

// padGridForImages grows the text grid so every anchored image has a
// cell to render in. Styled but valueless rows come back from the row
// iterator as zero-length slices, so an image anchored below the last
// text row (or right of a row's last text cell) would otherwise be
// counted as included yet never rendered.
func padGridForImages(rows [][]string, images map[string][]CellImage, bounds Bounds) [][]string {
	for key := range images {
		var row, col int
		if _, err := fmt.Sscanf(key, "%d:%d", &row, &col); err != nil {
			continue
		}
		if row >= bounds.MaxRows || col >= bounds.MaxCols {
			continue
		}
		for len(rows) <= row {
			rows = append(rows, nil)
		}
		for len(rows[row]) <= col {
			rows[row] = append(rows[row], "")
		}
	}
	return rows
}

func maxColCount(rows [][]string) int {
	max := 0
	for _, row := range rows {
		if len(row) > max {
			max = len(row)
		}
	}
	return max
}

// Kind classifies preview failures so callers can map them to user
// messages and HTTP statuses.
type Kind string

const (
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindMissingAttachment Kind = "missing_attachment"
	KindUnsupportedURL    Kind = "attachment_url_not_supported"
	KindParse             Kind = "parse_error"
)

// Error is a typed preview failure. It never carries a panic; every
// resolution, auth, or parse problem surfaces as one of these.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the preview error kind, defaulting to parse_error.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindParse
}
