package xlsxreport

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/submission"
)

const sheetName = "Sheet1"

// Excel's standard bad/neutral/good fills, keyed by priority level.
const (
	fillRed   = "FFC7CE"
	fillAmber = "FFEB9C"
	fillGreen = "C6EFCE"
)

const (
	labelColWidth = 24
	valueColWidth = 46
	// Each photo block spans this many worksheet rows so a 320px
	// thumbnail fits inside its bordered cell region.
	photoBlockRows = 13
	photoBlocks    = 3
)

// PriorityFill maps a priority level to its cell fill color. It is a
// pure function: any value outside 1..3 gets no fill.
func PriorityFill(priority int) (string, bool) {
	switch priority {
	case 1:
		return fillRed, true
	case 2:
		return fillAmber, true
	case 3:
		return fillGreen, true
	default:
		return "", false
	}
}

// FieldRows returns the label/value rows for a record in the fixed
// order the report layout requires.
func FieldRows(rec submission.Record) [][2]string {
	rows := [][2]string{
		{"DATE", submission.NormalizeDate(rec.Date)},
		{"BRAND", rec.Brand},
		{"STORE LOCATION", rec.StoreLocation},
		{"LOCATIONS", rec.Locations},
		{"CONDITIONS", rec.Conditions},
		{"PRICE PER UNIT", rec.PriceText()},
		{"SHELF SPACE", rec.ShelfSpace},
		{"FACES ON SHELF", rec.FacesOnShelf},
		{"TAGS", submission.JoinTags(rec.Tags)},
		{"NOTES", rec.Notes},
		{"PRIORITY LEVEL", priorityText(rec.Priority)},
	}
	if rec.SubmittedBy != "" {
		rows = append(rows, [2]string{"SUBMITTED BY", rec.SubmittedBy})
	}
	return rows
}

// FileName generates the attachment filename for a record's report.
func FileName(rec submission.Record) string {
	return fmt.Sprintf("%s-%s.xlsx", rec.Slug(), rec.ID)
}

// Build produces the report workbook for one record plus whichever
// photo slots were successfully normalized (keyed by slot index 0..5).
// Missing slots leave their grid cells blank; only workbook
// serialization can fail.
func Build(rec submission.Record, assets map[int]*imaging.Asset) ([]byte, string, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := layoutWorkbook(f, rec, assets); err != nil {
		return nil, "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), FileName(rec), nil
}

func layoutWorkbook(f *excelize.File, rec submission.Record, assets map[int]*imaging.Asset) error {
	_ = f.SetColWidth(sheetName, "A", "A", labelColWidth)
	_ = f.SetColWidth(sheetName, "B", "B", valueColWidth)

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	labelStyle, err := f.NewStyle(&excelize.Style{
		Font:   &excelize.Font{Bold: true},
		Border: thinBorder(),
	})
	if err != nil {
		return err
	}
	valueStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
		Border:    thinBorder(),
	})
	if err != nil {
		return err
	}
	gridStyle, err := f.NewStyle(&excelize.Style{Border: thinBorder()})
	if err != nil {
		return err
	}

	// Merged title row.
	row := 1
	_ = f.MergeCell(sheetName, "A1", "B1")
	_ = f.SetCellValue(sheetName, "A1", rec.Title())
	_ = f.SetCellStyle(sheetName, "A1", "B1", titleStyle)
	_ = f.SetRowHeight(sheetName, 1, 24)
	row++

	for _, field := range FieldRows(rec) {
		labelCell := fmt.Sprintf("A%d", row)
		valueCell := fmt.Sprintf("B%d", row)
		_ = f.SetCellValue(sheetName, labelCell, field[0])
		_ = f.SetCellValue(sheetName, valueCell, field[1])
		_ = f.SetCellStyle(sheetName, labelCell, labelCell, labelStyle)
		_ = f.SetCellStyle(sheetName, valueCell, valueCell, valueStyle)

		if field[0] == "PRIORITY LEVEL" {
			if color, ok := PriorityFill(rec.Priority); ok {
				filled, err := f.NewStyle(&excelize.Style{
					Border: thinBorder(),
					Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
				})
				if err != nil {
					return err
				}
				_ = f.SetCellStyle(sheetName, valueCell, valueCell, filled)
			}
		}
		row++
	}

	// Blank spacer row, then the merged PHOTOS section header.
	row++
	headerCellA := fmt.Sprintf("A%d", row)
	headerCellB := fmt.Sprintf("B%d", row)
	_ = f.MergeCell(sheetName, headerCellA, headerCellB)
	_ = f.SetCellValue(sheetName, headerCellA, "PHOTOS")
	_ = f.SetCellStyle(sheetName, headerCellA, headerCellB, titleStyle)
	row++

	// Bordered anchor grid: 3 row blocks x 2 columns, one photo each.
	gridTop := row
	gridBottom := gridTop + photoBlocks*photoBlockRows - 1
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", gridTop), fmt.Sprintf("B%d", gridBottom), gridStyle)

	for slot := 0; slot < submission.MaxPhotoSlots; slot++ {
		asset, ok := assets[slot]
		if !ok || asset == nil || len(asset.Data) == 0 {
			continue
		}
		col, block := submission.PhotoRef{Slot: slot}.GridCell()
		anchor, err := excelize.CoordinatesToCellName(col+1, gridTop+block*photoBlockRows)
		if err != nil {
			return err
		}
		if err := f.AddPictureFromBytes(sheetName, anchor, &excelize.Picture{
			Extension: asset.Ext,
			File:      asset.Data,
			Format: &excelize.GraphicOptions{
				OffsetX: 4,
				OffsetY: 4,
			},
		}); err != nil {
			return fmt.Errorf("embed photo slot %d: %w", slot, err)
		}
	}

	return nil
}

func priorityText(priority int) string {
	if priority == 0 {
		return ""
	}
	return fmt.Sprintf("%d", priority)
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Style: 1, Color: "000000"},
		{Type: "right", Style: 1, Color: "000000"},
		{Type: "top", Style: 1, Color: "000000"},
		{Type: "bottom", Style: 1, Color: "000000"},
	}
}
