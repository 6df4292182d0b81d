package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/submission"
	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/xlsxreport"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 200, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// workbookWithImages builds an XLSX with text cells and n images
// anchored at A2, B3, C4, ...
func workbookWithImages(t *testing.T, n int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	_ = f.SetCellValue("Sheet1", "A1", "Store")
	_ = f.SetCellValue("Sheet1", "B1", "Price")
	_ = f.SetCellValue("Sheet1", "A2", "Riverside")
	_ = f.SetCellValue("Sheet1", "B2", "3.49")

	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(i+1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.AddPictureFromBytes("Sheet1", cell, &excelize.Picture{
			Extension: ".png",
			File:      pngBytes(t, 64, 48),
		}))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestBoundsClamp(t *testing.T) {
	assert.Equal(t, Bounds{MaxRows: 60, MaxCols: 20}, Bounds{}.Clamp())
	assert.Equal(t, Bounds{MaxRows: 500, MaxCols: 60}, Bounds{MaxRows: 9999, MaxCols: 9999}.Clamp())
	assert.Equal(t, Bounds{MaxRows: 10, MaxCols: 5}, Bounds{MaxRows: 10, MaxCols: 5}.Clamp())
}

func TestParseCSVNaiveSplit(t *testing.T) {
	grid, err := ParseCSV([]byte("name,price\r\nwidget,3.49\ngadget,9.99\n"), DefaultBounds())
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"name", "price"},
		{"widget", "3.49"},
		{"gadget", "9.99"},
	}, grid.Rows)
	assert.Equal(t, 3, grid.Meta.RowCount)
	assert.Equal(t, 2, grid.Meta.ColCount)
}

func TestParseCSVQuotedCommasAreNotHandled(t *testing.T) {
	// Known limitation: a quoted value containing a comma splits.
	grid, err := ParseCSV([]byte(`a,"b,c"`), DefaultBounds())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", `"b`, `c"`}, grid.Rows[0])
}

func TestParseCSVBounding(t *testing.T) {
	var b strings.Builder
	for r := 0; r < 100; r++ {
		cells := make([]string, 30)
		for c := range cells {
			cells[c] = fmt.Sprintf("r%dc%d", r, c)
		}
		b.WriteString(strings.Join(cells, ","))
		b.WriteString("\n")
	}

	grid, err := ParseCSV([]byte(b.String()), DefaultBounds())
	require.NoError(t, err)
	assert.Len(t, grid.Rows, 60)
	for _, row := range grid.Rows {
		assert.Len(t, row, 20)
	}
}

func TestParseXLSXGrid(t *testing.T) {
	data := workbookWithImages(t, 0)
	grid, err := ParseXLSX(data, DefaultBounds(), DefaultImageBudget(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, grid.Rows)
	assert.Equal(t, "Store", grid.Rows[0][0])
	assert.Equal(t, "3.49", grid.Rows[1][1])
}

func TestParseXLSXBoundedRows(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	for r := 1; r <= 200; r++ {
		cell, _ := excelize.CoordinatesToCellName(1, r)
		_ = f.SetCellValue("Sheet1", cell, fmt.Sprintf("row %d", r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	grid, err := ParseXLSX(buf.Bytes(), Bounds{MaxRows: 25, MaxCols: 5}, DefaultImageBudget(), nil)
	require.NoError(t, err)
	assert.Len(t, grid.Rows, 25)
}

func TestExtractImagesAnchors(t *testing.T) {
	data := workbookWithImages(t, 2)
	thumb := imaging.NewRaster(zap.NewNop())

	images, meta, err := ExtractImages(data, DefaultBounds(), DefaultImageBudget(), thumb)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.TotalImages)
	assert.Equal(t, 2, meta.IncludedImages)
	assert.Equal(t, 0, meta.OmittedImages)

	// Images anchored at A2 and B3 -> keys "1:0" and "2:1".
	assert.Contains(t, images, "1:0")
	assert.Contains(t, images, "2:1")
	for _, imgs := range images {
		for _, img := range imgs {
			assert.Equal(t, "image/jpeg", img.MIME)
			assert.NotEmpty(t, img.Data)
		}
	}
}

func TestExtractImagesCountBudget(t *testing.T) {
	data := workbookWithImages(t, 3)
	thumb := imaging.NewRaster(zap.NewNop())

	_, meta, err := ExtractImages(data, DefaultBounds(), ImageBudget{MaxImages: 2, MaxTotalBytes: 10 << 20}, thumb)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.TotalImages)
	assert.Equal(t, 2, meta.IncludedImages)
	assert.Equal(t, 1, meta.OmittedImages)
	assert.Greater(t, meta.OmittedBytes, int64(0))
	assert.Equal(t, meta.TotalImages, meta.IncludedImages+meta.OmittedImages)
}

func TestExtractImagesByteBudget(t *testing.T) {
	data := workbookWithImages(t, 3)
	thumb := imaging.NewRaster(zap.NewNop())

	// A one-byte budget forces every image out.
	_, meta, err := ExtractImages(data, DefaultBounds(), ImageBudget{MaxImages: 10, MaxTotalBytes: 1}, thumb)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.IncludedImages)
	assert.Equal(t, 3, meta.OmittedImages)
}

func TestExtractImagesNoDrawing(t *testing.T) {
	data := workbookWithImages(t, 0)
	images, meta, err := ExtractImages(data, DefaultBounds(), DefaultImageBudget(), nil)
	require.NoError(t, err)
	assert.Empty(t, images)
	assert.Zero(t, meta.TotalImages)
}

func TestExtractImagesPassesThroughUndecodableFormats(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "x")
	// A real PNG so excelize accepts it; a nil thumbnailer exercises
	// the raw pass-through path.
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "A2", &excelize.Picture{
		Extension: ".png",
		File:      pngBytes(t, 8, 8),
	}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	images, meta, err := ExtractImages(buf.Bytes(), DefaultBounds(), DefaultImageBudget(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, meta.IncludedImages)
	for _, imgs := range images {
		assert.Equal(t, "image/png", imgs[0].MIME)
	}
}

func TestParseXLSXAttachesImageMeta(t *testing.T) {
	data := workbookWithImages(t, 3)
	grid, err := ParseXLSX(data, DefaultBounds(), ImageBudget{MaxImages: 2, MaxTotalBytes: 10 << 20}, imaging.NewRaster(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Meta.IncludedImages)
	assert.Equal(t, 1, grid.Meta.OmittedImages)
	assert.Len(t, grid.Images, 2)
}

func TestParseXLSXRendersImageBelowTextRegion(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "title")
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "A10", &excelize.Picture{
		Extension: ".png",
		File:      pngBytes(t, 64, 48),
	}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	grid, err := ParseXLSX(buf.Bytes(), DefaultBounds(), DefaultImageBudget(), imaging.NewRaster(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, 1, grid.Meta.IncludedImages)

	// The anchor row exists even though no text value reaches it, so
	// the included image actually renders.
	require.GreaterOrEqual(t, len(grid.Rows), 10)
	require.NotEmpty(t, grid.Rows[9])

	doc := RenderHTML("below.xlsx", grid)
	assert.Equal(t, 1, strings.Count(doc, "<img"))
}

func TestParseXLSXRendersImageRightOfTextCells(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	_ = f.SetCellValue("Sheet1", "A1", "only column")
	require.NoError(t, f.AddPictureFromBytes("Sheet1", "D1", &excelize.Picture{
		Extension: ".png",
		File:      pngBytes(t, 32, 32),
	}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	grid, err := ParseXLSX(buf.Bytes(), DefaultBounds(), DefaultImageBudget(), imaging.NewRaster(zap.NewNop()))
	require.NoError(t, err)
	require.Len(t, grid.Rows, 1)
	require.Len(t, grid.Rows[0], 4)

	doc := RenderHTML("wide.xlsx", grid)
	assert.Equal(t, 1, strings.Count(doc, "<img"))
}

func TestGeneratedReportPreviewRendersPhotos(t *testing.T) {
	rec := submission.Record{
		ID:        "sub-rt",
		Date:      "2026-08-01",
		StoreSite: "Riverside Market",
		Priority:  2,
	}
	for slot := 0; slot < 2; slot++ {
		rec.Photos = append(rec.Photos, submission.PhotoRef{Slot: slot, Ref: "unused"})
	}
	assets := map[int]*imaging.Asset{
		0: {Data: pngBytes(t, 64, 48), Ext: ".png", MIME: "image/png"},
		1: {Data: pngBytes(t, 48, 64), Ext: ".png", MIME: "image/png"},
	}
	data, _, err := xlsxreport.Build(rec, assets)
	require.NoError(t, err)

	grid, err := ParseXLSX(data, DefaultBounds(), DefaultImageBudget(), imaging.NewRaster(zap.NewNop()))
	require.NoError(t, err)
	assert.Equal(t, 2, grid.Meta.IncludedImages)
	assert.Equal(t, 0, grid.Meta.OmittedImages)

	// Every image the caption reports as included shows up as a tag;
	// the photo grid sits below the last text value in these reports.
	doc := RenderHTML("report.xlsx", grid)
	assert.Equal(t, 2, strings.Count(doc, "<img"))
	assert.Contains(t, doc, "2 images included")
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindForbidden, KindOf(newError(KindForbidden, "nope", nil)))
	assert.Equal(t, KindUnsupportedURL, KindOf(fmt.Errorf("wrap: %w", newError(KindUnsupportedURL, "bad host", nil))))
	assert.Equal(t, KindParse, KindOf(fmt.Errorf("plain failure")))
}

func TestRenderHTMLEscapesAndCaptions(t *testing.T) {
	grid := &Grid{
		Rows: [][]string{
			{"Store", "<script>alert(1)</script>"},
			{"Riverside", "3.49"},
		},
		Images: map[string][]CellImage{
			"1:0": {{MIME: "image/jpeg", Data: []byte{0xFF, 0xD8}}},
		},
		Meta: Meta{TotalImages: 3, IncludedImages: 1, OmittedImages: 2, OmittedBytes: 4096},
	}

	doc := RenderHTML("report & more.xlsx", grid)
	assert.Contains(t, doc, "report &amp; more.xlsx")
	assert.NotContains(t, doc, "<script>alert(1)</script>")
	assert.Contains(t, doc, "&lt;script&gt;")
	assert.Contains(t, doc, "<th>Store</th>")
	assert.Contains(t, doc, "data:image/jpeg;base64,")
	assert.Contains(t, doc, "1 images included, 2 omitted (4096 bytes)")
}

func TestRenderHTMLNoImagesNoCaption(t *testing.T) {
	doc := RenderHTML("plain.csv", &Grid{Rows: [][]string{{"a"}}})
	assert.NotContains(t, doc, "<caption>")
}

func TestClassifyPath(t *testing.T) {
	assert.Equal(t, FileCSV, ClassifyPath("team/export.csv"))
	assert.Equal(t, FileXLSX, ClassifyPath("team/Report.XLSX"))
	assert.Equal(t, FileXLS, ClassifyPath("old/report.xls"))
	assert.Equal(t, FileImage, ClassifyPath("a/photo.jpeg"))
	assert.Equal(t, FilePDF, ClassifyPath("doc.pdf"))
	assert.Equal(t, FileOffice, ClassifyPath("slides.pptx"))
	assert.Equal(t, FileUnknown, ClassifyPath("archive.zip"))
	assert.Equal(t, FileUnknown, ClassifyPath("noextension"))
}
