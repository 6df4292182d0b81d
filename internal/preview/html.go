package preview

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"
)

// RenderHTML produces a single self-contained document for a grid: a
// styled table with the first row as header, escaped cell text, any
// per-cell images inlined as data URIs, and a caption reporting the
// image budget outcome.
func RenderHTML(title string, grid *Grid) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	b.WriteString("<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n<style>\n")
	b.WriteString("body{font-family:-apple-system,Segoe UI,sans-serif;margin:16px;color:#1a1a1a}\n")
	b.WriteString("table{border-collapse:collapse;width:100%}\n")
	b.WriteString("th,td{border:1px solid #c8c8c8;padding:4px 8px;font-size:13px;text-align:left;vertical-align:top}\n")
	b.WriteString("th{background:#2f4f6f;color:#fff;position:sticky;top:0}\n")
	b.WriteString("tr:nth-child(even) td{background:#f6f8fa}\n")
	b.WriteString("td img{display:block;max-width:240px;margin-top:4px}\n")
	b.WriteString("caption{caption-side:bottom;padding:8px;font-size:12px;color:#555;text-align:left}\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<h2>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</h2>\n<table>\n")

	if caption := imageCaption(grid.Meta); caption != "" {
		b.WriteString("<caption>")
		b.WriteString(html.EscapeString(caption))
		b.WriteString("</caption>\n")
	}

	for rowIdx, row := range grid.Rows {
		tag := "td"
		if rowIdx == 0 {
			tag = "th"
		}
		b.WriteString("<tr>")
		for colIdx, cell := range row {
			b.WriteString("<")
			b.WriteString(tag)
			b.WriteString(">")
			b.WriteString(html.EscapeString(cell))
			for _, img := range grid.Images[CellKey(rowIdx, colIdx)] {
				b.WriteString("<img src=\"data:")
				b.WriteString(img.MIME)
				b.WriteString(";base64,")
				b.WriteString(base64.StdEncoding.EncodeToString(img.Data))
				b.WriteString("\" alt=\"embedded image\">")
			}
			b.WriteString("</")
			b.WriteString(tag)
			b.WriteString(">")
		}
		b.WriteString("</tr>\n")
	}

	b.WriteString("</table>\n</body>\n</html>\n")
	return b.String()
}

func imageCaption(meta Meta) string {
	if meta.TotalImages == 0 {
		return ""
	}
	if meta.OmittedImages == 0 {
		return fmt.Sprintf("%d images included", meta.IncludedImages)
	}
	return fmt.Sprintf("%d images included, %d omitted (%d bytes)",
		meta.IncludedImages, meta.OmittedImages, meta.OmittedBytes)
}
