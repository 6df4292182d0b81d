package preview

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/imaging"
)

// Thumbnailer downscales raw image bytes into a bounded JPEG.
// *imaging.Raster satisfies it.
type Thumbnailer interface {
	Encode(raw []byte) (*imaging.Asset, error)
}

type worksheetXML struct {
	Drawing *struct {
		RID string `xml:"id,attr"`
	} `xml:"drawing"`
}

type relationshipsXML struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type drawingXML struct {
	TwoCell []anchorXML `xml:"twoCellAnchor"`
	OneCell []anchorXML `xml:"oneCellAnchor"`
}

type anchorXML struct {
	From struct {
		Col int `xml:"col"`
		Row int `xml:"row"`
	} `xml:"from"`
	Pic *struct {
		BlipFill struct {
			Blip struct {
				Embed string `xml:"embed,attr"`
			} `xml:"blip"`
		} `xml:"blipFill"`
	} `xml:"pic"`
}

// ExtractImages reaches into an XLSX file's raw ZIP structure to
// recover images anchored to cells on the first worksheet:
// worksheet XML -> drawing relationship id -> worksheet rels ->
// drawing XML anchors -> drawing rels -> media bytes. Each in-bound
// image is thumbnailed (or passed through raw when the format is not
// decodable) and charged against the budget; overflow is counted as
// omitted, never silently dropped.
func ExtractImages(data []byte, bounds Bounds, budget ImageBudget, thumb Thumbnailer) (map[string][]CellImage, Meta, error) {
	bounds = bounds.Clamp()
	var meta Meta

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, meta, fmt.Errorf("open xlsx archive: %w", err)
	}

	sheetPath := firstWorksheetPath(archive)
	if sheetPath == "" {
		return nil, meta, fmt.Errorf("no worksheet xml found")
	}

	var sheet worksheetXML
	if err := unmarshalZipXML(archive, sheetPath, &sheet); err != nil {
		return nil, meta, err
	}
	if sheet.Drawing == nil || sheet.Drawing.RID == "" {
		// No drawing part means no embedded images; not an error.
		return nil, meta, nil
	}

	sheetRels, err := readRelationships(archive, relsPathFor(sheetPath))
	if err != nil {
		return nil, meta, err
	}
	drawingTarget, ok := sheetRels[sheet.Drawing.RID]
	if !ok {
		return nil, meta, fmt.Errorf("drawing relationship %s unresolved", sheet.Drawing.RID)
	}
	drawingPath := resolveTarget(path.Dir(sheetPath), drawingTarget)

	var drawing drawingXML
	if err := unmarshalZipXML(archive, drawingPath, &drawing); err != nil {
		return nil, meta, err
	}

	drawingRels, err := readRelationships(archive, relsPathFor(drawingPath))
	if err != nil {
		return nil, meta, err
	}

	anchors := append(drawing.TwoCell, drawing.OneCell...)
	images := make(map[string][]CellImage)
	var includedBytes int64

	for _, anchor := range anchors {
		if anchor.Pic == nil || anchor.Pic.BlipFill.Blip.Embed == "" {
			continue
		}
		if anchor.From.Row >= bounds.MaxRows || anchor.From.Col >= bounds.MaxCols {
			continue
		}
		mediaTarget, ok := drawingRels[anchor.Pic.BlipFill.Blip.Embed]
		if !ok {
			continue
		}
		raw, err := readZipFile(archive, resolveTarget(path.Dir(drawingPath), mediaTarget))
		if err != nil || len(raw) == 0 {
			continue
		}

		meta.TotalImages++
		img := thumbnailOrRaw(raw, mediaTarget, thumb)

		size := int64(len(img.Data))
		if meta.IncludedImages >= budget.MaxImages || includedBytes+size > budget.MaxTotalBytes {
			meta.OmittedImages++
			meta.OmittedBytes += size
			continue
		}
		key := CellKey(anchor.From.Row, anchor.From.Col)
		images[key] = append(images[key], img)
		meta.IncludedImages++
		includedBytes += size
	}

	return images, meta, nil
}

// thumbnailOrRaw downscales a recognized format and passes anything
// else through untouched with its original MIME.
func thumbnailOrRaw(raw []byte, mediaTarget string, thumb Thumbnailer) CellImage {
	if thumb != nil {
		if asset, err := thumb.Encode(raw); err == nil {
			return CellImage{MIME: asset.MIME, Data: asset.Data}
		}
	}
	return CellImage{MIME: MIMEForExt(path.Ext(mediaTarget)), Data: raw}
}

func firstWorksheetPath(archive *zip.Reader) string {
	var candidates []string
	for _, f := range archive.File {
		name := f.Name
		if strings.HasPrefix(name, "xl/worksheets/") && strings.HasSuffix(name, ".xml") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	for _, c := range candidates {
		if c == "xl/worksheets/sheet1.xml" {
			return c
		}
	}
	return candidates[0]
}

func readRelationships(archive *zip.Reader, relsPath string) (map[string]string, error) {
	var rels relationshipsXML
	if err := unmarshalZipXML(archive, relsPath, &rels); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rels.Rels))
	for _, rel := range rels.Rels {
		out[rel.ID] = rel.Target
	}
	return out, nil
}

// relsPathFor maps a part path to its relationship file, e.g.
// xl/worksheets/sheet1.xml -> xl/worksheets/_rels/sheet1.xml.rels.
func relsPathFor(partPath string) string {
	return path.Join(path.Dir(partPath), "_rels", path.Base(partPath)+".rels")
}

// resolveTarget resolves a relationship target (possibly relative,
// possibly rooted) against the referencing part's directory.
func resolveTarget(baseDir, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Clean(path.Join(baseDir, target))
}

func unmarshalZipXML(archive *zip.Reader, name string, v any) error {
	data, err := readZipFile(archive, name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func readZipFile(archive *zip.Reader, name string) ([]byte, error) {
	for _, f := range archive.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%s not present in archive", name)
}
