package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/AlbertoRoca96/retail-inventory-tracker-sub001/internal/retry"

	_ "image/gif"
	_ "image/png"
)

// Raster is the in-process normalizer: fetch, decode (orientation
// aware when the source is a JPEG with EXIF), scale onto an RGBA
// surface, re-encode as JPEG.
type Raster struct {
	client  *http.Client
	policy  retry.Policy
	logger  *zap.Logger
	quality int
	target  int
}

func NewRaster(logger *zap.Logger) *Raster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Raster{
		client:  &http.Client{},
		policy:  retry.DefaultPolicy(),
		logger:  logger,
		quality: JPEGQuality,
		target:  TargetLongEdge,
	}
}

func (r *Raster) Normalize(ctx context.Context, src Source) (*Asset, error) {
	raw, err := fetchSource(ctx, r.client, r.policy, src)
	if err != nil {
		return nil, err
	}
	return r.Encode(raw)
}

// Encode resizes and recompresses already-fetched image bytes.
func (r *Raster) Encode(raw []byte) (*Asset, error) {
	if len(raw) == 0 {
		return nil, errors.New("empty image bytes")
	}

	img, err := decodeOriented(raw)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid image dimensions")
	}

	outW, outH := fitLongEdge(width, height, r.target)
	resized := image.NewRGBA(image.Rect(0, 0, outW, outH))
	xdraw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, xdraw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, resized, &jpeg.Options{Quality: r.quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &Asset{Data: out.Bytes(), Ext: ".jpg", MIME: "image/jpeg"}, nil
}

// decodeOriented decodes raw bytes, honoring a JPEG EXIF orientation
// tag when one is present. Formats without orientation metadata take
// the plain decode path; webp gets an explicit fallback because the
// stdlib registry does not cover it.
func decodeOriented(raw []byte) (image.Image, error) {
	orientation := jpegOrientation(raw)

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		if decoded, decodeErr := webp.Decode(bytes.NewReader(raw)); decodeErr == nil {
			return decoded, nil
		}
		return nil, errors.New("unable to decode image")
	}
	if orientation > 1 {
		img = applyOrientation(img, orientation)
	}
	return img, nil
}

// fitLongEdge scales dimensions so the long edge equals target without
// upscaling small sources.
func fitLongEdge(width, height, target int) (int, int) {
	long := width
	if height > long {
		long = height
	}
	if long <= target {
		return width, height
	}
	if width >= height {
		scaled := height * target / width
		if scaled < 1 {
			scaled = 1
		}
		return target, scaled
	}
	scaled := width * target / height
	if scaled < 1 {
		scaled = 1
	}
	return scaled, target
}

func readAllLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty response body")
	}
	return data, nil
}
