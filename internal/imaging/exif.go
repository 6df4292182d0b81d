package imaging

import (
	"encoding/binary"
	"image"
	stddraw "image/draw"
)

// jpegOrientation extracts the EXIF orientation tag (1..8) from a JPEG
// byte stream, returning 0 when the stream is not a JPEG or carries no
// usable tag. Only the APP1 segment is inspected; nothing else in the
// EXIF block matters to the pipeline.
func jpegOrientation(raw []byte) int {
	if len(raw) < 4 || raw[0] != 0xFF || raw[1] != 0xD8 {
		return 0
	}

	offset := 2
	for offset+4 <= len(raw) {
		if raw[offset] != 0xFF {
			return 0
		}
		marker := raw[offset+1]
		if marker == 0xD8 || marker == 0xD9 || (marker >= 0xD0 && marker <= 0xD7) {
			offset += 2
			continue
		}
		if offset+4 > len(raw) {
			return 0
		}
		segLen := int(binary.BigEndian.Uint16(raw[offset+2 : offset+4]))
		if segLen < 2 || offset+2+segLen > len(raw) {
			return 0
		}
		if marker == 0xE1 {
			return orientationFromEXIF(raw[offset+4 : offset+2+segLen])
		}
		if marker == 0xDA {
			// Entropy-coded data follows; no EXIF past this point.
			return 0
		}
		offset += 2 + segLen
	}
	return 0
}

func orientationFromEXIF(segment []byte) int {
	if len(segment) < 14 || string(segment[:6]) != "Exif\x00\x00" {
		return 0
	}
	tiff := segment[6:]

	var order binary.ByteOrder
	switch {
	case tiff[0] == 'I' && tiff[1] == 'I':
		order = binary.LittleEndian
	case tiff[0] == 'M' && tiff[1] == 'M':
		order = binary.BigEndian
	default:
		return 0
	}
	if order.Uint16(tiff[2:4]) != 42 {
		return 0
	}

	ifdOffset := int(order.Uint32(tiff[4:8]))
	if ifdOffset+2 > len(tiff) {
		return 0
	}
	entries := int(order.Uint16(tiff[ifdOffset : ifdOffset+2]))
	for i := 0; i < entries; i++ {
		entry := ifdOffset + 2 + i*12
		if entry+12 > len(tiff) {
			return 0
		}
		tag := order.Uint16(tiff[entry : entry+2])
		if tag != 0x0112 {
			continue
		}
		value := int(order.Uint16(tiff[entry+8 : entry+10]))
		if value >= 1 && value <= 8 {
			return value
		}
		return 0
	}
	return 0
}

// applyOrientation rewrites pixels so the image displays upright.
// Orientation values follow the EXIF convention.
func applyOrientation(img image.Image, orientation int) image.Image {
	if orientation <= 1 || orientation > 8 {
		return img
	}

	src := toRGBA(img)
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	outW, outH := w, h
	if orientation >= 5 {
		outW, outH = h, w
	}
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var dx, dy int
			switch orientation {
			case 2: // mirrored horizontal
				dx, dy = w-1-x, y
			case 3: // rotated 180
				dx, dy = w-1-x, h-1-y
			case 4: // mirrored vertical
				dx, dy = x, h-1-y
			case 5: // mirrored + rotated 270 CW
				dx, dy = y, x
			case 6: // rotated 90 CW
				dx, dy = h-1-y, x
			case 7: // mirrored + rotated 90 CW
				dx, dy = h-1-y, w-1-x
			case 8: // rotated 270 CW
				dx, dy = y, w-1-x
			}
			dst.SetRGBA(dx, dy, src.RGBAAt(x, y))
		}
	}
	return dst
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	stddraw.Draw(rgba, rgba.Bounds(), img, bounds.Min, stddraw.Src)
	return rgba
}
