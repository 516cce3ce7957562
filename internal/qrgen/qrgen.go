// Package qrgen renders QR code images for product links. Output is fixed
// to a 300 unit square with a 2 module quiet zone, opaque black on opaque
// white, and is byte-identical for identical input.
package qrgen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"github.com/pkg/errors"
)

const (
	// Width is the nominal edge length of rendered images in pixels.
	Width = 300
	// QuietZone is the minimum margin around the code, in modules.
	QuietZone = 2
)

type Encoder struct {
	width     int
	quietZone int
}

func NewEncoder() *Encoder {
	return &Encoder{width: Width, quietZone: QuietZone}
}

// EncodePNG renders text as a PNG image. The caller must not use the
// returned bytes when an error is reported.
func (e *Encoder) EncodePNG(text string) ([]byte, error) {
	code, err := e.matrix(text)
	if err != nil {
		return nil, err
	}

	modules := code.Bounds().Dx()
	scale := e.width / (modules + 2*e.quietZone)
	if scale < 1 {
		return nil, errors.Errorf("qrgen: payload needs %d modules, exceeds %dpx render", modules, e.width)
	}

	palette := color.Palette{color.White, color.Black}
	img := image.NewPaletted(image.Rect(0, 0, e.width, e.width), palette)
	for i := range img.Pix {
		img.Pix[i] = 0 // white background
	}

	// Centering keeps the margin at or above the quiet zone on every side.
	offset := (e.width - scale*modules) / 2
	for my := 0; my < modules; my++ {
		for mx := 0; mx < modules; mx++ {
			if !isDark(code, mx, my) {
				continue
			}
			for py := 0; py < scale; py++ {
				row := (offset+my*scale+py)*img.Stride + offset + mx*scale
				for px := 0; px < scale; px++ {
					img.Pix[row+px] = 1
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, errors.Wrap(err, "qrgen: png encode")
	}
	return buf.Bytes(), nil
}

// EncodeSVG renders text as an SVG document string with the same geometry
// as EncodePNG, one unit per module.
func (e *Encoder) EncodeSVG(text string) (string, error) {
	code, err := e.matrix(text)
	if err != nil {
		return "", err
	}

	modules := code.Bounds().Dx()
	total := modules + 2*e.quietZone

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d" shape-rendering="crispEdges">`,
		e.width, e.width, total, total)
	fmt.Fprintf(&sb, `<rect width="%d" height="%d" fill="#ffffff"/>`, total, total)
	for my := 0; my < modules; my++ {
		for mx := 0; mx < modules; mx++ {
			if isDark(code, mx, my) {
				fmt.Fprintf(&sb, `<rect x="%d" y="%d" width="1" height="1" fill="#000000"/>`,
					mx+e.quietZone, my+e.quietZone)
			}
		}
	}
	sb.WriteString(`</svg>`)
	return sb.String(), nil
}

func (e *Encoder) matrix(text string) (barcode.Barcode, error) {
	if text == "" {
		return nil, errors.New("qrgen: empty payload")
	}
	code, err := qr.Encode(text, qr.M, qr.Auto)
	if err != nil {
		return nil, errors.Wrap(err, "qrgen: encode")
	}
	return code, nil
}

func isDark(code barcode.Barcode, x, y int) bool {
	r, g, b, _ := code.At(x, y).RGBA()
	return r == 0 && g == 0 && b == 0
}
