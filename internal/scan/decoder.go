package scan

import (
	"image"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pkg/errors"
)

// Decoder extracts QR payload text from single frames. Not safe for
// concurrent use; the capture loop is the only caller.
type Decoder struct {
	reader gozxing.Reader
}

func NewDecoder() *Decoder {
	return &Decoder{reader: qrcode.NewQRCodeReader()}
}

// Decode returns the payload text of the first QR code found in the frame.
// Any failure to locate or decode a pattern is reported as an error; the
// capture loop treats every such error as a non-detection.
func (d *Decoder) Decode(frame image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(frame)
	if err != nil {
		return "", errors.Wrap(err, "scan: binarize frame")
	}
	result, err := d.reader.Decode(bmp, nil)
	if err != nil {
		return "", err
	}
	return result.GetText(), nil
}
