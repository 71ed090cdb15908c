// Package imageproc provides the resizer that derives renditions from an original image.
package imageproc

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/UnendingLoop/ImagePipeline/internal/model"
	"github.com/disintegration/imaging"
)

var encodeFormats = map[model.Format]imaging.Format{
	model.FormatJPEG: imaging.JPEG,
	model.FormatPNG:  imaging.PNG,
	model.FormatTIFF: imaging.TIFF,
}

// Resize decodes data, fits it into maxW x maxH keeping the aspect ratio and re-encodes it to format.
// Images already inside the box are re-encoded at their original size.
func Resize(data []byte, maxW, maxH int, format model.Format) ([]byte, error) {
	if maxW <= 0 || maxH <= 0 {
		return nil, fmt.Errorf("incorrect bounding box %dx%d", maxW, maxH)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", model.ErrDecode)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	out, ok := encodeFormats[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnsupportedFormat, format)
	}

	fitted := imaging.Fit(img, maxW, maxH, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, out); err != nil {
		if errors.Is(err, imaging.ErrUnsupportedFormat) {
			return nil, fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
		}
		return nil, fmt.Errorf("failed to ENcode rendition: %w", err)
	}
	return buf.Bytes(), nil
}
