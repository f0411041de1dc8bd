package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/chai2010/webp"
)

// Formats lists the raster output formats of Encode.
var Formats = []string{"png", "webp"}

// Encode writes img as png or webp.
func Encode(w io.Writer, img image.Image, format string) error {
	switch strings.ToLower(format) {
	case "png":
		return png.Encode(w, img)
	case "webp":
		return webp.Encode(w, img, &webp.Options{Lossless: false, Quality: 90})
	}
	return fmt.Errorf("unsupported image format %q", format)
}
