package capture

import (
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type Format int

const (
	PNG Format = iota
	JPEG
	TGA
	BMP
	TIFF
)

var (
	ErrUnknownFormat = errors.New("unknown capture format")
	ErrImageTooLarge = errors.New("image is too large for the capture format")
)

// targa stores dimensions on 16 bits.
const maxTGADimension = 0xffff

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "tga":
		return TGA, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return PNG, errors.Wrap(ErrUnknownFormat, s)
}

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case TGA:
		return "tga"
	case BMP:
		return "bmp"
	case TIFF:
		return "tiff"
	default:
		return "png"
	}
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	switch f {
	case JPEG:
		return ".jpg"
	case TGA:
		return ".tga"
	case BMP:
		return ".bmp"
	case TIFF:
		return ".tif"
	default:
		return ".png"
	}
}

type encodeOptions struct {
	quality int
}

func encode(w io.Writer, f Format, img *Image, opts encodeOptions) error {
	if f == TGA && (img.Width > maxTGADimension || img.Height > maxTGADimension) {
		return errors.Wrapf(ErrImageTooLarge, "%s frame is %s", f, Resolution{Width: img.Width, Height: img.Height})
	}
	src := img.toImage()
	switch f {
	case JPEG:
		quality := opts.quality
		if quality <= 0 {
			quality = jpeg.DefaultQuality
		}
		return jpeg.Encode(w, src, &jpeg.Options{Quality: quality})
	case TGA:
		return tga.Encode(w, src)
	case BMP:
		return bmp.Encode(w, src)
	case TIFF:
		return tiff.Encode(w, src, &tiff.Options{Compression: tiff.Deflate})
	default:
		encoder := png.Encoder{CompressionLevel: png.BestSpeed}
		return encoder.Encode(w, src)
	}
}
