package capture

import (
	"fmt"
	"image"
)

type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Image is a tightly packed 8-bit RGB or RGBA frame, first row at the top.
type Image struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

func (i *Image) toImage() image.Image {
	rect := image.Rect(0, 0, i.Width, i.Height)
	if i.Channels == 4 {
		return &image.NRGBA{Pix: i.Pix, Stride: i.Width * 4, Rect: rect}
	}
	dst := image.NewNRGBA(rect)
	for s, d := 0, 0; s+3 <= len(i.Pix); s, d = s+3, d+4 {
		dst.Pix[d] = i.Pix[s]
		dst.Pix[d+1] = i.Pix[s+1]
		dst.Pix[d+2] = i.Pix[s+2]
		dst.Pix[d+3] = 0xff
	}
	return dst
}
