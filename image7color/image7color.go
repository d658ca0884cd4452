package image7color

import (
	"fmt"
	"image"
	"image/color"
)

// Color is a panel palette index (0-7).
// Only the lower 3 bits are meaningful; values are stored in a 4-bit nibble.
type Color uint8

// Panel palette.
const (
	Black  Color = 0
	White  Color = 1
	Green  Color = 2
	Blue   Color = 3
	Red    Color = 4
	Yellow Color = 5
	Orange Color = 6
	// Clean is not a pigment: the controller drives every particle to its
	// neutral position. Clear the panel with it before an image to avoid
	// ghosting.
	Clean Color = 7
)

// NumColors is the number of palette indices, Clean included.
const NumColors = 8

var names = [NumColors]string{"Black", "White", "Green", "Blue", "Red", "Yellow", "Orange", "Clean"}

// rgb is the approximate appearance of each palette entry.
var rgb = [NumColors]color.NRGBA{
	{0x00, 0x00, 0x00, 0xFF},
	{0xFF, 0xFF, 0xFF, 0xFF},
	{0x00, 0xFF, 0x00, 0xFF},
	{0x00, 0x00, 0xFF, 0xFF},
	{0xFF, 0x00, 0x00, 0xFF},
	{0xFF, 0xFF, 0x00, 0xFF},
	{0xFF, 0x80, 0x00, 0xFF},
	{0xFF, 0xFF, 0xFF, 0xFF},
}

// Palette holds the seven displayable colors, indexed by their Color value.
// Clean is left out so conversions never select it.
var Palette = color.Palette{
	rgb[Black], rgb[White], rgb[Green], rgb[Blue], rgb[Red], rgb[Yellow], rgb[Orange],
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return rgb[c&0x07].RGBA()
}

// String returns the palette name of the color.
func (c Color) String() string {
	if c >= NumColors {
		return fmt.Sprintf("Color(%d)", uint8(c))
	}
	return names[c]
}

// ParseColor returns the palette index named s.
func ParseColor(s string) (Color, error) {
	for i, n := range names {
		if n == s {
			return Color(i), nil
		}
	}
	return 0, fmt.Errorf("image7color: unknown color %q", s)
}

func toColor7(c color.Color) color.Color {
	if c7, ok := c.(Color); ok {
		return c7
	}
	return Color(Palette.Index(c))
}

// Model converts colors to the nearest palette Color.
var Model = color.ModelFunc(toColor7)

// PixelPair packs two palette indices into one wire byte, a in the high nibble.
func PixelPair(a, b Color) byte {
	return byte(a&0x0F)<<4 | byte(b&0x0F)
}

// Packed is a palette image stored in the panel wire format.
// Each byte holds 2 pixels: high nibble = left pixel, low nibble = right pixel.
type Packed struct {
	Pix    []byte          // Pixel pairs, row-major
	Stride int             // Bytes per row
	Rect   image.Rectangle // Image bounds
}

// NewPacked creates a new Packed image with the given bounds, filled with Black.
// The width must be even.
func NewPacked(r image.Rectangle) *Packed {
	w, h := r.Dx(), r.Dy()
	if w < 0 || h < 0 {
		return &Packed{Rect: r}
	}
	if w%2 != 0 {
		panic("image7color: width must be even")
	}

	stride := w / 2
	return &Packed{
		Pix:    make([]byte, stride*h),
		Stride: stride,
		Rect:   r,
	}
}

// ColorModel returns Model.
func (p *Packed) ColorModel() color.Model {
	return Model
}

// Bounds returns the image bounds.
func (p *Packed) Bounds() image.Rectangle {
	return p.Rect
}

// At implements image.Image.
func (p *Packed) At(x, y int) color.Color {
	return p.Color7At(x, y)
}

// Color7At returns the palette index at (x, y), Black when out of bounds.
func (p *Packed) Color7At(x, y int) Color {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return Black
	}
	offset, shift := p.pixOffset(x, y)
	return Color((p.Pix[offset] >> shift) & 0x0F)
}

// Set implements draw.Image.
func (p *Packed) Set(x, y int, c color.Color) {
	p.SetColor7(x, y, Model.Convert(c).(Color))
}

// SetColor7 sets the palette index at (x, y) without color conversion.
func (p *Packed) SetColor7(x, y int, c Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	offset, shift := p.pixOffset(x, y)
	p.Pix[offset] = (p.Pix[offset] &^ (0x0F << shift)) | (byte(c&0x0F) << shift)
}

// Fill sets every pixel to c.
func (p *Packed) Fill(c Color) {
	pair := PixelPair(c, c)
	for i := range p.Pix {
		p.Pix[i] = pair
	}
}

// pixOffset returns the byte offset and bit shift for the pixel at (x, y).
// Even x lives in the high nibble (shift 4), odd x in the low nibble.
func (p *Packed) pixOffset(x, y int) (offset int, shift uint) {
	offset = (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)/2
	shift = uint(4 * (1 - ((x - p.Rect.Min.X) & 1)))
	return
}

// Convert returns img as a Packed image, converting every pixel through Model.
// A *Packed is returned as-is.
func Convert(img image.Image) *Packed {
	if p, ok := img.(*Packed); ok {
		return p
	}
	b := img.Bounds()
	out := NewPacked(image.Rect(0, 0, b.Dx()+b.Dx()%2, b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetColor7(x-b.Min.X, y-b.Min.Y, Model.Convert(img.At(x, y)).(Color))
		}
	}
	return out
}
