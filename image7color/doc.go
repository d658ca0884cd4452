// Package image7color provides the 7-color palette image format consumed by
// 5.65" ACeP e-paper panels.
//
// The panel controller addresses every pixel with a 3-bit palette index
// stored in a 4-bit nibble. Two horizontally adjacent pixels share one byte,
// the left pixel in the high nibble, forming a pixel pair.
//
// Memory layout example for a 4-pixel row:
//
//	Pixels: 0      1     2     3
//	Colors: Black  Red   White Yellow
//	Bytes:  0x04         0x15
//	        (0x04 = high nibble: Black=0, low nibble: Red=4)
//	        (0x15 = high nibble: White=1, low nibble: Yellow=5)
//
// This package provides:
//
// - Color: a palette index implementing color.Color
// - Model: a color model mapping arbitrary colors to the nearest palette entry
// - PixelPair: packing helper for the panel wire format
// - Convert: any image.Image to Packed
// - Packed: an image.Image implementation backed by the packed wire format
//
// Example usage:
//
//	// Create a full-panel image
//	img := image7color.NewPacked(image.Rect(0, 0, 600, 448))
//
//	// Paint a pixel red
//	img.SetColor7(10, 20, image7color.Red)
//
//	// Use with standard Go image operations
//	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
//
//	// img.Pix can be streamed to the panel as-is.
package image7color
