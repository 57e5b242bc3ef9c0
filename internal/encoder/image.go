package encoder

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	// Decoders for the supported ingestion formats.
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"golang.org/x/image/draw"
)

// toRGB converts any decoded image to the canonical 3-channel representation.
// Alpha is dropped; grayscale is replicated across channels by the RGBA model.
func toRGB(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// resizeCenterCrop scales the image so its short side equals size, then crops
// the central size x size square. This is the standard CLIP-style pixel
// pipeline.
func resizeCenterCrop(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	var sw, sh int
	if w < h {
		sw = size
		sh = h * size / w
	} else {
		sh = size
		sw = w * size / h
	}
	scaled := image.NewRGBA(image.Rect(0, 0, sw, sh))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, b, draw.Src, nil)

	x0 := (sw - size) / 2
	y0 := (sh - size) / 2
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(out, out.Bounds(), scaled, image.Pt(x0, y0), draw.Src)
	return out
}

// pixelTensor converts the image to a CHW float32 tensor of shape
// (3, size, size), normalized per channel with the given mean and std.
func pixelTensor(img image.Image, size int, mean, std [3]float32) []float32 {
	rgba := resizeCenterCrop(toRGB(img), size)
	plane := size * size
	out := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := rgba.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := float32(rgba.Pix[off+c]) / 255
				out[c*plane+y*size+x] = (v - mean[c]) / std[c]
			}
		}
	}
	return out
}

// jpegDataURI re-encodes the image as JPEG and returns it as a base64 data
// URI, the payload format of the remote embeddings endpoint.
func jpegDataURI(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, toRGB(img), &jpeg.Options{Quality: 90}); err != nil {
		return "", fmt.Errorf("encode jpeg: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
