package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	jpegQuality  = 85
	maxImageBody = 16 << 20

	PreviewWidth  = 300
	PreviewHeight = 200
)

// scaleJPEG decodes src, fits it inside maxSize x maxSize and re-encodes it as JPEG.
func scaleJPEG(src io.Reader, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if maxSize > 0 && (w > maxSize || h > maxSize) {
		newW, newH := maxSize, maxSize
		if w >= h {
			newH = h * maxSize / w
		} else {
			newW = w * maxSize / h
		}
		if newW < 1 {
			newW = 1
		}
		if newH < 1 {
			newH = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Preview center-crops src to the PreviewWidth:PreviewHeight ratio and scales
// it to exactly that size.
func Preview(src []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	crop := bounds
	if w*PreviewHeight > h*PreviewWidth {
		cropW := h * PreviewWidth / PreviewHeight
		left := bounds.Min.X + (w-cropW)/2
		crop = image.Rect(left, bounds.Min.Y, left+cropW, bounds.Max.Y)
	} else {
		cropH := w * PreviewHeight / PreviewWidth
		top := bounds.Min.Y + (h-cropH)/2
		crop = image.Rect(bounds.Min.X, top, bounds.Max.X, top+cropH)
	}
	if crop.Empty() {
		return nil, fmt.Errorf("image too small: %dx%d", w, h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, PreviewWidth, PreviewHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// loadLocalImage reads name from dir. Only the base name is used.
func loadLocalImage(dir, name string, maxSize int) ([]byte, error) {
	path := filepath.Join(dir, filepath.Base(name))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return scaleJPEG(f, maxSize)
}

func downloadImage(ctx context.Context, client *http.Client, imageURL string, maxSize int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return scaleJPEG(io.LimitReader(resp.Body, maxImageBody), maxSize)
}
