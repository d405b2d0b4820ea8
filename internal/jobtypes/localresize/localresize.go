// Package localresize is a sample job implementation resizing a local
// image to a thumbnail, grounded on the teacher's
// internal/worker/local_resize_handler.go. It uses golang.org/x/image/draw
// directly rather than the teacher's S3-backed image_handler.go variant,
// since this runtime has no object-storage component (see DESIGN.md for
// the dropped aws-sdk-go-v2/disintegration-imaging justification).
package localresize

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// Handler resizes local images and writes a thumbnail.
type Handler struct {
	Width int
	// Sleep simulates heavy processing work, matching the teacher's
	// leasing-behavior demo.
	Sleep time.Duration
}

// New builds a Handler with the teacher's defaults.
func New() *Handler {
	return &Handler{Width: 300, Sleep: 0}
}

type payload struct {
	Filepath    string `json:"filepath"`
	OutputPath  string `json:"output_path"`
	Grayscale   bool   `json:"grayscale"`
	RequestedBy string `json:"requested_by"`
}

// Execute implements jobtypes.Job.
func (h *Handler) Execute(ctx context.Context, data map[string]any) error {
	p, err := decodePayload(data)
	if err != nil {
		return err
	}

	if h.Sleep > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(h.Sleep):
		}
	}

	in, err := os.Open(p.Filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("source image missing: %w", err)
		}
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	src, _, err := image.Decode(in)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if src.Bounds().Dx() == 0 || src.Bounds().Dy() == 0 {
		return errors.New("invalid image dimensions")
	}

	width := h.Width
	if width == 0 {
		width = 300
	}
	height := int(float64(src.Bounds().Dy()) * float64(width) / float64(src.Bounds().Dx()))
	if height == 0 {
		height = width
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var final image.Image = dst
	if p.Grayscale {
		final = toGray(dst)
	}

	if err := os.MkdirAll(filepath.Dir(p.OutputPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(p.OutputPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	switch strings.ToLower(filepath.Ext(p.OutputPath)) {
	case ".png":
		return png.Encode(out, final)
	default:
		return jpeg.Encode(out, final, &jpeg.Options{Quality: 85})
	}
}

func toGray(src image.Image) image.Image {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)
	return gray
}

func decodePayload(data map[string]any) (payload, error) {
	var p payload
	if v, ok := data["filepath"].(string); ok {
		p.Filepath = v
	}
	if v, ok := data["output_path"].(string); ok {
		p.OutputPath = v
	}
	if v, ok := data["grayscale"].(bool); ok {
		p.Grayscale = v
	}
	if v, ok := data["requested_by"].(string); ok {
		p.RequestedBy = v
	}
	if p.Filepath == "" {
		return p, errors.New("filepath is required")
	}
	if p.OutputPath == "" {
		file := filepath.Base(p.Filepath)
		p.OutputPath = filepath.Join(filepath.Dir(p.Filepath), "thumb_"+file)
	}
	return p, nil
}
