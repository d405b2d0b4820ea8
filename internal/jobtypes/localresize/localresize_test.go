package localresize

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 0, B: 0, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
}

func TestExecuteResizesAndPreservesAspectRatio(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.png")
	writeTestPNG(t, src, 20, 10)

	out := filepath.Join(dir, "out", "thumb.png")
	h := &Handler{Width: 5}
	err := h.Execute(context.Background(), map[string]any{
		"filepath":    src,
		"output_path": out,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if img.Bounds().Dx() != 5 {
		t.Fatalf("expected width 5, got %d", img.Bounds().Dx())
	}
	if img.Bounds().Dy() != 2 {
		t.Fatalf("expected height 2 preserving the 20:10 aspect ratio, got %d", img.Bounds().Dy())
	}
}

func TestExecuteConvertsToGrayscale(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.png")
	writeTestPNG(t, src, 10, 10)

	out := filepath.Join(dir, "thumb_gray.png")
	h := &Handler{Width: 4}
	err := h.Execute(context.Background(), map[string]any{
		"filepath":    src,
		"output_path": out,
		"grayscale":   true,
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	r, g, b, _ := img.At(0, 0).RGBA()
	if r != g || g != b {
		t.Fatalf("expected a grayscale pixel, got r=%d g=%d b=%d", r, g, b)
	}
}

func TestExecuteDefaultsOutputPathNextToSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.png")
	writeTestPNG(t, src, 8, 8)

	h := New()
	h.Width = 4
	if err := h.Execute(context.Background(), map[string]any{"filepath": src}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "thumb_photo.png")); err != nil {
		t.Fatalf("expected default output alongside the source: %v", err)
	}
}

func TestExecuteRejectsMissingFilepath(t *testing.T) {
	h := New()
	err := h.Execute(context.Background(), map[string]any{"output_path": "/tmp/whatever.png"})
	if err == nil {
		t.Fatal("expected an error when filepath is missing")
	}
}

func TestExecuteRejectsMissingSourceFile(t *testing.T) {
	h := New()
	err := h.Execute(context.Background(), map[string]any{
		"filepath": filepath.Join(t.TempDir(), "does-not-exist.png"),
	})
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
}

func TestExecuteRejectsUndecodableFile(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "not-an-image.png")
	if err := os.WriteFile(bogus, []byte("not a png"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	h := New()
	err := h.Execute(context.Background(), map[string]any{"filepath": bogus})
	if err == nil {
		t.Fatal("expected an error decoding a non-image file")
	}
}

func TestExecuteEncodesJPEGByOutputExtension(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.png")
	writeTestPNG(t, src, 10, 10)

	out := filepath.Join(dir, "thumb.jpg")
	h := &Handler{Width: 4}
	if err := h.Execute(context.Background(), map[string]any{
		"filepath":    src,
		"output_path": out,
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if _, err := os.Stat(out); err != nil {
		t.Fatalf("expected a jpeg output file: %v", err)
	}
}

func TestExecuteRespectsContextCancellationDuringSleep(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.png")
	writeTestPNG(t, src, 10, 10)

	h := &Handler{Width: 4, Sleep: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.Execute(ctx, map[string]any{"filepath": src})
	if err == nil {
		t.Fatal("expected the cancelled context to abort before processing")
	}
}
