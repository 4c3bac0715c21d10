package imaging

import (
	"image"
	"image/color"
	"path/filepath"
	"reflect"
	"testing"
)

func grayFrom(rows [][]uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, len(rows[0]), len(rows)))
	for y, row := range rows {
		for x, v := range row {
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	return img
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.jpg", true},
		{"a.JPEG", true},
		{"b.Png", true},
		{"c.bmp", true},
		{"d.tiff", true},
		{"d.tif", false},
		{"notes.txt", false},
		{"orig.a.png.csv", false},
		{"noext", false},
	}
	for _, tt := range tests {
		if got := IsImage(tt.name); got != tt.want {
			t.Errorf("IsImage(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCropAndPixels(t *testing.T) {
	img := grayFrom([][]uint8{
		{1, 2, 3},
		{4, 5, 6},
		{7, 8, 9},
	})
	got := Pixels(Crop(img, 1, 1, 2))
	want := []uint8{5, 6, 8, 9}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Pixels(Crop) = %v, want %v", got, want)
	}
}

func TestPixelsOfSubImage(t *testing.T) {
	img := grayFrom([][]uint8{
		{1, 2, 3},
		{4, 5, 6},
	})
	sub := img.SubImage(image.Rect(1, 0, 3, 2)).(*image.Gray)
	if got, want := Pixels(sub), []uint8{2, 3, 5, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("Pixels(sub) = %v, want %v", got, want)
	}
}

func TestSaveAndLoad(t *testing.T) {
	img := grayFrom([][]uint8{
		{0, 255},
		{128, 64},
	})
	path := filepath.Join(t.TempDir(), "x.png")
	if err := SavePNG(path, img); err != nil {
		t.Fatalf("SavePNG: %v", err)
	}
	got, err := Default.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(Pixels(got), Pixels(img)) {
		t.Errorf("round trip = %v, want %v", Pixels(got), Pixels(img))
	}
}

func TestResizeConstant(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 40, 30))
	for i := range img.Pix {
		img.Pix[i] = 77
	}
	out, err := Default.Resize(img, 5, 5)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 5 || b.Dy() != 5 {
		t.Fatalf("Resize bounds = %v, want 5x5", b)
	}
	for i, p := range out.Pix {
		if p != 77 {
			t.Fatalf("pixel %d = %d, want 77", i, p)
		}
	}
}
