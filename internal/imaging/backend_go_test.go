//go:build !gocv

package imaging

import (
	"reflect"
	"testing"
)

func TestRotate(t *testing.T) {
	img := grayFrom([][]uint8{
		{10, 20},
		{30, 40},
	})

	tests := []struct {
		name    string
		degrees float64
		want    []uint8
	}{
		{name: "Zero", degrees: 0, want: []uint8{10, 20, 30, 40}},
		{name: "Quarter turn counter-clockwise", degrees: 90, want: []uint8{20, 40, 10, 30}},
		{name: "Half turn", degrees: 180, want: []uint8{40, 30, 20, 10}},
		{name: "Quarter turn clockwise", degrees: -90, want: []uint8{30, 10, 40, 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := GoBackend{}.Rotate(img, tt.degrees)
			if err != nil {
				t.Fatalf("Rotate: %v", err)
			}
			if got := Pixels(out); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Rotate(%v) = %v, want %v", tt.degrees, got, tt.want)
			}
		})
	}
}

func TestRotateKeepsCanvasAndFillsBackground(t *testing.T) {
	img := grayFrom([][]uint8{
		{200, 200, 200, 200, 200, 200, 200, 200},
		{200, 200, 200, 200, 200, 200, 200, 200},
	})
	out, err := GoBackend{}.Rotate(img, 90)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if b := out.Bounds(); b.Dx() != 8 || b.Dy() != 2 {
		t.Fatalf("canvas = %v, want 8x2", b)
	}
	// A wide strip turned upright covers only the middle columns.
	if out.GrayAt(0, 0).Y != 0 || out.GrayAt(7, 1).Y != 0 {
		t.Errorf("corners not background: %v", Pixels(out))
	}
	if out.GrayAt(3, 0).Y != 200 || out.GrayAt(4, 1).Y != 200 {
		t.Errorf("center not covered: %v", Pixels(out))
	}
}
