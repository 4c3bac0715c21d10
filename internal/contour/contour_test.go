package contour

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/andresmejia3/tiler/internal/imaging"
	"github.com/andresmejia3/tiler/internal/types"
)

func twoByTwo() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	copy(img.Pix, []uint8{0, 255, 128, 64})
	return img
}

func TestRecords(t *testing.T) {
	got := Records(twoByTwo(), "s.png")
	want := []types.ContourRecord{
		{X: 1, Y: 2, Z: 255, Source: "s.png"},
		{X: 2, Y: 2, Z: 0, Source: "s.png"},
		{X: 1, Y: 1, Z: 127, Source: "s.png"},
		{X: 2, Y: 1, Z: 191, Source: "s.png"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Records() = %+v, want %+v", got, want)
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		if err := imaging.SavePNG(filepath.Join(dir, name), twoByTwo()); err != nil {
			t.Fatal(err)
		}
	}
	chunk := types.Chunk{Index: 4, Dir: dir, Images: []string{"a.png", "b.png"}}

	res, err := Export(context.Background(), chunk, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Records() != 8 {
		t.Errorf("records = %d, want 8", res.Records())
	}

	data, err := os.ReadFile(filepath.Join(dir, types.ContourTableName("b.png")))
	if err != nil {
		t.Fatal(err)
	}
	want := "1,2,255,b.png\n2,2,0,b.png\n1,1,127,b.png\n2,1,191,b.png\n"
	if string(data) != want {
		t.Errorf("table = %q, want %q", data, want)
	}
}

func TestEachStopsOnError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := each(twoByTwo(), "s.png", func(types.ContourRecord) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || calls != 2 {
		t.Errorf("each() = %v after %d calls, want stop after 2", err, calls)
	}
}

func TestExportStreamsEveryPixel(t *testing.T) {
	dir := t.TempDir()
	img := image.NewGray(image.Rect(0, 0, 7, 3))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 11)
	}
	if err := imaging.SavePNG(filepath.Join(dir, "w.png"), img); err != nil {
		t.Fatal(err)
	}
	chunk := types.Chunk{Dir: dir, Images: []string{"w.png"}}

	res, err := Export(context.Background(), chunk, Options{})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if st := res.Images[0]; st.Records != 21 || st.Width != 7 || st.Height != 3 {
		t.Errorf("stats = %+v, want 7x3 with 21 records", st)
	}

	var want strings.Builder
	for _, r := range Records(img, "w.png") {
		want.WriteString(strings.Join(r.Row(), ",") + "\n")
	}
	data, err := os.ReadFile(filepath.Join(dir, types.ContourTableName("w.png")))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != want.String() {
		t.Errorf("table = %q, want %q", data, want.String())
	}
}

func TestExportMissingImage(t *testing.T) {
	chunk := types.Chunk{Dir: t.TempDir(), Images: []string{"gone.png"}}
	if _, err := Export(context.Background(), chunk, Options{}); err == nil {
		t.Error("Export() of a missing image succeeded")
	}
}
