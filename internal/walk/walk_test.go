package walk

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/andresmejia3/tiler/internal/types"
)

func collect(t *testing.T, p Params, s Sizer) []types.Window {
	t.Helper()
	var out []types.Window
	if err := Walk(p, s, func(w types.Window) error {
		out = append(out, w)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return out
}

func TestWalkFixedOrigins(t *testing.T) {
	got := collect(t, Params{Width: 20, Height: 20, Stride: 5}, Fixed(10))

	var origins [][2]int
	for _, w := range got {
		origins = append(origins, [2]int{w.X, w.Y})
	}
	want := [][2]int{
		{0, 0}, {5, 0}, {10, 0},
		{0, 5}, {5, 5}, {10, 5},
		{0, 10}, {5, 10}, {10, 10},
	}
	if !reflect.DeepEqual(origins, want) {
		t.Errorf("origins = %v, want %v", origins, want)
	}
}

func TestWalkNonDivisibleRemainder(t *testing.T) {
	// 23 is not reachable in steps of 7 from 0 with a 10-wide window:
	// 0, 7, then 14 overshoots and is pulled back to 13.
	got := collect(t, Params{Width: 23, Height: 10, Stride: 7}, Fixed(10))

	var xs []int
	for _, w := range got {
		xs = append(xs, w.X)
		if w.Y != 0 {
			t.Errorf("window %+v not on the only row", w)
		}
	}
	if want := []int{0, 7, 13}; !reflect.DeepEqual(xs, want) {
		t.Errorf("xs = %v, want %v", xs, want)
	}
}

func TestWalkCoverage(t *testing.T) {
	tests := []struct {
		w, h, k, stride int
	}{
		{20, 20, 10, 5},
		{23, 17, 10, 3},
		{100, 37, 37, 1},
		{64, 48, 16, 16},
		{50, 50, 7, 11},
		{9, 9, 9, 1},
	}

	for _, tt := range tests {
		got := collect(t, Params{Width: tt.w, Height: tt.h, Stride: tt.stride}, Fixed(tt.k))

		rows := map[int][]types.Window{}
		var rowOrder []int
		for _, win := range got {
			if win.X < 0 || win.Y < 0 || win.X+win.Size > tt.w || win.Y+win.Size > tt.h {
				t.Fatalf("%+v: window %+v out of bounds", tt, win)
			}
			if _, ok := rows[win.Y]; !ok {
				rowOrder = append(rowOrder, win.Y)
			}
			rows[win.Y] = append(rows[win.Y], win)
		}

		bottom := 0
		for _, y := range rowOrder {
			if y+tt.k == tt.h {
				bottom++
			}
			right := 0
			seen := map[int]bool{}
			for _, win := range rows[y] {
				if seen[win.X] {
					t.Errorf("%+v: duplicate window at x=%d y=%d", tt, win.X, y)
				}
				seen[win.X] = true
				if win.X+tt.k == tt.w {
					right++
				}
			}
			if right != 1 {
				t.Errorf("%+v: row y=%d touches the right edge %d times", tt, y, right)
			}
		}
		if bottom != 1 {
			t.Errorf("%+v: bottom edge reached by %d rows", tt, bottom)
		}
	}
}

func TestWalkRotationPattern(t *testing.T) {
	got := collect(t, Params{Width: 20, Height: 20, Stride: 4, Angle: 10}, Fixed(4))
	if len(got) != 25 {
		t.Fatalf("got %d windows, want 25", len(got))
	}

	angles := map[[2]int]float64{}
	for _, w := range got {
		angles[[2]int{w.X, w.Y}] = w.Angle
	}

	// Counter runs row-major over 5 windows per row: counter = (y/4)*5 + x/4.
	tests := []struct {
		x, y int
		want float64
	}{
		{0, 0, 0},     // first row and column
		{8, 0, 0},     // first row
		{0, 8, 0},     // first column
		{4, 4, -10},   // counter 6
		{8, 4, 0},     // counter 7
		{12, 4, 10},   // counter 8
		{16, 4, 0},    // right edge, counter 9
		{8, 8, 10},    // counter 12
		{12, 12, -10}, // counter 18
		{8, 16, -10},  // bottom row still rotates, counter 22
		{12, 16, 0},   // counter 23
	}
	for _, tt := range tests {
		if got := angles[[2]int{tt.x, tt.y}]; got != tt.want {
			t.Errorf("angle at (%d,%d) = %v, want %v", tt.x, tt.y, got, tt.want)
		}
	}

	var plus, minus int
	for _, w := range got {
		switch {
		case w.Angle > 0:
			plus++
		case w.Angle < 0:
			minus++
		}
	}
	if plus == 0 || minus == 0 {
		t.Errorf("expected both signs, got +%d -%d", plus, minus)
	}
}

func TestWalkNoRotationWithoutAngle(t *testing.T) {
	for _, w := range collect(t, Params{Width: 30, Height: 30, Stride: 3}, Fixed(5)) {
		if w.Angle != 0 {
			t.Fatalf("window %+v rotated with angle disabled", w)
		}
	}
}

func TestWalkRandomDeterministic(t *testing.T) {
	p := Params{Source: "a.png", Width: 120, Height: 80, Stride: 4, Angle: 10}
	a := collect(t, p, NewRandom(rand.New(rand.NewSource(1234)), 80))
	b := collect(t, p, NewRandom(rand.New(rand.NewSource(1234)), 80))
	if !reflect.DeepEqual(a, b) {
		t.Fatal("same seed produced different walks")
	}
	for _, w := range a {
		if w.Size < 0 || w.Size >= 80 {
			t.Fatalf("size %d outside [0, 80)", w.Size)
		}
		if w.Overhang {
			continue
		}
		if w.X < 0 || w.Y < 0 || w.X+w.Size > 120 || w.Y+w.Size > 80 {
			t.Fatalf("window %+v out of bounds", w)
		}
	}
}

// scripted replays a fixed size sequence, then repeats 1.
type scripted []int

func (s *scripted) Next() int {
	if len(*s) == 0 {
		return 1
	}
	n := (*s)[0]
	*s = (*s)[1:]
	return n
}

func TestWalkOverhangOutsideEdgeRow(t *testing.T) {
	sizes := scripted{
		5, 5, 5, 10, // y=0
		5, 16, 5, 6, // y=10: 16 reaches the bottom but the row is not the edge row
		5, 3, 5, 10, // y=20: edge row
	}
	got := collect(t, Params{Width: 40, Height: 25, Stride: 10}, &sizes)

	want := []types.Window{
		{X: 0, Y: 0, Size: 5},
		{X: 10, Y: 0, Size: 5},
		{X: 20, Y: 0, Size: 5},
		{X: 30, Y: 0, Size: 10},
		{X: 0, Y: 10, Size: 5},
		{X: 10, Y: 10, Size: 16, Overhang: true},
		{X: 20, Y: 10, Size: 5},
		{X: 30, Y: 10, Size: 6},
		{X: 0, Y: 20, Size: 5},
		{X: 10, Y: 22, Size: 3},
		{X: 20, Y: 20, Size: 5},
		{X: 30, Y: 15, Size: 10},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("windows =\n%+v\nwant\n%+v", got, want)
	}
}

func TestWalkRandomBottomTouchedOnce(t *testing.T) {
	p := Params{Width: 120, Height: 80, Stride: 4}
	got := collect(t, p, NewRandom(rand.New(rand.NewSource(1234)), 80))

	// Windows flush with the bottom must all come from the last row walked.
	reached := false
	overhang := 0
	for _, w := range got {
		switch {
		case w.Overhang:
			overhang++
			if w.Y+w.Size < p.Height {
				t.Errorf("window %+v flagged as overhang but fits", w)
			}
		case w.Size == 0:
		case w.Y+w.Size == p.Height:
			reached = true
		case reached:
			t.Fatalf("window %+v walked after the bottom edge was reached", w)
		}
	}
	if !reached {
		t.Fatal("bottom edge never reached")
	}
	if overhang == 0 {
		t.Error("no overhanging windows were walked")
	}
}

func TestRandomSharedAcrossImages(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	first := NewRandom(rng, 50)
	a := []int{first.Next(), first.Next()}

	second := NewRandom(rng, 50)
	b := second.Next()

	ref := rand.New(rand.NewSource(1))
	want := []int{ref.Intn(50), ref.Intn(50), ref.Intn(50)}
	if a[0] != want[0] || a[1] != want[1] || b != want[2] {
		t.Errorf("sequence = %v,%d want %v", a, b, want)
	}
}
