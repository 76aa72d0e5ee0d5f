package geometry

import (
	"math"
	"testing"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		r    Rect
		want Bounds
	}{
		{"inside", Rect{X: 10.2, Y: 20.7, Width: 30.1, Height: 40.2}, Bounds{X: 10, Y: 20, Width: 31, Height: 41}},
		{"negative origin", Rect{X: -5, Y: -5, Width: 50, Height: 50}, Bounds{X: 0, Y: 0, Width: 45, Height: 45}},
		{"overflow", Rect{X: 90, Y: 90, Width: 50, Height: 50}, Bounds{X: 90, Y: 90, Width: 10, Height: 10}},
		{"fully outside", Rect{X: 200, Y: 200, Width: 10, Height: 10}, Bounds{X: 200, Y: 200, Width: 0, Height: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.r, 100, 100)
			if got != tt.want {
				t.Fatalf("Clamp(%+v) = %+v, want %+v", tt.r, got, tt.want)
			}
		})
	}
}

func TestRectIsFinite(t *testing.T) {
	if !(Rect{X: 1, Y: 2, Width: 3, Height: 4}).IsFinite() {
		t.Fatal("finite rect reported non-finite")
	}
	if (Rect{X: math.NaN()}).IsFinite() {
		t.Fatal("NaN rect reported finite")
	}
	if (Rect{Width: math.Inf(1)}).IsFinite() {
		t.Fatal("Inf rect reported finite")
	}
}

func TestIoU(t *testing.T) {
	a := Bounds{X: 0, Y: 0, Width: 100, Height: 100}

	if got := IoU(a, a); got != 1 {
		t.Fatalf("self IoU = %v", got)
	}
	if got := IoU(a, Bounds{X: 200, Y: 200, Width: 10, Height: 10}); got != 0 {
		t.Fatalf("disjoint IoU = %v", got)
	}
	// half overlap: inter 50*100=5000, union 15000
	b := Bounds{X: 50, Y: 0, Width: 100, Height: 100}
	if got, want := IoU(a, b), 5000.0/15000.0; math.Abs(got-want) > 1e-9 {
		t.Fatalf("IoU = %v, want %v", got, want)
	}
	if got := IoU(a, Bounds{}); got != 0 {
		t.Fatalf("degenerate IoU = %v", got)
	}
}

func TestIntersectsWithMargin(t *testing.T) {
	crop := Bounds{X: 100, Y: 100, Width: 50, Height: 50}
	near := Bounds{X: 160, Y: 100, Width: 20, Height: 10}

	if IntersectsWithMargin(near, crop, 0) {
		t.Fatal("disjoint boxes intersect with zero margin")
	}
	if !IntersectsWithMargin(near, crop, 20) {
		t.Fatal("margin should bridge a 10px gap")
	}
}

func TestExpand(t *testing.T) {
	got := Expand(Bounds{X: 10, Y: 10, Width: 20, Height: 20}, 5, 100, 100)
	want := Bounds{X: 5, Y: 5, Width: 30, Height: 30}
	if got != want {
		t.Fatalf("Expand = %+v, want %+v", got, want)
	}

	// clamped at the page edge
	got = Expand(Bounds{X: 0, Y: 0, Width: 20, Height: 20}, 10, 100, 100)
	want = Bounds{X: 0, Y: 0, Width: 30, Height: 30}
	if got != want {
		t.Fatalf("Expand at edge = %+v, want %+v", got, want)
	}
}

func TestEnsureMinSize(t *testing.T) {
	got := EnsureMinSize(Bounds{X: 100, Y: 100, Width: 40, Height: 120}, 120, 80, 1000, 1000)
	want := Bounds{X: 60, Y: 100, Width: 120, Height: 120}
	if got != want {
		t.Fatalf("EnsureMinSize = %+v, want %+v", got, want)
	}
}

func TestShrinkToAreaRatio(t *testing.T) {
	// 1000x1000 page, 800x800 box = 0.64 ratio, target 0.16 -> scale 0.5
	got := ShrinkToAreaRatio(Bounds{X: 100, Y: 100, Width: 800, Height: 800}, 1000, 1000, 0.16)
	if got.Width < 390 || got.Width > 410 || got.Height < 390 || got.Height > 410 {
		t.Fatalf("shrunk box = %+v, want ~400x400", got)
	}
	// still centered
	cx := got.X + got.Width/2
	if cx < 490 || cx > 510 {
		t.Fatalf("center moved: %+v", got)
	}

	// already small enough: untouched
	small := Bounds{X: 10, Y: 10, Width: 100, Height: 100}
	if got := ShrinkToAreaRatio(small, 1000, 1000, 0.5); got != small {
		t.Fatalf("small box changed: %+v", got)
	}
}
