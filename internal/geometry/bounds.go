package geometry

import "math"

// Bounds is an axis-aligned box in page-bitmap pixel space.
// Coordinates are non-negative once clamped to a bitmap extent.
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect is a box in floating-point coordinates, used before rounding
// into bitmap pixel space.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// IsFinite reports whether all fields are finite numbers.
func (r Rect) IsFinite() bool {
	for _, v := range []float64{r.X, r.Y, r.Width, r.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Area returns the box area in square pixels.
func (b Bounds) Area() int { return b.Width * b.Height }

// Empty reports whether the box has no area.
func (b Bounds) Empty() bool { return b.Width <= 0 || b.Height <= 0 }

// Clamp rounds r outward to whole pixels and clips it to a pageWidth x pageHeight bitmap.
func Clamp(r Rect, pageWidth, pageHeight int) Bounds {
	x := int(math.Floor(r.X))
	y := int(math.Floor(r.Y))
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	maxX := int(math.Ceil(r.X + r.Width))
	if maxX > pageWidth {
		maxX = pageWidth
	}
	maxY := int(math.Ceil(r.Y + r.Height))
	if maxY > pageHeight {
		maxY = pageHeight
	}
	w := maxX - x
	if w < 0 {
		w = 0
	}
	h := maxY - y
	if h < 0 {
		h = 0
	}
	return Bounds{X: x, Y: y, Width: w, Height: h}
}

// ClampBounds clips an integer box to a pageWidth x pageHeight bitmap.
func ClampBounds(b Bounds, pageWidth, pageHeight int) Bounds {
	return Clamp(Rect{X: float64(b.X), Y: float64(b.Y), Width: float64(b.Width), Height: float64(b.Height)}, pageWidth, pageHeight)
}

// IoU computes intersection-over-union of two boxes. Returns 0 for
// disjoint or degenerate input.
func IoU(a, b Bounds) float64 {
	ix := max(a.X, b.X)
	iy := max(a.Y, b.Y)
	ixMax := min(a.X+a.Width, b.X+b.Width)
	iyMax := min(a.Y+a.Height, b.Y+b.Height)
	iw := ixMax - ix
	ih := iyMax - iy
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// IntersectsWithMargin reports whether text intersects crop after expanding
// crop by margin pixels on every side.
func IntersectsWithMargin(text, crop Bounds, margin int) bool {
	cropLeft := crop.X - margin
	cropTop := crop.Y - margin
	cropRight := crop.X + crop.Width + margin
	cropBottom := crop.Y + crop.Height + margin
	return !(text.X+text.Width < cropLeft ||
		text.X > cropRight ||
		text.Y+text.Height < cropTop ||
		text.Y > cropBottom)
}

// Expand grows b by pad pixels on every side and clamps to the page.
func Expand(b Bounds, pad, pageWidth, pageHeight int) Bounds {
	return Clamp(Rect{
		X:      float64(b.X - pad),
		Y:      float64(b.Y - pad),
		Width:  float64(b.Width + pad*2),
		Height: float64(b.Height + pad*2),
	}, pageWidth, pageHeight)
}

// EnsureMinSize grows b symmetrically around its center until it is at
// least minWidth x minHeight, then clamps to the page.
func EnsureMinSize(b Bounds, minWidth, minHeight, pageWidth, pageHeight int) Bounds {
	x := float64(b.X)
	y := float64(b.Y)
	w := float64(b.Width)
	h := float64(b.Height)
	if w < float64(minWidth) {
		grow := float64(minWidth) - w
		x -= grow / 2
		w = float64(minWidth)
	}
	if h < float64(minHeight) {
		grow := float64(minHeight) - h
		y -= grow / 2
		h = float64(minHeight)
	}
	return Clamp(Rect{X: x, Y: y, Width: w, Height: h}, pageWidth, pageHeight)
}

// ShrinkToAreaRatio scales b down around its center so its area does not
// exceed targetRatio of the page area. Boxes already within the target are
// returned clamped but otherwise untouched.
func ShrinkToAreaRatio(b Bounds, pageWidth, pageHeight int, targetRatio float64) Bounds {
	pageArea := float64(pageWidth * pageHeight)
	if pageArea < 1 {
		pageArea = 1
	}
	targetArea := pageArea * targetRatio
	if targetArea < 1 {
		targetArea = 1
	}
	area := float64(b.Area())
	if area < 1 {
		area = 1
	}
	if area <= targetArea {
		return ClampBounds(b, pageWidth, pageHeight)
	}
	scale := math.Sqrt(targetArea / area)
	w := float64(b.Width) * scale
	h := float64(b.Height) * scale
	cx := float64(b.X) + float64(b.Width)/2
	cy := float64(b.Y) + float64(b.Height)/2
	return Clamp(Rect{X: cx - w/2, Y: cy - h/2, Width: w, Height: h}, pageWidth, pageHeight)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
