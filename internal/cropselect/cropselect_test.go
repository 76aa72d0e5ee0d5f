package cropselect

import (
	"reflect"
	"strings"
	"testing"

	"github.com/local/quizassets/internal/geometry"
	"github.com/local/quizassets/internal/textlayout"
)

const (
	pageW = 1200
	pageH = 1600
)

func box(x, y, w, h int) geometry.Bounds {
	return geometry.Bounds{X: x, Y: y, Width: w, Height: h}
}

func TestSelectImageBoxesFilters(t *testing.T) {
	raw := []geometry.Bounds{
		box(100, 100, 400, 300),  // keeper
		box(50, 50, 60, 60),      // below min edge
		box(0, 0, 1200, 1600),    // page-filling
		box(100, 900, 900, 130),  // aspect 6.9, sliver
		box(200, 1200, 130, 130), // area ratio 0.0088, just above floor
	}
	got := SelectImageBoxes(raw, pageW, pageH, Params{})
	if len(got) != 2 {
		t.Fatalf("selected = %d, want 2: %+v", len(got), got)
	}
	// Sorted by area descending.
	if got[0] != box(100, 100, 400, 300) {
		t.Errorf("first = %+v", got[0])
	}
	if got[1] != box(200, 1200, 130, 130) {
		t.Errorf("second = %+v", got[1])
	}
}

func TestSelectImageBoxesDedupByIoU(t *testing.T) {
	raw := []geometry.Bounds{
		box(100, 100, 400, 300),
		box(105, 105, 400, 300), // near-identical, IoU > 0.85
		box(700, 100, 400, 300), // disjoint
	}
	got := SelectImageBoxes(raw, pageW, pageH, Params{})
	if len(got) != 2 {
		t.Fatalf("selected = %d, want 2 after dedup: %+v", len(got), got)
	}
}

func TestSelectImageBoxesPerPageCap(t *testing.T) {
	var raw []geometry.Bounds
	for i := 0; i < 8; i++ {
		raw = append(raw, box(50, 50+i*180, 400, 160))
	}
	got := SelectImageBoxes(raw, pageW, pageH, Params{})
	if len(got) != DefaultMaxImageCrops {
		t.Fatalf("selected = %d, want cap %d", len(got), DefaultMaxImageCrops)
	}
}

func TestSelectImageBoxesScanFallback(t *testing.T) {
	// Single near-full-page image, as in scanned PDFs: normally rejected,
	// but the fallback shrinks it to a usable central crop.
	raw := []geometry.Bounds{box(0, 0, 1200, 1600)}
	got := SelectImageBoxes(raw, pageW, pageH, Params{})
	if len(got) != 1 {
		t.Fatalf("selected = %d, want 1 fallback crop", len(got))
	}
	fb := got[0]
	pageArea := pageW * pageH
	ratio := float64(fb.Area()) / float64(pageArea)
	if ratio > 0.66 {
		t.Errorf("fallback area ratio = %.3f, want shrunk below full page", ratio)
	}
	if fb.Width < DefaultMinCropEdge || fb.Height < DefaultMinCropEdge {
		t.Errorf("fallback too small: %+v", fb)
	}
}

func TestSelectImageBoxesIdempotent(t *testing.T) {
	// Re-selecting an already-selected set must change nothing, and no kept
	// pair may sit above the dedup threshold.
	sets := map[string][]geometry.Bounds{
		"near duplicates": {
			box(100, 100, 400, 300),
			box(105, 105, 400, 300),
			box(700, 100, 400, 300),
			box(200, 600, 300, 250),
		},
		"fallback only": {box(0, 0, 1200, 1600)},
		"mixed": {
			box(100, 100, 300, 200),
			box(420, 100, 300, 200),
			box(100, 340, 300, 200),
			box(50, 50, 60, 60),
		},
	}
	for name, raw := range sets {
		t.Run(name, func(t *testing.T) {
			first := SelectImageBoxes(raw, pageW, pageH, Params{})
			second := SelectImageBoxes(first, pageW, pageH, Params{})
			if !reflect.DeepEqual(first, second) {
				t.Errorf("reselection changed output:\n%+v\nvs\n%+v", first, second)
			}
			for i := range first {
				for j := i + 1; j < len(first); j++ {
					if iou := geometry.IoU(first[i], first[j]); iou > 0.85 {
						t.Errorf("kept boxes %d and %d overlap with IoU %.2f", i, j, iou)
					}
				}
			}
		})
	}
}

func TestSelectImageBoxesEmpty(t *testing.T) {
	if got := SelectImageBoxes(nil, pageW, pageH, Params{}); len(got) != 0 {
		t.Fatalf("selected from empty input: %+v", got)
	}
}

func makeLines(n int) []textlayout.Line {
	var lines []textlayout.Line
	for i := 0; i < n; i++ {
		lines = append(lines, textlayout.Line{
			Text:   "question stem describing the diagram below with labels",
			Bounds: box(80, 120+i*40, 700, 28),
		})
	}
	return lines
}

func TestSelectTextBlocksWindow(t *testing.T) {
	got := SelectTextBlocks(makeLines(8), pageW, pageH, Params{})
	if len(got) == 0 {
		t.Fatal("no text blocks selected")
	}
	if len(got) > DefaultMaxTextCrops {
		t.Fatalf("selected = %d, want at most %d", len(got), DefaultMaxTextCrops)
	}
	for _, cand := range got {
		if cand.Bounds.Width < DefaultMinCropEdge {
			t.Errorf("block narrower than min edge: %+v", cand.Bounds)
		}
		if cand.Bounds.Height < DefaultMinBlockHeight {
			t.Errorf("block shorter than min height: %+v", cand.Bounds)
		}
		if cand.ContextText == "" {
			t.Error("block without context text")
		}
		if cand.Score <= 0 {
			t.Errorf("score = %f", cand.Score)
		}
	}
	// Highest score first.
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("candidates not sorted by score: %f after %f", got[i].Score, got[i-1].Score)
		}
	}
}

func TestSelectTextBlocksDedup(t *testing.T) {
	got := SelectTextBlocks(makeLines(3), pageW, pageH, Params{})
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if iou := geometry.IoU(got[i].Bounds, got[j].Bounds); iou > 0.72 {
				t.Errorf("candidates %d and %d overlap with IoU %.2f", i, j, iou)
			}
		}
	}
}

func TestSelectTextBlocksSingleLineFallback(t *testing.T) {
	lines := []textlayout.Line{
		{
			Text:   "The diagram shows a food web for a woodland ecosystem",
			Bounds: box(100, 400, 800, 30),
		},
	}
	got := SelectTextBlocks(lines, pageW, pageH, Params{})
	if len(got) != 1 {
		t.Fatalf("selected = %d, want single-line fallback", len(got))
	}
	if !strings.Contains(got[0].ContextText, "food web") {
		t.Errorf("context = %q", got[0].ContextText)
	}
	if got[0].Bounds.Height < 56 {
		t.Errorf("fallback height = %d, want relaxed minimum", got[0].Bounds.Height)
	}
}

func TestSelectTextBlocksNoLines(t *testing.T) {
	if got := SelectTextBlocks(nil, pageW, pageH, Params{}); len(got) != 0 {
		t.Fatalf("selected from empty input: %+v", got)
	}
}

func TestSelectTextBlocksContextCap(t *testing.T) {
	lines := makeLines(6)
	got := SelectTextBlocks(lines, pageW, pageH, Params{})
	for _, cand := range got {
		if len(cand.ContextText) > DefaultMaxContextLength {
			t.Errorf("context length = %d, want <= %d", len(cand.ContextText), DefaultMaxContextLength)
		}
	}
}

func TestBuildCropContext(t *testing.T) {
	lines := []textlayout.Line{
		{Text: "near the crop", Bounds: box(100, 100, 200, 20)},
		{Text: "far away", Bounds: box(100, 1400, 200, 20)},
	}
	crop := box(80, 150, 300, 200)
	got := BuildCropContext(lines, crop, DefaultContextMargin, DefaultMaxContextLength)
	if got != "near the crop" {
		t.Errorf("context = %q, want only the nearby line", got)
	}
	if ctx := BuildCropContext(nil, crop, DefaultContextMargin, DefaultMaxContextLength); ctx != "" {
		t.Errorf("context from no lines = %q", ctx)
	}
}
