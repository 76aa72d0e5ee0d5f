// Package cropselect filters, deduplicates and ranks candidate crop regions
// on a rendered PDF page. It consumes raw embedded-image footprints and
// grouped text lines, both in page-bitmap pixel space, and emits the bounded
// set of crops worth saving as question-image candidates.
package cropselect

import (
	"math"
	"sort"
	"strings"

	"github.com/local/quizassets/internal/geometry"
	"github.com/local/quizassets/internal/textlayout"
)

// Defaults mirror the tuned values of the extraction pipeline; callers
// override them through Params when configured differently.
const (
	DefaultMinCropEdge       = 120
	DefaultMinCropAreaRatio  = 0.008
	DefaultMaxCropAreaRatio  = 0.72
	DefaultMaxImageCrops     = 4
	DefaultMaxTextCrops      = 6
	DefaultTextBlockPadding  = 28
	DefaultMinBlockHeight    = 80
	DefaultMinBlockCharLen   = 28
	DefaultMinLinesPerBlock  = 2
	DefaultMaxLinesPerBlock  = 6
	DefaultMaxContextLength  = 320
	DefaultContextMargin     = 100
	imageDedupIoU            = 0.85
	textDedupIoU             = 0.72
	minTextAreaRatio         = 0.004
	maxTextAreaRatio         = 0.68
	minAspectRatio           = 0.15
	maxAspectRatio           = 6.5
	fallbackShrinkAreaRatio  = 0.62
	singleLineMinAreaRatio   = 0.002
	singleLineMinHeightScale = 0.7
)

// Params bounds the selection. Zero values fall back to the defaults above.
type Params struct {
	MinCropEdge      int
	MinCropAreaRatio float64
	MaxCropAreaRatio float64
	MaxImageCrops    int
	MaxTextCrops     int
	TextBlockPadding int
	MinBlockHeight   int
	MinBlockCharLen  int
	MinLinesPerBlock int
	MaxLinesPerBlock int
	MaxContextLength int
	ContextMargin    int
}

func (p Params) withDefaults() Params {
	def := func(v, d int) int {
		if v > 0 {
			return v
		}
		return d
	}
	p.MinCropEdge = def(p.MinCropEdge, DefaultMinCropEdge)
	if p.MinCropAreaRatio <= 0 {
		p.MinCropAreaRatio = DefaultMinCropAreaRatio
	}
	if p.MaxCropAreaRatio <= 0 {
		p.MaxCropAreaRatio = DefaultMaxCropAreaRatio
	}
	p.MaxImageCrops = def(p.MaxImageCrops, DefaultMaxImageCrops)
	p.MaxTextCrops = def(p.MaxTextCrops, DefaultMaxTextCrops)
	p.TextBlockPadding = def(p.TextBlockPadding, DefaultTextBlockPadding)
	p.MinBlockHeight = def(p.MinBlockHeight, DefaultMinBlockHeight)
	p.MinBlockCharLen = def(p.MinBlockCharLen, DefaultMinBlockCharLen)
	p.MinLinesPerBlock = def(p.MinLinesPerBlock, DefaultMinLinesPerBlock)
	p.MaxLinesPerBlock = def(p.MaxLinesPerBlock, DefaultMaxLinesPerBlock)
	p.MaxContextLength = def(p.MaxContextLength, DefaultMaxContextLength)
	p.ContextMargin = def(p.ContextMargin, DefaultContextMargin)
	return p
}

// TextCandidate is a selected text-block crop with the text it covers.
type TextCandidate struct {
	Bounds      geometry.Bounds
	ContextText string
	Score       float64
}

// SelectImageBoxes keeps embedded-image footprints that look like genuine
// figures: large enough on both edges, neither sliver-thin nor page-filling,
// deduplicated by IoU with bigger boxes winning, capped per page. When every
// box is rejected but at least one was painted, a near-full-page fallback is
// emitted so scan-like pages still produce one crop.
func SelectImageBoxes(raw []geometry.Bounds, pageWidth, pageHeight int, p Params) []geometry.Bounds {
	p = p.withDefaults()
	pageArea := float64(max(1, pageWidth*pageHeight))

	var normalized, filtered []geometry.Bounds
	for _, b := range raw {
		clamped := geometry.ClampBounds(b, pageWidth, pageHeight)
		normalized = append(normalized, clamped)
		if clamped.Width < p.MinCropEdge || clamped.Height < p.MinCropEdge {
			continue
		}
		area := float64(clamped.Area())
		if area < pageArea*p.MinCropAreaRatio || area > pageArea*p.MaxCropAreaRatio {
			continue
		}
		aspect := float64(clamped.Width) / float64(max(1, clamped.Height))
		if aspect <= minAspectRatio || aspect >= maxAspectRatio {
			continue
		}
		filtered = append(filtered, clamped)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Area() > filtered[j].Area()
	})

	var selected []geometry.Bounds
	for _, b := range filtered {
		if overlapsAny(selected, b, imageDedupIoU) {
			continue
		}
		selected = append(selected, b)
		if len(selected) >= p.MaxImageCrops {
			break
		}
	}

	if len(selected) == 0 && len(normalized) > 0 {
		sort.SliceStable(normalized, func(i, j int) bool {
			return normalized[i].Area() > normalized[j].Area()
		})
		fallback := normalized[0]
		if float64(fallback.Area()) > pageArea*p.MaxCropAreaRatio {
			fallback = geometry.ShrinkToAreaRatio(fallback, pageWidth, pageHeight, fallbackShrinkAreaRatio)
		}
		fallback = geometry.EnsureMinSize(fallback, p.MinCropEdge, p.MinCropEdge, pageWidth, pageHeight)
		if float64(fallback.Area()) >= pageArea*p.MinCropAreaRatio {
			selected = append(selected, fallback)
		}
	}

	return selected
}

// SelectTextBlocks slides a window of consecutive lines over the page and
// keeps the highest-scoring padded blocks: score rewards distinct tokens and
// (capped) character length. Near-duplicate windows collapse via IoU. When
// no multi-line block qualifies, a single-line fallback around the longest
// line is tried with relaxed size limits.
func SelectTextBlocks(lines []textlayout.Line, pageWidth, pageHeight int, p Params) []TextCandidate {
	p = p.withDefaults()
	pageArea := float64(max(1, pageWidth*pageHeight))

	var raw []TextCandidate
	for start := range lines {
		combined := ""
		minX, minY := math.MaxInt32, math.MaxInt32
		maxX, maxY := math.MinInt32, math.MinInt32
		tokens := map[string]bool{}

		end := min(len(lines), start+p.MaxLinesPerBlock)
		for i := start; i < end; i++ {
			line := lines[i]
			combined = textlayout.NormalizeWhitespace(combined + " " + line.Text)
			for _, tok := range textlayout.Tokenize(line.Text) {
				tokens[tok] = true
			}
			if line.Bounds.X < minX {
				minX = line.Bounds.X
			}
			if line.Bounds.Y < minY {
				minY = line.Bounds.Y
			}
			if r := line.Bounds.X + line.Bounds.Width; r > maxX {
				maxX = r
			}
			if b := line.Bounds.Y + line.Bounds.Height; b > maxY {
				maxY = b
			}

			lineCount := i - start + 1
			if lineCount < p.MinLinesPerBlock || len(combined) < p.MinBlockCharLen {
				continue
			}

			expanded := geometry.Expand(geometry.Bounds{
				X:      minX,
				Y:      minY,
				Width:  maxX - minX,
				Height: maxY - minY,
			}, p.TextBlockPadding, pageWidth, pageHeight)

			area := float64(expanded.Area())
			if expanded.Width < p.MinCropEdge ||
				expanded.Height < p.MinBlockHeight ||
				area < pageArea*minTextAreaRatio ||
				area > pageArea*maxTextAreaRatio {
				continue
			}

			score := float64(len(tokens))*2 + math.Min(200, float64(len(combined)))*0.07
			raw = append(raw, TextCandidate{
				Bounds:      expanded,
				ContextText: truncate(combined, p.MaxContextLength),
				Score:       score,
			})
		}
	}

	sort.SliceStable(raw, func(i, j int) bool { return raw[i].Score > raw[j].Score })

	var selected []TextCandidate
	for _, cand := range raw {
		overlaps := false
		for _, existing := range selected {
			if geometry.IoU(existing.Bounds, cand.Bounds) > textDedupIoU {
				overlaps = true
				break
			}
		}
		if !overlaps {
			selected = append(selected, cand)
		}
		if len(selected) >= p.MaxTextCrops {
			break
		}
	}

	if len(selected) == 0 && len(lines) > 0 {
		best := lines[0]
		for _, line := range lines[1:] {
			if len(line.Text) > len(best.Text) {
				best = line
			}
		}
		expanded := geometry.EnsureMinSize(
			geometry.Expand(best.Bounds, p.TextBlockPadding*2, pageWidth, pageHeight),
			p.MinCropEdge,
			max(56, int(float64(p.MinBlockHeight)*singleLineMinHeightScale)),
			pageWidth, pageHeight,
		)
		if float64(expanded.Area()) >= pageArea*singleLineMinAreaRatio {
			selected = append(selected, TextCandidate{
				Bounds:      expanded,
				ContextText: truncate(textlayout.NormalizeWhitespace(best.Text), p.MaxContextLength),
				Score:       math.Max(1, float64(len(best.Text))*0.2),
			})
		}
	}

	return selected
}

// BuildCropContext joins the text of every line within margin pixels of the
// crop, in reading order, capped at maxLength.
func BuildCropContext(lines []textlayout.Line, crop geometry.Bounds, margin, maxLength int) string {
	if len(lines) == 0 {
		return ""
	}
	var matched []string
	for _, line := range lines {
		if geometry.IntersectsWithMargin(line.Bounds, crop, margin) {
			matched = append(matched, line.Text)
		}
	}
	joined := textlayout.NormalizeWhitespace(strings.Join(matched, " "))
	return truncate(joined, maxLength)
}

func overlapsAny(existing []geometry.Bounds, b geometry.Bounds, threshold float64) bool {
	for _, e := range existing {
		if geometry.IoU(e, b) > threshold {
			return true
		}
	}
	return false
}

func truncate(s string, maxLength int) string {
	return textlayout.Truncate(s, maxLength)
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
