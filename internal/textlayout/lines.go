package textlayout

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/local/quizassets/internal/geometry"
)

// Item is one positioned text fragment in page-bitmap pixel space. The
// grouping below does not care about fragment granularity; per-character
// boxes and whole show-text runs both work.
type Item struct {
	Text   string
	Bounds geometry.Bounds
}

// Line is a reading-order text line with its union bounding box.
type Line struct {
	Text   string
	Bounds geometry.Bounds
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	nonTokenRe   = regexp.MustCompile(`[^a-z0-9\s]`)
)

// NormalizeWhitespace collapses runs of whitespace to single spaces and
// trims the result.
func NormalizeWhitespace(value string) string {
	if value == "" {
		return ""
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
}

// Tokenize lowercases, strips punctuation and returns tokens of at least
// three characters, for overlap scoring.
func Tokenize(value string) []string {
	text := strings.ToLower(NormalizeWhitespace(value))
	text = nonTokenRe.ReplaceAllString(text, " ")
	var tokens []string
	for _, tok := range strings.Fields(text) {
		if len(tok) >= 3 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

type lineGroup struct {
	items   []Item
	centerY float64
}

// BuildLines groups positioned fragments into reading-order lines. Fragments
// join a line when their vertical centers sit within a gap derived from the
// median fragment height; within a line, fragments are ordered left to right
// and a space is inserted wherever the horizontal gap exceeds a threshold
// scaled by the smaller neighbour's height.
func BuildLines(items []Item) []Line {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Bounds.Y != sorted[j].Bounds.Y {
			return sorted[i].Bounds.Y < sorted[j].Bounds.Y
		}
		return sorted[i].Bounds.X < sorted[j].Bounds.X
	})

	var heights []int
	for _, it := range sorted {
		if it.Bounds.Height > 0 {
			heights = append(heights, it.Bounds.Height)
		}
	}
	medianHeight := 12.0
	if len(heights) > 0 {
		sort.Ints(heights)
		medianHeight = float64(heights[len(heights)/2])
	}
	lineGap := math.Max(6, math.Min(20, math.Round(medianHeight*0.9)))

	var groups []*lineGroup
	for _, it := range sorted {
		centerY := float64(it.Bounds.Y) + float64(it.Bounds.Height)/2
		var matched *lineGroup
		closest := math.Inf(1)
		for _, g := range groups {
			delta := math.Abs(g.centerY - centerY)
			if delta <= lineGap && delta < closest {
				matched = g
				closest = delta
			}
		}
		if matched == nil {
			groups = append(groups, &lineGroup{items: []Item{it}, centerY: centerY})
			continue
		}
		matched.items = append(matched.items, it)
		var sum float64
		for _, entry := range matched.items {
			sum += float64(entry.Bounds.Y) + float64(entry.Bounds.Height)/2
		}
		matched.centerY = sum / float64(len(matched.items))
	}

	var lines []Line
	for _, g := range groups {
		sort.SliceStable(g.items, func(i, j int) bool {
			return g.items[i].Bounds.X < g.items[j].Bounds.X
		})

		var pieces []string
		minX, minY := math.MaxInt32, math.MaxInt32
		maxX, maxY := math.MinInt32, math.MinInt32
		var prev *Item

		for i := range g.items {
			it := &g.items[i]
			if it.Bounds.X < minX {
				minX = it.Bounds.X
			}
			if it.Bounds.Y < minY {
				minY = it.Bounds.Y
			}
			if r := it.Bounds.X + it.Bounds.Width; r > maxX {
				maxX = r
			}
			if b := it.Bounds.Y + it.Bounds.Height; b > maxY {
				maxY = b
			}
			if prev != nil {
				gap := float64(it.Bounds.X - (prev.Bounds.X + prev.Bounds.Width))
				minH := prev.Bounds.Height
				if it.Bounds.Height < minH {
					minH = it.Bounds.Height
				}
				threshold := math.Max(1.5, float64(minH)*0.35)
				if gap > threshold && prev.Text != " " && it.Text != " " {
					pieces = append(pieces, " ")
				}
			}
			pieces = append(pieces, it.Text)
			prev = it
		}

		text := NormalizeWhitespace(strings.Join(pieces, ""))
		if text == "" {
			continue
		}
		lines = append(lines, Line{
			Text: text,
			Bounds: geometry.Bounds{
				X:      minX,
				Y:      minY,
				Width:  maxX - minX,
				Height: maxY - minY,
			},
		})
	}

	return lines
}

// PageText joins lines in reading order into one normalized string capped
// at maxLength. Lines are already grouped top to bottom by BuildLines.
func PageText(lines []Line, maxLength int) string {
	var parts []string
	for _, line := range lines {
		parts = append(parts, line.Text)
	}
	return Truncate(NormalizeWhitespace(strings.Join(parts, " ")), maxLength)
}

// Truncate caps s at maxBytes without splitting a multi-byte rune; the cut
// backs off to the previous rune boundary. Non-positive maxBytes means no cap.
func Truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
