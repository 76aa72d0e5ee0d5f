package contentwalk

import (
	"math"
	"strings"
	"unicode/utf16"

	"github.com/local/quizassets/internal/geometry"
)

// Viewport maps PDF user-space coordinates (origin bottom-left, points)
// into page-bitmap pixel space (origin top-left).
type Viewport struct {
	PageWidthPts  float64
	PageHeightPts float64
	ScaleX        float64
	ScaleY        float64
	BitmapWidth   int
	BitmapHeight  int
}

// TextRun is one show-text operation mapped into bitmap pixel space.
type TextRun struct {
	Text   string
	Bounds geometry.Bounds
}

// PageContent is the operator stream of one page plus the names of its
// image XObject resources. A nil ImageXObjects map means resource
// classification was unavailable; every Do paint is then treated as a
// potential image and left to downstream size/aspect filters.
type PageContent struct {
	Streams       [][]byte
	ImageXObjects map[string]bool
}

// Result collects everything the walk recovered from one page.
type Result struct {
	ImageBounds []geometry.Bounds
	TextRuns    []TextRun
}

// avgGlyphWidthEm approximates glyph advance as a fraction of the font
// size. Real widths live in font descriptors; for layout grouping an
// average is enough.
const avgGlyphWidthEm = 0.5

// Walk interprets the page's paint operations with an explicit transform
// stack and returns embedded-image footprints and positioned text runs,
// both in bitmap pixel space. Degenerate geometry is silently dropped.
func Walk(content PageContent, vp Viewport) Result {
	w := &walker{
		vp:     vp,
		images: content.ImageXObjects,
		ctm:    Identity(),
		tm:     Identity(),
		tlm:    Identity(),
	}
	for _, stream := range content.Streams {
		w.run(stream)
	}
	return w.result
}

type walker struct {
	vp     Viewport
	images map[string]bool

	ctm    Matrix
	stack  []Matrix
	tm     Matrix
	tlm    Matrix
	fontSz float64
	lead   float64

	result Result
}

type operand struct {
	tok token
	arr []token
}

func (w *walker) run(data []byte) {
	lx := newLexer(data)
	var operands []operand
	for {
		t := lx.next()
		switch t.kind {
		case tokEOF:
			return
		case tokNumber, tokString, tokName:
			operands = append(operands, operand{tok: t})
		case tokArrayOpen:
			var arr []token
			for {
				at := lx.next()
				if at.kind == tokArrayClose || at.kind == tokEOF {
					break
				}
				arr = append(arr, at)
			}
			operands = append(operands, operand{arr: arr})
		case tokDictOpen:
			// Inline dictionaries only appear as operands we do not
			// interpret (BDC, gs argument shapes); swallow to the close.
			depth := 1
			for depth > 0 {
				dt := lx.next()
				if dt.kind == tokEOF {
					return
				}
				if dt.kind == tokDictOpen {
					depth++
				}
				if dt.kind == tokDictClose {
					depth--
				}
			}
			operands = nil
		case tokDictClose, tokArrayClose:
			operands = nil
		case tokOperator:
			w.apply(t.name, operands, lx)
			operands = operands[:0]
		}
	}
}

func (w *walker) apply(op string, operands []operand, lx *lexer) {
	switch op {
	case "q":
		w.stack = append(w.stack, w.ctm)
	case "Q":
		if len(w.stack) > 0 {
			w.ctm = w.stack[len(w.stack)-1]
			w.stack = w.stack[:len(w.stack)-1]
		} else {
			w.ctm = Identity()
		}
	case "cm":
		if m, ok := matrixOperands(operands); ok {
			w.ctm = m.Mult(w.ctm)
		}
	case "BT":
		w.tm = Identity()
		w.tlm = Identity()
	case "Tf":
		if len(operands) >= 2 && operands[1].tok.kind == tokNumber {
			w.fontSz = operands[1].tok.num
		}
	case "TL":
		if len(operands) >= 1 && operands[0].tok.kind == tokNumber {
			w.lead = operands[0].tok.num
		}
	case "Td", "TD":
		if len(operands) >= 2 && operands[0].tok.kind == tokNumber && operands[1].tok.kind == tokNumber {
			tx, ty := operands[0].tok.num, operands[1].tok.num
			if op == "TD" {
				w.lead = -ty
			}
			w.tlm = Translate(tx, ty).Mult(w.tlm)
			w.tm = w.tlm
		}
	case "Tm":
		if m, ok := matrixOperands(operands); ok {
			w.tm = m
			w.tlm = m
		}
	case "T*":
		w.nextLine()
	case "Tj":
		if len(operands) >= 1 {
			w.showText(operands[0].tok.str)
		}
	case "'":
		w.nextLine()
		if len(operands) >= 1 {
			w.showText(operands[0].tok.str)
		}
	case "\"":
		w.nextLine()
		if len(operands) >= 3 {
			w.showText(operands[2].tok.str)
		}
	case "TJ":
		if len(operands) >= 1 {
			for _, el := range operands[0].arr {
				switch el.kind {
				case tokString:
					w.showText(el.str)
				case tokNumber:
					shift := -el.num / 1000.0 * w.fontSz
					w.tm[4] += shift * w.tm[0]
					w.tm[5] += shift * w.tm[1]
				}
			}
		}
	case "Do":
		if len(operands) >= 1 && operands[0].tok.kind == tokName {
			name := operands[0].tok.name
			if w.images == nil || w.images[name] {
				w.emitImage()
			}
		}
	case "BI":
		// Consume the inline image dictionary up to ID, then the binary
		// payload up to EI, and record the paint footprint.
		for {
			t := lx.next()
			if t.kind == tokEOF {
				return
			}
			if t.kind == tokOperator && t.name == "ID" {
				break
			}
		}
		if err := lx.skipInlineImage(); err != nil {
			return
		}
		w.emitImage()
	}
}

func (w *walker) nextLine() {
	w.tlm = Translate(0, -w.lead).Mult(w.tlm)
	w.tm = w.tlm
}

// showText emits a positioned run for one show-text operation and advances
// the text matrix by the estimated advance width.
func (w *walker) showText(raw []byte) {
	text := decodeText(raw)
	fontSz := w.fontSz
	if fontSz <= 0 {
		fontSz = 12
	}
	runes := len([]rune(text))
	if runes == 0 {
		runes = len(raw)
	}
	width := avgGlyphWidthEm * fontSz * float64(runes)

	if strings.TrimSpace(text) != "" {
		trm := w.tm.Mult(w.ctm)
		if b, ok := w.quadBounds(trm, 0, -0.2*fontSz, width, fontSz); ok {
			w.result.TextRuns = append(w.result.TextRuns, TextRun{Text: text, Bounds: b})
		}
	}
	w.tm = Translate(width, 0).Mult(w.tm)
}

// emitImage takes the unit square under the current transform composed
// with the viewport as the painted image's footprint.
func (w *walker) emitImage() {
	if b, ok := w.quadBounds(w.ctm, 0, 0, 1, 1); ok {
		w.result.ImageBounds = append(w.result.ImageBounds, b)
	}
}

// quadBounds transforms the rectangle (x, y, x+dw, y+dh) through m, takes
// its axis-aligned bounding box in user space, and maps it into bitmap
// pixels. Returns false for non-finite or zero-area results.
func (w *walker) quadBounds(m Matrix, x, y, dw, dh float64) (geometry.Bounds, bool) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range [4][2]float64{{x, y}, {x + dw, y}, {x, y + dh}, {x + dw, y + dh}} {
		px, py := m.Apply(p[0], p[1])
		minX = math.Min(minX, px)
		minY = math.Min(minY, py)
		maxX = math.Max(maxX, px)
		maxY = math.Max(maxY, py)
	}
	rect := geometry.Rect{
		X:      minX * w.vp.ScaleX,
		Y:      (w.vp.PageHeightPts - maxY) * w.vp.ScaleY,
		Width:  (maxX - minX) * w.vp.ScaleX,
		Height: (maxY - minY) * w.vp.ScaleY,
	}
	if !rect.IsFinite() {
		return geometry.Bounds{}, false
	}
	b := geometry.Clamp(rect, w.vp.BitmapWidth, w.vp.BitmapHeight)
	if b.Empty() {
		return geometry.Bounds{}, false
	}
	return b, true
}

func matrixOperands(operands []operand) (Matrix, bool) {
	if len(operands) < 6 {
		return Matrix{}, false
	}
	var m Matrix
	for i := 0; i < 6; i++ {
		if operands[i].tok.kind != tokNumber {
			return Matrix{}, false
		}
		m[i] = operands[i].tok.num
	}
	return m, true
}

// decodeText turns raw string bytes into printable text. UTF-16BE (the
// common encoding for ToUnicode'd strings) is decoded properly; single-byte
// strings are treated as Latin-1. Runs that are mostly unprintable, which
// happens with subsetted CID fonts whose codes are not character codes,
// decode to empty so they are positioned but contribute no tokens.
func decodeText(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	if len(raw) >= 2 && raw[0] == 0xfe && raw[1] == 0xff {
		u16 := make([]uint16, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			u16 = append(u16, uint16(raw[i])<<8|uint16(raw[i+1]))
		}
		return strings.TrimFunc(string(utf16.Decode(u16)), func(r rune) bool { return r == 0 })
	}

	printable := 0
	var sb strings.Builder
	for _, b := range raw {
		switch {
		case b >= 0x20 && b <= 0x7e:
			sb.WriteByte(b)
			printable++
		case b >= 0xa0:
			sb.WriteRune(rune(b))
			printable++
		case b == '\n' || b == '\t':
			sb.WriteByte(' ')
			printable++
		default:
			sb.WriteByte(' ')
		}
	}
	if printable*2 < len(raw) {
		return ""
	}
	return sb.String()
}
