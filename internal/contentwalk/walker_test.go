package contentwalk

import (
	"strings"
	"testing"

	"github.com/local/quizassets/internal/geometry"
)

func testViewport() Viewport {
	return Viewport{
		PageWidthPts:  600,
		PageHeightPts: 800,
		ScaleX:        1,
		ScaleY:        1,
		BitmapWidth:   600,
		BitmapHeight:  800,
	}
}

func TestWalkImageXObject(t *testing.T) {
	stream := []byte("q 100 0 0 80 50 600 cm /Im1 Do Q")
	res := Walk(PageContent{
		Streams:       [][]byte{stream},
		ImageXObjects: map[string]bool{"Im1": true},
	}, testViewport())

	if len(res.ImageBounds) != 1 {
		t.Fatalf("image bounds = %d, want 1", len(res.ImageBounds))
	}
	want := geometry.Bounds{X: 50, Y: 120, Width: 100, Height: 80}
	if res.ImageBounds[0] != want {
		t.Fatalf("bounds = %+v, want %+v", res.ImageBounds[0], want)
	}
}

func TestWalkNonImageXObjectSkipped(t *testing.T) {
	stream := []byte("q 100 0 0 80 50 600 cm /Fm0 Do Q")
	res := Walk(PageContent{
		Streams:       [][]byte{stream},
		ImageXObjects: map[string]bool{"Im1": true},
	}, testViewport())
	if len(res.ImageBounds) != 0 {
		t.Fatalf("form XObject painted as image: %+v", res.ImageBounds)
	}
}

func TestWalkUnclassifiedDoTreatedAsImage(t *testing.T) {
	stream := []byte("q 200 0 0 150 10 100 cm /X7 Do Q")
	res := Walk(PageContent{Streams: [][]byte{stream}}, testViewport())
	if len(res.ImageBounds) != 1 {
		t.Fatalf("image bounds = %d, want 1 when classification unavailable", len(res.ImageBounds))
	}
}

func TestWalkTransformStackRestore(t *testing.T) {
	// The scale inside q..Q must not leak into the second paint.
	stream := []byte("q 2 0 0 2 0 0 cm q 100 0 0 100 0 300 cm /Im1 Do Q Q q 100 0 0 100 0 300 cm /Im1 Do Q")
	res := Walk(PageContent{
		Streams:       [][]byte{stream},
		ImageXObjects: map[string]bool{"Im1": true},
	}, testViewport())
	if len(res.ImageBounds) != 2 {
		t.Fatalf("image bounds = %d, want 2", len(res.ImageBounds))
	}
	if res.ImageBounds[0].Width != 200 {
		t.Errorf("scaled paint width = %d, want 200", res.ImageBounds[0].Width)
	}
	if res.ImageBounds[1].Width != 100 {
		t.Errorf("restored paint width = %d, want 100", res.ImageBounds[1].Width)
	}
}

func TestWalkDegenerateImageDropped(t *testing.T) {
	stream := []byte("q 0 0 0 0 50 600 cm /Im1 Do Q")
	res := Walk(PageContent{
		Streams:       [][]byte{stream},
		ImageXObjects: map[string]bool{"Im1": true},
	}, testViewport())
	if len(res.ImageBounds) != 0 {
		t.Fatalf("zero-area paint survived: %+v", res.ImageBounds)
	}
}

func TestWalkTextRuns(t *testing.T) {
	stream := []byte("BT /F1 12 Tf 72 700 Td (Which of the following) Tj ET")
	res := Walk(PageContent{Streams: [][]byte{stream}}, testViewport())

	if len(res.TextRuns) != 1 {
		t.Fatalf("text runs = %d, want 1", len(res.TextRuns))
	}
	run := res.TextRuns[0]
	if run.Text != "Which of the following" {
		t.Errorf("text = %q", run.Text)
	}
	if run.Bounds.X != 72 {
		t.Errorf("x = %d, want 72", run.Bounds.X)
	}
	// Baseline at y=700 with a 12pt font lands near the top of the bitmap.
	if run.Bounds.Y < 80 || run.Bounds.Y > 100 {
		t.Errorf("y = %d, want around 90", run.Bounds.Y)
	}
	if run.Bounds.Height < 10 {
		t.Errorf("height = %d, want >= font size", run.Bounds.Height)
	}
}

func TestWalkTextLineAdvance(t *testing.T) {
	stream := []byte("BT /F1 10 Tf 14 TL 72 700 Td (first) Tj T* (second) Tj ET")
	res := Walk(PageContent{Streams: [][]byte{stream}}, testViewport())

	if len(res.TextRuns) != 2 {
		t.Fatalf("text runs = %d, want 2", len(res.TextRuns))
	}
	if res.TextRuns[1].Bounds.Y <= res.TextRuns[0].Bounds.Y {
		t.Errorf("second line y=%d not below first y=%d",
			res.TextRuns[1].Bounds.Y, res.TextRuns[0].Bounds.Y)
	}
	if res.TextRuns[0].Bounds.X != res.TextRuns[1].Bounds.X {
		t.Errorf("line starts differ: %d vs %d",
			res.TextRuns[0].Bounds.X, res.TextRuns[1].Bounds.X)
	}
}

func TestWalkTJArray(t *testing.T) {
	stream := []byte("BT /F1 12 Tf 72 400 Td [(Wh) -20 (ich)] TJ ET")
	res := Walk(PageContent{Streams: [][]byte{stream}}, testViewport())

	if len(res.TextRuns) != 2 {
		t.Fatalf("text runs = %d, want 2", len(res.TextRuns))
	}
	if res.TextRuns[1].Bounds.X <= res.TextRuns[0].Bounds.X {
		t.Errorf("second fragment x=%d not advanced past first x=%d",
			res.TextRuns[1].Bounds.X, res.TextRuns[0].Bounds.X)
	}
}

func TestWalkInlineImage(t *testing.T) {
	stream := []byte("q 60 0 0 40 100 200 cm BI /W 2 /H 2 /CS /G /BPC 8 ID \x00\x01\x02\x03 EI Q")
	res := Walk(PageContent{Streams: [][]byte{stream}}, testViewport())

	if len(res.ImageBounds) != 1 {
		t.Fatalf("image bounds = %d, want 1", len(res.ImageBounds))
	}
	b := res.ImageBounds[0]
	if b.Width != 60 || b.Height != 40 {
		t.Errorf("bounds = %+v, want 60x40", b)
	}
}

func TestWalkMultipleStreams(t *testing.T) {
	// Content split across stream parts still walks under one state machine.
	res := Walk(PageContent{
		Streams: [][]byte{
			[]byte("q 100 0 0 100 0 0 cm"),
			[]byte("/Im1 Do Q"),
		},
		ImageXObjects: map[string]bool{"Im1": true},
	}, testViewport())
	if len(res.ImageBounds) != 1 {
		t.Fatalf("image bounds = %d, want 1", len(res.ImageBounds))
	}
}

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"ascii", []byte("plain text"), "plain text"},
		{"utf16be", []byte{0xfe, 0xff, 0x00, 'H', 0x00, 'i'}, "Hi"},
		{"latin1", []byte{'c', 'a', 'f', 0xe9}, "café"},
		{"cid garbage", []byte{0x00, 0x01, 0x00, 0x02, 0x00, 0x03}, ""},
		{"empty", nil, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := decodeText(tc.in); got != tc.want {
				t.Errorf("decodeText(%v) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestWalkIgnoresMarkedContent(t *testing.T) {
	stream := []byte("/OC /MC0 BDC q 100 0 0 100 0 0 cm /Im1 Do Q EMC")
	res := Walk(PageContent{
		Streams:       [][]byte{stream},
		ImageXObjects: map[string]bool{"Im1": true},
	}, testViewport())
	if len(res.ImageBounds) != 1 {
		t.Fatalf("image bounds = %d, want 1", len(res.ImageBounds))
	}
}

func TestLexerLiteralStringEscapes(t *testing.T) {
	lx := newLexer([]byte(`(a\(b\)c\\d\n)`))
	tok := lx.next()
	if tok.kind != tokString {
		t.Fatalf("kind = %v, want string", tok.kind)
	}
	if got := string(tok.str); !strings.HasPrefix(got, "a(b)c\\d") {
		t.Errorf("decoded = %q", got)
	}
}

func TestLexerHexString(t *testing.T) {
	lx := newLexer([]byte("<48656C6C6F>"))
	tok := lx.next()
	if tok.kind != tokString || string(tok.str) != "Hello" {
		t.Fatalf("hex string = %q (kind %v)", tok.str, tok.kind)
	}
}
