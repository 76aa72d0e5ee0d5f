package contentwalk

import (
	"fmt"
	"strconv"
)

// Token kinds produced by the content-stream lexer.
type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokArrayOpen
	tokArrayClose
	tokDictOpen
	tokDictClose
	tokOperator
	tokEOF
)

type token struct {
	kind tokenKind
	num  float64
	str  []byte // decoded string payload for tokString
	name string // for tokName and tokOperator
}

// lexer tokenizes a decoded PDF content stream. It understands just enough
// of the syntax to recover operands and operator names; malformed input is
// skipped rather than rejected, since arbitrary user PDFs routinely contain
// garbage between valid operators.
type lexer struct {
	data []byte
	pos  int
}

func newLexer(data []byte) *lexer { return &lexer{data: data} }

func isWhitespace(b byte) bool {
	switch b {
	case 0x00, 0x09, 0x0a, 0x0c, 0x0d, 0x20:
		return true
	}
	return false
}

func isDelimiter(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) {
			l.pos++
			continue
		}
		if b == '%' {
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
			continue
		}
		return
	}
}

func (l *lexer) next() token {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{kind: tokEOF}
	}
	b := l.data[l.pos]
	switch {
	case b == '[':
		l.pos++
		return token{kind: tokArrayOpen}
	case b == ']':
		l.pos++
		return token{kind: tokArrayClose}
	case b == '(':
		l.pos++
		return token{kind: tokString, str: l.readLiteralString()}
	case b == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return token{kind: tokDictOpen}
		}
		l.pos++
		return token{kind: tokString, str: l.readHexString()}
	case b == '>':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '>' {
			l.pos += 2
			return token{kind: tokDictClose}
		}
		l.pos++
		return l.next()
	case b == '/':
		l.pos++
		return token{kind: tokName, name: l.readRegular()}
	case b == '{' || b == '}':
		l.pos++
		return l.next()
	case b == '+' || b == '-' || b == '.' || (b >= '0' && b <= '9'):
		word := l.readRegular()
		if n, err := strconv.ParseFloat(word, 64); err == nil {
			return token{kind: tokNumber, num: n}
		}
		return token{kind: tokOperator, name: word}
	default:
		word := l.readRegular()
		if word == "" {
			l.pos++
			return l.next()
		}
		return token{kind: tokOperator, name: word}
	}
}

// readRegular consumes a run of non-delimiter, non-whitespace bytes.
func (l *lexer) readRegular() string {
	start := l.pos
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		if isWhitespace(b) || isDelimiter(b) {
			break
		}
		l.pos++
	}
	return string(l.data[start:l.pos])
}

// readLiteralString consumes a (...) string with balanced parens and
// backslash escapes; the opening paren is already consumed.
func (l *lexer) readLiteralString() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		l.pos++
		switch b {
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
				// ignored
			case '(', ')', '\\':
				out = append(out, e)
			case '\n':
				// line continuation
			case '\r':
				if l.pos < len(l.data) && l.data[l.pos] == '\n' {
					l.pos++
				}
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && l.pos < len(l.data); i++ {
						c := l.data[l.pos]
						if c < '0' || c > '7' {
							break
						}
						v = v*8 + int(c-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		case '(':
			depth++
			out = append(out, b)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, b)
		default:
			out = append(out, b)
		}
	}
	return out
}

// readHexString consumes a <...> hex string; the opening bracket is already
// consumed. An odd final digit is padded with zero per the PDF spec.
func (l *lexer) readHexString() []byte {
	var digits []byte
	for l.pos < len(l.data) {
		b := l.data[l.pos]
		l.pos++
		if b == '>' {
			break
		}
		if isHexDigit(b) {
			digits = append(digits, b)
		}
	}
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, len(digits)/2)
	for i := 0; i < len(out); i++ {
		hi := hexVal(digits[i*2])
		lo := hexVal(digits[i*2+1])
		out[i] = byte(hi<<4 | lo)
	}
	return out
}

func isHexDigit(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func hexVal(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	case b >= 'A' && b <= 'F':
		return int(b-'A') + 10
	}
	return 0
}

// skipInlineImage consumes everything between the ID operator and the
// terminating EI, which is raw binary sample data of unknown length. EI is
// recognized when framed by whitespace (or end of stream).
func (l *lexer) skipInlineImage() error {
	for l.pos+1 < len(l.data) {
		if l.data[l.pos] == 'E' && l.data[l.pos+1] == 'I' {
			beforeOK := l.pos == 0 || isWhitespace(l.data[l.pos-1])
			afterOK := l.pos+2 >= len(l.data) || isWhitespace(l.data[l.pos+2]) || isDelimiter(l.data[l.pos+2])
			if beforeOK && afterOK {
				l.pos += 2
				return nil
			}
		}
		l.pos++
	}
	return fmt.Errorf("unterminated inline image")
}
