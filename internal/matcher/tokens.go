package matcher

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/local/quizassets/internal/quiz"
	"github.com/local/quizassets/internal/textlayout"
)

// Common words that carry no matching signal.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "was": true,
	"were": true, "this": true, "that": true, "with": true, "from": true,
	"what": true, "which": true, "who": true, "whom": true, "whose": true,
	"when": true, "where": true, "why": true, "how": true, "does": true,
	"did": true, "has": true, "have": true, "had": true, "not": true,
	"but": true, "its": true, "their": true, "they": true, "you": true,
	"your": true, "all": true, "can": true, "will": true, "one": true,
	"following": true, "correct": true, "answer": true, "true": true,
	"false": true, "none": true, "above": true, "below": true,
}

// Phrases in question text that indicate the question refers to a visual.
var visualCues = []string{
	"look at", "shown", "diagram", "figure", "photo", "photograph",
	"image", "picture", "pictured", "graph", "chart", "illustration",
	"refer to the",
}

var (
	pageInURLRe     = regexp.MustCompile(`page-(\d+)`)
	multiLevelNumRe = regexp.MustCompile(`\b\d+\.\d+(\.\d+)*\b`)
	dottedLeaderRe  = regexp.MustCompile(`\.{4,}`)
	contentsWordRe  = regexp.MustCompile(`\b(contents|index)\b`)
)

// questionTokens builds the token set of everything the generator wrote for
// one question: stem, options and correct answer, minus stop-words.
func questionTokens(q quiz.Question) map[string]bool {
	parts := append([]string{q.QuestionText, q.CorrectAnswer}, q.Options...)
	tokens := map[string]bool{}
	for _, tok := range textlayout.Tokenize(strings.Join(parts, " ")) {
		if !stopWords[tok] {
			tokens[tok] = true
		}
	}
	return tokens
}

func tokenSet(text string) map[string]bool {
	tokens := map[string]bool{}
	for _, tok := range textlayout.Tokenize(text) {
		if !stopWords[tok] {
			tokens[tok] = true
		}
	}
	return tokens
}

func overlapCount(question, other map[string]bool) int {
	n := 0
	for tok := range question {
		if other[tok] {
			n++
		}
	}
	return n
}

// hasVisualCue reports whether the question text references a visual asset.
func hasVisualCue(text string) bool {
	lowered := strings.ToLower(text)
	for _, cue := range visualCues {
		if strings.Contains(lowered, cue) {
			return true
		}
	}
	return false
}

// tocSignal estimates how table-of-contents-like a candidate's text is,
// in [0, 1]. Contents/index words, multi-level section numbering and dotted
// leader runs each add evidence.
func tocSignal(text string) float64 {
	if text == "" {
		return 0
	}
	lowered := strings.ToLower(text)
	signal := 0.0
	if contentsWordRe.MatchString(lowered) {
		signal += 0.5
	}
	if n := len(multiLevelNumRe.FindAllString(lowered, 6)); n > 0 {
		signal += 0.1 * float64(n)
	}
	if n := len(dottedLeaderRe.FindAllString(lowered, 4)); n > 0 {
		signal += 0.2 * float64(n)
	}
	if signal > 1 {
		signal = 1
	}
	return signal
}

// pageFromURL recovers a page number from a crop or page-snapshot URL like
// /generated-media/pdf-pages/{job}/page-3-crop-1.png. Zero when absent.
func pageFromURL(url string) int {
	m := pageInURLRe.FindStringSubmatch(url)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}
