// Package matcher assigns extracted crop images to image-based quiz
// questions. Ranking is a weighted heuristic over token overlap, page
// locality, source type and table-of-contents suppression; ambiguous
// rankings can escalate to a vision model picking among the top crops.
package matcher

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/quizassets/internal/pdfrender"
	"github.com/local/quizassets/internal/quiz"
)

// Scoring weights. The relative magnitudes encode how much each signal is
// trusted; tests target them individually.
const (
	pageMatchBonus      = 8.0
	pageMismatchPenalty = -2.0
	contextHitBonus     = 6.0
	pageTextHitBonus    = 2.0
	emptyContextPenalty = -4.0
	shortContextPenalty = -2.0
	shortContextLen     = 24
	tinyAreaPenalty     = -5.0
	tinyAreaRatio       = 0.01
	hugeAreaPenalty     = -6.0
	hugeAreaRatio       = 0.66
	imageObjectBonus    = 8.0
	cueImageBonus       = 6.0
	cueTextBlockPenalty = -10.0
	tocPenaltyScale     = -14.0
	reusePenaltyPerUse  = -7.0
)

// Vision escalation thresholds: a narrow lead, weak direct text overlap, or
// a page disagreement without a decisive margin all mark a ranking as
// ambiguous. Tunable defaults, not contracts.
const (
	visionScoreDelta        = 4.0
	visionWeakContextHits   = 2
	visionPageMismatchDelta = 6.0

	// pageOverrideMargin is how many extra token hits the inferred page
	// needs before it overrides the generator's stated source page.
	pageOverrideMargin = 2
)

// Candidate is one extracted crop offered for assignment.
type Candidate struct {
	URL         string
	FilePath    string
	PageNumber  int
	SourceType  string
	Width       int
	Height      int
	Area        int
	AreaRatio   float64
	ContextText string
	PageText    string
}

// VisionPicker resolves an ambiguous ranking by looking at the actual crop
// images. Pick returns a 1-based index into imagePaths.
type VisionPicker interface {
	Pick(ctx context.Context, questionText string, imagePaths []string) (int, error)
}

// Config tunes one matching pass.
type Config struct {
	VisionEnabled       bool
	VisionMaxQuestions  int
	VisionMaxCandidates int

	// PromotionMode "v1" converts the best-matching multiple-choice
	// question to image-based when the quiz has no image questions but
	// good image-object crops exist. Any other value disables promotion.
	PromotionMode string
}

// Result is the matched quiz plus assignment counters for response metadata.
type Result struct {
	Quiz        quiz.Quiz
	Attempted   int
	Assigned    int
	VisionCalls int
}

type Matcher struct {
	cfg    Config
	vision VisionPicker
}

// New builds a matcher; vision may be nil to disable the tie-break even
// when cfg.VisionEnabled is set.
func New(cfg Config, vision VisionPicker) *Matcher {
	return &Matcher{cfg: cfg, vision: vision}
}

type scored struct {
	cand        *Candidate
	score       float64
	contextHits int
	reuse       int
}

// Match fills imageUrl and sourcePage on image-based questions. The quiz is
// returned with a copied question slice; the input is not mutated.
func (m *Matcher) Match(ctx context.Context, qz quiz.Quiz, candidates []Candidate) Result {
	questions := make([]quiz.Question, len(qz.Questions))
	copy(questions, qz.Questions)
	qz.Questions = questions

	if m.cfg.PromotionMode == "v1" {
		m.promote(qz.Questions, candidates)
	}

	res := Result{Quiz: qz, Attempted: qz.ImageQuestionCount()}

	if res.Attempted == 0 {
		return res
	}
	if len(candidates) == 0 {
		// Nothing extracted: keep only image URLs that were never ours
		// to manage; stale references to this batch are dropped.
		for i := range qz.Questions {
			if qz.Questions[i].QuestionType == quiz.TypeImage {
				qz.Questions[i].ImageURL = ""
				qz.Questions[i].SourcePage = 0
			}
		}
		return res
	}

	pageTokens := map[int]map[string]bool{}
	for i := range candidates {
		page := candidates[i].PageNumber
		if _, ok := pageTokens[page]; !ok {
			pageTokens[page] = tokenSet(candidates[i].PageText)
		}
	}

	usage := map[string]int{}
	for i := range qz.Questions {
		q := &qz.Questions[i]
		if q.QuestionType != quiz.TypeImage {
			continue
		}

		qTokens := questionTokens(*q)
		preferred := m.preferredPage(*q, qTokens, pageTokens)
		cue := hasVisualCue(q.QuestionText)

		ranked := rankCandidates(candidates, qTokens, pageTokens, preferred, cue, usage)
		if len(ranked) == 0 {
			continue
		}

		winner := ranked[0]
		if m.shouldEscalate(ranked, preferred, res.VisionCalls) {
			pick, called, ok := m.visionPick(ctx, q.QuestionText, ranked)
			if called {
				res.VisionCalls++
			}
			if ok {
				winner = pick
			}
		}

		q.ImageURL = winner.cand.URL
		q.SourcePage = winner.cand.PageNumber
		usage[winner.cand.URL]++
		res.Assigned++

		log.Debug().
			Int("question", i+1).
			Str("url", winner.cand.URL).
			Int("page", winner.cand.PageNumber).
			Float64("score", winner.score).
			Bool("visual_cue", cue).
			Msg("crop assigned")
	}

	return res
}

// preferredPage reconciles the generator's stated page with the page whose
// text best overlaps the question. A clear token-overlap win for a
// different page overrides the stated one, correcting upstream
// page-attribution mistakes.
func (m *Matcher) preferredPage(q quiz.Question, qTokens map[string]bool, pageTokens map[int]map[string]bool) int {
	explicit := q.SourcePage
	if explicit <= 0 {
		explicit = pageFromURL(q.ImageURL)
	}

	inferred, inferredHits := 0, 0
	for page, tokens := range pageTokens {
		hits := overlapCount(qTokens, tokens)
		if hits > inferredHits || (hits == inferredHits && inferred != 0 && page < inferred) {
			inferred, inferredHits = page, hits
		}
	}
	if inferred == 0 {
		return explicit
	}
	if explicit <= 0 {
		return inferred
	}
	explicitHits := overlapCount(qTokens, pageTokens[explicit])
	if inferredHits >= explicitHits+pageOverrideMargin {
		return inferred
	}
	return explicit
}

func rankCandidates(candidates []Candidate, qTokens map[string]bool, pageTokens map[int]map[string]bool, preferred int, cue bool, usage map[string]int) []scored {
	ranked := make([]scored, 0, len(candidates))
	for i := range candidates {
		cand := &candidates[i]
		s := scored{cand: cand, reuse: usage[cand.URL]}

		if preferred > 0 {
			if cand.PageNumber == preferred {
				s.score += pageMatchBonus
			} else {
				s.score += pageMismatchPenalty
			}
		}

		contextTokens := tokenSet(cand.ContextText)
		s.contextHits = overlapCount(qTokens, contextTokens)
		s.score += contextHitBonus * float64(s.contextHits)
		s.score += pageTextHitBonus * float64(overlapCount(qTokens, pageTokens[cand.PageNumber]))

		if cand.ContextText == "" {
			s.score += emptyContextPenalty
		} else if len(cand.ContextText) < shortContextLen {
			s.score += shortContextPenalty
		}
		if cand.AreaRatio < tinyAreaRatio {
			s.score += tinyAreaPenalty
		}
		if cand.AreaRatio > hugeAreaRatio {
			s.score += hugeAreaPenalty
		}

		if cand.SourceType == pdfrender.SourceImageObject {
			s.score += imageObjectBonus
			if cue {
				s.score += cueImageBonus
			}
		} else if cue {
			s.score += cueTextBlockPenalty
		}

		s.score += tocPenaltyScale * tocSignal(cand.ContextText+" "+cand.PageText)
		s.score += reusePenaltyPerUse * float64(s.reuse)

		ranked = append(ranked, s)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].reuse != ranked[j].reuse {
			return ranked[i].reuse < ranked[j].reuse
		}
		return ranked[i].cand.Area > ranked[j].cand.Area
	})
	return ranked
}

// shouldEscalate marks a ranking ambiguous enough to be worth a vision call.
func (m *Matcher) shouldEscalate(ranked []scored, preferred, visionCalls int) bool {
	if !m.cfg.VisionEnabled || m.vision == nil || len(ranked) < 2 {
		return false
	}
	if m.cfg.VisionMaxQuestions > 0 && visionCalls >= m.cfg.VisionMaxQuestions {
		return false
	}
	delta := ranked[0].score - ranked[1].score
	if delta < visionScoreDelta {
		return true
	}
	if ranked[0].contextHits < visionWeakContextHits {
		return true
	}
	if preferred > 0 && ranked[0].cand.PageNumber != preferred && delta < visionPageMismatchDelta {
		return true
	}
	return false
}

// visionPick shows the top crops to the vision model and returns its choice.
// Any failure or out-of-range answer keeps the heuristic winner. called
// reports whether the model was actually contacted; only those attempts
// consume tie-break budget.
func (m *Matcher) visionPick(ctx context.Context, questionText string, ranked []scored) (pick scored, called, ok bool) {
	limit := m.cfg.VisionMaxCandidates
	if limit <= 0 || limit > len(ranked) {
		limit = len(ranked)
	}
	paths := make([]string, 0, limit)
	pool := make([]scored, 0, limit)
	for _, s := range ranked[:limit] {
		if s.cand.FilePath == "" {
			continue
		}
		paths = append(paths, s.cand.FilePath)
		pool = append(pool, s)
	}
	if len(paths) < 2 {
		return scored{}, false, false
	}

	idx, err := m.vision.Pick(ctx, questionText, paths)
	if err != nil {
		log.Warn().Err(err).Msg("vision tie-break failed, keeping heuristic ranking")
		return scored{}, true, false
	}
	if idx < 1 || idx > len(pool) {
		log.Warn().Int("index", idx).Int("pool", len(pool)).Msg("vision pick out of range")
		return scored{}, true, false
	}
	return pool[idx-1], true, true
}

// promote converts the best-matching multiple-choice question to an
// image-based one when the quiz has no image questions but a convincing
// image-object crop exists.
func (m *Matcher) promote(questions []quiz.Question, candidates []Candidate) {
	for _, q := range questions {
		if q.QuestionType == quiz.TypeImage {
			return
		}
	}

	var best *Candidate
	for i := range candidates {
		c := &candidates[i]
		if c.SourceType != pdfrender.SourceImageObject || c.AreaRatio > hugeAreaRatio {
			continue
		}
		if best == nil || c.Area > best.Area {
			best = c
		}
	}
	if best == nil {
		return
	}

	bestIdx, bestHits := -1, -1
	for i, q := range questions {
		if q.QuestionType != quiz.TypeMultipleChoice {
			continue
		}
		hits := overlapCount(questionTokens(q), tokenSet(best.ContextText+" "+best.PageText))
		if hits > bestHits {
			bestIdx, bestHits = i, hits
		}
	}
	if bestIdx < 0 {
		return
	}
	questions[bestIdx].QuestionType = quiz.TypeImage
	log.Info().Int("question", bestIdx+1).Msg("promoted multiple-choice question to image-based")
}
