package extraction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/local/quizassets/internal/filetype"
	"github.com/local/quizassets/internal/matcher"
	"github.com/local/quizassets/internal/metrics"
	"github.com/local/quizassets/internal/pdfrender"
	"github.com/local/quizassets/internal/store"
)

// ErrNotPDF rejects inputs whose magic bytes are not a PDF.
var ErrNotPDF = errors.New("input is not a PDF")

// PageImage is one rendered full-page image of the source document.
type PageImage struct {
	PageNumber int    `json:"pageNumber"`
	URL        string `json:"url"`
	FilePath   string `json:"-"`
}

// Candidate is one crop offered to the matcher, addressed by public URL.
type Candidate struct {
	pdfrender.Candidate
	URL      string `json:"url"`
	FilePath string `json:"-"`
}

// Output is the result of one extraction job.
type Output struct {
	JobID      string      `json:"jobId"`
	Engine     string      `json:"engine"`
	PageImages []PageImage `json:"pageImages"`
	Candidates []Candidate `json:"candidates"`
}

// Service runs the extraction pipeline: pick a render engine, produce page
// images and crop candidates under {mediaRoot}/pdf-pages/{jobID}/, then
// publish them under /generated-media/pdf-pages/{jobID}/.
type Service struct {
	primary   pdfrender.Backend // nil disables the out-of-process engine
	fallback  pdfrender.Backend
	detector  *filetype.Detector
	mediaRoot string
	opts      pdfrender.Options
	status    store.StatusStore
	mirror    Mirror // nil disables the S3 mirror
}

// Mirror copies a finished job directory to remote storage.
type Mirror interface {
	MirrorJobDir(ctx context.Context, jobID, dir string) (int, error)
}

func NewService(primary, fallback pdfrender.Backend, mediaRoot string, opts pdfrender.Options, status store.StatusStore, mirror Mirror) *Service {
	if status == nil {
		status = store.NewMemoryStatus()
	}
	return &Service{
		primary:   primary,
		fallback:  fallback,
		detector:  filetype.New(),
		mediaRoot: mediaRoot,
		opts:      opts,
		status:    status,
		mirror:    mirror,
	}
}

// URLPrefix returns the public path prefix for a job's media.
func URLPrefix(jobID string) string {
	return "/generated-media/pdf-pages/" + jobID + "/"
}

// Extract runs the full pipeline on the PDF at inputPath.
func (s *Service) Extract(ctx context.Context, inputPath string) (*Output, error) {
	isPDF, err := s.detector.IsPDF(inputPath)
	if err != nil {
		return nil, err
	}
	if !isPDF {
		return nil, ErrNotPDF
	}

	jobID := uuid.NewString()
	start := time.Now()
	s.setStatus(ctx, jobID, store.Status{Status: store.StateQueued, Message: "job accepted", Start: &start})

	outputDir := filepath.Join(s.mediaRoot, "pdf-pages", jobID)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		s.finishStatus(ctx, jobID, store.StateFailed, err.Error(), nil)
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	s.setStatus(ctx, jobID, store.Status{Status: store.StateProcessing, Progress: 10, Message: "rendering pages"})

	res, engine, err := s.runEngines(ctx, inputPath, outputDir)
	if err != nil {
		s.finishStatus(ctx, jobID, store.StateFailed, err.Error(), nil)
		metrics.ObserveExtraction(engine, "error", time.Since(start))
		return nil, err
	}

	out := s.buildOutput(jobID, outputDir, engine, res)

	metrics.ObserveExtraction(engine, "success", time.Since(start))
	metrics.AddPagesRendered(len(out.PageImages))
	nImage, nText := 0, 0
	for _, c := range out.Candidates {
		if c.SourceType == pdfrender.SourceImageObject {
			nImage++
		} else {
			nText++
		}
	}
	metrics.AddCrops(pdfrender.SourceImageObject, nImage)
	metrics.AddCrops(pdfrender.SourceTextBlock, nText)

	if s.mirror != nil {
		if n, err := s.mirror.MirrorJobDir(ctx, jobID, outputDir); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("media mirror failed")
			metrics.IncMediaUpload("error")
		} else {
			for i := 0; i < n; i++ {
				metrics.IncMediaUpload("success")
			}
		}
	}

	s.finishStatus(ctx, jobID, store.StateSuccess, "done", map[string]interface{}{
		"engine":     engine,
		"pages":      len(out.PageImages),
		"candidates": len(out.Candidates),
	})

	log.Info().
		Str("job_id", jobID).
		Str("engine", engine).
		Int("pages", len(out.PageImages)).
		Int("image_crops", nImage).
		Int("text_crops", nText).
		Dur("elapsed", time.Since(start)).
		Msg("extraction complete")

	return out, nil
}

// runEngines tries the primary engine first and falls back to the in-process
// engine when the primary is unavailable or produced no page images. Other
// primary errors (bad document, timeout) propagate.
func (s *Service) runEngines(ctx context.Context, inputPath, outputDir string) (*pdfrender.Result, string, error) {
	if s.primary != nil {
		res, err := s.primary.Extract(ctx, inputPath, outputDir, s.opts)
		switch {
		case err == nil && len(res.PageImageFiles) > 0:
			return res, s.primary.Name(), nil
		case err == nil:
			log.Warn().Str("engine", s.primary.Name()).Msg("primary engine produced no page images, falling back")
			metrics.IncEngineFallback()
		case pdfrender.IsUnavailable(err):
			log.Warn().Err(err).Str("engine", s.primary.Name()).Msg("primary engine unavailable, falling back")
			metrics.IncEngineFallback()
		default:
			return nil, s.primary.Name(), err
		}
	}

	res, err := s.fallback.Extract(ctx, inputPath, outputDir, s.opts)
	if err != nil {
		return nil, s.fallback.Name(), err
	}
	return res, s.fallback.Name(), nil
}

func (s *Service) buildOutput(jobID, outputDir, engine string, res *pdfrender.Result) *Output {
	prefix := URLPrefix(jobID)

	out := &Output{
		JobID:      jobID,
		Engine:     engine,
		PageImages: make([]PageImage, 0, len(res.PageImageFiles)),
		Candidates: make([]Candidate, 0, len(res.ImageCandidates)),
	}
	for _, p := range res.PageImageFiles {
		out.PageImages = append(out.PageImages, PageImage{
			PageNumber: p.PageNumber,
			URL:        prefix + p.FileName,
			FilePath:   filepath.Join(outputDir, p.FileName),
		})
	}
	for _, c := range res.ImageCandidates {
		out.Candidates = append(out.Candidates, Candidate{
			Candidate: c,
			URL:       prefix + c.FileName,
			FilePath:  filepath.Join(outputDir, c.FileName),
		})
	}
	return out
}

// MatcherCandidates converts extraction output for the question matcher.
func (o *Output) MatcherCandidates() []matcher.Candidate {
	cands := make([]matcher.Candidate, 0, len(o.Candidates))
	for _, c := range o.Candidates {
		cands = append(cands, matcher.Candidate{
			URL:         c.URL,
			FilePath:    c.FilePath,
			PageNumber:  c.PageNumber,
			SourceType:  c.SourceType,
			Width:       c.Width,
			Height:      c.Height,
			Area:        c.Area,
			AreaRatio:   c.AreaRatio,
			ContextText: c.ContextText,
			PageText:    c.PageText,
		})
	}
	return cands
}

func (s *Service) setStatus(ctx context.Context, jobID string, st store.Status) {
	if err := s.status.Set(ctx, jobID, st); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("status update failed")
	}
}

func (s *Service) finishStatus(ctx context.Context, jobID, state, msg string, meta map[string]interface{}) {
	end := time.Now()
	progress := 100
	if state == store.StateFailed {
		progress = 0
	}
	s.setStatus(ctx, jobID, store.Status{Status: state, Progress: progress, Message: msg, End: &end, Metadata: meta})
}

// Status reports the stored status of a job.
func (s *Service) Status(ctx context.Context, jobID string) (store.Status, bool, error) {
	return s.status.Get(ctx, jobID)
}
