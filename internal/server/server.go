package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/local/quizassets/internal/extraction"
	"github.com/local/quizassets/internal/matcher"
	"github.com/local/quizassets/internal/metrics"
	"github.com/local/quizassets/internal/quiz"
	"github.com/local/quizassets/internal/statuscheck"
)

// Server wires the extraction and matching pipeline to HTTP.
type Server struct {
	extract     *extraction.Service
	match       *matcher.Matcher
	checker     *statuscheck.Checker
	source      MediaSource
	mediaRoot   string
	uploadDir   string
	maxUploadMB int
}

// MediaSource pulls a source document from remote storage by key, for
// extraction requests that reference an already-stored PDF instead of
// uploading one.
type MediaSource interface {
	DownloadToFile(ctx context.Context, key, dst string) error
}

type Options struct {
	Extract     *extraction.Service
	Match       *matcher.Matcher
	Checker     *statuscheck.Checker
	Source      MediaSource
	MediaRoot   string
	UploadDir   string
	MaxUploadMB int
}

func New(opts Options) *Server {
	uploadDir := opts.UploadDir
	if uploadDir == "" {
		uploadDir = "uploads"
	}
	maxMB := opts.MaxUploadMB
	if maxMB <= 0 {
		maxMB = 50
	}
	return &Server{
		extract:     opts.Extract,
		match:       opts.Match,
		checker:     opts.Checker,
		source:      opts.Source,
		mediaRoot:   opts.MediaRoot,
		uploadDir:   uploadDir,
		maxUploadMB: maxMB,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/extract", s.handleExtract)
	mux.HandleFunc("/match", s.handleMatch)
	mux.HandleFunc("/jobs/", s.handleJob)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/generated-media/", http.StripPrefix("/generated-media/",
		http.FileServer(http.Dir(s.mediaRoot))))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		http.Error(w, "status checks disabled", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.checker.Summary(r.Context()))
}

type extractResp struct {
	Status string `json:"status"`
	*extraction.Output
}

// handleExtract accepts a PDF either as a multipart upload ("file" part) or
// as an "s3Key" field referencing an already-stored document, runs the
// pipeline and returns page image URLs plus crop candidates.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(int64(s.maxUploadMB) << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	var localPath string
	if file, hdr, err := r.FormFile("file"); err == nil {
		defer file.Close()
		localPath, err = s.saveUpload(file, hdr.Filename)
		if err != nil {
			log.Error().Err(err).Msg("cannot save upload")
			http.Error(w, "cannot save upload", http.StatusInternalServerError)
			return
		}
	} else if key := r.FormValue("s3Key"); key != "" && s.source != nil {
		localPath, err = s.fetchSource(r.Context(), key)
		if err != nil {
			log.Error().Err(err).Str("key", key).Msg("cannot fetch source document")
			http.Error(w, "cannot fetch source document", http.StatusBadGateway)
			return
		}
	} else {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer os.Remove(localPath)

	out, err := s.extract.Extract(r.Context(), localPath)
	if err != nil {
		if errors.Is(err, extraction.ErrNotPDF) {
			http.Error(w, "file is not a PDF", http.StatusUnsupportedMediaType)
			return
		}
		log.Error().Err(err).Msg("extraction failed")
		http.Error(w, "extraction failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, extractResp{Status: "ok", Output: out})
}

func (s *Server) saveUpload(file io.Reader, name string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	if name == "" {
		name = "upload.pdf"
	}
	out, err := os.CreateTemp(s.uploadDir, "*_"+filepath.Base(name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, file); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", err
	}
	return out.Name(), out.Close()
}

// fetchSource downloads a stored source document into the upload dir.
func (s *Server) fetchSource(ctx context.Context, key string) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	out, err := os.CreateTemp(s.uploadDir, "*_"+filepath.Base(key))
	if err != nil {
		return "", err
	}
	path := out.Name()
	if err := out.Close(); err != nil {
		return "", err
	}
	if err := s.source.DownloadToFile(ctx, key, path); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// matchCandidate is the wire form of a crop candidate, as produced by
// /extract. filePath is recomputed from the URL so callers cannot point the
// vision picker at arbitrary files.
type matchCandidate struct {
	URL         string  `json:"url"`
	PageNumber  int     `json:"pageNumber"`
	SourceType  string  `json:"sourceType"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Area        int     `json:"area"`
	AreaRatio   float64 `json:"areaRatio"`
	ContextText string  `json:"contextText"`
	PageText    string  `json:"pageText"`
}

type matchReq struct {
	Quiz       quiz.Quiz        `json:"quiz"`
	Candidates []matchCandidate `json:"candidates"`
}

type matchResp struct {
	Status      string    `json:"status"`
	Quiz        quiz.Quiz `json:"quiz"`
	Attempted   int       `json:"attempted"`
	Assigned    int       `json:"assigned"`
	VisionCalls int       `json:"visionCalls"`
}

// handleMatch assigns extracted crops to a quiz's image-based questions.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req matchReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if len(req.Quiz.Questions) == 0 {
		http.Error(w, "quiz has no questions", http.StatusBadRequest)
		return
	}

	cands := make([]matcher.Candidate, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		cands = append(cands, matcher.Candidate{
			URL:         c.URL,
			FilePath:    s.mediaPathForURL(c.URL),
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

	res := s.match.Match(r.Context(), req.Quiz, cands)
	for i := 0; i < res.Assigned; i++ {
		metrics.IncMatchAssigned()
	}
	for i := res.Assigned; i < res.Attempted; i++ {
		metrics.IncMatchCleared()
	}

	writeJSON(w, http.StatusOK, matchResp{
		Status:      "ok",
		Quiz:        res.Quiz,
		Attempted:   res.Attempted,
		Assigned:    res.Assigned,
		VisionCalls: res.VisionCalls,
	})
}

// mediaPathForURL maps a /generated-media/ URL back to a file under the
// media root. Returns "" for anything outside it.
func (s *Server) mediaPathForURL(url string) string {
	const prefix = "/generated-media/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	rel := filepath.Clean(strings.TrimPrefix(url, prefix))
	if rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.Join(s.mediaRoot, rel)
}

type jobResp struct {
	JobID    string                 `json:"jobId"`
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "missing job id", http.StatusBadRequest)
		return
	}
	st, ok, err := s.extract.Status(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, jobResp{
		JobID:    id,
		Status:   st.Status,
		Progress: st.Progress,
		Message:  st.Message,
		Metadata: st.Metadata,
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
