package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/local/quizassets/internal/extraction"
	"github.com/local/quizassets/internal/matcher"
	"github.com/local/quizassets/internal/pdfrender"
	"github.com/local/quizassets/internal/quiz"
)

type stubBackend struct {
	res *pdfrender.Result
}

func (s *stubBackend) Name() string { return "fitz" }
func (s *stubBackend) Extract(_ context.Context, _, _ string, _ pdfrender.Options) (*pdfrender.Result, error) {
	return s.res, nil
}

func newTestServer(t *testing.T) (*Server, *http.ServeMux, string) {
	t.Helper()
	mediaRoot := t.TempDir()
	backend := &stubBackend{res: &pdfrender.Result{
		PageImageFiles: []pdfrender.PageImageFile{{PageNumber: 1, FileName: "page-1.png"}},
		ImageCandidates: []pdfrender.Candidate{
			{PageNumber: 1, FileName: "page-1-crop-1.png", SourceType: pdfrender.SourceImageObject, Width: 300, Height: 200, Area: 60000, AreaRatio: 0.1, ContextText: "water cycle diagram"},
		},
	}}
	svc := extraction.NewService(nil, backend, mediaRoot, pdfrender.Options{}, nil, nil)
	srv := New(Options{
		Extract:   svc,
		Match:     matcher.New(matcher.Config{}, nil),
		MediaRoot: mediaRoot,
		UploadDir: t.TempDir(),
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	return srv, mux, mediaRoot
}

func multipartPDF(t *testing.T) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "quiz-source.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := io.WriteString(fw, "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF"); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	_, mux, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestExtractEndpoint(t *testing.T) {
	_, mux, _ := newTestServer(t)

	body, contentType := multipartPDF(t)
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status     string `json:"status"`
		JobID      string `json:"jobId"`
		PageImages []struct {
			PageNumber int    `json:"pageNumber"`
			URL        string `json:"url"`
		} `json:"pageImages"`
		Candidates []struct {
			URL        string `json:"url"`
			SourceType string `json:"sourceType"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.JobID == "" {
		t.Fatalf("resp = %+v", resp)
	}
	wantURL := "/generated-media/pdf-pages/" + resp.JobID + "/page-1.png"
	if len(resp.PageImages) != 1 || resp.PageImages[0].URL != wantURL {
		t.Fatalf("pageImages = %+v", resp.PageImages)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].SourceType != "image-object" {
		t.Fatalf("candidates = %+v", resp.Candidates)
	}
}

func TestExtractRejectsNonPDF(t *testing.T) {
	_, mux, _ := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.txt")
	_, _ = io.WriteString(fw, "plain text, not a pdf")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/extract", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("code=%d", rec.Code)
	}
}

type stubSource struct {
	keys []string
	data string
	err  error
}

func (s *stubSource) DownloadToFile(_ context.Context, key, dst string) error {
	s.keys = append(s.keys, key)
	if s.err != nil {
		return s.err
	}
	return os.WriteFile(dst, []byte(s.data), 0o644)
}

func multipartS3Key(t *testing.T, key string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("s3Key", key); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestExtractFromStoredSource(t *testing.T) {
	mediaRoot := t.TempDir()
	backend := &stubBackend{res: &pdfrender.Result{
		PageImageFiles: []pdfrender.PageImageFile{{PageNumber: 1, FileName: "page-1.png"}},
	}}
	src := &stubSource{data: "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF"}
	srv := New(Options{
		Extract:   extraction.NewService(nil, backend, mediaRoot, pdfrender.Options{}, nil, nil),
		Match:     matcher.New(matcher.Config{}, nil),
		Source:    src,
		MediaRoot: mediaRoot,
		UploadDir: t.TempDir(),
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	body, contentType := multipartS3Key(t, "uploads/quiz-source.pdf")
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	if len(src.keys) != 1 || src.keys[0] != "uploads/quiz-source.pdf" {
		t.Fatalf("downloaded keys = %v", src.keys)
	}
	var resp struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.JobID == "" {
		t.Fatalf("resp = %s", rec.Body.String())
	}
}

func TestExtractWithoutFileOrSource(t *testing.T) {
	// No source configured: an s3Key-only request has nothing to serve it.
	_, mux, _ := newTestServer(t)
	body, contentType := multipartS3Key(t, "uploads/quiz-source.pdf")
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestExtractRequiresPost(t *testing.T) {
	_, mux, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/extract", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestMatchEndpoint(t *testing.T) {
	_, mux, _ := newTestServer(t)

	reqBody := matchReq{
		Quiz: quiz.Quiz{
			Title: "Water",
			Questions: []quiz.Question{
				{QuestionType: quiz.TypeImage, QuestionText: "Look at the diagram of the water cycle. What drives evaporation?", SourcePage: 1},
			},
		},
		Candidates: []matchCandidate{
			{URL: "/generated-media/pdf-pages/j1/page-1-crop-1.png", PageNumber: 1, SourceType: "image-object", Width: 300, Height: 200, Area: 60000, AreaRatio: 0.1, ContextText: "the water cycle diagram evaporation"},
		},
	}
	b, _ := json.Marshal(reqBody)
	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader(b))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp matchResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Attempted != 1 || resp.Assigned != 1 {
		t.Fatalf("attempted=%d assigned=%d", resp.Attempted, resp.Assigned)
	}
	if got := resp.Quiz.Questions[0].ImageURL; got != reqBody.Candidates[0].URL {
		t.Fatalf("imageUrl = %q", got)
	}
}

func TestMatchRejectsEmptyQuiz(t *testing.T) {
	_, mux, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/match", strings.NewReader(`{"quiz":{"questions":[]},"candidates":[]}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code=%d", rec.Code)
	}
}

func TestJobStatusEndpoint(t *testing.T) {
	_, mux, _ := newTestServer(t)

	// unknown jobs 404
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code=%d", rec.Code)
	}

	// a finished extraction is queryable
	body, contentType := multipartPDF(t)
	req := httptest.NewRequest(http.MethodPost, "/extract", body)
	req.Header.Set("Content-Type", contentType)
	extRec := httptest.NewRecorder()
	mux.ServeHTTP(extRec, req)
	var extResp struct {
		JobID string `json:"jobId"`
	}
	_ = json.Unmarshal(extRec.Body.Bytes(), &extResp)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/"+extResp.JobID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", rec.Code, rec.Body.String())
	}
	var jr jobResp
	_ = json.Unmarshal(rec.Body.Bytes(), &jr)
	if jr.Status != "success" || jr.Progress != 100 {
		t.Fatalf("job = %+v", jr)
	}
}

func TestMediaPathForURL(t *testing.T) {
	srv, _, mediaRoot := newTestServer(t)

	got := srv.mediaPathForURL("/generated-media/pdf-pages/j1/page-1.png")
	want := filepath.Join(mediaRoot, "pdf-pages", "j1", "page-1.png")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if srv.mediaPathForURL("/elsewhere/x.png") != "" {
		t.Fatal("non-media url must map to empty path")
	}
	if srv.mediaPathForURL("/generated-media/../etc/passwd") != "" {
		t.Fatal("traversal must map to empty path")
	}
}

func TestGeneratedMediaServing(t *testing.T) {
	_, mux, mediaRoot := newTestServer(t)

	dir := filepath.Join(mediaRoot, "pdf-pages", "j1")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "page-1.png"), []byte("pngdata"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generated-media/pdf-pages/j1/page-1.png", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "pngdata" {
		t.Fatalf("code=%d body=%q", rec.Code, rec.Body.String())
	}
}
