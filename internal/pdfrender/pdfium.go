package pdfrender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultProbeTimeout = 10 * time.Second
	defaultRunTimeout   = 3 * time.Minute
)

// interpreter candidates tried when no explicit path is configured.
var pythonCandidates = []string{"python3", "python"}

// Pdfium runs the pypdfium2 helper script in a subprocess. The interpreter
// is probed once and cached on success; a failed probe is retried on the
// next call so installing the runtime does not require a restart.
type Pdfium struct {
	python  string // configured interpreter, empty means probe candidates
	script  string
	timeout time.Duration

	mu       sync.Mutex
	resolved string
}

// NewPdfium builds the out-of-process backend. python may be empty to probe
// common interpreter names; script is the helper path and must exist at run
// time. A non-positive timeout takes the default.
func NewPdfium(python, script string, timeout time.Duration) *Pdfium {
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &Pdfium{python: python, script: script, timeout: timeout}
}

func (p *Pdfium) Name() string { return "pdfium" }

// Extract renders and crops via the helper script and parses its JSON
// summary from stdout. Installation problems surface as
// ErrEngineUnavailable; render failures carry the helper's stderr.
func (p *Pdfium) Extract(ctx context.Context, inputPath, outputDir string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	interpreter, err := p.interpreter(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p.script); err != nil {
		return nil, fmt.Errorf("%w: helper script %s: %v", ErrEngineUnavailable, p.script, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		p.script,
		"--input", inputPath,
		"--output-dir", outputDir,
		"--max-pages", strconv.Itoa(opts.MaxPages),
		"--max-total-crops", strconv.Itoa(opts.MaxTotalCrops),
		"--max-image-crops-per-page", strconv.Itoa(opts.MaxImageCrops),
		"--max-text-crops-per-page", strconv.Itoa(opts.MaxTextCrops),
		"--max-render-dimension", strconv.Itoa(opts.MaxRenderDimension),
		"--base-render-scale", strconv.FormatFloat(opts.BaseRenderScale, 'f', -1, 64),
	}

	cmd := exec.CommandContext(runCtx, interpreter, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	log.Debug().
		Str("interpreter", interpreter).
		Str("input", inputPath).
		Dur("elapsed", time.Since(start)).
		Err(err).
		Msg("pdfium helper finished")

	if err != nil {
		if unavailableRunError(err, stderr.String()) {
			p.forget()
			return nil, fmt.Errorf("%w: %s", ErrEngineUnavailable, stderrTail(stderr.String(), 400))
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("pdfium helper timed out after %s", p.timeout)
		}
		return nil, fmt.Errorf("pdfium helper failed: %s", stderrTail(stderr.String(), 400))
	}

	var result Result
	if err := json.Unmarshal(lastJSONLine(stdout.Bytes()), &result); err != nil {
		// Garbage on stdout means the helper environment is broken in a
		// way the exit code did not reveal.
		p.forget()
		return nil, fmt.Errorf("%w: unparsable helper output: %v", ErrEngineUnavailable, err)
	}
	return &result, nil
}

// interpreter returns the cached interpreter path or probes for one that can
// import the helper's dependencies.
func (p *Pdfium) interpreter(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved != "" {
		return p.resolved, nil
	}

	candidates := pythonCandidates
	if p.python != "" {
		candidates = []string{p.python}
	}

	var lastErr error
	for _, cand := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
		out, err := exec.CommandContext(probeCtx, cand, "-c", "import pypdfium2, PIL").CombinedOutput()
		cancel()
		if err == nil {
			log.Info().Str("interpreter", cand).Msg("pdfium runtime resolved")
			p.resolved = cand
			return cand, nil
		}
		lastErr = fmt.Errorf("probe %s: %v: %s", cand, err, stderrTail(string(out), 200))
	}
	return "", fmt.Errorf("%w: %v", ErrEngineUnavailable, lastErr)
}

func (p *Pdfium) forget() {
	p.mu.Lock()
	p.resolved = ""
	p.mu.Unlock()
}

// lastJSONLine returns the final non-empty line of out. The helper prints
// its summary last; anything before it is stray runtime chatter.
func lastJSONLine(out []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(out), []byte{'\n'})
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 {
			return line
		}
	}
	return nil
}
