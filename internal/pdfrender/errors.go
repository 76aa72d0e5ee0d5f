package pdfrender

import (
	"errors"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrEngineUnavailable means the backend cannot run at all (missing
	// interpreter, missing helper script, broken runtime). Callers fall
	// back to the next backend; the document may be fine.
	ErrEngineUnavailable = errors.New("render engine unavailable")

	// ErrBadDocument means the input could not be opened as a PDF.
	ErrBadDocument = errors.New("unreadable pdf document")
)

// IsUnavailable reports whether err indicates a broken engine installation
// rather than a problem with the document being rendered.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrEngineUnavailable)
}

// Stderr fragments that point at a broken helper runtime rather than a bad
// input document.
var unavailableSignals = []string{
	"no such file or directory",
	"modulenotfounderror",
	"no module named",
	"command not found",
}

// unavailableRunError classifies a failed helper invocation. Missing
// executables and missing Python modules are installation problems; anything
// else is a genuine render failure and propagates as-is.
func unavailableRunError(err error, stderr string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	lowered := strings.ToLower(stderr)
	for _, sig := range unavailableSignals {
		if strings.Contains(lowered, sig) {
			return true
		}
	}
	return false
}

// stderrTail keeps error messages bounded when the helper dumps a long
// traceback.
func stderrTail(stderr string, limit int) string {
	stderr = strings.TrimSpace(stderr)
	if len(stderr) <= limit {
		return stderr
	}
	return "..." + stderr[len(stderr)-limit:]
}
