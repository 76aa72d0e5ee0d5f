package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/quizassets/internal/metrics"
)

const pickSystemPrompt = "You help match quiz questions to images extracted from a source document. " +
	"You will be shown a question and several numbered candidate images. " +
	"Reply with ONLY the number of the image that best illustrates the question. " +
	"If none of them fit, reply with the number of the least bad option."

func pickUserPrompt(questionText string, n int) string {
	return fmt.Sprintf("QUESTION:\n%s\n\nBelow are %d candidate images, numbered 1 to %d in order. Which one best matches the question? Answer with a single number.", questionText, n, n)
}

var indexRe = regexp.MustCompile(`\d+`)

// Picker sends candidate crops to a vision model and returns the 1-based
// index of the chosen image. It satisfies the matcher's vision hook.
type Picker struct {
	client  Client
	model   string
	timeout time.Duration
}

func NewPicker(client Client, model string, timeout time.Duration) *Picker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Picker{client: client, model: model, timeout: timeout}
}

// Pick loads the images from disk, queries the model and parses its answer.
// Returns an error when the call fails or the answer contains no usable index;
// the caller keeps its heuristic choice in that case.
func (p *Picker) Pick(ctx context.Context, questionText string, imagePaths []string) (int, error) {
	images := make([]Image, 0, len(imagePaths))
	for _, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			metrics.IncVisionCall(p.client.Name(), "read_error")
			return 0, fmt.Errorf("read candidate image: %w", err)
		}
		images = append(images, Image{
			Base64: base64.StdEncoding.EncodeToString(data),
			MIME:   "image/png",
		})
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Do(ctx, PickRequest{
		QuestionText: questionText,
		Images:       images,
		Model:        p.model,
	})
	if err != nil {
		result := "error"
		if IsRateLimited(err) {
			result = "rate_limited"
		}
		metrics.IncVisionCall(p.client.Name(), result)
		return 0, err
	}

	m := indexRe.FindString(resp.Text)
	if m == "" {
		metrics.IncVisionCall(p.client.Name(), "unparsable")
		return 0, fmt.Errorf("no index in vision answer %q", resp.Text)
	}
	idx, err := strconv.Atoi(m)
	if err != nil || idx < 1 || idx > len(images) {
		metrics.IncVisionCall(p.client.Name(), "out_of_range")
		return 0, fmt.Errorf("vision answer %q out of range 1..%d", resp.Text, len(images))
	}

	metrics.IncVisionCall(p.client.Name(), "ok")
	log.Debug().Str("provider", p.client.Name()).Int("pick", idx).Int("tokens_in", resp.TokensIn).Int("tokens_out", resp.TokensOut).Msg("vision pick")
	return idx, nil
}
