package ai

import (
	"context"
	"errors"
)

// Image is one candidate crop sent to a vision model, base64-encoded.
type Image struct {
	Base64 string
	MIME   string // image/png
}

// PickRequest asks a vision model to choose the image that best matches a
// quiz question. Images are presented in order; the model answers with a
// 1-based index.
type PickRequest struct {
	QuestionText string
	Images       []Image
	Model        string
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client interface for vision providers like OpenAI, Anthropic.
type Client interface {
	Name() string
	Do(ctx context.Context, req PickRequest) (Response, error)
}

var ErrRateLimited = errors.New("rate_limited")

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }
