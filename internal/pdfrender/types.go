// Package pdfrender turns a PDF into page bitmaps and candidate crop images.
// Two backends implement the same contract: an out-of-process pdfium helper
// (preferred for fidelity) and an in-process MuPDF renderer used when the
// helper or its runtime is missing.
package pdfrender

import "context"

// Candidate source types.
const (
	SourceImageObject = "image-object"
	SourceTextBlock   = "text-block"
)

// Default extraction limits, overridable per request via Options.
const (
	DefaultMaxPages           = 20
	DefaultMaxTotalCrops      = 36
	DefaultMaxImageCrops      = 4
	DefaultMaxTextCrops       = 6
	DefaultMaxRenderDimension = 2400
	DefaultBaseRenderScale    = 2.4
	DefaultMaxPageTextLength  = 2600
)

// Options bounds one extraction run. Zero fields take the defaults above.
type Options struct {
	MaxPages           int
	MaxTotalCrops      int
	MaxImageCrops      int
	MaxTextCrops       int
	MaxRenderDimension int
	BaseRenderScale    float64
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.MaxTotalCrops <= 0 {
		o.MaxTotalCrops = DefaultMaxTotalCrops
	}
	if o.MaxImageCrops <= 0 {
		o.MaxImageCrops = DefaultMaxImageCrops
	}
	if o.MaxTextCrops <= 0 {
		o.MaxTextCrops = DefaultMaxTextCrops
	}
	if o.MaxRenderDimension <= 0 {
		o.MaxRenderDimension = DefaultMaxRenderDimension
	}
	if o.BaseRenderScale <= 0 {
		o.BaseRenderScale = DefaultBaseRenderScale
	}
	return o
}

// PageImageFile is a saved full-page render.
type PageImageFile struct {
	PageNumber int    `json:"pageNumber"`
	FileName   string `json:"fileName"`
}

// Candidate is a saved crop with the metadata the matcher scores on.
type Candidate struct {
	PageNumber  int     `json:"pageNumber"`
	FileName    string  `json:"fileName"`
	SourceType  string  `json:"sourceType"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Area        int     `json:"area"`
	AreaRatio   float64 `json:"areaRatio"`
	ContextText string  `json:"contextText"`
	PageText    string  `json:"pageText"`
}

// Result is the full output of one extraction run. The JSON shape doubles
// as the wire format of the out-of-process helper.
type Result struct {
	PageImageFiles  []PageImageFile `json:"pageImageFiles"`
	ImageCandidates []Candidate     `json:"imageCandidates"`
}

// Backend renders pages and writes page plus crop PNGs into outputDir.
type Backend interface {
	Name() string
	Extract(ctx context.Context, inputPath, outputDir string, opts Options) (*Result, error)
}
