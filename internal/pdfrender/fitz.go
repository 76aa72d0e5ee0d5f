package pdfrender

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/quizassets/internal/contentwalk"
	"github.com/local/quizassets/internal/cropselect"
	"github.com/local/quizassets/internal/geometry"
	"github.com/local/quizassets/internal/textlayout"
)

// Fitz is the in-process fallback backend built on MuPDF. It renders page
// bitmaps with go-fitz and recovers text and image geometry by walking the
// decoded content streams, since go-fitz exposes only plain page text.
type Fitz struct{}

func NewFitz() *Fitz { return &Fitz{} }

func (f *Fitz) Name() string { return "fitz" }

func (f *Fitz) Extract(ctx context.Context, inputPath, outputDir string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	doc, err := fitz.New(inputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	defer doc.Close()

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	// Content streams are optional: without them we still render pages,
	// just with no crop candidates.
	content, contentErr := loadDocumentContent(inputPath)
	if contentErr != nil {
		log.Warn().Err(contentErr).Str("input", inputPath).Msg("page content unavailable, rendering pages only")
	}

	pages := doc.NumPage()
	if pages > opts.MaxPages {
		pages = opts.MaxPages
	}

	result := &Result{}
	totalCrops := 0

	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageNumber := i + 1

		bound, err := doc.Bound(i)
		if err != nil {
			return nil, fmt.Errorf("page %d bounds: %w", pageNumber, err)
		}
		widthPts := math.Max(1, float64(bound.Dx()))
		heightPts := math.Max(1, float64(bound.Dy()))

		largest := math.Max(widthPts, heightPts)
		scale := math.Min(opts.BaseRenderScale, float64(opts.MaxRenderDimension)/largest)
		if scale < 1 {
			scale = 1
		}

		img, err := doc.ImageDPI(i, 72*scale)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", pageNumber, err)
		}
		pageW := img.Bounds().Dx()
		pageH := img.Bounds().Dy()

		pageFile := fmt.Sprintf("page-%d.png", pageNumber)
		if err := writePNG(filepath.Join(outputDir, pageFile), img); err != nil {
			return nil, err
		}
		result.PageImageFiles = append(result.PageImageFiles, PageImageFile{
			PageNumber: pageNumber,
			FileName:   pageFile,
		})

		if totalCrops >= opts.MaxTotalCrops || content == nil {
			continue
		}

		walk := contentwalk.Walk(content.page(pageNumber), contentwalk.Viewport{
			PageWidthPts:  widthPts,
			PageHeightPts: heightPts,
			ScaleX:        float64(pageW) / widthPts,
			ScaleY:        float64(pageH) / heightPts,
			BitmapWidth:   pageW,
			BitmapHeight:  pageH,
		})

		items := make([]textlayout.Item, 0, len(walk.TextRuns))
		for _, run := range walk.TextRuns {
			items = append(items, textlayout.Item{Text: run.Text, Bounds: run.Bounds})
		}
		lines := textlayout.BuildLines(items)

		pageText := ""
		if t, err := doc.Text(i); err == nil {
			pageText = textlayout.Truncate(textlayout.NormalizeWhitespace(t), DefaultMaxPageTextLength)
		}
		if pageText == "" {
			pageText = textlayout.PageText(lines, DefaultMaxPageTextLength)
		}

		params := cropselect.Params{
			MaxImageCrops: opts.MaxImageCrops,
			MaxTextCrops:  opts.MaxTextCrops,
		}
		imageBoxes := cropselect.SelectImageBoxes(walk.ImageBounds, pageW, pageH, params)
		textBlocks := cropselect.SelectTextBlocks(lines, pageW, pageH, params)

		log.Debug().
			Int("page", pageNumber).
			Int("text_runs", len(walk.TextRuns)).
			Int("image_objects", len(walk.ImageBounds)).
			Int("image_crops", len(imageBoxes)).
			Int("text_crops", len(textBlocks)).
			Msg("page walked")

		cropSeq := 1
		for _, b := range imageBoxes {
			if totalCrops >= opts.MaxTotalCrops {
				break
			}
			cand, err := saveCrop(img, b, outputDir, pageNumber, cropSeq, SourceImageObject, pageW, pageH)
			if err != nil {
				return nil, err
			}
			cand.ContextText = cropselect.BuildCropContext(lines, b,
				cropselect.DefaultContextMargin, cropselect.DefaultMaxContextLength)
			cand.PageText = pageText
			result.ImageCandidates = append(result.ImageCandidates, cand)
			cropSeq++
			totalCrops++
		}
		for _, tb := range textBlocks {
			if totalCrops >= opts.MaxTotalCrops {
				break
			}
			cand, err := saveCrop(img, tb.Bounds, outputDir, pageNumber, cropSeq, SourceTextBlock, pageW, pageH)
			if err != nil {
				return nil, err
			}
			cand.ContextText = tb.ContextText
			cand.PageText = pageText
			result.ImageCandidates = append(result.ImageCandidates, cand)
			cropSeq++
			totalCrops++
		}
	}

	return result, nil
}

func saveCrop(pageImg *image.RGBA, b geometry.Bounds, outputDir string, pageNumber, seq int, sourceType string, pageW, pageH int) (Candidate, error) {
	fileName := fmt.Sprintf("page-%d-crop-%d.png", pageNumber, seq)
	sub := pageImg.SubImage(image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height))
	if err := writePNG(filepath.Join(outputDir, fileName), sub); err != nil {
		return Candidate{}, err
	}
	area := b.Area()
	return Candidate{
		PageNumber: pageNumber,
		FileName:   fileName,
		SourceType: sourceType,
		Width:      b.Width,
		Height:     b.Height,
		Area:       area,
		AreaRatio:  float64(area) / math.Max(1, float64(pageW*pageH)),
	}, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
