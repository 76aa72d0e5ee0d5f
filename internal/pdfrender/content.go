package pdfrender

import (
	"io"
	"os"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/quizassets/internal/contentwalk"
)

// documentContent gives the fallback backend access to decoded page content
// streams, which MuPDF's bitmap API does not expose.
type documentContent struct {
	ctx *model.Context
}

func loadDocumentContent(path string) (*documentContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ctx, _, _, _, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration(), time.Now())
	if err != nil {
		return nil, err
	}
	return &documentContent{ctx: ctx}, nil
}

// page returns the decoded operator stream of pageNr (1-based) together
// with what is known about its image resources. Image XObject names are not
// recoverable through the optimizer tables alone, so classification is
// coarse: pages with no image objects get an empty set (every Do is ignored)
// and pages with at least one get a nil set (every Do is a candidate and the
// size filters sort out form XObjects).
func (d *documentContent) page(pageNr int) contentwalk.PageContent {
	var content contentwalk.PageContent

	r, err := pdfcpu.ExtractPageContent(d.ctx, pageNr)
	if err == nil && r != nil {
		if data, err := io.ReadAll(r); err == nil && len(data) > 0 {
			content.Streams = [][]byte{data}
		}
	}

	if d.ctx.Optimize != nil {
		if len(pdfcpu.ImageObjNrs(d.ctx, pageNr)) == 0 {
			content.ImageXObjects = map[string]bool{}
		}
	}
	return content
}
