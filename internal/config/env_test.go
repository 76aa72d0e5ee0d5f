package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.Server.Port != "8080" {
		t.Fatalf("port = %q", cfg.Server.Port)
	}
	if cfg.Media.Root != "generated-media" {
		t.Fatalf("media root = %q", cfg.Media.Root)
	}
	if cfg.Extract.MaxPages != 20 || cfg.Extract.MaxTotalCrops != 36 {
		t.Fatalf("extract limits = %+v", cfg.Extract)
	}
	if cfg.Extract.MaxImageCrops != 4 || cfg.Extract.MaxTextCrops != 6 {
		t.Fatalf("crop limits = %+v", cfg.Extract)
	}
	if cfg.Extract.MaxRenderDimension != 2400 || cfg.Extract.BaseRenderScale != 2.4 {
		t.Fatalf("render limits = %+v", cfg.Extract)
	}
	if cfg.Extract.Engine != "pdfium" {
		t.Fatalf("engine = %q", cfg.Extract.Engine)
	}
	if cfg.Vision.Enabled {
		t.Fatal("vision must default off")
	}
	if cfg.Match.Mode != "" {
		t.Fatalf("match mode = %q, promotion must default off", cfg.Match.Mode)
	}
	if cfg.Axiom.Dataset != "dev_quizassets" {
		t.Fatalf("axiom dataset = %q", cfg.Axiom.Dataset)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("QUIZ_PDF_MAX_RENDER_PAGES", "5")
	t.Setenv("QUIZ_PDF_MAX_TOTAL_CROPS", "12")
	t.Setenv("PDF_RENDER_ENGINE", "fitz")
	t.Setenv("VISION_MATCH_ENABLED", "1")
	t.Setenv("VISION_MATCH_MODEL", "gpt-4o-mini")
	t.Setenv("IMAGE_MATCH_MODE", "v1")
	t.Setenv("PDFIUM_TIMEOUT", "90s")
	t.Setenv("MEDIA_ROOT", "/srv/media")

	cfg := FromEnv()

	if cfg.Extract.MaxPages != 5 || cfg.Extract.MaxTotalCrops != 12 {
		t.Fatalf("extract = %+v", cfg.Extract)
	}
	if cfg.Extract.Engine != "fitz" {
		t.Fatalf("engine = %q", cfg.Extract.Engine)
	}
	if !cfg.Vision.Enabled || cfg.Vision.Model != "gpt-4o-mini" {
		t.Fatalf("vision = %+v", cfg.Vision)
	}
	if cfg.Match.Mode != "v1" {
		t.Fatalf("match mode = %q", cfg.Match.Mode)
	}
	if cfg.Extract.PdfiumTimeout != 90*time.Second {
		t.Fatalf("timeout = %v", cfg.Extract.PdfiumTimeout)
	}
	if cfg.Media.Root != "/srv/media" {
		t.Fatalf("media root = %q", cfg.Media.Root)
	}
}

func TestFromEnvBadValuesFallBack(t *testing.T) {
	t.Setenv("QUIZ_PDF_MAX_RENDER_PAGES", "not-a-number")
	t.Setenv("QUIZ_PDF_RENDER_SCALE", "nope")
	t.Setenv("PDFIUM_TIMEOUT", "soon")

	cfg := FromEnv()

	if cfg.Extract.MaxPages != 20 {
		t.Fatalf("max pages = %d", cfg.Extract.MaxPages)
	}
	if cfg.Extract.BaseRenderScale != 2.4 {
		t.Fatalf("scale = %v", cfg.Extract.BaseRenderScale)
	}
	if cfg.Extract.PdfiumTimeout != 3*time.Minute {
		t.Fatalf("timeout = %v", cfg.Extract.PdfiumTimeout)
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", "yes", "on"} {
		if !parseBool(v) {
			t.Fatalf("parseBool(%q) = false", v)
		}
	}
	for _, v := range []string{"", "0", "false", "off", "maybe"} {
		if parseBool(v) {
			t.Fatalf("parseBool(%q) = true", v)
		}
	}
}
