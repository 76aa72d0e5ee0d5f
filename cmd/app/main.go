package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/local/quizassets/internal/ai"
	cfgpkg "github.com/local/quizassets/internal/config"
	"github.com/local/quizassets/internal/extraction"
	logpkg "github.com/local/quizassets/internal/logger"
	"github.com/local/quizassets/internal/matcher"
	"github.com/local/quizassets/internal/metrics"
	"github.com/local/quizassets/internal/pdfrender"
	"github.com/local/quizassets/internal/server"
	"github.com/local/quizassets/internal/statuscheck"
	"github.com/local/quizassets/internal/storage"
	"github.com/local/quizassets/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	// Job status store: Redis in production, in-memory without it
	var status store.StatusStore
	var redisPing statuscheck.RedisPinger
	if cfg.Redis.URL != "" {
		rs, err := store.NewRedisStatus(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		status = rs
		redisPing = redisPinger{rs}
	} else {
		log.Info().Msg("REDIS_URL not set, keeping job status in memory")
		status = store.NewMemoryStatus()
	}

	// Optional S3 media mirror, also used as the source for s3Key extracts
	var mirror extraction.Mirror
	var source server.MediaSource
	if cfg.Media.S3Bucket != "" {
		s3c, err := storage.NewS3Client(context.Background(), cfg.Media.S3Bucket, cfg.Media.S3Prefix)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init s3 client")
		}
		mirror = s3c
		source = s3c
		log.Info().Str("bucket", s3c.Bucket()).Str("prefix", cfg.Media.S3Prefix).Msg("s3 media storage enabled")
	}

	// Render engines
	var primary pdfrender.Backend
	if cfg.Extract.Engine != "fitz" {
		primary = pdfrender.NewPdfium(cfg.Extract.PdfiumPython, cfg.Extract.PdfiumScript, cfg.Extract.PdfiumTimeout)
	}
	fallback := pdfrender.NewFitz()

	opts := pdfrender.Options{
		MaxPages:           cfg.Extract.MaxPages,
		MaxImageCrops:      cfg.Extract.MaxImageCrops,
		MaxTextCrops:       cfg.Extract.MaxTextCrops,
		MaxTotalCrops:      cfg.Extract.MaxTotalCrops,
		MaxRenderDimension: cfg.Extract.MaxRenderDimension,
		BaseRenderScale:    cfg.Extract.BaseRenderScale,
	}

	extractSvc := extraction.NewService(primary, fallback, cfg.Media.Root, opts, status, mirror)

	// Optional vision tie-break
	var vision matcher.VisionPicker
	if cfg.Vision.Enabled {
		var client ai.Client
		switch cfg.Vision.Engine {
		case "anthropic":
			client = ai.NewAnthropicClient(cfg.Vision.AnthropicKey)
		default:
			client = ai.NewOpenAIClient(cfg.Vision.OpenAIKey)
		}
		vision = ai.NewPicker(client, cfg.Vision.Model, cfg.Vision.Timeout)
		log.Info().Str("engine", cfg.Vision.Engine).Str("model", cfg.Vision.Model).Msg("vision tie-break enabled")
	}

	match := matcher.New(matcher.Config{
		VisionEnabled:       cfg.Vision.Enabled,
		VisionMaxQuestions:  cfg.Vision.MaxQuestions,
		VisionMaxCandidates: cfg.Vision.MaxCandidates,
		PromotionMode:       cfg.Match.Mode,
	}, vision)

	checker := statuscheck.New(statuscheck.Options{
		Redis:        redisPing,
		S3Bucket:     cfg.Media.S3Bucket,
		PdfiumScript: cfg.Extract.PdfiumScript,
		OpenAIKey:    cfg.Vision.OpenAIKey,
		AnthropicKey: cfg.Vision.AnthropicKey,
	})

	srv := server.New(server.Options{
		Extract:     extractSvc,
		Match:       match,
		Checker:     checker,
		Source:      source,
		MediaRoot:   cfg.Media.Root,
		MaxUploadMB: cfg.Server.MaxUploadMB,
	})
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpSrv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}

	go func() {
		log.Info().Msgf("HTTP server listening on :%s", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	fmt.Println("shutdown complete")
}

// redisPinger adapts the status store's client to the health checker.
type redisPinger struct{ rs *store.RedisStatus }

func (p redisPinger) Ping(ctx context.Context) error {
	return p.rs.Client().Ping(ctx).Err()
}
