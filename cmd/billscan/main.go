package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog/log"

	"github.com/zombor/billscan/internal/bill"
	"github.com/zombor/billscan/internal/intake"
	"github.com/zombor/billscan/internal/logger"
	"github.com/zombor/billscan/internal/metrics"
	"github.com/zombor/billscan/internal/pipeline"
	"github.com/zombor/billscan/internal/scanning"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

type config struct {
	port        *int
	dbPath      *string
	storagePath *string
	authUser    *string
	authPass    *string

	engine      *string
	geminiKey   *string
	geminiModel *string
	ollamaURL   *string
	ollamaModel *string
	noPDFText   *bool

	maxBytes  *uint64
	maxWidth  *int
	maxHeight *int
	quality   *float64
	accept    *string

	extract     *bool
	timeout     *time.Duration
	concurrency *int

	logLevel  *string
	logFormat *string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env is fine
	_ = godotenv.Load()

	defaults := intake.DefaultProcessingConfig()

	fs := ff.NewFlagSet("billscan")
	cfg := config{
		port:        fs.IntLong("port", 8080, "HTTP server port"),
		dbPath:      fs.StringLong("db", "billscan.db", "Database file path"),
		storagePath: fs.StringLong("storage", "./bills", "Storage directory path"),
		authUser:    fs.StringLong("auth-user", "", "Basic auth username (optional)"),
		authPass:    fs.StringLong("auth-pass", "", "Basic auth password (optional)"),

		engine:      fs.StringLong("engine", "vision", "Recognition engine: 'vision', 'gemini' or 'ollama'"),
		geminiKey:   fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)"),
		geminiModel: fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name"),
		ollamaURL:   fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL"),
		ollamaModel: fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name"),
		noPDFText:   fs.BoolLong("no-pdf-text", "Always send PDFs to the engine, even when they carry a text layer"),

		maxBytes:  fs.Uint64Long("max-bytes", uint64(defaults.MaxBytes), "Largest accepted document in bytes"),
		maxWidth:  fs.IntLong("max-width", defaults.MaxWidth, "Images wider than this are downscaled"),
		maxHeight: fs.IntLong("max-height", defaults.MaxHeight, "Images taller than this are downscaled"),
		quality:   fs.Float64Long("quality", defaults.Quality, "JPEG quality for downscaled images, 0..1"),
		accept:    fs.StringLong("accept", strings.Join(defaults.AcceptedTypes, ","), "Comma separated accepted media types"),

		extract:     fs.BoolLong("extract", "Extract the files given as arguments, print JSON and exit"),
		timeout:     fs.DurationLong("timeout", 2*time.Minute, "Per-document recognition timeout in --extract mode"),
		concurrency: fs.IntLong("concurrency", 4, "Files extracted at once in --extract mode"),

		logLevel:  fs.StringLong("log-level", "info", "Log level: trace, debug, info, warn, error"),
		logFormat: fs.StringLong("log-format", "console", "Log format: console or json"),
	}
	_ = fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILLSCAN"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logConfig := logger.DefaultConfig()
	logConfig.Level = *cfg.logLevel
	logConfig.Format = *cfg.logFormat
	if err := logger.Setup(logConfig); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	factory, err := engineFactory(cfg)
	if err != nil {
		log.Error().Err(err).Msg("Invalid engine configuration")
		os.Exit(1)
	}

	processing := processingConfig(cfg)

	if *cfg.extract {
		if err := runExtract(ctx, fs.GetArgs(), processing, factory, *cfg.timeout, *cfg.concurrency, os.Stdout); err != nil {
			log.Error().Err(err).Msg("Extraction failed")
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, processing, factory); err != nil {
		log.Error().Err(err).Msg("Server error")
		os.Exit(1)
	}
}

// engineFactory builds the recognizer named by --engine. Engines start lazily
// on the first document.
func engineFactory(cfg config) (scanning.EngineFactory, error) {
	var factory scanning.EngineFactory
	switch *cfg.engine {
	case "vision":
		factory = scanning.VisionFactory()
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		factory = scanning.GeminiFactory(apiKey, *cfg.geminiModel)
	case "ollama":
		factory = scanning.OllamaFactory(*cfg.ollamaURL, *cfg.ollamaModel)
	default:
		return nil, fmt.Errorf("invalid engine %q: valid engines are vision, gemini or ollama", *cfg.engine)
	}

	if !*cfg.noPDFText {
		factory = scanning.TextLayerFactory(factory)
	}
	return factory, nil
}

func processingConfig(cfg config) intake.ProcessingConfig {
	processing := intake.ProcessingConfig{
		MaxBytes:  int64(min(*cfg.maxBytes, math.MaxInt64)),
		MaxWidth:  *cfg.maxWidth,
		MaxHeight: *cfg.maxHeight,
		Quality:   *cfg.quality,
	}
	for _, t := range strings.Split(*cfg.accept, ",") {
		if t = strings.TrimSpace(t); t != "" {
			processing.AcceptedTypes = append(processing.AcceptedTypes, t)
		}
	}
	return processing
}

func serve(ctx context.Context, cfg config, processing intake.ProcessingConfig, factory scanning.EngineFactory) error {
	log.Info().Str("path", *cfg.dbPath).Msg("Initializing database")
	db, err := bill.NewBoltDB(*cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	log.Info().Str("path", *cfg.storagePath).Msg("Initializing storage")
	store, err := bill.NewLocalStorage(*cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	m := metrics.New()
	log.Info().Str("engine", *cfg.engine).Msg("Initializing pipeline")
	pipe := pipeline.New(processing, factory, pipeline.WithMetrics(m))
	defer pipe.Close()

	service := bill.NewService(db, pipe, store)
	server := bill.NewServer(service, bill.BasicAuth{
		Username: *cfg.authUser,
		Password: *cfg.authPass,
	}, m)

	if *cfg.authUser != "" || *cfg.authPass != "" {
		log.Info().Str("user", *cfg.authUser).Msg("Basic auth enabled")
	}

	return server.Start(ctx, fmt.Sprintf(":%d", *cfg.port))
}
