package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joelkehle/negotiation-lab/internal/casefile"
	"github.com/joelkehle/negotiation-lab/internal/httpapi"
	"github.com/joelkehle/negotiation-lab/internal/narrative"
	"github.com/joelkehle/negotiation-lab/internal/negotiation"
	"github.com/joelkehle/negotiation-lab/internal/platform/config"
	"github.com/joelkehle/negotiation-lab/internal/platform/logger"
	"github.com/joelkehle/negotiation-lab/internal/platform/otel"
	"github.com/joelkehle/negotiation-lab/internal/report"
)

type serverConfig struct {
	Addr          string        `env:"NEGOTIATION_ADDR" envDefault:":8080"`
	DBPath        string        `env:"DB_PATH"`
	StoreBackend  string        `env:"STORE_BACKEND" envDefault:"file"`
	StateFile     string        `env:"STATE_FILE" envDefault:"./data/negotiation.json"`
	CasefilePath  string        `env:"CASEFILE_PATH"`
	LogMode       string        `env:"LOG_MODE" envDefault:"development"`
	SweepInterval time.Duration `env:"NEGOTIATION_SWEEP_INTERVAL" envDefault:"1m"`
	PDFEnabled    bool          `env:"NEGOTIATION_PDF_ENABLED" envDefault:"true"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	dbFlag := flag.String("db", "", "path to SQLite database file (overrides DB_PATH env var)")
	addrFlag := flag.String("addr", "", "listen address (overrides NEGOTIATION_ADDR env var)")
	flag.Parse()

	var sc serverConfig
	if err := config.ParseEnv(&sc); err != nil {
		return err
	}
	var cfg negotiation.Config
	if err := config.ParseEnv(&cfg); err != nil {
		return err
	}
	if *dbFlag != "" {
		sc.DBPath = *dbFlag
	}
	if *addrFlag != "" {
		sc.Addr = *addrFlag
	} else if port := os.Getenv("PORT"); port != "" {
		sc.Addr = ":" + port
	}

	log, err := logger.New(sc.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "negotiation-server")
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	repo, err := openRepository(sc, log)
	if err != nil {
		return err
	}

	dir, docs := casefile.NewDirectory(), casefile.NewDocuments()
	if sc.CasefilePath != "" {
		if err := casefile.LoadFixture(sc.CasefilePath, dir, docs); err != nil {
			return err
		}
		log.Info("casefile loaded", "path", sc.CasefilePath)
	}

	engine, err := negotiation.NewEngine(ctx, cfg, negotiation.Deps{
		Repository: repo,
		Directory:  dir,
		Documents:  docs,
		Narrator:   narrative.NewFromEnv(log),
		Logger:     log,
	})
	if err != nil {
		_ = repo.Close()
		return err
	}
	defer engine.Close()

	var pdf httpapi.PDFRenderer
	if sc.PDFEnabled {
		pdf = report.NewChromiumPDFRenderer()
	}
	srv := &http.Server{
		Addr:              sc.Addr,
		Handler:           httpapi.NewServer(engine, pdf, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepLoop(ctx, engine, sc.SweepInterval, log)

	errCh := make(chan error, 1)
	go func() {
		log.Info("negotiation-server listening", "addr", sc.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return err
		}
	}
	return nil
}

// openRepository resolves the store: -db flag > DB_PATH > STORE_BACKEND.
func openRepository(sc serverConfig, log *logger.Logger) (negotiation.Repository, error) {
	if sc.DBPath != "" {
		repo, err := negotiation.NewSQLiteRepository(sc.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite store (%s): %w", sc.DBPath, err)
		}
		log.Info("using sqlite store", "path", sc.DBPath)
		return repo, nil
	}
	switch sc.StoreBackend {
	case "memory":
		log.Info("using memory store")
		return negotiation.NewMemoryRepository(), nil
	case "file", "":
		if err := os.MkdirAll(filepath.Dir(sc.StateFile), 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
		repo, err := negotiation.NewFileRepository(sc.StateFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file store (%s): %w", sc.StateFile, err)
		}
		log.Info("using file store", "path", sc.StateFile)
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", sc.StoreBackend)
	}
}

func sweepLoop(ctx context.Context, engine *negotiation.Engine, every time.Duration, log *logger.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep, err := engine.Sweep(ctx)
			if err != nil {
				log.Warn("sweep failed", "error", err)
				continue
			}
			if rep != (negotiation.SweepReport{}) {
				log.Info("sweep", "closed", rep.RoundsClosed, "advanced", rep.RoundsAdvanced, "settlements", rep.Settlements, "arbitrations", rep.Arbitrations, "events", rep.EventsApplied, "evidence", rep.EvidenceReleased)
			}
		}
	}
}
