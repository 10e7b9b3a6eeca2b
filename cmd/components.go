package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/DanielAIris/liris/api/schemas"
	"github.com/DanielAIris/liris/internal/browser"
	"github.com/DanielAIris/liris/internal/config"
	"github.com/DanielAIris/liris/internal/interaction"
	"github.com/DanielAIris/liris/internal/observability"
	"github.com/DanielAIris/liris/internal/ocr"
	"github.com/DanielAIris/liris/internal/orchestrator"
	"github.com/DanielAIris/liris/internal/profiles"
	"github.com/DanielAIris/liris/internal/scheduling"
	"github.com/DanielAIris/liris/internal/vision"
)

// components holds the fully wired application graph.
type components struct {
	Logger    *zap.Logger
	Profiles  schemas.ProfileStore
	Scheduler *scheduling.UsageScheduler
	Launcher  *browser.Launcher
	Conductor *orchestrator.Conductor

	dbPool    *pgxpool.Pool
	statsPath string
}

// Shutdown tears the graph down in dependency order.
func (c *components) Shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if c.Conductor != nil {
		c.Conductor.Shutdown()
	}
	if c.Scheduler != nil && c.statsPath != "" {
		if err := c.Scheduler.SaveStats(c.statsPath); err != nil {
			c.Logger.Warn("Failed to save usage stats", zap.Error(err))
		}
	}
	if c.Launcher != nil {
		if err := c.Launcher.Shutdown(shutdownCtx); err != nil {
			c.Logger.Warn("Browser shutdown did not finish cleanly", zap.Error(err))
		}
	}
	if c.dbPool != nil {
		c.dbPool.Close()
	}
}

// usageStatsPath is where the scheduler's counters persist between runs.
func usageStatsPath(cfg config.ProfilesConfig) string {
	return filepath.Join(cfg.Dir, "usage_stats.json")
}

// initializeProfiles wires profile persistence: postgres (when configured)
// falling back to flat files, in that order.
func initializeProfiles(ctx context.Context, logger *zap.Logger, cfg config.ProfilesConfig) (schemas.ProfileStore, *pgxpool.Pool, error) {
	fileStore, err := profiles.NewFileStore(logger, cfg.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize profile directory: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fileStore, nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	pgStore, err := profiles.NewPostgresStore(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("initialize postgres profile store: %w", err)
	}
	return profiles.NewChain(logger, pgStore, fileStore), pool, nil
}

// initializeComponents performs all dependency injection for the CLI.
func initializeComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	logger := observability.GetLogger()
	c := &components{Logger: logger}

	store, pool, err := initializeProfiles(ctx, logger, cfg.ProfilesCfg)
	if err != nil {
		return c, err
	}
	c.Profiles = store
	c.dbPool = pool

	// Browser process and the capabilities built on it.
	launcher, err := browser.NewLauncher(ctx, logger, cfg.BrowserCfg, c.Profiles)
	if err != nil {
		return c, fmt.Errorf("launch browser: %w", err)
	}
	c.Launcher = launcher
	capturer := browser.NewCapturer(logger, launcher)

	// Perception engine.
	captureCache := vision.NewCaptureCache(logger, capturer, cfg.VisionCfg.CaptureFreshness)
	recognizer := ocr.New(logger, cfg.VisionCfg.TesseractPath)
	detector := vision.NewDetector(logger, recognizer, cfg.VisionCfg.TemplateThreshold, cfg.VisionCfg.TextSimilarity)
	grounder := vision.NewGrounder(logger, detector)

	// Interaction: executor plus the configured response extractor.
	var extractor schemas.ResponseExtractor
	switch cfg.EngineCfg.ExtractionMethod {
	case "ocr":
		extractor = interaction.NewOCRExtractor(logger, capturer, recognizer)
	default:
		extractor = interaction.NewClipboardExtractor(logger,
			browser.NewActiveInput(logger, launcher),
			browser.NewSessionClipboard(logger, launcher))
	}
	executor, err := interaction.NewPromptExecutor(logger, launcher, extractor, cfg.EngineCfg.SettleWait)
	if err != nil {
		return c, err
	}

	// Dispatch engine. Usage counters survive process restarts so quotas
	// hold across invocations.
	c.Scheduler = scheduling.NewUsageScheduler(logger, c.Profiles)
	c.statsPath = usageStatsPath(cfg.ProfilesCfg)
	if err := c.Scheduler.LoadStats(c.statsPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load usage stats", zap.Error(err))
	}
	taskStore := scheduling.NewTaskStore(logger)
	queue := scheduling.NewDispatchQueue()
	workerPool, err := scheduling.NewWorkerPool(cfg.EngineCfg, logger, taskStore, queue, c.Scheduler, executor)
	if err != nil {
		return c, err
	}

	conductor, err := orchestrator.NewConductor(logger, cfg.EngineCfg,
		taskStore, queue, workerPool, c.Scheduler, executor, c.Profiles, grounder, captureCache)
	if err != nil {
		return c, err
	}
	c.Conductor = conductor
	return c, nil
}
