package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/atotto/clipboard"

	"github.com/imgprompt/imgprompt/internal/config"
	"github.com/imgprompt/imgprompt/internal/history"
	"github.com/imgprompt/imgprompt/internal/logging"
	"github.com/imgprompt/imgprompt/internal/render"
	"github.com/imgprompt/imgprompt/internal/web"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// systemClipboard writes to the OS clipboard.
type systemClipboard struct{}

func (systemClipboard) WriteAll(text string) error {
	return clipboard.WriteAll(text)
}

// session holds what every command needs: the resolved config, the logger
// and the loaded history store. Tests build one directly.
type session struct {
	baseDir   string
	cfg       *config.Config
	logger    *slog.Logger
	store     *history.Store
	clipboard web.Clipboard

	closeLog func() error
}

// openOptions are the global flags that locate config and history.
type openOptions struct {
	baseDir    string
	configPath string
	debug      bool
}

// open resolves the base dir, loads config.txt, starts logging and loads
// the history store. A corrupt history file is fatal and left untouched.
func (s *session) open(opts openOptions) error {
	s.baseDir = opts.baseDir
	if s.baseDir == "" {
		s.baseDir = config.BaseDir()
	}

	cfgPath := config.ResolvePath(opts.configPath, s.baseDir)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	s.cfg = cfg

	level := cfg.LogLevel
	if opts.debug {
		level = "debug"
	}
	logger := logging.New(logging.Options{
		Path:   cfg.LogPath(s.baseDir),
		Level:  level,
		Stderr: opts.debug,
	})
	s.logger = logger.Logger
	s.closeLog = logger.Close
	for _, w := range cfg.Warnings {
		s.logger.Warn("config value ignored", "path", cfgPath, "warning", w)
	}

	store, err := history.Load(history.Options{
		BaseDir:       s.baseDir,
		Capacity:      cfg.HistoryMaxEntries,
		ConfirmDelete: cfg.HistoryConfirmDelete,
		APIBase:       web.BaseURL(cfg.HistoryServerPort),
		Renderer:      render.New(),
		Logger:        s.logger,
	})
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

func (s *session) close() error {
	if s.closeLog == nil {
		return nil
	}
	return s.closeLog()
}

func main() {
	app := newCLIApp(&session{clipboard: systemClipboard{}})
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
