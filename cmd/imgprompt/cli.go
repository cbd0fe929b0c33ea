package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/imgprompt/imgprompt/internal/copygate"
	"github.com/imgprompt/imgprompt/internal/errors"
	"github.com/imgprompt/imgprompt/internal/history"
	"github.com/imgprompt/imgprompt/internal/images"
	"github.com/imgprompt/imgprompt/internal/mcp"
	"github.com/imgprompt/imgprompt/internal/web"
)

// newCLIApp creates the CLI application with all commands. When s already
// holds a store (tests), the global flags are not used to open one.
func newCLIApp(s *session) *cli.App {
	app := &cli.App{
		Name:    "imgprompt",
		Usage:   "Image prompt history and its local page server",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "base-dir", Usage: "Directory holding config and history (default: executable or working dir)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Config file path (default: config.txt, then config/config.txt)"},
			&cli.BoolFlag{Name: "debug", Usage: "Log at debug level and mirror logs to stderr"},
		},
		Before: func(c *cli.Context) error {
			if s.store != nil {
				return nil
			}
			if err := s.open(openOptions{
				baseDir:    c.String("base-dir"),
				configPath: c.String("config"),
				debug:      c.Bool("debug"),
			}); err != nil {
				return outputError(err)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return s.close()
		},
		Action: func(c *cli.Context) error {
			return s.serve(c.Context, s.cfg.HistoryServerPort)
		},
		Commands: []*cli.Command{
			serveCmd(s),
			copyCmd(s),
			historyCmd(s),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command, also the default action.
func serveCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve history pages and the local API until interrupted",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Preferred port (default: history_server_port)"},
		},
		Action: func(c *cli.Context) error {
			port := s.cfg.HistoryServerPort
			if c.IsSet("port") {
				port = c.Int("port")
				if port < 0 || port > 65535 {
					return outputError(errors.NewInvalidRequest(fmt.Sprintf("port %d out of range", port)))
				}
			}
			return s.serve(c.Context, port)
		},
	}
}

// serve binds the loopback server on port or the next free one above it,
// points every page at it and blocks until ctx is done or a signal
// arrives. Port 0 picks any free port.
func (s *session) serve(ctx context.Context, port int) error {
	ln, bound, err := web.Listen(port)
	if err != nil {
		return outputError(errors.NewIOFailure("listen", web.Host, err))
	}
	if port != 0 && bound != port {
		s.logger.Info("preferred port busy", "preferred", port, "port", bound)
	}

	if err := s.store.SetAPIBase(ctx, web.BaseURL(bound)); err != nil {
		_ = ln.Close()
		return outputError(err)
	}
	if err := s.store.Regenerate(ctx); err != nil {
		_ = ln.Close()
		return outputError(err)
	}

	gate := copygate.New(s.cfg.CopyDebounce(), time.Now)
	s.logger.Info("history server configured",
		"port", bound,
		"copy_debounce", gate.Window(),
		"mcp", s.cfg.HistoryMCPEnabled,
	)
	opts := web.Options{
		Store:     s.store,
		Gate:      gate,
		Clipboard: s.clipboard,
		Logger:    s.logger,
	}
	if s.cfg.HistoryMCPEnabled {
		opts.MCP = mcp.Handler(mcp.NewServer(s.store, Version))
	}
	srv := web.NewServer(opts, bound)

	if err := outputJSON(map[string]any{
		"url":     web.BaseURL(bound),
		"history": filepath.Join(s.store.BaseDir(), history.LiveHTMLFile),
		"mcp":     s.cfg.HistoryMCPEnabled,
	}); err != nil {
		_ = ln.Close()
		return err
	}

	if err := web.Run(ctx, srv, ln, s.logger); err != nil {
		return outputError(errors.NewInternal(err))
	}
	return nil
}

// copyOutput is printed by the copy command.
type copyOutput struct {
	Skipped bool           `json:"skipped"`
	Entry   *history.Entry `json:"entry,omitempty"`
}

// copyCmd creates the copy command.
func copyCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "copy",
		Usage: "Copy a prompt to the clipboard and record it in history (reads the prompt from stdin)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "no-clipboard", Usage: "Record the prompt without touching the clipboard"},
		},
		Action: func(c *cli.Context) error {
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("prompt must be piped via stdin"))
			}
			prompt, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if prompt == "" {
				return outputJSON(copyOutput{Skipped: true})
			}

			if !c.Bool("no-clipboard") && s.clipboard != nil {
				if err := s.clipboard.WriteAll(prompt); err != nil {
					return outputError(errors.NewInternal(fmt.Errorf("clipboard: %w", err)))
				}
			}

			gate := copygate.New(s.cfg.CopyDebounce(), time.Now)
			var entry history.Entry
			appended, err := gate.Submit(c.Context, prompt, func(ctx context.Context) error {
				var err error
				entry, err = s.store.Append(ctx, history.AppendInput{Prompt: prompt})
				return err
			})
			if err != nil {
				return outputError(err)
			}

			out := copyOutput{Skipped: !appended}
			if appended {
				out.Entry = &entry
			}
			return outputJSON(out)
		},
	}
}

// historyCmd groups the history maintenance commands.
func historyCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect and edit history entries",
		Subcommands: []*cli.Command{
			pagesCmd(s),
			listCmd(s),
			getCmd(s),
			overwriteCmd(s),
			deleteCmd(s),
			attachCmd(s),
			regenerateCmd(s),
		},
	}
}

// pageFlag selects a page. Omitted means live for list, and any page
// (live first, then archives newest first) for entry commands.
func pageFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "page",
		Aliases: []string{"p"},
		Usage:   `Page: "live" or an archive date YYYYMMDD`,
	}
}

// pagesCmd creates the history pages command.
func pagesCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "pages",
		Usage: "List history pages with entry counts",
		Action: func(c *cli.Context) error {
			pages, err := s.store.Pages(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"pages": pages})
		},
	}
}

// listCmd creates the history list command.
func listCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the entries of a page (default: live)",
		Flags: []cli.Flag{pageFlag()},
		Action: func(c *cli.Context) error {
			page, err := history.ParsePage(c.String("page"))
			if err != nil {
				return outputError(err)
			}
			if page == history.AnyPage {
				page = history.Live
			}
			entries, err := s.store.List(c.Context, page)
			if err != nil {
				return outputError(err)
			}
			if entries == nil {
				entries = []history.Entry{}
			}
			return outputJSON(map[string]any{"page": page, "entries": entries})
		},
	}
}

// getCmd creates the history get command.
func getCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Print one entry",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{pageFlag()},
		Action: func(c *cli.Context) error {
			page, id, err := entryArgs(c)
			if err != nil {
				return outputError(err)
			}
			got, err := s.store.Get(c.Context, page, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(got)
		},
	}
}

// overwriteCmd creates the history overwrite command.
func overwriteCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "overwrite",
		Usage:     "Replace the prompt of an entry (reads the prompt from stdin)",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{pageFlag()},
		Action: func(c *cli.Context) error {
			page, id, err := entryArgs(c)
			if err != nil {
				return outputError(err)
			}
			if !stdinHasData() {
				return outputError(errors.NewInvalidRequest("prompt must be piped via stdin"))
			}
			prompt, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			got, err := s.store.Overwrite(c.Context, page, id, prompt)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(got)
		},
	}
}

// deleteCmd creates the history delete command.
func deleteCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete an entry and its image",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{pageFlag()},
		Action: func(c *cli.Context) error {
			page, id, err := entryArgs(c)
			if err != nil {
				return outputError(err)
			}
			got, err := s.store.Delete(c.Context, page, id)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(got)
		},
	}
}

// attachCmd creates the history attach command.
func attachCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:      "attach",
		Usage:     "Attach an image to an entry, replacing any previous one",
		ArgsUsage: "<id> <file>",
		Flags:     []cli.Flag{pageFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return outputError(errors.NewInvalidRequest("usage: attach <id> <file>"))
			}
			page, err := history.ParsePage(c.String("page"))
			if err != nil {
				return outputError(err)
			}
			id, path := c.Args().Get(0), c.Args().Get(1)

			info, err := os.Stat(path)
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("cannot read image: %v", err)))
			}
			if _, err := images.ValidateUpload(path, info.Size()); err != nil {
				return outputError(err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return outputError(errors.NewInvalidRequest(fmt.Sprintf("cannot read image: %v", err)))
			}

			got, err := s.store.ReplaceImage(c.Context, page, id, history.ImageUpload{
				Name: filepath.Base(path),
				Data: data,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(got)
		},
	}
}

// regenerateCmd creates the history regenerate command.
func regenerateCmd(s *session) *cli.Command {
	return &cli.Command{
		Name:  "regenerate",
		Usage: "Rewrite every HTML page from its JSON file",
		Action: func(c *cli.Context) error {
			if err := s.store.Regenerate(c.Context); err != nil {
				return outputError(err)
			}
			pages, err := s.store.Pages(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(map[string]any{"pages": pages})
		},
	}
}

// Helper functions

// entryArgs reads the <id> argument and the --page flag.
func entryArgs(c *cli.Context) (history.Page, string, error) {
	if c.NArg() != 1 {
		return "", "", errors.NewInvalidRequest("exactly one entry id is required")
	}
	page, err := history.ParsePage(c.String("page"))
	if err != nil {
		return "", "", err
	}
	return page, c.Args().First(), nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	hErr := errors.As(err)
	return cli.Exit(fmt.Sprintf("[%s] %s", hErr.Code, hErr.Message), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
