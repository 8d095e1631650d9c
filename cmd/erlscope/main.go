package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/erlscope/erlscope/internal/config"
	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/discovery"
	"github.com/erlscope/erlscope/internal/engine"
	mcpserver "github.com/erlscope/erlscope/internal/mcp"
	"github.com/erlscope/erlscope/internal/search"
	"github.com/erlscope/erlscope/internal/store"
	"github.com/erlscope/erlscope/internal/types"
	"github.com/erlscope/erlscope/internal/version"
	"github.com/erlscope/erlscope/internal/watcher"
)

func main() {
	app := &cli.App{
		Name:                   "erlscope",
		Usage:                  "Incremental Erlang code analysis for editors and AI assistants",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.FileName,
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root directory (overrides config)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns (e.g. --include 'src/**/*.erl')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g. --exclude 'deps/**')",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Write debug output to stderr",
			},
			&cli.BoolFlag{
				Name:  "debug-log",
				Usage: "Write debug output to a log file under the temp directory",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				debug.SetOutput(os.Stderr)
			}
			if c.Bool("debug-log") {
				path, err := debug.InitLogFile()
				if err != nil {
					return fmt.Errorf("failed to open debug log: %w", err)
				}
				fmt.Fprintf(os.Stderr, "debug log: %s\n", path)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			debug.Close()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the workspace over MCP (Model Context Protocol) on stdio",
				Action: serveCommand,
			},
			{
				Name:      "check",
				Usage:     "Run diagnostics over the workspace (or the named files)",
				ArgsUsage: "[path ...]",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: checkCommand,
			},
			{
				Name:      "symbols",
				Aliases:   []string{"sym"},
				Usage:     "Search workspace definitions by name",
				ArgsUsage: "<query>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "max",
						Aliases: []string{"n"},
						Usage:   "Max number of results (0 uses the config limit)",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: symbolsCommand,
			},
			{
				Name:  "index",
				Usage: "Persist workspace symbols into a SQLite database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "db",
						Aliases: []string{"o"},
						Usage:   "Database file path",
						Value:   ".erlscope.db",
					},
				},
				Action: indexCommand,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List files that would be analyzed",
				Action:  listCommand,
			},
			{
				Name:  "version",
				Usage: "Print detailed version information",
				Action: func(c *cli.Context) error {
					fmt.Println(version.FullInfo())
					fmt.Printf("build id: %s\n", version.BuildID())
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfigWithOverrides loads configuration and applies CLI flag overrides.
func loadConfigWithOverrides(c *cli.Context) (config.Config, error) {
	configPath := c.String("config")
	if rootFlag := c.String("root"); rootFlag != "" && configPath == config.FileName {
		configPath = filepath.Join(rootFlag, config.FileName)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}

	if include := c.StringSlice("include"); len(include) > 0 {
		cfg.Project.Include = include
	}
	if exclude := c.StringSlice("exclude"); len(exclude) > 0 {
		cfg.Project.Exclude = append(cfg.Project.Exclude, exclude...)
	}
	if rootFlag := c.String("root"); rootFlag != "" {
		absRoot, err := filepath.Abs(rootFlag)
		if err != nil {
			return cfg, fmt.Errorf("failed to resolve root path %q: %w", rootFlag, err)
		}
		cfg.Project.Root = absRoot
	}
	return cfg, nil
}

// newLoadedEngine builds an engine from config and loads the workspace into
// it. Returns the engine and how many files were loaded.
func newLoadedEngine(cfg config.Config) (*engine.Engine, int, error) {
	eng := engine.New(engine.Options{
		MaxCachedNodes: cfg.Analysis.MaxCachedNodes,
		MaxFileSize:    cfg.Analysis.MaxFileSize,
	})
	eng.Registry().Disable(cfg.Analysis.DisabledPasses...)

	loaded, err := discovery.LoadWorkspace(eng, discovery.Options{
		Root:         cfg.Project.Root,
		Include:      cfg.Project.Include,
		Exclude:      cfg.Project.Exclude,
		UseGitignore: cfg.Project.UseGitignore,
		MaxFileSize:  int64(cfg.Analysis.MaxFileSize),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("workspace load failed: %w", err)
	}
	return eng, loaded, nil
}

func scorerFromConfig(cfg config.Config) *search.Scorer {
	w := search.DefaultWeights()
	if cfg.Search.MaxResults > 0 {
		w.MaxResults = cfg.Search.MaxResults
	}
	if cfg.Search.MinScore > 0 {
		w.MinScore = cfg.Search.MinScore
	}
	if cfg.Search.FuzzyThreshold > 0 {
		w.FuzzyThreshold = cfg.Search.FuzzyThreshold
	}
	return search.NewScorer(w)
}

func serveCommand(c *cli.Context) error {
	debug.SetMCPMode(true)

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	eng, loaded, err := newLoadedEngine(cfg)
	if err != nil {
		return err
	}
	debug.LogEngine("serving %d files from %s", loaded, cfg.Project.Root)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	if cfg.Watch.Enabled {
		stop, err := startWatcher(ctx, eng, cfg)
		if err != nil {
			debug.LogWatch("watcher unavailable: %v", err)
		} else {
			defer stop()
		}
	}

	srv := mcpserver.NewServer(eng, scorerFromConfig(cfg))
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// startWatcher mirrors on-disk edits into the engine so long-running serve
// sessions stay current without client notifications.
func startWatcher(ctx context.Context, eng *engine.Engine, cfg config.Config) (func(), error) {
	root, err := filepath.Abs(cfg.Project.Root)
	if err != nil {
		return nil, err
	}
	debounce := time.Duration(cfg.Watch.DebounceMs) * time.Millisecond

	w, err := watcher.New(root, debounce, func(events []watcher.Event) {
		for _, ev := range events {
			rel, err := filepath.Rel(root, ev.Path)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)
			applyWatchEvent(eng, rel, ev)
		}
	})
	if err != nil {
		return nil, err
	}
	go w.Run(ctx)
	return func() { w.Close() }, nil
}

func checkCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	eng, _, err := newLoadedEngine(cfg)
	if err != nil {
		return err
	}

	snap := eng.Snapshot(context.Background())
	defer snap.Release()

	files := snap.Files()
	if c.NArg() > 0 {
		files = files[:0]
		for _, arg := range c.Args().Slice() {
			fc := snap.FileByPath(filepath.ToSlash(arg))
			if fc == nil {
				return fmt.Errorf("not part of the workspace: %s", arg)
			}
			files = append(files, fc)
		}
	}

	type finding struct {
		Path     string `json:"path"`
		Line     uint32 `json:"line"`
		Column   uint32 `json:"column"`
		Severity string `json:"severity"`
		Pass     string `json:"pass"`
		Message  string `json:"message"`
	}
	var all []finding
	errorCount := 0
	for _, fc := range files {
		diags, err := snap.Diagnostics(fc.FileID)
		if err != nil {
			return fmt.Errorf("diagnostics failed on %s: %w", fc.Path, err)
		}
		for _, d := range diags {
			lc := fc.LineCol(d.Location.Range.Start)
			all = append(all, finding{
				Path:     fc.Path,
				Line:     lc.Line,
				Column:   lc.Column,
				Severity: d.Severity.String(),
				Pass:     d.Pass,
				Message:  d.Message,
			})
			if d.Severity == types.SeverityError {
				errorCount++
			}
		}
	}

	if c.Bool("json") {
		if err := json.NewEncoder(os.Stdout).Encode(all); err != nil {
			return err
		}
	} else {
		for _, f := range all {
			fmt.Printf("%s:%d:%d: %s: %s [%s]\n", f.Path, f.Line, f.Column, f.Severity, f.Message, f.Pass)
		}
		fmt.Printf("%d findings in %d files (%d errors)\n", len(all), len(files), errorCount)
	}

	if errorCount > 0 {
		return cli.Exit("", 1)
	}
	return nil
}

func symbolsCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("usage: erlscope symbols <query>")
	}
	query := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	eng, _, err := newLoadedEngine(cfg)
	if err != nil {
		return err
	}

	snap := eng.Snapshot(context.Background())
	defer snap.Release()

	syms, err := snap.WorkspaceSymbols()
	if err != nil {
		return fmt.Errorf("symbol listing failed: %w", err)
	}
	matches := scorerFromConfig(cfg).Rank(query, syms)
	if max := c.Int("max"); max > 0 && len(matches) > max {
		matches = matches[:max]
	}

	if c.Bool("json") {
		type symbolOut struct {
			Name  string  `json:"name"`
			Kind  string  `json:"kind"`
			Score float64 `json:"score"`
			Path  string  `json:"path"`
			Line  uint32  `json:"line"`
		}
		out := make([]symbolOut, 0, len(matches))
		for _, m := range matches {
			line := uint32(0)
			if fc := snap.File(m.Symbol.File); fc != nil {
				line = fc.LineCol(m.Symbol.Range.Start).Line
			}
			out = append(out, symbolOut{
				Name:  m.Symbol.ID.String(),
				Kind:  m.Symbol.ID.Kind.String(),
				Score: m.Score,
				Path:  m.Symbol.Path,
				Line:  line,
			})
		}
		return json.NewEncoder(os.Stdout).Encode(out)
	}

	for _, m := range matches {
		line := uint32(0)
		if fc := snap.File(m.Symbol.File); fc != nil {
			line = fc.LineCol(m.Symbol.Range.Start).Line
		}
		fmt.Printf("%.2f  %-10s %s  %s:%d\n", m.Score, m.Symbol.ID.Kind.String(), m.Symbol.ID.String(), m.Symbol.Path, line)
	}
	return nil
}

func indexCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	eng, loaded, err := newLoadedEngine(cfg)
	if err != nil {
		return err
	}

	snap := eng.Snapshot(context.Background())
	defer snap.Release()

	syms, err := snap.WorkspaceSymbols()
	if err != nil {
		return fmt.Errorf("symbol listing failed: %w", err)
	}

	db, err := store.Open(c.String("db"))
	if err != nil {
		return fmt.Errorf("failed to open symbol database: %w", err)
	}
	defer db.Close()

	if err := db.Replace(syms); err != nil {
		return fmt.Errorf("failed to write symbols: %w", err)
	}
	fmt.Printf("indexed %d symbols from %d files into %s\n", len(syms), loaded, c.String("db"))
	return nil
}

func listCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	files, err := discovery.Discover(discovery.Options{
		Root:         cfg.Project.Root,
		Include:      cfg.Project.Include,
		Exclude:      cfg.Project.Exclude,
		UseGitignore: cfg.Project.UseGitignore,
	})
	if err != nil {
		return err
	}
	for _, f := range files {
		fmt.Println(f.Path)
	}
	fmt.Printf("%d files\n", len(files))
	return nil
}
