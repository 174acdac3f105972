package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/config"
	"github.com/standardbeagle/refract/internal/engine"
	"github.com/standardbeagle/refract/internal/mcp"
	"github.com/standardbeagle/refract/internal/project"
)

var Version = "0.1.0"

// loadConfigWithOverrides resolves the project root, loads .refract.kdl
// from it and applies CLI flag overrides.
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	root := c.String("root")
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		root, err = project.FindRoot(wd)
		if err != nil {
			root = wd
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", root, err)
	}

	cfg, err := config.Load(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", absRoot, err)
	}
	cfg.Project.Root = absRoot
	if cfg.Project.Name == "" {
		cfg.Project.Name = project.Name(absRoot)
	}
	if cfg.Project.Language == "" {
		cfg.Project.Language = project.DetectLanguage(absRoot)
	}

	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if c.IsSet("max-results") {
		cfg.Find.MaxResults = c.Int("max-results")
	}
	if c.Bool("watch") {
		cfg.Scan.WatchMode = true
	}
	return cfg, nil
}

func newLogger(c *cli.Context) (*zap.Logger, error) {
	if c.Bool("verbose") {
		return zap.NewDevelopment()
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zcfg.Build()
}

func newEngine(c *cli.Context) (*engine.Engine, *zap.Logger, error) {
	log, err := newLogger(c)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return eng, log, nil
}

// printResult writes the result object as indented JSON to stdout and
// maps operation failure to a non-zero exit.
func printResult(result interface{}, success bool) error {
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !success {
		return cli.Exit("", 1)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:    "refract",
		Usage:   "Scope-aware symbol analysis and safe refactoring for Python projects",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (default: walk up from cwd to the nearest project marker)",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns (e.g., --exclude '**/generated/**')",
			},
			&cli.IntFlag{
				Name:  "max-results",
				Usage: "Cap on find results (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "watch",
				Usage: "Watch the project tree and refresh the index on changes",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "analyze",
				Usage:     "Resolve a symbol and list its definition and references",
				ArgsUsage: "<symbol>",
				Action:    analyzeCommand,
			},
			{
				Name:      "find",
				Usage:     "Search symbols by substring or glob pattern",
				ArgsUsage: "<pattern>",
				Action:    findCommand,
			},
			{
				Name:      "show",
				Usage:     "List the anonymous elements of a function with their extract ids",
				ArgsUsage: "<function>",
				Action:    showCommand,
			},
			{
				Name:      "rename",
				Usage:     "Rename a symbol and every reference across the project",
				ArgsUsage: "<symbol> <new-name>",
				Action:    renameCommand,
			},
			{
				Name:      "extract",
				Usage:     "Extract an element id or function body into a new named function",
				ArgsUsage: "<source> <new-name>",
				Action:    extractCommand,
			},
			{
				Name:   "backups",
				Usage:  "List stored backups, newest first",
				Action: backupsCommand,
			},
			{
				Name:      "restore",
				Usage:     "Restore the files recorded in a backup",
				ArgsUsage: "<backup-id>",
				Action:    restoreCommand,
			},
			{
				Name:   "cleanup",
				Usage:  "Prune expired backups per the retention policy",
				Action: cleanupCommand,
			},
			{
				Name:    "mcp",
				Aliases: []string{"serve"},
				Usage:   "Serve the refactoring tools over MCP on stdio",
				Action:  mcpCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		if msg := err.Error(); msg != "" {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func analyzeCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: refract analyze <symbol>")
	}
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	res := eng.AnalyzeSymbol(c.Context, c.Args().Get(0))
	return printResult(res, res.Success)
}

func findCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: refract find <pattern>")
	}
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	res := eng.FindSymbols(c.Context, c.Args().Get(0))
	return printResult(res, res.Success)
}

func showCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: refract show <function>")
	}
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	res := eng.ShowFunction(c.Context, c.Args().Get(0))
	return printResult(res, res.Success)
}

func renameCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: refract rename <symbol> <new-name>")
	}
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	res := eng.RenameSymbol(c.Context, c.Args().Get(0), c.Args().Get(1))
	return printResult(res, res.Success)
}

func extractCommand(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("usage: refract extract <source> <new-name>")
	}
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	res := eng.ExtractElement(c.Context, c.Args().Get(0), c.Args().Get(1))
	return printResult(res, res.Success)
}

func backupsCommand(c *cli.Context) error {
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	backups, err := eng.ListBackups()
	if err != nil {
		return err
	}
	return printResult(map[string]interface{}{
		"success": true,
		"backups": backups,
	}, true)
}

func restoreCommand(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("usage: refract restore <backup-id>")
	}
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	id := c.Args().Get(0)
	if err := eng.RestoreBackup(id); err != nil {
		return err
	}
	return printResult(map[string]interface{}{
		"success":   true,
		"backup_id": id,
	}, true)
}

func cleanupCommand(c *cli.Context) error {
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	removed, err := eng.CleanupBackups()
	if err != nil {
		return err
	}
	return printResult(map[string]interface{}{
		"success": true,
		"removed": removed,
	}, true)
}

func mcpCommand(c *cli.Context) error {
	eng, log, err := newEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()
	defer log.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return mcp.NewServer(eng, log).Run(ctx)
}
