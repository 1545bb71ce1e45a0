// Package main is the entry point for sdrvault-ctl, the operator tool that
// runs catalog and staging operations against a configured deployment
// without going through the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sdrvault/sdrvault/internal/catalog"
	"github.com/sdrvault/sdrvault/internal/config"
	"github.com/sdrvault/sdrvault/internal/lock"
	"github.com/sdrvault/sdrvault/internal/logging"
	"github.com/sdrvault/sdrvault/internal/stage"
	"github.com/sdrvault/sdrvault/internal/storage"
	"github.com/sdrvault/sdrvault/internal/window"
)

const usage = `Usage: sdrvault-ctl <command> [flags] [args]

Commands:
  files <date> [freq]                 list recording keys
  freqs <date>                        list frequencies recorded on a date
  prepare <start> <duration> [freq]   stage a time window into a new workspace
  clear [id]                          remove one workspace, or all of them
  prune <age>                         remove workspaces older than age (e.g. 24h)
  import <dir>                        upload a local recording tree (sqlite, local)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	commands := map[string]func([]string) int{
		"files":   runFiles,
		"freqs":   runFreqs,
		"prepare": runPrepare,
		"clear":   runClear,
		"prune":   runPrune,
		"import":  runImport,
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n%s", os.Args[1], usage)
		os.Exit(1)
	}
	os.Exit(cmd(os.Args[2:]))
}

// env is the core wired from a config file.
type env struct {
	cfg     *config.Config
	gateway storage.Gateway
	catalog *catalog.Service
	stage   *stage.Manager
	close   func()
}

// parse parses the common flags of a subcommand and returns its positional
// arguments, or exits with a usage error when their count is out of range.
func parse(name string, args []string, minArgs, maxArgs int) (*string, []string) {
	flags := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := flags.String("config", "sdrvault.yaml", "Config file path")
	flags.Parse(args)
	rest := flags.Args()
	if len(rest) < minArgs || len(rest) > maxArgs {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	return configPath, rest
}

func openEnv(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	gw, err := storage.Open(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, gateway: gw, close: func() {}}
	if c, ok := gw.(io.Closer); ok {
		e.close = func() { c.Close() }
	}
	e.catalog = catalog.New(gw, cfg.Bucket(), logger)
	e.stage, err = stage.NewManager(cfg.Staging.RootDir, gw, e.catalog, logger)
	if err != nil {
		e.close()
		return nil, err
	}
	return e, nil
}

// withEnv opens the environment, runs fn and prints its result as YAML.
func withEnv(configPath string, fn func(context.Context, *env) (any, error)) int {
	ctx := context.Background()
	e, err := openEnv(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer e.close()

	result, err := fn(ctx, e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing output: %v\n", err)
		return 1
	}
	return 0
}

// exclusive runs fn while holding the staging root lock, so workspaces are
// never removed under a running server.
func exclusive(e *env, fn func() (any, error)) (any, error) {
	l, err := lock.Acquire(lock.PathFor(e.cfg.Staging.RootDir))
	if err != nil {
		return nil, fmt.Errorf("staging root is in use (stop the server first): %w", err)
	}
	defer l.Release()
	return fn()
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func runFiles(args []string) int {
	configPath, rest := parse("files", args, 1, 2)
	return withEnv(*configPath, func(ctx context.Context, e *env) (any, error) {
		keys, err := e.catalog.ListFiles(ctx, rest[0], optional(rest, 1))
		return map[string]any{"Items": keys}, err
	})
}

func runFreqs(args []string) int {
	configPath, rest := parse("freqs", args, 1, 1)
	return withEnv(*configPath, func(ctx context.Context, e *env) (any, error) {
		freqs, err := e.catalog.ListFrequencies(ctx, rest[0])
		return map[string]any{"Items": freqs}, err
	})
}

func runPrepare(args []string) int {
	configPath, rest := parse("prepare", args, 2, 3)
	return withEnv(*configPath, func(ctx context.Context, e *env) (any, error) {
		minutes, err := strconv.Atoi(rest[1])
		if err != nil {
			return nil, fmt.Errorf("duration %q is not an integer", rest[1])
		}
		w, err := window.New(rest[0], minutes, optional(rest, 2))
		if err != nil {
			return nil, err
		}
		ws, err := e.stage.Prepare(ctx, w, e.catalog.Bucket())
		if err != nil {
			if ws.ID != "" {
				return nil, fmt.Errorf("workspace %s left partially staged: %w", ws.ID, err)
			}
			return nil, err
		}
		return map[string]any{"uuid": ws.ID, "dir": ws.Dir, "Items": ws.Manifest}, nil
	})
}

func runClear(args []string) int {
	configPath, rest := parse("clear", args, 0, 1)
	return withEnv(*configPath, func(ctx context.Context, e *env) (any, error) {
		return exclusive(e, func() (any, error) {
			if id := optional(rest, 0); id != "" {
				if err := e.stage.Clear(ctx, id); err != nil {
					return nil, err
				}
				return map[string]any{"cleared": []string{id}}, nil
			}
			n, err := e.stage.ClearAll(ctx)
			return map[string]any{"removed": n}, err
		})
	})
}

func runPrune(args []string) int {
	configPath, rest := parse("prune", args, 1, 1)
	return withEnv(*configPath, func(ctx context.Context, e *env) (any, error) {
		age, err := time.ParseDuration(rest[0])
		if err != nil {
			return nil, fmt.Errorf("invalid age %q: %w", rest[0], err)
		}
		return exclusive(e, func() (any, error) {
			n, err := e.stage.Cleanup(ctx, age)
			return map[string]any{"removed": n}, err
		})
	})
}

// runImport uploads every regular file under dir, keyed by its slash-separated
// path relative to dir with a leading "/", e.g. /2020-02-10/b/x.ogg.
func runImport(args []string) int {
	configPath, rest := parse("import", args, 1, 1)
	return withEnv(*configPath, func(ctx context.Context, e *env) (any, error) {
		up, ok := e.gateway.(storage.Uploader)
		if !ok {
			return nil, fmt.Errorf("storage backend %q does not accept uploads", e.cfg.Storage.Backend)
		}
		root := rest[0]
		bucket := e.cfg.Bucket()
		count, total := 0, int64(0)
		err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || storage.IsTempName(d.Name()) {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			f, err := os.Open(p)
			if err != nil {
				return err
			}
			defer f.Close()
			key := "/" + filepath.ToSlash(rel)
			n, err := up.PutObject(ctx, bucket, key, f)
			if err != nil {
				return fmt.Errorf("uploading %s: %w", key, err)
			}
			slog.Debug("imported", "key", key, "bytes", n)
			count++
			total += n
			return nil
		})
		return map[string]any{"imported": count, "bytes": total, "bucket": bucket}, err
	})
}
