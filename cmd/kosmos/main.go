// Command kosmos is a thin CLI for operating on a kosmos world model: the
// `graph` subcommand exposes the operator-facing corners of §4.9's
// export/import codec and §4.2's statistics query directly, without
// requiring a running research director. The director loop itself is a
// library (pkg/director) meant to be embedded by a host process, not driven
// from this CLI — spec.md places a REST/RPC control surface out of scope.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kosmos-research/kosmos/internal/config"
	"github.com/kosmos-research/kosmos/internal/health"
	"github.com/kosmos-research/kosmos/pkg/relstore"
	"github.com/kosmos-research/kosmos/pkg/worldmodel"
	"github.com/kosmos-research/kosmos/pkg/worldmodel/facade"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}

	switch args[0] {
	case "graph":
		return runGraph(args[1:])
	case "serve":
		return runServe(args[1:])
	case "help", "-h", "--help":
		usage()
		return 0
	default:
		fmt.Fprintf(os.Stderr, "kosmos: unknown command %q\n", args[0])
		usage()
		return 1
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: kosmos graph [flags]
       kosmos serve [flags]

graph flags:
  -config string
        path to the YAML configuration file (default "config.yaml")
  -stats
        print entity/relationship counts and exit
  -export string
        export the world model to the given file path
  -import string
        import the world model from the given file path
  -replace
        with -import, reset the target project before loading (default: merge)
  -project string
        scope -stats/-export/-import/-reset to a single project
  -reset
        delete every entity and relationship in -project (requires -project)

serve flags:
  -config string
        path to the YAML configuration file (default "config.yaml")

serve starts the ambient /healthz and /readyz HTTP surface (§4.10) on
server.listen_addr; it does not itself drive a research loop, since the
director is a library meant to be embedded by a host process.`)
}

func runGraph(args []string) int {
	fs := flag.NewFlagSet("graph", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	stats := fs.Bool("stats", false, "print entity/relationship counts and exit")
	exportPath := fs.String("export", "", "export the world model to the given file path")
	importPath := fs.String("import", "", "import the world model from the given file path")
	replace := fs.Bool("replace", false, "with -import, reset the target project before loading")
	project := fs.String("project", "", "scope the operation to a single project")
	reset := fs.Bool("reset", false, "delete every entity and relationship in -project")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kosmos: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kosmos: %v\n", err)
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wm, err := facade.GetWorldModel(ctx, toFacadeConfig(cfg.WorldModel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kosmos: building world model: %v\n", err)
		return 1
	}
	if wm.Degraded() {
		slog.Warn("world model is running in degraded mode; graph operations are no-ops", "config", *configPath)
	}

	switch {
	case *reset:
		if *project == "" {
			fmt.Fprintln(os.Stderr, "kosmos: -reset requires -project to avoid an accidental global wipe")
			return 1
		}
		if err := wm.Reset(ctx, *project, true); err != nil {
			fmt.Fprintf(os.Stderr, "kosmos: reset: %v\n", err)
			return 1
		}
		fmt.Printf("reset project %q\n", *project)
		return 0

	case *exportPath != "":
		if err := wm.ExportGraph(ctx, *exportPath, *project); err != nil {
			fmt.Fprintf(os.Stderr, "kosmos: export: %v\n", err)
			return 1
		}
		fmt.Printf("exported to %s\n", *exportPath)
		return 0

	case *importPath != "":
		mode := worldmodel.ImportMerge
		if *replace {
			mode = worldmodel.ImportReplace
		}
		n, err := wm.ImportGraph(ctx, *importPath, *project, mode)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kosmos: import: %v\n", err)
			return 1
		}
		fmt.Printf("imported %d entities from %s (mode=%s)\n", n, *importPath, mode)
		return 0

	case *stats:
		s, err := wm.GetStatistics(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "kosmos: stats: %v\n", err)
			return 1
		}
		printStatistics(s)
		return 0

	default:
		usage()
		return 1
	}
}

// runServe starts the liveness/readiness HTTP surface (§4.10). The
// relational store and world-model facade are the two dependencies a host
// process needs alive before it can embed a [pkg/director.Director]; readyz
// reports both.
func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kosmos: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kosmos: %v\n", err)
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	relStore, err := relstore.NewPGStore(ctx, cfg.Relational.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kosmos: connecting to relational store: %v\n", err)
		return 1
	}
	defer relStore.Close()

	wm, err := facade.GetWorldModel(ctx, toFacadeConfig(cfg.WorldModel))
	if err != nil {
		fmt.Fprintf(os.Stderr, "kosmos: building world model: %v\n", err)
		return 1
	}

	handler := health.New(
		health.Checker{Name: "relational_store", Check: func(ctx context.Context) error {
			session, err := relStore.GetSession(ctx)
			if err != nil {
				return err
			}
			session.Close()
			return nil
		}},
		health.Checker{Name: "world_model", Check: func(ctx context.Context) error {
			_, err := wm.GetStatistics(ctx)
			return err
		}},
	)

	mux := http.NewServeMux()
	handler.Register(mux)
	srv := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("kosmos: serving health endpoints", "addr", cfg.Server.ListenAddr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "kosmos: shutdown: %v\n", err)
			return 1
		}
		return 0
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "kosmos: serve: %v\n", err)
			return 1
		}
		return 0
	}
}

func toFacadeConfig(wm config.WorldModelConfig) facade.Config {
	return facade.Config{
		Enabled: wm.Enabled,
		Mode:    string(wm.Mode),
		Project: wm.Project,
		Graph: facade.GraphConfig{
			URI:      wm.Graph.URI,
			User:     wm.Graph.User,
			Password: wm.Graph.Password,
			Database: wm.Graph.Database,
		},
		SimilarityThreshold: wm.SimilarityThreshold,
	}
}

func printStatistics(s worldmodel.Statistics) {
	fmt.Printf("entities:      %d\n", s.EntityCount)
	fmt.Printf("relationships: %d\n", s.RelationshipCount)
	if len(s.Projects) > 0 {
		fmt.Printf("projects:      %v\n", s.Projects)
	}
	for t, count := range s.EntityCountByType {
		fmt.Printf("  %-20s %d\n", t, count)
	}
}
