package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tangled/internal/learn"
	"tangled/internal/scape"
	"tangled/internal/telemetry"
	"tangled/pkg/tangled"
)

// app holds the persistent flags and what PersistentPreRunE builds from them.
type app struct {
	stdout, stderr io.Writer

	storeKind    string
	storePath    string
	artifactsDir string
	exportsDir   string
	logLevel     string
	logFile      string

	level     slog.LevelVar
	log       *slog.Logger
	logCloser io.Closer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:           "tangledctl",
		Short:         "Train and inspect tangled program graphs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			lvl, err := parseLevel(a.logLevel)
			if err != nil {
				return err
			}
			a.level.Set(lvl)
			a.log, a.logCloser, err = newLogger(a.stderr, &a.level, a.logFile)
			return err
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.logCloser == nil {
				return nil
			}
			return a.logCloser.Close()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&a.storeKind, "store", "badger", "store backend: memory|sqlite|badger")
	flags.StringVar(&a.storePath, "store-path", "", "sqlite database file or badger directory")
	flags.StringVar(&a.artifactsDir, "artifacts-dir", "runs", "directory receiving run artifacts")
	flags.StringVar(&a.exportsDir, "exports-dir", "exports", "default export destination")
	flags.StringVar(&a.logLevel, "log-level", "info", "debug|info|warn|error")
	flags.StringVar(&a.logFile, "log-file", "", "also append JSON logs to this file")

	root.AddCommand(
		a.runCmd(),
		a.runsCmd(),
		a.diagnosticsCmd(),
		a.exportCmd(),
		a.replayCmd(),
		a.compareCmd(),
		a.scapesCmd(),
	)
	return root
}

func (a *app) client() (*tangled.Client, error) {
	return tangled.New(tangled.Options{
		StoreKind:    a.storeKind,
		StorePath:    a.storePath,
		ArtifactsDir: a.artifactsDir,
		ExportsDir:   a.exportsDir,
		Logger:       a.log,
	})
}

func (a *app) withClient(ctx context.Context, fn func(context.Context, *tangled.Client) error) error {
	client, err := a.client()
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	return fn(ctx, client)
}

func (a *app) runCmd() *cobra.Command {
	var (
		scapeName   string
		agent       string
		paramsFile  string
		generations uint64
		workers     int
		seed        uint64
		validate    bool
		metricsAddr string
		jsonOut     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Train a graph on a scape and store the run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := learn.DefaultParameters()
			if paramsFile != "" {
				var err error
				if params, err = learn.LoadParameters(paramsFile); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("validate") {
				params.DoValidation = validate
			}

			out := a.stdout
			if jsonOut {
				out = io.Discard
			}
			rep := newReporter(out, params.DoValidation)
			hooks := rep.hooks()
			if metricsAddr != "" {
				metrics, stop, err := a.serveMetrics(metricsAddr)
				if err != nil {
					return err
				}
				defer stop()
				hooks = append(hooks, metrics)
			}

			return a.withClient(cmd.Context(), func(ctx context.Context, client *tangled.Client) error {
				summary, err := client.Run(ctx, tangled.RunRequest{
					Scape:       scapeName,
					Agent:       agent,
					Params:      &params,
					Generations: generations,
					Workers:     workers,
					Seed:        seed,
					Hooks:       hooks,
					Progress:    rep.progress,
				})
				if ferr := rep.finish(); err == nil && ferr != nil {
					err = ferr
				}
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(a.stdout, summary)
				}
				fmt.Fprintf(a.stdout, "run completed run_id=%s agent=%s generations=%d best=%.6f interrupted=%t artifacts=%s\n",
					summary.RunID, summary.Agent, summary.Generations, summary.BestScore, summary.Interrupted, summary.ArtifactsDir)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&scapeName, "scape", "cart-pole-lite", "scape name ("+strings.Join(scape.Names(), "|")+")")
	f.StringVar(&agent, "agent", "", "sequential|parallel|adversarial|continuous (default: picked from the scape)")
	f.StringVar(&paramsFile, "params", "", "YAML parameters file")
	f.Uint64Var(&generations, "generations", 0, "override nbGenerations")
	f.IntVar(&workers, "workers", 0, "override nbThreads")
	f.Uint64Var(&seed, "seed", 0, "training seed")
	f.BoolVar(&validate, "validate", false, "evaluate the roots in validation mode after each generation")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while training")
	f.BoolVar(&jsonOut, "json", false, "emit the run summary as JSON")
	return cmd
}

// serveMetrics exposes a fresh metrics hook over HTTP until stop is called.
func (a *app) serveMetrics(addr string) (*telemetry.Metrics, func(), error) {
	metrics, err := telemetry.New(telemetry.DefaultConfig())
	if err != nil {
		return nil, nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	a.log.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return metrics, stop, nil
}

func (a *app) runsCmd() *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			return a.withClient(cmd.Context(), func(ctx context.Context, client *tangled.Client) error {
				runs, err := client.Runs(ctx, tangled.RunsRequest{Limit: limit})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(a.stdout, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(a.stdout, "no runs found")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintf(a.stdout, "run_id=%s created_at=%s scape=%s agent=%s seed=%d generations=%d best=%.6f interrupted=%t\n",
						r.RunID, r.CreatedAtUTC.Format(time.RFC3339), r.Scape, r.Agent, r.Seed, r.Generations, r.BestScore, r.Interrupted)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit runs as JSON")
	return cmd
}

func addRunRefFlags(cmd *cobra.Command, ref *tangled.RunRef) {
	cmd.Flags().StringVar(&ref.RunID, "run-id", "", "run id")
	cmd.Flags().BoolVar(&ref.Latest, "latest", false, "use the most recent run")
	cmd.MarkFlagsMutuallyExclusive("run-id", "latest")
	cmd.MarkFlagsOneRequired("run-id", "latest")
}

func (a *app) diagnosticsCmd() *cobra.Command {
	var (
		ref     tangled.RunRef
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Show the per-generation diagnostics of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(ctx context.Context, client *tangled.Client) error {
				diagnostics, err := client.Diagnostics(ctx, tangled.DiagnosticsRequest{RunRef: ref, Limit: limit})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(a.stdout, diagnostics)
				}
				if len(diagnostics) == 0 {
					fmt.Fprintln(a.stdout, "no diagnostics")
					return nil
				}
				for _, d := range diagnostics {
					fmt.Fprintf(a.stdout, "generation=%d vertices=%d teams=%d roots=%d edges=%d min=%.6f mean=%.6f max=%.6f",
						d.Generation, d.NbVertices, d.NbTeams, d.NbRoots, d.NbEdges, d.MinScore, d.MeanScore, d.MaxScore)
					if d.ValidationScore != nil {
						fmt.Fprintf(a.stdout, " validation=%.6f", *d.ValidationScore)
					}
					fmt.Fprintf(a.stdout, " total_ms=%d\n", d.TotalMS)
				}
				return nil
			})
		},
	}
	addRunRefFlags(cmd, &ref)
	cmd.Flags().IntVar(&limit, "limit", 50, "max generations to print (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit diagnostics as JSON")
	return cmd
}

func (a *app) exportCmd() *cobra.Command {
	var (
		ref    tangled.RunRef
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy the artifacts of a run to an export directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withClient(cmd.Context(), func(ctx context.Context, client *tangled.Client) error {
				exported, err := client.Export(ctx, tangled.ExportRequest{RunRef: ref, OutDir: outDir})
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
				return nil
			})
		},
	}
	addRunRefFlags(cmd, &ref)
	cmd.Flags().StringVar(&outDir, "out", "", "destination directory (default: --exports-dir)")
	return cmd
}

func (a *app) replayCmd() *cobra.Command {
	var (
		ref        tangled.RunRef
		mode       string
		iterations uint64
		maxActions uint64
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Play the stored best policy of a run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := parseMode(mode)
			if err != nil {
				return err
			}
			return a.withClient(cmd.Context(), func(ctx context.Context, client *tangled.Client) error {
				replay, err := client.Replay(ctx, tangled.ReplayRequest{
					RunRef:     ref,
					Mode:       m,
					Iterations: iterations,
					MaxActions: maxActions,
				})
				if err != nil {
					return err
				}
				for i, s := range replay.Scores {
					fmt.Fprintf(a.stdout, "iteration=%d score=%.6f\n", i, s)
				}
				fmt.Fprintf(a.stdout, "run_id=%s mode=%s mean=%.6f\n", replay.RunID, m, replay.Mean)
				return nil
			})
		},
	}
	addRunRefFlags(cmd, &ref)
	cmd.Flags().StringVar(&mode, "mode", "testing", "training|validation|testing")
	cmd.Flags().Uint64Var(&iterations, "iterations", 0, "episodes to play (default: nbIterationsPerPolicyEvaluation of the run)")
	cmd.Flags().Uint64Var(&maxActions, "max-actions", 0, "actions per episode (default: maxNbActionsPerEval of the run)")
	return cmd
}

func (a *app) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare RUN_ID...",
		Short: "Aggregate the best-so-far score curves of several runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withClient(cmd.Context(), func(ctx context.Context, client *tangled.Client) error {
				curve, err := client.Compare(ctx, args)
				if err != nil {
					return err
				}
				for _, p := range curve {
					fmt.Fprintf(a.stdout, "generation=%d runs=%d mean=%.6f std=%.6f max=%.6f\n",
						p.Generation, p.Runs, p.Mean, p.Std, p.Max)
				}
				return nil
			})
		},
	}
}

func (a *app) scapesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scapes",
		Short: "List the built-in scapes",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			for _, name := range scape.Names() {
				env, kind, err := scape.New(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "%s kind=%s actions=%d\n", name, kind, env.NbActions())
			}
			return nil
		},
	}
}

func parseMode(name string) (learn.Mode, error) {
	for _, m := range []learn.Mode{learn.Training, learn.Validation, learn.Testing} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode: %s", name)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
