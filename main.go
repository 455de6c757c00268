package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/john/conveyor_client/conveyor"
	"github.com/john/conveyor_client/httpapi"
	"github.com/john/conveyor_client/job"
	"github.com/john/conveyor_client/printer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs after flags are parsed.
type app struct {
	configPath string
	daemonURL  string
	logLevel   string

	cfg *Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "conveyor-client",
		Short:         "Mirror conveyor printers and dispatch print jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to configuration file (.yaml, .toml or .json)")
	root.PersistentFlags().StringVar(&a.daemonURL, "daemon", "", "conveyor websocket URL (overrides config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")

	root.AddCommand(
		a.watchCmd(),
		a.printersCmd(),
		a.printCmd(),
		a.printToFileCmd(),
		a.sliceCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.daemonURL != "" {
		cfg.Daemon.URL = a.daemonURL
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	a.log = newLogger(cfg.Logging)
	return nil
}

func newLogger(cfg LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var l zerolog.Logger
	if cfg.Format == "console" {
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		l = zerolog.New(os.Stderr)
	}
	return l.Level(level).With().Timestamp().Logger()
}

// connect dials the daemon and loads its current printers and jobs.
func (a *app) connect(ctx context.Context, opts ...conveyor.Option) (*conveyor.Client, error) {
	opts = append([]conveyor.Option{
		conveyor.WithLogger(a.log),
		conveyor.WithCallTimeout(a.cfg.CallTimeout()),
	}, opts...)

	client, err := conveyor.Dial(ctx, a.cfg.Daemon.URL, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.Sync(ctx); err != nil {
		// Rejected documents are logged by the client; the rest is usable.
		a.log.Warn().Err(err).Msg("initial sync incomplete")
	}
	return client, nil
}

func (a *app) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Mirror printer state and serve it over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// A rejected document leaves the mirror behind the daemon; resync
			// from the loop below rather than from the read loop.
			resync := make(chan struct{}, 1)
			client, err := a.connect(ctx,
				conveyor.WithPrinterCallback(func(s *printer.State) {
					info := s.Info()
					a.log.Info().
						Str("printer", info.UniqueName).
						Str("status", info.ConnectionStatus.String()).
						Msg("printer state")
				}),
				conveyor.WithJobCallback(func(action job.Action, j *job.Job) {
					d := j.Snapshot()
					a.log.Info().
						Str("action", string(action)).
						Int("job", d.ID).
						Str("state", string(d.State)).
						Str("conclusion", string(d.Conclusion)).
						Msg("job")
				}),
				conveyor.WithUpdateErrorHandler(func(method string, err error) {
					select {
					case resync <- struct{}{}:
					default:
					}
				}),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			srv := httpapi.NewServer(httpapi.Config{Addr: a.cfg.ListenAddr()},
				client.Printers(), client.Jobs(), a.log)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

		loop:
			for {
				select {
				case <-resync:
					if err := client.Sync(ctx); err != nil {
						a.log.Warn().Err(err).Msg("resync after rejected update")
					}
				case <-ctx.Done():
					a.log.Info().Msg("shutting down")
					break loop
				case <-client.Done():
					a.log.Error().Err(client.Err()).Msg("conveyor connection closed")
					break loop
				case err := <-errCh:
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func (a *app) printersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List the printers the daemon reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()

			snaps := client.Printers().Snapshots()
			if len(snaps) == 0 {
				fmt.Println("No printers found.")
				return nil
			}
			fmt.Printf("Found %d printer(s):\n", len(snaps))
			for i, s := range snaps {
				fmt.Printf("  %d. %s (%s, %s) - %s, toolheads: %d\n",
					i+1, s.DisplayName, s.UniqueName, s.MachineName, s.ConnectionStatus, s.NumberOfToolheads)
				for zone, r := range s.Temperature.Tools {
					fmt.Printf("       tool %s: %.1f / %.1f C\n", zone, r.Current, r.Target)
				}
				for zone, r := range s.Temperature.HeatedPlatforms {
					fmt.Printf("       platform %s: %.1f / %.1f C\n", zone, r.Current, r.Target)
				}
			}
			return nil
		},
	}
}

// jobFlags are shared by the dispatch commands.
type jobFlags struct {
	material string
	wait     bool
}

func (f *jobFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.material, "material", "", "material name (defaults to job.default_material)")
	cmd.Flags().BoolVar(&f.wait, "wait", false, "wait for the job to stop")
}

// dispatch looks up the printer, runs fn against it, and reports the job.
func (a *app) dispatch(cmd *cobra.Command, printerName string, f *jobFlags,
	fn func(ctx context.Context, s *printer.State, material string) (*job.Job, error)) error {
	ctx := cmd.Context()
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	s, err := client.Printers().Get(printerName)
	if err != nil {
		return fmt.Errorf("%s: %w", printerName, err)
	}
	material := f.material
	if material == "" {
		material = a.cfg.Job.DefaultMaterial
	}

	j, err := fn(ctx, s, material)
	if err != nil {
		return err
	}
	fmt.Printf("Job %d created on %s\n", j.ID(), printerName)
	if !f.wait {
		return nil
	}

	d, err := j.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Job %d %s\n", d.ID, d.Conclusion)
	if d.Conclusion == job.ConclusionFailed {
		return fmt.Errorf("job %d failed: %s", d.ID, d.Failure)
	}
	return nil
}

func (a *app) printCmd() *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "print <printer> <input>",
		Short: "Print a file on a printer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd, args[0], f, func(ctx context.Context, s *printer.State, material string) (*job.Job, error) {
				return s.Print(ctx, args[1], a.cfg.Job.Slicer, material)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) printToFileCmd() *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "print-to-file <printer> <input> <output>",
		Short: "Write a machine-ready file for a printer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd, args[0], f, func(ctx context.Context, s *printer.State, material string) (*job.Job, error) {
				return s.PrintToFile(ctx, args[1], args[2], a.cfg.Job.Slicer, material)
			})
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) sliceCmd() *cobra.Command {
	f := &jobFlags{}
	cmd := &cobra.Command{
		Use:   "slice <printer> <input> <output>",
		Short: "Slice a model for a printer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd, args[0], f, func(ctx context.Context, s *printer.State, material string) (*job.Job, error) {
				return s.Slice(ctx, args[1], args[2], a.cfg.Job.Slicer, material)
			})
		},
	}
	f.register(cmd)
	return cmd
}
