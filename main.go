package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harrisonrobin/trashtasker/pkg/auth"
	"github.com/harrisonrobin/trashtasker/pkg/config"
	"github.com/harrisonrobin/trashtasker/pkg/google"
	"github.com/harrisonrobin/trashtasker/pkg/logging"
	"github.com/harrisonrobin/trashtasker/pkg/push"
	"github.com/harrisonrobin/trashtasker/pkg/reconcile"
	"github.com/harrisonrobin/trashtasker/pkg/server"
	"github.com/harrisonrobin/trashtasker/pkg/service"
	"github.com/harrisonrobin/trashtasker/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:          "trashtasker",
		Short:        "Task store with Google Tasks push and pull sync",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")

	root.AddCommand(
		newServeCmd(&logLevel),
		newPullCmd(&logLevel),
		newSweepCmd(&logLevel),
		newListsCmd(),
		newAuthCmd(),
		newSetListCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

// app holds the wired components shared by serve and pull.
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
	store  store.Store
	queue  *push.Queue
	tasks  *service.Tasks
}

func newApp(ctx context.Context, logLevel string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  50,
		MaxBackups: 3,
		JSON:       cfg.Log.JSON,
	})

	s, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return nil, err
	}

	providers := google.TasksFactory()
	prop := push.NewPropagator(providers, s, cfg.Google.DefaultList, logger)
	if cfg.Google.Calendar != "" {
		calendars := google.CalendarFactory(cfg.Google.Calendar)
		prop.WithMirror(func(ctx context.Context, credential string) (push.Mirror, error) {
			c, err := calendars(ctx, credential)
			if err != nil {
				return nil, err
			}
			return c, nil
		})
	}
	queue := push.NewQueue(prop, cfg.Push.Workers, cfg.Push.QueueSize, cfg.Push.Timeout, logger)
	tasks := service.New(s, queue, reconcile.New(s, logger), providers, logger)

	return &app{cfg: cfg, logger: logger, store: s, queue: queue, tasks: tasks}, nil
}

func (a *app) close() {
	a.queue.Close()
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("could not close store")
	}
}

func newServeCmd(logLevel *string) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, *logLevel)
			if err != nil {
				return err
			}
			defer a.close()
			if listen != "" {
				a.cfg.Listen = listen
			}

			srv := &http.Server{
				Addr:              a.cfg.Listen,
				Handler:           server.New(a.tasks, a.logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.WithField("addr", a.cfg.Listen).Info("trashtasker listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				a.logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides config)")
	return cmd
}

func newPullCmd(logLevel *string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Run one pull reconciliation with the cached Google token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *logLevel)
			if err != nil {
				return err
			}
			defer a.close()

			token, err := auth.CachedAccessToken(ctx)
			if err != nil {
				return err
			}
			res, err := a.tasks.Reconcile(ctx, owner, token)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", os.Getenv("USER"), "Owner id the pulled tasks belong to")
	return cmd
}

func newSweepCmd(logLevel *string) *cobra.Command {
	var owner string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Mark overdue tasks on the mirrored calendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *logLevel)
			if err != nil {
				return err
			}
			defer a.close()

			token, err := auth.CachedAccessToken(ctx)
			if err != nil {
				return err
			}
			n, err := a.tasks.SweepOverdue(ctx, owner, token)
			if err != nil {
				return err
			}
			a.queue.Drain()
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %d overdue task(s), %d failure(s)\n", n, len(a.queue.Failures()))
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", os.Getenv("USER"), "Owner id whose tasks are swept")
	return cmd
}

func newListsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lists",
		Short: "Show the remote task lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			token, err := auth.CachedAccessToken(ctx)
			if err != nil {
				return err
			}
			p, err := google.TasksFactory()(ctx, token)
			if err != nil {
				return err
			}
			lists, err := p.ListTaskLists(ctx)
			if err != nil {
				return err
			}
			for _, l := range lists {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", l.ID, l.Title)
			}
			return nil
		},
	}
}

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize with Google and cache the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := auth.RemoveToken(); err != nil {
				return err
			}
			if _, err := auth.GetClient(cmd.Context(), auth.Scopes); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", auth.TokenFile)
			return nil
		},
	}
}

func newSetListCmd() *cobra.Command {
	var calendarName string
	cmd := &cobra.Command{
		Use:   "set-list <list-id>",
		Short: "Set the default remote task list for new tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.Google.DefaultList = args[0]
			if cmd.Flags().Changed("calendar") {
				cfg.Google.Calendar = calendarName
			}
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default task list set to: %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&calendarName, "calendar", "", "Also mirror due tasks to this calendar (empty disables)")
	return cmd
}
