package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/omochice/realm-paint/internal/client"
	"github.com/omochice/realm-paint/internal/compositor"
	"github.com/omochice/realm-paint/internal/config"
	"github.com/omochice/realm-paint/internal/logging"
	"github.com/omochice/realm-paint/internal/metrics"
	"github.com/omochice/realm-paint/internal/realm"
	"github.com/omochice/realm-paint/internal/status"
)

type connectOptions struct {
	configPath  string
	url         string
	name        string
	snapshot    string
	metricsAddr string
	noInput     bool
}

func connectCmd() *cobra.Command {
	var opts connectOptions

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Join a realm server and keep the connection alive",
		Long: `Connect to a realm server, apply its updates to a local copy of the realm and
reconnect whenever the socket drops. Commands typed on stdin are sent to the
server; type "help" for the list. Interrupt to exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("url") {
				cfg.Server.URL = opts.url
			}
			if cmd.Flags().Changed("name") {
				cfg.Identity.Name = opts.name
			}
			if cmd.Flags().Changed("metrics") {
				cfg.Metrics.Listen = opts.metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runConnect(ctx, cfg, opts, cmd.InOrStdin(), cmd.OutOrStdout(), logging.ConfigureRuntime())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to a TOML config file")
	cmd.Flags().StringVar(&opts.url, "url", config.DefaultURL, "Server websocket URL")
	cmd.Flags().StringVar(&opts.name, "name", "", "Display name sent with cursor positions")
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Write the composite image as PNG to this path on exit")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics", "", "Serve prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.noInput, "no-input", false, "Do not read commands from stdin")

	return cmd
}

func runConnect(ctx context.Context, cfg config.Config, opts connectOptions, in io.Reader, out io.Writer, log zerolog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	comp := compositor.New(compositor.WithCursorRadius(cfg.Render.CursorRadius))
	session := realm.NewSession(realm.WithRenderer(comp), realm.WithLogger(log))
	mt := metrics.New()

	m := client.New(cfg,
		client.WithSession(session),
		client.WithMetrics(mt),
		client.WithLogger(log),
		client.OnIndicator(func(i client.Indicator) {
			log.Info().Stringer("indicator", i).Msg("connection indicator")
		}),
	)

	if cfg.Metrics.Listen != "" {
		srv := serveMetrics(cfg.Metrics.Listen, mt, log)
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if !opts.noInput {
		go func() {
			if readCommands(ctx, in, out, m) {
				cancel()
			}
		}()
	}

	log.Info().Str("url", cfg.Server.URL).Str("name", m.Name()).Msg("starting client")
	runErr := m.Run(ctx)

	log.Info().
		Float64("frames", metrics.Sum(mt.FramesReceived)).
		Float64("dropped", metrics.Sum(mt.FramesDropped)).
		Float64("sent", metrics.Sum(mt.Sent)).
		Float64("reconnects", metrics.Value(mt.Reconnects)).
		Uint64("renders", comp.Frames()).
		Msg("client stopped")

	if opts.snapshot != "" {
		if err := writeSnapshot(opts.snapshot, comp); err != nil {
			return errors.Join(runErr, err)
		}
		log.Info().Str("path", opts.snapshot).Msg("snapshot written")
	}
	return runErr
}

func serveMetrics(addr string, mt *metrics.Metrics, log zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", mt.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
	return srv
}

type consoleClient interface {
	sender
	Indicator() client.Indicator
	LastStatus() string
	URL() string
	Name() string
	Session() *realm.Session
}

// readCommands runs console lines against m until input ends or ctx is
// done. It reports whether the user asked to quit.
func readCommands(ctx context.Context, in io.Reader, out io.Writer, m consoleClient) bool {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return false
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "help", "?":
			fmt.Fprintln(out, consoleHelp)
			continue
		case "status":
			printStatus(out, m)
			continue
		}

		act, err := parseCommand(line)
		if errors.Is(err, errQuit) {
			return true
		}
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if act == nil {
			continue
		}
		if err := act(ctx, m); err != nil {
			fmt.Fprintln(out, err)
		}
	}
	return false
}

func printStatus(out io.Writer, m consoleClient) {
	data, err := statusJSON(m)
	if err != nil {
		fmt.Fprintln(out, err)
		return
	}
	fmt.Fprintln(out, string(data))
}

func statusJSON(m consoleClient) ([]byte, error) {
	s, err := status.Snapshot(status.Connection{
		URL:       m.URL(),
		Indicator: m.Indicator().String(),
		Status:    m.LastStatus(),
		Name:      m.Name(),
	}, m.Session().View())
	if err != nil {
		return nil, err
	}
	return status.Marshal(s, true)
}

func writeSnapshot(path string, comp *compositor.Compositor) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	if err := comp.WritePNG(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return f.Close()
}
