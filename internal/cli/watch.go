package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tOgg1/chatsync/internal/logging"
	"github.com/tOgg1/chatsync/internal/metrics"
	"github.com/tOgg1/chatsync/internal/portal"
	"github.com/tOgg1/chatsync/internal/unread"
)

var watchMetricsAddr string

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the unread badge",
	Long: `Poll the portal like the sidebar and inbox do and print the unread
badge whenever it changes. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, os.Stdout)
	},
}

type badgeEvent struct {
	At     time.Time `json:"at"`
	Total  int       `json:"total"`
	Groups int       `json:"groups"`
	Direct int       `json:"direct"`
}

func runWatch(ctx context.Context, out io.Writer) error {
	logger := logging.Component("watch")
	m := metrics.New()

	addr := watchMetricsAddr
	if addr == "" && appConfig != nil {
		addr = appConfig.Metrics.Addr
	}
	if addr != "" {
		srv := &http.Server{Addr: addr, Handler: metricsMux(m), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info().Str("addr", addr).Msg("serving metrics")
	}

	s, err := openSession(ctx, m)
	if err != nil {
		return err
	}
	defer s.Close()

	sidebar := s.NewSidebar(portal.SidebarExpanded)
	events := make(chan unread.Breakdown, 16)
	removeListener := sidebar.OnBadge(func(int) {
		select {
		case events <- sidebar.Breakdown():
		default:
		}
	})
	defer removeListener()

	if err := sidebar.Mount(ctx); err != nil {
		return err
	}
	defer sidebar.Unmount()

	inbox := s.NewInbox()
	if err := inbox.Mount(ctx); err != nil {
		return err
	}
	defer inbox.Unmount()

	if err := printBadge(out, sidebar.Breakdown()); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case b := <-events:
			if err := printBadge(out, b); err != nil {
				return err
			}
		}
	}
}

func printBadge(out io.Writer, b unread.Breakdown) error {
	if IsJSONOutput() || IsJSONLOutput() {
		return json.NewEncoder(out).Encode(badgeEvent{At: time.Now().UTC(), Total: b.Total, Groups: b.Groups, Direct: b.Direct})
	}
	_, err := fmt.Fprintf(out, "%s  unread %d  (groups %d, direct %d)\n", time.Now().Format("15:04:05"), b.Total, b.Groups, b.Direct)
	return err
}

func metricsMux(m *metrics.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok\n")
	})
	return mux
}
