package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/termenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/szhem/osgi-utils/internal/filter"
	"github.com/szhem/osgi-utils/internal/infrastructure/sqlite"
	"github.com/szhem/osgi-utils/internal/log"
	"github.com/szhem/osgi-utils/internal/metrics"
	"github.com/szhem/osgi-utils/internal/proxy"
	"github.com/szhem/osgi-utils/internal/pubsub"
	"github.com/szhem/osgi-utils/internal/tracker"
	"github.com/szhem/osgi-utils/internal/ui/live"
	"github.com/szhem/osgi-utils/internal/watcher"
)

const defaultWatchFilter = "(objectClass=*)"

var (
	watchFilter      string
	watchPlain       bool
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track the services matching a filter as they come and go",
	Long: `Start a tracking collection over the registry database and show it live.

The database is watched for changes, so services published or withdrawn by
other osgi-utils invocations appear and disappear immediately. With --plain
every change is printed as a line instead: "+ #id interfaces attrs" for an
added service and "- ..." for a removed one.

Keys in the live view:
  s  start or stop tracking
  c  clear the last error
  ?  toggle help
  q  quit

Examples:
  osgi-utils watch --filter '(objectClass=com.acme.Greeter)'
  osgi-utils watch --plain --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchFilter, "filter", "f", defaultWatchFilter,
		"LDAP-style filter selecting the tracked services")
	watchCmd.Flags().BoolVar(&watchPlain, "plain", false,
		"print changes as lines instead of the live view")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address, e.g. :9090")
}

// interactive reports whether cmd draws the live view.
func interactive(cmd *cobra.Command) bool {
	return cmd == watchCmd && !watchPlain
}

func runWatch(cmd *cobra.Command, _ []string) error {
	criterion := filter.Raw(watchFilter)
	if _, err := criterion.Filter(); err != nil {
		return fmt.Errorf("invalid filter: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	if watchMetricsAddr != "" {
		shutdown, err := serveMetrics(watchMetricsAddr, promReg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	reg := newRegistry(m)
	defer reg.Close()

	db, err := sqlite.NewDB(cfg.Registry.DBPath)
	if err != nil {
		return fmt.Errorf("opening registry database: %w", err)
	}
	defer func() { _ = db.Close() }()

	w, err := watcher.New(watcher.Config{DBPath: db.Path(), Debounce: cfg.Watch.Debounce})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	changes, err := w.Watch(ctx)
	if err != nil {
		return fmt.Errorf("watching %s: %w", db.Path(), err)
	}

	// Load what is already stored before tracking starts, then follow.
	pubs, err := db.Publications().Publications(ctx)
	if err != nil {
		return err
	}
	if _, _, err := reg.Sync(ctx, pubs); err != nil {
		return fmt.Errorf("loading publications: %w", err)
	}
	// Runs before reg.Close and db.Close.
	stopFollow := watcher.FollowInBackground(ctx, changes, db.Publications(), reg)
	defer stopFollow()

	col, err := tracker.New(reg, criterion, proxy.Default{},
		tracker.WithBufferSize(cfg.Tracker.BufferSize),
		tracker.WithBackfillConcurrency(cfg.Tracker.BackfillConcurrency),
		tracker.WithMetrics(m),
		tracker.WithTracer(tracer),
	)
	if err != nil {
		return err
	}
	defer col.Close()

	if watchPlain {
		return watchPlainly(ctx, col, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
	return watchLive(ctx, col)
}

func watchLive(ctx context.Context, col *tracker.Collection) error {
	model := live.New(ctx, col)
	if err := col.Start(ctx); err != nil {
		return err
	}

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("running live view: %w", err)
	}
	return nil
}

// watchPlainly prints every change of col until ctx is done. Additions and
// removals are colored when out is a color terminal.
func watchPlainly(ctx context.Context, col *tracker.Collection, w, errOut io.Writer) error {
	out := termenv.NewOutput(w)
	added, removed := out.Color("2"), out.Color("1")

	changes := col.Changes(ctx)
	errs := col.Errors(ctx)
	if err := col.Start(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-changes:
			if !ok {
				return nil
			}
			line := out.String(live.FormatChange(ev)).Foreground(added)
			if ev.Type == pubsub.RemovedEvent {
				line = line.Foreground(removed)
			}
			if _, err := fmt.Fprintln(out, line); err != nil {
				return err
			}
		case ev, ok := <-errs:
			if !ok {
				return nil
			}
			_, _ = fmt.Fprintf(errOut, "error: %v\n", ev.Payload)
		}
	}
}

// serveMetrics serves reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log.SafeGo("watch.metrics", func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorErr(log.CatConfig, "metrics server stopped", err)
		}
	})
	log.Info(log.CatConfig, "serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
