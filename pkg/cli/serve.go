package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getmockd/audittrail/pkg/config"
	"github.com/getmockd/audittrail/pkg/trail"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

// Serve defaults.
const (
	DefaultListen          = ":8090"
	DefaultShutdownTimeout = 10 * time.Second
)

type serveOptions struct {
	listen          string
	upstream        string
	watch           bool
	maxConns        int
	shutdownTimeout time.Duration

	// ready is called with the bound address once the server accepts
	// connections.
	ready func(addr string)
	// runWatcher runs the config watcher; nil runs w.Run.
	runWatcher func(ctx context.Context, w *config.Watcher) error
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	so := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the audit trail in front of an automation server",
		Long: `Run the audit trail as an HTTP server.

Requests under /_audit are the trail's own API (health, configuration,
pattern updates, build events). Every other request is audited against the
configured pattern and forwarded to --upstream. Without --upstream the
request is only audited and answered with 204 No Content.

With --watch the configuration file and its include fragments are reloaded
when they change. Pattern updates made through the API are saved back to
the configuration file.`,
		Example: `  audittrail serve -c audit.yaml --upstream http://localhost:8080
  audittrail serve -c audit.yaml --listen 127.0.0.1:9000 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, so, log)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&so.listen, "listen", DefaultListen, "Address to listen on")
	flags.StringVar(&so.upstream, "upstream", "", "Base URL requests are forwarded to after auditing")
	flags.BoolVar(&so.watch, "watch", false, "Reload the configuration when the file changes")
	flags.IntVar(&so.maxConns, "max-conns", 0, "Maximum simultaneous connections (0 = unlimited)")
	flags.DurationVar(&so.shutdownTimeout, "shutdown-timeout", DefaultShutdownTimeout, "Grace period for in-flight requests on shutdown")
	return cmd
}

func runServe(ctx context.Context, opts *rootOptions, so *serveOptions, log *slog.Logger) error {
	if so.watch && opts.configPath == "" {
		return fmt.Errorf("--watch needs a configuration file: %w", ErrNoConfig)
	}

	cfg, err := opts.loadConfig(true)
	if err != nil {
		return err
	}

	upstream, err := upstreamHandler(so.upstream, log)
	if err != nil {
		return err
	}

	trailOpts := []trail.Option{trail.WithLogger(log)}
	if opts.configPath != "" {
		trailOpts = append(trailOpts, trail.WithConfigPath(opts.configPath))
	}
	t, err := trail.New(cfg, trailOpts...)
	if err != nil {
		return err
	}
	defer t.Close()
	if err := t.Start(); err != nil {
		log.Warn("some audit backends failed to configure, they retry on the next event", "error", err)
	}

	ln, err := net.Listen("tcp", so.listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", so.listen, err)
	}
	if so.maxConns > 0 {
		ln = netutil.LimitListener(ln, so.maxConns)
	}

	srv := &http.Server{
		Handler:           t.Server(upstream),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("audit trail listening", "addr", ln.Addr().String(), "upstream", so.upstream)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})

	if so.watch {
		w, err := config.NewWatcher(config.DefaultDebounce, func(ev config.ChangeEvent) {
			log.Info("configuration changed, reloading", "path", ev.Path, "op", ev.Op)
			if err := t.Reload(opts.configPath); err != nil {
				log.Error("configuration reload failed, keeping the running configuration", "error", err)
			}
		})
		if err != nil {
			_ = ln.Close()
			return err
		}
		w.OnError(func(err error) {
			log.Error("config watcher error", "error", err)
		})
		if err := w.WatchConfig(opts.configPath, cfg); err != nil {
			_ = ln.Close()
			return err
		}
		run := so.runWatcher
		if run == nil {
			run = func(ctx context.Context, w *config.Watcher) error { return w.Run(ctx) }
		}
		g.Go(func() error {
			// A failed watcher only stops reloads; the server keeps running.
			if err := run(gctx, w); err != nil {
				log.Error("config watcher stopped, reloads disabled", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), so.shutdownTimeout)
		defer cancel()
		log.Info("shutting down audit trail")
		return srv.Shutdown(shutdownCtx)
	})

	if so.ready != nil {
		so.ready(ln.Addr().String())
	}
	return g.Wait()
}

// upstreamHandler proxies to rawURL, or answers 204 when rawURL is empty.
func upstreamHandler(rawURL string, log *slog.Logger) (http.Handler, error) {
	if rawURL == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), nil
	}

	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %q: %w", rawURL, err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("invalid upstream %q: scheme must be http or https", rawURL)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("upstream request failed", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}
