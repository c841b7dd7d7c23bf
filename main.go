package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stevecastle/vdr/appconfig"
	"github.com/stevecastle/vdr/auth"
	"github.com/stevecastle/vdr/bridge"
	"github.com/stevecastle/vdr/commands"
	"github.com/stevecastle/vdr/history"
	"github.com/stevecastle/vdr/jobqueue"
	"github.com/stevecastle/vdr/logging"
	"github.com/stevecastle/vdr/platform"
	"github.com/stevecastle/vdr/renderer"
	"github.com/stevecastle/vdr/runners"
	"github.com/stevecastle/vdr/shell"
	"github.com/stevecastle/vdr/stream"
)

var (
	flagHost      string
	flagPort      int
	flagWorkers   int
	flagDebug     bool
	flagNoBrowser bool
	flagLogLevel  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          platform.AppName,
		Short:        platform.AppDisplayName + " - tray shell and file command bridge",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := appconfig.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg)
			// flags win for this run only; the file is left untouched
			appconfig.Set(cfg)
			logging.Setup(os.Stderr, cfg.LogLevel)
			log.Info().Str("config", path).Str("addr", cfg.Addr()).Msg("starting")
			return run(appconfig.Get(), flagDebug)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flagHost, "host", appconfig.DefaultHost, "Bridge listen host")
	f.IntVarP(&flagPort, "port", "p", appconfig.DefaultPort, "Bridge listen port")
	f.IntVarP(&flagWorkers, "workers", "w", appconfig.DefaultWorkers, "Maximum concurrent commands")
	f.BoolVar(&flagDebug, "debug", false, "Open developer tools when the shell is ready")
	f.BoolVar(&flagNoBrowser, "no-browser", false, "Do not open the front-end on startup")
	f.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	return cmd
}

// applyFlags overrides config values with flags the user actually set.
func applyFlags(cmd *cobra.Command, cfg *appconfig.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = flagHost
	}
	if f.Changed("port") {
		cfg.Port = flagPort
	}
	if f.Changed("workers") && flagWorkers > 0 {
		cfg.Workers = flagWorkers
	}
	if f.Changed("no-browser") && flagNoBrowser {
		open := false
		cfg.OpenBrowser = &open
	}
	if f.Changed("log-level") {
		cfg.LogLevel = flagLogLevel
	}
	if flagDebug {
		cfg.LogLevel = "debug"
	}
}

// app holds everything the shell wires together.
type app struct {
	cfg      appconfig.Config
	uploads  *history.Tracker
	registry *commands.Registry
	hub      *stream.Hub
	queue    *jobqueue.Queue
	runners  *runners.Runners
	auth     *auth.AuthService
	bridge   *bridge.Bridge
	events   *shell.Dispatcher
	window   *shell.BrowserWindow
	devtools bool
}

func newApp(cfg appconfig.Config, debug bool) *app {
	a := &app{cfg: cfg, devtools: shell.DebugBuild || debug}

	a.uploads = history.New()
	a.registry = commands.NewRegistry()
	commands.NewService(a.uploads).Register(a.registry)

	a.hub = stream.NewHub()
	a.queue = jobqueue.NewQueue(a.hub)
	if cfg.JobRetention > 0 {
		a.queue.SetRetention(cfg.JobRetention)
	}
	a.runners = runners.New(a.queue, a.registry, cfg.Workers)
	a.bridge = bridge.New(a.queue, a.registry)

	a.auth = auth.NewAuthService(cfg.JWTSecret, 0)
	renderer.AuthMiddleware = a.auth.Middleware

	a.events = shell.NewDispatcher()
	a.window = shell.NewBrowserWindow(cfg.BaseURL(), a.hub)
	return a
}

func (a *app) routes() *http.ServeMux {
	mux := http.NewServeMux()
	bridged := func(h http.Handler) http.HandlerFunc {
		return renderer.ApplyMiddlewares(h, renderer.RoleBridge)
	}

	mux.HandleFunc("/", renderer.ApplyMiddlewares(renderer.ShellHandler(a.pageData), renderer.RolePublic))
	mux.Handle("/static/", renderer.StaticHandler())
	mux.HandleFunc("/health", renderer.ApplyMiddlewares(a.healthHandler(), renderer.RolePublic))

	mux.HandleFunc("/invoke/{command}", bridged(a.bridge.InvokeHandler()))
	mux.HandleFunc("/commands", bridged(a.bridge.CommandsHandler()))
	mux.HandleFunc("/ws", bridged(a.bridge.WebSocketHandler()))
	mux.HandleFunc("/stream", bridged(a.hub))
	mux.HandleFunc("/jobs", bridged(a.jobsHandler()))
	mux.HandleFunc("/jobs/{id}", bridged(a.jobHandler()))

	mux.HandleFunc("/window/close", bridged(shell.CloseHandler(a.events)))
	mux.HandleFunc("/window/toggle", bridged(shell.ToggleHandler(a.events)))
	mux.HandleFunc("/window/state", bridged(shell.StateHandler(a.window)))
	return mux
}

func (a *app) pageData() (renderer.PageData, error) {
	token, err := a.auth.Issue()
	if err != nil {
		return renderer.PageData{}, err
	}
	return renderer.PageData{
		Title:    platform.AppDisplayName,
		Token:    token,
		Commands: a.registry.Names(),
		DevTools: a.devtools,
	}, nil
}

func (a *app) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Use GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{
			"status":  "ok",
			"stream":  a.hub.Stats(),
			"jobs":    a.queue.Counts(),
			"running": a.runners.Running(),
			"uploads": a.uploads.Len(),
			"window":  map[string]bool{"visible": a.window.IsVisible()},
		})
	}
}

// shutdown stops intake first, then lets running commands finish before the
// listener goes away.
func (a *app) shutdown(srv *http.Server) {
	log.Info().Msg("shutting down")
	a.queue.Close()
	a.runners.Shutdown()
	a.hub.Shutdown()

	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("http server shutdown")
		return
	}
	log.Info().Msg("shutdown complete")
}

func run(cfg appconfig.Config, debug bool) error {
	a := newApp(cfg, debug)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Str("addr", srv.Addr).Msg("bridge server failed")
		}
	}()

	tray := shell.NewTray(a.events, shell.DefaultMenu())
	shell.Wire(a.events, a.window, tray, a.devtools)
	if cfg.ShouldOpenBrowser() {
		a.events.On(shell.EventReady, func() { a.events.Emit(shell.EventShow) })
	}

	// blocks until quit
	tray.Run(func() { a.shutdown(srv) })
	return nil
}
