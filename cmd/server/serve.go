package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nats-io/nats.go"
	"github.com/rpggio/fundflow/internal/config"
	"github.com/rpggio/fundflow/internal/domain/event"
	"github.com/rpggio/fundflow/internal/domain/fee"
	"github.com/rpggio/fundflow/internal/domain/project"
	"github.com/rpggio/fundflow/internal/mcp"
	"github.com/rpggio/fundflow/internal/metrics"
	"github.com/rpggio/fundflow/internal/notify"
	"github.com/rpggio/fundflow/internal/sqlite"
	"github.com/rpggio/fundflow/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the server over HTTP or stdio",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := openApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer app.Close()

	if cfg.Transport.Mode == config.ModeStdio {
		return runStdio(ctx, logger, app.mcp)
	}
	return runHTTP(ctx, logger, cfg, app)
}

// newLogger keeps stdout clean in stdio mode, where it carries JSON-RPC.
func newLogger(cfg config.Config) (*slog.Logger, func(), error) {
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return nil, nil, err
	}

	var w io.Writer = os.Stdout
	if cfg.Transport.Mode == config.ModeStdio {
		w = os.Stderr
	}
	closeFn := func() {}
	if cfg.Log.Path != "" {
		fileWriter, err := newLogFileWriter(cfg.Log.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("log file: %w", err)
		}
		w = fileWriter
		closeFn = func() { _ = fileWriter.Close() }
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}

// app holds everything a running server owns.
type app struct {
	db       *sqlite.DB
	tokensDB *sqlite.DB
	keys     *sqlite.APIKeys
	engine   *project.Engine
	recorder *metrics.Recorder
	mcp      *sdkmcp.Server
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openDB(path string) (*sqlite.DB, error) {
	if err := ensureDir(path); err != nil {
		return nil, fmt.Errorf("prepare database path: %w", err)
	}
	db, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if err := db.RunMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return db, nil
}

// openEngine opens both databases and builds the engine with no publisher.
func openEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, configure func(*project.Config)) (*app, error) {
	a := &app{}
	db, err := openDB(cfg.DB.Path)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, func() { _ = db.Close() })

	tokensDB, err := openDB(cfg.Tokens.Path)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.tokensDB = tokensDB
	a.closers = append(a.closers, func() { _ = tokensDB.Close() })

	policy, err := fee.NewPolicy(cfg.Engine.Fees())
	if err != nil {
		a.Close()
		return nil, err
	}

	ledger := sqlite.NewTokenLedger(tokensDB)
	engineCfg := project.Config{
		Repository:  sqlite.NewStore(db),
		Tokens:      ledger,
		Provisioner: sqlite.NewTokenProvisioner(ledger, cfg.Engine.Custody),
		Fees:        policy,
		Authority:   cfg.Engine.Authority,
		Treasury:    cfg.Engine.Treasury,
		Custody:     cfg.Engine.Custody,
		Logger:      logger,
	}
	if configure != nil {
		configure(&engineCfg)
	}
	engine, err := project.NewEngine(ctx, engineCfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine
	a.keys = sqlite.NewAPIKeys(db)
	return a, nil
}

func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	broker := notify.NewBroker(64, logger)
	publishers := notify.Multi{broker}

	var conn *nats.Conn
	if cfg.NATS.URL != "" {
		var err error
		conn, err = nats.Connect(cfg.NATS.URL, nats.Name("fundflow"))
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		publishers = append(publishers, notify.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix))
		logger.Info("publishing events to nats", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	recorder := metrics.NewRecorder()
	a, err := openEngine(ctx, cfg, logger, func(ec *project.Config) {
		ec.Publisher = publishers
		ec.Recorder = recorder
	})
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	a.recorder = recorder
	if conn != nil {
		a.closers = append(a.closers, func() { _ = conn.Drain() })
	}

	events, unsubscribe := broker.Subscribe()
	a.closers = append(a.closers, unsubscribe)
	go logEvents(logger, events)

	a.mcp = mcp.NewServer(mcp.Config{
		Engine:          a.engine,
		Resolver:        a.keys,
		AuthEnabled:     cfg.Auth.Enabled,
		DefaultIdentity: cfg.Auth.DefaultIdentity,
		TransportMode:   cfg.Transport.Mode,
		Version:         version,
		Logger:          logger,
	})
	return a, nil
}

func logEvents(logger *slog.Logger, events <-chan event.Event) {
	for evt := range events {
		logger.Debug("event",
			"seq", evt.Seq,
			"type", evt.Type,
			"project_id", evt.ProjectID,
			"package_id", evt.PackageID,
		)
	}
}

func runStdio(ctx context.Context, logger *slog.Logger, server *sdkmcp.Server) error {
	logger.Info("starting stdio transport")
	if err := server.Run(ctx, &sdkmcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("stdio server error", "error", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}

func runHTTP(ctx context.Context, logger *slog.Logger, cfg config.Config, a *app) error {
	mcpHandler := sdkmcp.NewStreamableHTTPHandler(
		func(*http.Request) *sdkmcp.Server { return a.mcp },
		&sdkmcp.StreamableHTTPOptions{
			SessionTimeout: 30 * time.Minute,
		},
	)

	auth := transport.AuthMiddleware(a.keys)
	if !cfg.Auth.Enabled {
		auth = transport.StaticIdentity(cfg.Auth.DefaultIdentity)
	}
	opts := transport.Options{
		Handler: mcp.NewHandler(a.engine),
		Auth:    auth,
		MCP:     mcpHandler,
		Logger:  logger,
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = a.recorder.Handler()
		opts.MetricsPath = cfg.Metrics.Path
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           transport.NewServer(opts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", addr, "auth", cfg.Auth.Enabled)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		return err
	}
	return nil
}
