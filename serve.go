package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/careline/careline/internal/api"
	"github.com/careline/careline/internal/auth"
	"github.com/careline/careline/internal/chat"
	"github.com/careline/careline/internal/config"
	"github.com/careline/careline/internal/metrics"
	"github.com/careline/careline/internal/notify"
	"github.com/careline/careline/internal/presence"
	"github.com/careline/careline/internal/realtime"
	"github.com/careline/careline/store"
	"github.com/careline/careline/store/message"
	"github.com/careline/careline/store/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "http service address (default :8080)")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

type stores struct {
	messages message.Store
	users    user.Store
	close    func()
}

func openDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		// The database may still be starting (Docker); the pool reconnects.
		log.Warn("database unreachable", zap.Error(err))
	} else {
		log.Info("connected to database")
	}
	return db, nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*stores, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory stores, data is lost on exit")
		return &stores{messages: message.NewMemStore(), users: user.NewMemStore(), close: func() {}}, nil
	}

	db, err := openDB(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := migrateWithRetry(ctx, db, log); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return &stores{
		messages: message.NewSQLStore(db),
		users:    user.NewSQLStore(db),
		close: func() {
			if err := db.Close(); err != nil {
				log.Warn("close database", zap.Error(err))
			}
		},
	}, nil
}

const (
	migrateAttempts = 10
	migrateBackoff  = time.Second
)

func migrateWithRetry(ctx context.Context, db *sql.DB, log *zap.Logger) error {
	var err error
	for attempt := 1; attempt <= migrateAttempts; attempt++ {
		if err = store.Migrate(ctx, db); err == nil {
			log.Info("schema applied")
			return nil
		}
		log.Warn("apply schema failed", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(migrateBackoff):
		}
	}
	return err
}

func newPublisher(cfg config.NatsConfig, log *zap.Logger) notify.Publisher {
	if cfg.URL == "" {
		return notify.Nop{}
	}
	p, err := notify.NewNatsPublisher(cfg.URL, cfg.SubjectPrefix)
	if err != nil {
		log.Warn("event publishing disabled", zap.String("url", cfg.URL), zap.Error(err))
		return notify.Nop{}
	}
	log.Info("publishing chat events", zap.String("subject", p.Subject()))
	return p
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd, v)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pub := newPublisher(cfg.Nats, log)
	defer pub.Close()

	tokens := auth.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	var ident auth.Identifier = tokens
	if cfg.Realtime.AllowQueryUser {
		log.Warn("realtime accepts unauthenticated userId query parameters")
		ident = auth.QueryUser{Next: tokens}
	}

	online := presence.New()
	m.TrackOnlineUsers(online.Len)

	engine := chat.NewEngine(st.messages, st.users, online,
		chat.WithLogger(log),
		chat.WithMetrics(m),
		chat.WithPublisher(pub),
		chat.WithStoreTimeout(cfg.Chat.StoreTimeout),
		chat.WithHistoryLimits(cfg.Chat.HistoryDefaultLimit, cfg.Chat.HistoryMaxLimit),
	)

	router := api.NewRouter(api.Deps{
		Engine:         engine,
		Users:          st.users,
		Tokens:         tokens,
		Realtime:       realtime.NewServer(engine, ident, cfg.Realtime, log, m),
		Metrics:        m,
		Log:            log,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", cfg.Server.Addr), zap.String("driver", cfg.Database.Driver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown incomplete", zap.Error(err))
	}
	return nil
}
