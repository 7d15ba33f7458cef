package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"example.com/promptbattle/internal/artgen"
	"example.com/promptbattle/internal/config"
	"example.com/promptbattle/internal/game"
	"example.com/promptbattle/internal/httpapi"
	"example.com/promptbattle/internal/store"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client

	game *game.Game
	srv  *http.Server
}

type Options struct {
	Static http.Handler // optional; if nil, no frontend is served
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger, opts Options) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	// --- Postgres ---
	dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
	}

	// --- Stores ---
	battles := store.NewBattleStore(dbpool)
	artifacts := store.NewArtifactStore(dbpool)
	snapshots := game.NewRedisSnapshotStore(rdb, cfg.Redis.SnapshotTTL)

	// --- Generator ---
	gen := artgen.NewClient(artgen.Config{
		BaseURL: cfg.Generator.BaseURL,
		APIKey:  cfg.Generator.APIKey,
		Model:   cfg.Generator.Model,
		Size:    cfg.Generator.Size,
		Timeout: cfg.Generator.Timeout,
		Retries: cfg.Generator.Retries,
	}, log)

	// --- Game ---
	hub := game.NewHub(log)
	g := game.New(game.Config{
		DefaultBattleSeconds:   cfg.Game.DefaultBattleSeconds,
		ResetClearsCompetition: cfg.Game.ResetClearsCompetition,
	}, log, hub, gen, artifacts)

	if snap, ok, err := snapshots.Load(ctx); err != nil {
		log.Warn("snapshot load failed, starting fresh", "err", err)
	} else if ok {
		g.Restore(snap)
		log.Info("restored game snapshot", "phase", snap.Phase)
	}
	g.SetPersist(newPersister(log, snapshots, battles))

	gameSrv := game.NewServer(log, g, hub)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gameSrv.RegisterRoutes(mux)

	if opts.Static != nil {
		mux.Handle("/", opts.Static)
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.RequestLog(log)(mux),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, db: dbpool, rdb: rdb, game: g, srv: srv}, nil
}

// newPersister builds the snapshot hook: every committed mutation goes
// to Redis, and each newly decided battle is recorded once in Postgres.
// Both writes are best effort.
func newPersister(log *slog.Logger, snapshots game.SnapshotPersistence, battles *store.BattleStore) func(game.Snapshot) {
	lastRecorded := 0
	return func(snap game.Snapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := snapshots.Save(ctx, snap); err != nil {
			log.Warn("snapshot save failed", "err", err)
		}

		if snap.Phase == game.PhaseFinished && snap.Winner != "" && snap.RoundNumber > lastRecorded {
			if err := battles.Record(ctx, snap); err != nil {
				log.Warn("battle audit insert failed", "err", err)
			} else {
				lastRecorded = snap.RoundNumber
			}
		}
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
