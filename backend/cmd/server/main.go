// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/efchat-core/backend/config"
	"github.com/efchatnet/efchat-core/backend/handlers"
	"github.com/efchatnet/efchat-core/backend/integration"
	"github.com/efchatnet/efchat-core/backend/messaging"
	"github.com/efchatnet/efchat-core/backend/middleware"
	"github.com/efchatnet/efchat-core/backend/storage"
	"github.com/efchatnet/efchat-core/backend/storage/memory"
	"github.com/efchatnet/efchat-core/backend/storage/postgres"
	redisstore "github.com/efchatnet/efchat-core/backend/storage/redis"
)

const shutdownTimeout = 10 * time.Second

// notifySubscriber is both ends of the event fan-out
type notifySubscriber interface {
	storage.Notifier
	handlers.Subscriber
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", "err", err)
	}
	logger := config.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		store    storage.Store
		profiles storage.ProfileResolver
		db       *sql.DB
		svcOpts  = []messaging.Option{messaging.WithLogger(logger)}
	)
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		db, err = postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("Failed to connect to database", "err", err)
		}
		defer db.Close()

		pg := postgres.NewStore(db)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("Failed to run migrations", "err", err)
		}
		store, profiles = pg, postgres.NewProfiles(db)
		svcOpts = append(svcOpts, messaging.WithFriendships(postgres.NewFriendships(db)))
	default:
		logger.Warn("Using in-memory storage; data is lost on restart, friendships are not checked")
		store, profiles = memory.NewStore(), memory.NewProfiles()
	}

	// Presence and events
	var (
		typing storage.TypingTracker
		events notifySubscriber
		rdb    *redis.Client
	)
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", "addr", cfg.Redis.Addr, "err", err)
		}
		typing = redisstore.NewTypingTracker(rdb, cfg.Presence.TypingTTL)
		events = redisstore.NewPublisher(rdb)
	} else {
		typing = memory.NewTypingTracker(cfg.Presence.TypingTTL, nil)
		events = memory.NewBroker()
	}

	svc := messaging.NewService(store, profiles, typing, messaging.Config{
		EditWindow:  cfg.Messaging.EditWindow,
		SearchLimit: cfg.Messaging.SearchLimit,
	}, append(svcOpts, messaging.WithNotifier(events))...)

	chat, err := integration.NewChatIntegration(&integration.Config{
		Service:    svc,
		Subscriber: events,
		Logger:     logger,
		JWTSecret:  cfg.JWT.Secret,
		JWTIssuer:  cfg.JWT.Issuer,
	})
	if err != nil {
		logger.Fatal("Failed to set up routes", "err", err)
	}

	r := mux.NewRouter()
	if err := chat.RegisterRoutes(r, nil); err != nil {
		logger.Fatal("Failed to register routes", "err", err)
	}

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("Database unavailable"))
				return
			}
		}
		if rdb != nil {
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("Redis unavailable"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	// CORS wraps the router so preflights are answered before route matching
	handler := middleware.RequestLogger(logger)(middleware.NewCORS(cfg.Server.AllowedOrigins)(r))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed", "err", err)
		}
	}()

	logger.Info("Chat server starting", "port", cfg.Server.Port, "driver", cfg.Database.Driver, "redis", cfg.Redis.Enabled)
	logger.Info("JWT configured", "issuer", cfg.JWT.Issuer)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server failed to start", "err", err)
	}
	logger.Info("Server stopped")
}
