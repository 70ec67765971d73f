package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/giadinh/internal/auth"
	"github.com/dukerupert/giadinh/internal/backup"
	"github.com/dukerupert/giadinh/internal/config"
	"github.com/dukerupert/giadinh/internal/database"
	"github.com/dukerupert/giadinh/internal/logging"
	"github.com/dukerupert/giadinh/internal/metrics"
	"github.com/dukerupert/giadinh/internal/model"
	"github.com/dukerupert/giadinh/internal/push"
	"github.com/dukerupert/giadinh/internal/server"
	"github.com/dukerupert/giadinh/internal/store"
)

const (
	cleanupInterval = time.Hour
	sentRetention   = 60 * 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "decrypt":
		err = decrypt(os.Args[2:])
	case len(os.Args) > 1 && os.Args[1] == "vapid":
		err = vapid()
	default:
		err = run()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "giadinh:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := clockwork.NewRealClock()
	srv := server.New(cfg, db, clock, metrics.NewRegistry(), logger)

	if err := bootstrapAdmin(ctx, srv.UserStore(), cfg, logger); err != nil {
		return err
	}

	logger.Info("features",
		"push", cfg.PushEnabled(),
		"email", cfg.EmailEnabled(),
		"backup", cfg.BackupEnabled(),
	)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("giadinh listening", "addr", httpServer.Addr, "base_url", cfg.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
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
	g.Go(func() error {
		return srv.Reminders().Run(gctx)
	})
	g.Go(func() error {
		return srv.BackupManager().Run(gctx)
	})
	g.Go(func() error {
		cleanup(gctx, srv, clock, logger.With("component", "cleanup"))
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// bootstrapAdmin creates the configured admin when no admin account exists yet.
func bootstrapAdmin(ctx context.Context, users *store.UserStore, cfg *config.Config, logger *slog.Logger) error {
	n, err := users.CountByRole(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return nil
	}
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		logger.Warn("no admin account; set GIADINH_ADMIN_EMAIL and GIADINH_ADMIN_PASSWORD to create one")
		return nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	u, err := users.Create(ctx, cfg.AdminEmail, "Quản trị viên", hash, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	logger.Info("admin account created", "user_id", u.ID, "email", u.Email)
	return nil
}

func cleanup(ctx context.Context, srv *server.Server, clock clockwork.Clock, logger *slog.Logger) {
	ticker := clock.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n, err := srv.SessionStore().DeleteExpired(ctx); err != nil {
				logger.Error("delete expired sessions", "error", err)
			} else if n > 0 {
				logger.Info("deleted expired sessions", "count", n)
			}
			if err := srv.PushStore().CleanupSent(ctx, clock.Now().Add(-sentRetention)); err != nil {
				logger.Error("cleanup sent notifications", "error", err)
			}
			srv.RateLimiter().Cleanup()
		}
	}
}

// decrypt restores a downloaded backup: giadinh decrypt <src.db.enc> <dst.db>.
// The passphrase comes from GIADINH_BACKUP_PASSPHRASE or the first line of stdin.
func decrypt(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: giadinh decrypt <encrypted-file> <output-file>")
	}

	passphrase := os.Getenv("GIADINH_BACKUP_PASSPHRASE")
	if passphrase == "" {
		fmt.Fprint(os.Stderr, "Passphrase: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read passphrase: %w", err)
		}
		passphrase = strings.TrimRight(line, "\r\n")
	}

	if err := backup.DecryptFile(args[0], args[1], passphrase); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "decrypted", args[0], "->", args[1])
	return nil
}

// vapid prints a fresh VAPID key pair for the push configuration.
func vapid() error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return err
	}
	fmt.Printf("GIADINH_VAPID_PUBLIC_KEY=%s\nGIADINH_VAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}
