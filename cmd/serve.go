package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/chatapp/internal/ai"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/config"
	"github.com/suPer8Hu/chatapp/internal/httpapi"
	"github.com/suPer8Hu/chatapp/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatapp/internal/inference"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"github.com/suPer8Hu/chatapp/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatapp/internal/store/redisstore"
	"github.com/suPer8Hu/chatapp/internal/usage"
	"github.com/suPer8Hu/chatapp/internal/users"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logging.For("server")

	cfg, gdb, err := bootstrap()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		revoker handlers.TokenRevoker
		revoked auth.RevocationChecker
	)
	if cfg.RedisAddr != "" {
		rs := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			return err
		}
		revoker, revoked = rs, rs
	} else {
		log.Warn("REDIS_ADDR not set, logout will not revoke tokens")
	}

	usageRepo := usage.NewRepo(gdb)
	recorder, closeRecorder, err := newRecorder(cfg, usageRepo)
	if err != nil {
		return err
	}
	defer closeRecorder()

	chatSvc := chat.NewService(chat.NewRepo(gdb), chat.WithDefaultModel(cfg.ChatDefaultModel))
	gateway := inference.NewGateway(chatSvc, ai.NewRegistryFromConfig(cfg), recorder, inference.Options{
		Provider:          cfg.AIProvider,
		Model:             cfg.AIModel,
		ContextWindowSize: cfg.ChatContextWindowSize,
	})

	resolver := auth.NewTokenResolver(cfg.JWTSecret, users.NewRepo(gdb), revoked)
	router := httpapi.NewRouter(handlers.NewHandler(chatSvc, gateway, usageRepo, revoker), resolver, cfg.CORSAllowOrigins)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server started")
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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newRecorder publishes usage to RabbitMQ when configured, otherwise writes
// it to the database inline.
func newRecorder(cfg config.Config, repo *usage.Repo) (usage.Recorder, func(), error) {
	if cfg.RabbitURL == "" {
		return usage.NewStoreRecorder(repo, cfg.UsageCostPer1KTokens), func() {}, nil
	}
	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		return nil, nil, err
	}
	return usage.NewQueueRecorder(pub), func() { _ = pub.Close() }, nil
}
