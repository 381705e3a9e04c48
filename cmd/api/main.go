package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/freightlane/auth-core/internal/application/notify"
	"github.com/freightlane/auth-core/internal/config"
	amqpinfra "github.com/freightlane/auth-core/internal/infrastructure/amqp"
	"github.com/freightlane/auth-core/internal/infrastructure/dynamo"
	jwtinfra "github.com/freightlane/auth-core/internal/infrastructure/jwt"
	"github.com/freightlane/auth-core/internal/infrastructure/memory"
	redisinfra "github.com/freightlane/auth-core/internal/infrastructure/redis"
	"github.com/freightlane/auth-core/internal/infrastructure/smtp"
	"github.com/freightlane/auth-core/internal/infrastructure/sns"
	"github.com/freightlane/auth-core/internal/logger"
	transporthttp "github.com/freightlane/auth-core/internal/transport/http"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	l := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		log.Info().Msg("no .env file found, reading from environment")
	}

	ctx := context.Background()

	var awsCfg aws.Config
	if cfg.StoreBackend == "dynamo" || cfg.SNSSecurityTopicARN != "" {
		var err error
		awsCfg, err = dynamo.LoadAWSConfig(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("load aws config")
		}
	}

	var accounts transporthttp.AccountRepository
	switch cfg.StoreBackend {
	case "dynamo":
		client := dynamo.NewClient(awsCfg, cfg)
		// creates the table and its indexes if they don't exist
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		accounts = dynamo.NewAccountRepo(client, cfg.DynamoTables.Accounts)
	case "memory":
		if cfg.IsProduction() {
			log.Fatal().Msg("memory store is not allowed in production")
		}
		log.Warn().Msg("using in-memory account store, data is lost on restart")
		accounts = memory.NewAccountStore()
	default:
		log.Fatal().Str("backend", cfg.StoreBackend).Msg("unknown STORE_BACKEND")
	}

	signer, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load jwt signing keys")
	}

	var mailer notify.Mailer
	switch cfg.MailTransport {
	case "amqp":
		conn, ch, err := amqpinfra.Dial(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatal().Err(err).Msg("connect mail broker")
		}
		defer conn.Close()
		defer ch.Close()
		mailer = amqpinfra.NewMailer(ch, cfg.AMQPExchange)
	case "smtp":
		mailer = smtp.NewMailer(cfg)
	default:
		log.Fatal().Str("transport", cfg.MailTransport).Msg("unknown MAIL_TRANSPORT")
	}

	deps := &transporthttp.Deps{
		Accounts: accounts,
		Signer:   signer,
		Mailer:   mailer,
		Logger:   l,
	}

	if cfg.SNSSecurityTopicARN != "" {
		deps.Events = sns.NewEventPublisher(awsCfg, cfg)
	} else {
		log.Info().Msg("SNS_SECURITY_TOPIC_ARN not set, security events are not published")
	}

	notifier := notify.NewDispatcher(deps.Mailer, deps.Events)
	deps.Notifier = notifier

	if cfg.RedisAddr != "" {
		rdb, err := redisinfra.NewClient(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("connect redis")
		}
		defer rdb.Close()
		deps.Denylist = redisinfra.NewDenylist(rdb)
	} else {
		log.Warn().Msg("REDIS_ADDR not set, logout cannot revoke tokens before expiry")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.AppPort).Str("env", cfg.AppEnv).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
		return
	}
	if err := notifier.Wait(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("pending notifications dropped")
	}
	log.Info().Msg("server stopped")
}
