package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/config"
	"github.com/robertarktes/ticketing-core/internal/expiration"
	"github.com/robertarktes/ticketing-core/internal/observability"
)

func main() {
	cfg, err := config.Load("expiration")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.ServiceName)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rb, err := bus.NewRabbit(rabbitConn, cfg.AckWait, logger)
	if err != nil {
		log.Fatalf("failed to create bus: %v", err)
	}

	sched := expiration.NewScheduler(redisClient, rb, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, l := range sched.Listeners() {
		if err := rb.Subscribe(ctx, l); err != nil {
			log.Fatalf("failed to subscribe %s: %v", l.Subject, err)
		}
	}

	srv := &http.Server{Addr: cfg.OpsAddr, Handler: observability.NewOpsRouter()}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx, time.Second)
		return nil
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("expiration service started")
	if err := g.Wait(); err != nil {
		log.Fatalf("service error: %v", err)
	}
	logger.Info("expiration service exiting")
}
