package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/config"
	"github.com/robertarktes/ticketing-core/internal/observability"
	"github.com/robertarktes/ticketing-core/internal/orders"
	"github.com/robertarktes/ticketing-core/internal/store"
)

func main() {
	cfg, err := config.Load("orders")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.ServiceName)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()

	repo := orders.NewPostgresRepository(pool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("failed to ensure orders schema: %v", err)
	}
	replicas := store.NewPostgres[orders.TicketReplica, *orders.TicketReplica](pool, "ticket_replicas")
	if err := replicas.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("failed to ensure replica schema: %v", err)
	}

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rb, err := bus.NewRabbit(rabbitConn, cfg.AckWait, logger)
	if err != nil {
		log.Fatalf("failed to create bus: %v", err)
	}

	svc := orders.NewService(repo, replicas, rb, logger, cfg.ExpirationWindow)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, l := range svc.Listeners() {
		if err := rb.Subscribe(ctx, l); err != nil {
			log.Fatalf("failed to subscribe %s: %v", l.Subject, err)
		}
	}

	srv := &http.Server{Addr: cfg.OpsAddr, Handler: observability.NewOpsRouter()}
	g, gctx := errgroup.WithContext(ctx)
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

	logger.Info("orders service started")
	if err := g.Wait(); err != nil {
		log.Fatalf("service error: %v", err)
	}
	logger.Info("orders service exiting")
}
