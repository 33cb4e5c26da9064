package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"

	"github.com/robertarktes/ticketing-core/internal/bus"
	"github.com/robertarktes/ticketing-core/internal/config"
	"github.com/robertarktes/ticketing-core/internal/journal"
	"github.com/robertarktes/ticketing-core/internal/observability"
	"github.com/robertarktes/ticketing-core/internal/store"
	"github.com/robertarktes/ticketing-core/internal/tickets"
)

func main() {
	cfg, err := config.Load("tickets")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.ServiceName)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	db := mongoClient.Database("tickets")

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer rabbitConn.Close()
	rb, err := bus.NewRabbit(rabbitConn, cfg.AckWait, logger)
	if err != nil {
		log.Fatalf("failed to create bus: %v", err)
	}

	pub := journal.WithJournal(rb, journal.NewRecorder(db, logger))
	svc := tickets.NewService(store.NewMongo[tickets.Ticket, *tickets.Ticket](db.Collection("tickets")), pub, logger)

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

	logger.Info("tickets service started")
	if err := g.Wait(); err != nil {
		log.Fatalf("service error: %v", err)
	}
	logger.Info("tickets service exiting")
}
