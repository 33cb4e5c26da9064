package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName      string
	RabbitURL        string
	MongoURI         string
	CRDBDSN          string
	RedisAddr        string
	OpsAddr          string
	OTLPEndpoint     string
	AckWait          time.Duration
	ExpirationWindow time.Duration
}

// Load reads configuration from the environment, with a .env file as local
// convenience. The expiration window defaults to the production 15 minutes;
// tests and demos shrink it via EXPIRATION_WINDOW.
func Load(service string) (*Config, error) {
	_ = godotenv.Load()

	ackWait, _ := time.ParseDuration(os.Getenv("ACK_WAIT"))
	if ackWait == 0 {
		ackWait = 5 * time.Second
	}

	window, _ := time.ParseDuration(os.Getenv("EXPIRATION_WINDOW"))
	if window == 0 {
		window = 15 * time.Minute
	}

	opsAddr := os.Getenv("OPS_ADDR")
	if opsAddr == "" {
		opsAddr = ":8080"
	}

	return &Config{
		ServiceName:      service,
		RabbitURL:        os.Getenv("RABBIT_URL"),
		MongoURI:         os.Getenv("MONGO_URI"),
		CRDBDSN:          os.Getenv("CRDB_DSN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		OpsAddr:          opsAddr,
		OTLPEndpoint:     os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		AckWait:          ackWait,
		ExpirationWindow: window,
	}, nil
}
