package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config is the process configuration, loaded from the environment with an
// optional .env file underneath. Empty integration settings disable the
// corresponding adapter: no DATABASE_URL means in-memory stores, no AMQP_URL
// means no broker mirror, a gateway without a base URL is not offered.
type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	DatabaseURL  string
	AMQPURL      string
	AMQPExchange string

	TaxRate decimal.Decimal

	CarrierBaseURL string
	CarrierAPIKey  string

	PayPalBaseURL      string
	PayPalAPIKey       string
	MercadoPagoBaseURL string
	MercadoPagoAPIKey  string

	EmailEndpoint string
	SMSEndpoint   string
	PushEndpoint  string
	NotifyAPIKey  string

	NotificationDueInterval   time.Duration
	NotificationRetryInterval time.Duration
	TrackingSweepInterval     time.Duration
	TrackingStaleAfter        time.Duration
}

// Load reads .env when present and resolves the typed configuration.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: getenv("SERVICE_NAME", "nabra"),
		Env:         getenv("ENV", "dev"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getenv("AMQP_EXCHANGE", "commerce.events"),

		CarrierBaseURL: os.Getenv("CARRIER_BASE_URL"),
		CarrierAPIKey:  os.Getenv("CARRIER_API_KEY"),

		PayPalBaseURL:      os.Getenv("PAYPAL_BASE_URL"),
		PayPalAPIKey:       os.Getenv("PAYPAL_API_KEY"),
		MercadoPagoBaseURL: os.Getenv("MERCADOPAGO_BASE_URL"),
		MercadoPagoAPIKey:  os.Getenv("MERCADOPAGO_API_KEY"),

		EmailEndpoint: os.Getenv("NOTIFY_EMAIL_ENDPOINT"),
		SMSEndpoint:   os.Getenv("NOTIFY_SMS_ENDPOINT"),
		PushEndpoint:  os.Getenv("NOTIFY_PUSH_ENDPOINT"),
		NotifyAPIKey:  os.Getenv("NOTIFY_API_KEY"),
	}

	taxRate, err := decimal.NewFromString(getenv("TAX_RATE", "0"))
	if err != nil {
		return nil, fmt.Errorf("config: TAX_RATE: %w", err)
	}
	cfg.TaxRate = taxRate

	if cfg.NotificationDueInterval, err = getduration("NOTIFICATION_DUE_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotificationRetryInterval, err = getduration("NOTIFICATION_RETRY_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.TrackingSweepInterval, err = getduration("TRACKING_SWEEP_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.TrackingStaleAfter, err = getduration("TRACKING_STALE_AFTER", 2*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
