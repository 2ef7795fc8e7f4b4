package config

import "time"

type Config struct {
	Environment Environment
	Log         Log
	HTTP        HTTPServer
	BaseURL     string `env:"BASE_URL"`

	Database  Database  `envPrefix:"DB_"`
	Gateway   Gateway   `envPrefix:"GATEWAY_"`
	Braintree Braintree `envPrefix:"BRAINTREE_"`
	Pricing   Pricing   `envPrefix:"PRICING_"`
	Checkout  Checkout  `envPrefix:"CHECKOUT_"`
	Retry     Retry     `envPrefix:"RETRY_"`
	Reaper    Reaper    `envPrefix:"REAPER_"`
	Notifier  Notifier  `envPrefix:"NOTIFIER_"`
}

type Environment struct {
	Name string `env:"ENVIRONMENT" envDefault:"development"`
}

type Log struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type HTTPServer struct {
	Host string `env:"HTTP_HOST" envDefault:"0.0.0.0"`
	Port string `env:"HTTP_PORT" envDefault:"8080"`
}

type Database struct {
	Driver string `env:"DRIVER" envDefault:"mysql"` // mysql or sqlite
	URL    string `env:"URL"`
}

type Gateway struct {
	Provider      string `env:"PROVIDER" envDefault:"http"` // http or braintree
	BaseApiURL    string `env:"BASE_API_URL"`
	ClientID      string `env:"CLIENT_ID"`
	ClientSecret  string `env:"CLIENT_SECRET"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type Braintree struct {
	Environment string `env:"ENVIRONMENT"`
	MerchantID  string `env:"MERCHANT_ID"`
	PublicKey   string `env:"PUBLIC_KEY"`
	PrivateKey  string `env:"PRIVATE_KEY"`
}

// Pricing holds the defaults cart total computation needs. TaxRate is a
// decimal string ("0.10") so it survives env round-trips without float drift.
type Pricing struct {
	TaxRate                    string `env:"TAX_RATE" envDefault:"0.10"`
	Currency                   string `env:"CURRENCY" envDefault:"USD"`
	FreeShippingThresholdCents int64  `env:"FREE_SHIPPING_THRESHOLD_CENTS" envDefault:"10000"`
	FlatShippingRateCents      int64  `env:"FLAT_SHIPPING_RATE_CENTS" envDefault:"500"`
}

type Checkout struct {
	TxTimeout        time.Duration `env:"TX_TIMEOUT" envDefault:"30s"`
	CreditLimitCents int64         `env:"CREDIT_LIMIT_CENTS" envDefault:"0"` // 0 disables the exposure check
	CartTTL          time.Duration `env:"CART_TTL" envDefault:"72h"`
}

type Retry struct {
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"1m"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"50"`
}

type Reaper struct {
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
	PurgeInterval time.Duration `env:"PURGE_INTERVAL" envDefault:"6h"`
	Retention     time.Duration `env:"RETENTION" envDefault:"720h"`
}

type Notifier struct {
	BaseURL string `env:"BASE_URL"`
	Token   string `env:"TOKEN"`
}
