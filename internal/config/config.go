// Package config loads application configuration from environment
// variables.  A .env file in the working directory is read first when
// present; real environment variables win over it.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMySQL  = "mysql"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.
type Config struct {
	Env  string // APP_ENV: dev, test, prod
	Port string // APP_PORT

	StoreDriver string // STORE_DRIVER: mysql (default), mongo, memory
	DBUser      string
	DBPass      string
	DBHost      string
	DBPort      string
	DBName      string
	MongoURI    string
	MongoDB     string

	JWTSecret    string
	AccessTTLMin int
	BcryptCost   int

	BookingTimeout          time.Duration // upper bound for one allocation, lock wait included
	LedgerRetryAttempts     int
	LedgerRetryBackoff      time.Duration // first wait; doubles per attempt
	LedgerReconcileInterval time.Duration

	RabbitURL   string // empty disables events and escalation
	LogDir      string // booking.log destination
	CORSOrigins []string
	SeedFile    string // timetable applied at startup; empty skips

	PaymentStoreID   string
	PaymentStorePass string
	PaymentLive      bool
	PaymentCurrency  string
	PaymentIntentTTL time.Duration
	PublicBaseURL    string // where the gateway calls us back
	ClientBaseURL    string // where browsers land after payment
}

// Load reads the environment and returns a Config.  Required variables are
// enforced by must(); a missing one stops the program.  Database settings
// are only required by the driver that uses them.
func Load() Config {
	_ = godotenv.Load()

	c := Config{
		Env:         must("APP_ENV"),
		Port:        envStr("APP_PORT", "8080"),
		StoreDriver: strings.ToLower(envStr("STORE_DRIVER", DriverMySQL)),

		JWTSecret:    must("JWT_SECRET"),
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"),
		BcryptCost:   envInt("BCRYPT_COST", 12),

		BookingTimeout:          envDur("BOOKING_TIMEOUT", 5*time.Second),
		LedgerRetryAttempts:     envInt("LEDGER_RETRY_ATTEMPTS", 3),
		LedgerRetryBackoff:      envDur("LEDGER_RETRY_BACKOFF", 200*time.Millisecond),
		LedgerReconcileInterval: envDur("LEDGER_RECONCILE_INTERVAL", time.Minute),

		RabbitURL:   rabbitURL(),
		LogDir:      envStr("BOOKING_LOG_DIR", "logs"),
		CORSOrigins: splitList(envStr("CORS_ORIGINS", "*")),
		SeedFile:    os.Getenv("SEED_FILE"),

		PaymentStoreID:   os.Getenv("SSLCOMMERZ_STORE_ID"),
		PaymentStorePass: os.Getenv("SSLCOMMERZ_STORE_PASSWORD"),
		PaymentLive:      envBool("SSLCOMMERZ_LIVE", false),
		PaymentCurrency:  envStr("PAYMENT_CURRENCY", "BDT"),
		PaymentIntentTTL: envDur("PAYMENT_INTENT_TTL", 30*time.Minute),
		PublicBaseURL:    strings.TrimRight(envStr("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		ClientBaseURL:    strings.TrimRight(envStr("CLIENT_BASE_URL", "http://localhost:3000"), "/"),
	}

	switch c.StoreDriver {
	case DriverMySQL:
		c.DBUser = must("DB_USER")
		c.DBPass = os.Getenv("DB_PASS")
		c.DBHost = must("DB_HOST")
		c.DBPort = must("DB_PORT")
		c.DBName = must("DB_NAME")
	case DriverMongo:
		c.MongoURI = must("MONGO_URI")
		c.MongoDB = envStr("MONGO_DB", "trains")
	case DriverMemory:
	default:
		log.Fatalf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	return c
}

// rabbitURL honours both names the broker URL has historically used.
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	switch strings.ToLower(os.Getenv(k)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return dur
	}
	return d
}
