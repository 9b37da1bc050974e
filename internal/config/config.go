package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	ServerPort string `mapstructure:"SERVER_PORT"`

	DBDriver   string `mapstructure:"DB_DRIVER"` // "pgx" or "postgres" (lib/pq)
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     int    `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSslMode  string `mapstructure:"DB_SSLMODE"`

	// Empty RedisAddr keeps booking sessions in process memory.
	RedisAddr         string `mapstructure:"REDIS_ADDR"`
	RedisPassword     string `mapstructure:"REDIS_PASSWORD"`
	RedisDB           int    `mapstructure:"REDIS_DB"`
	SessionTTLMinutes int    `mapstructure:"SESSION_TTL_MINUTES"`

	AWSRegion             string `mapstructure:"AWS_REGION"`
	TranscriptQueueURL    string `mapstructure:"TRANSCRIPT_QUEUE_URL"`
	IoTMQTTEndpoint       string `mapstructure:"IOT_MQTT_ENDPOINT"`
	IoTReservationThing   string `mapstructure:"IOT_RESERVATION_THING"`
	DetectionEnabled      bool   `mapstructure:"DETECTION_ENABLED"`
	GoogleCredentialsFile string `mapstructure:"GOOGLE_APPLICATION_CREDENTIALS"`
	SpeechLanguage        string `mapstructure:"SPEECH_LANGUAGE"`

	StripeSecretKey      string `mapstructure:"STRIPE_SECRET_KEY"`
	StripePublishableKey string `mapstructure:"STRIPE_PUBLISHABLE_KEY"`
	StripeWebhookSecret  string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	Currency             string `mapstructure:"CURRENCY"`

	JWTSecret          string `mapstructure:"JWT_SECRET"`
	JWTExpirationHours int    `mapstructure:"JWT_EXPIRATION_HOURS"`

	CommandRequestsPerMin int `mapstructure:"COMMAND_REQUESTS_PER_MIN"`
	BookingLeadMinutes    int `mapstructure:"BOOKING_LEAD_MINUTES"`
}

var defaults = map[string]interface{}{
	"APP_ENV":                        "development",
	"SERVER_PORT":                    "8080",
	"DB_DRIVER":                      "pgx",
	"DB_HOST":                        "localhost",
	"DB_PORT":                        5432,
	"DB_USER":                        "parkai",
	"DB_PASSWORD":                    "parkai",
	"DB_NAME":                        "parkai",
	"DB_SSLMODE":                     "disable",
	"REDIS_ADDR":                     "",
	"REDIS_PASSWORD":                 "",
	"REDIS_DB":                       0,
	"SESSION_TTL_MINUTES":            30,
	"AWS_REGION":                     "ap-south-1",
	"TRANSCRIPT_QUEUE_URL":           "",
	"IOT_MQTT_ENDPOINT":              "",
	"IOT_RESERVATION_THING":          "",
	"DETECTION_ENABLED":              false,
	"GOOGLE_APPLICATION_CREDENTIALS": "",
	"SPEECH_LANGUAGE":                "en-IN",
	"STRIPE_SECRET_KEY":              "",
	"STRIPE_PUBLISHABLE_KEY":         "",
	"STRIPE_WEBHOOK_SECRET":          "",
	"CURRENCY":                       "inr",
	"JWT_SECRET":                     "change-me",
	"JWT_EXPIRATION_HOURS":           24,
	"COMMAND_REQUESTS_PER_MIN":       60,
	"BOOKING_LEAD_MINUTES":           60,
}

// Load reads .env (if present), then the environment, falling back to defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: could not load .env file: %v", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		log.Fatalf("config: failed to decode configuration: %v", err)
	}
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

func (c *Config) JWTExpiration() time.Duration {
	return time.Duration(c.JWTExpirationHours) * time.Hour
}

func (c *Config) BookingLead() time.Duration {
	return time.Duration(c.BookingLeadMinutes) * time.Minute
}
