package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	RabbitMQ      RabbitMQConfig      `yaml:"rabbitmq"`
	DynamoDB      DynamoDBConfig      `yaml:"dynamodb"`
	SNS           SNSConfig           `yaml:"sns"`
	Auth          AuthConfig          `yaml:"auth"`
	Store         StoreConfig         `yaml:"store"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Engine        EngineConfig        `yaml:"engine"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `yaml:"max_conns" validate:"min=0"`
}

type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type DynamoDBConfig struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint" validate:"omitempty,url"`
	CasesTable   string `yaml:"cases_table"`
	HistoryTable string `yaml:"history_table"`
}

type SNSConfig struct {
	TopicARN string `yaml:"topic_arn"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type StoreConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres dynamodb memory"`
}

type NotificationsConfig struct {
	Driver  string        `yaml:"driver" validate:"oneof=rabbitmq sns none"`
	Timeout time.Duration `yaml:"timeout"`
}

type EngineConfig struct {
	RequireVerifiedPayment bool `yaml:"require_verified_payment"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Default returns the configuration used when the file omits a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         3000,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "caseflow",
			Database: "caseflow",
			SSLMode:  "disable",
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			User: "guest",
		},
		DynamoDB: DynamoDBConfig{
			Region:       "us-east-1",
			CasesTable:   "cases",
			HistoryTable: "case_status_history",
		},
		Store:         StoreConfig{Driver: "postgres"},
		Notifications: NotificationsConfig{Driver: "rabbitmq", Timeout: 5 * time.Second},
		Logging:       LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path (a missing file is not an error), applies
// .env and environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional in every environment.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse yaml: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	overrideWithEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store.Driver == "postgres" && (c.Database.Host == "" || c.Database.Database == "") {
		return errors.New("invalid config: database host and name are required for the postgres store")
	}
	if c.Notifications.Driver == "sns" && c.SNS.TopicARN == "" {
		return errors.New("invalid config: sns.topic_arn is required for the sns notification driver")
	}
	return nil
}

func overrideWithEnv(cfg *Config) {
	setString(&cfg.Database.Host, "DATABASE_HOST")
	setInt(&cfg.Database.Port, "DATABASE_PORT")
	setString(&cfg.Database.User, "DATABASE_USER")
	setString(&cfg.Database.Password, "DATABASE_PASSWORD")
	setString(&cfg.Database.Database, "DATABASE_NAME")

	setString(&cfg.RabbitMQ.Host, "RABBITMQ_HOST")
	setInt(&cfg.RabbitMQ.Port, "RABBITMQ_PORT")
	setString(&cfg.RabbitMQ.User, "RABBITMQ_USER")
	setString(&cfg.RabbitMQ.Password, "RABBITMQ_PASSWORD")

	setString(&cfg.DynamoDB.Region, "AWS_REGION")
	setString(&cfg.DynamoDB.Endpoint, "DYNAMODB_ENDPOINT")
	setString(&cfg.SNS.TopicARN, "SNS_TOPIC_ARN")

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Store.Driver, "STORE_DRIVER")
	setString(&cfg.Notifications.Driver, "NOTIFICATIONS_DRIVER")
	setString(&cfg.Logging.Level, "LOG_LEVEL")

	if v := os.Getenv("REQUIRE_VERIFIED_PAYMENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Engine.RequireVerifiedPayment = b
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// ConnString returns the pgx keyword/value connection string.
func (c DatabaseConfig) ConnString() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslmode)
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.User, c.Password, c.Host, c.Port)
}
