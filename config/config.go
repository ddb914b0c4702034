package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP       HTTPConfig       `yaml:"http"`
	GRPC       GRPCConfig       `yaml:"grpc"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Booking    BookingConfig    `yaml:"booking"`
	OTP        OTPConfig        `yaml:"otp"`
	Settlement SettlementConfig `yaml:"settlement"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Worker     WorkerConfig     `yaml:"worker"`
	Temporal   TemporalConfig   `yaml:"temporal"`
	Log        LogConfig        `yaml:"log"`
}

type HTTPConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type GRPCConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Name          string `yaml:"name"`
	SSLMode       string `yaml:"ssl_mode"`
	AutoMigrate   bool   `yaml:"auto_migrate"`
	RetryAttempts int    `yaml:"retry_attempts"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s", d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// MigrateURL is the golang-migrate pgx/v5 connection string.
func (d DatabaseConfig) MigrateURL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers            []string `yaml:"brokers"`
	BookingEventsTopic string   `yaml:"booking_events_topic"`
	NotificationsTopic string   `yaml:"notifications_topic"`
	GroupID            string   `yaml:"group_id"`
}

type BookingConfig struct {
	AcceptTTLMinutes    int `yaml:"accept_ttl_minutes"`
	ArrivalGraceMinutes int `yaml:"arrival_grace_minutes"`
	LockTTLSeconds      int `yaml:"lock_ttl_seconds"`
}

func (b BookingConfig) AcceptTTL() time.Duration {
	return time.Duration(b.AcceptTTLMinutes) * time.Minute
}

func (b BookingConfig) ArrivalGrace() time.Duration {
	return time.Duration(b.ArrivalGraceMinutes) * time.Minute
}

func (b BookingConfig) LockTTL() time.Duration {
	return time.Duration(b.LockTTLSeconds) * time.Second
}

type OTPConfig struct {
	Length      int `yaml:"length"`
	TTLMinutes  int `yaml:"ttl_minutes"`
	MaxAttempts int `yaml:"max_attempts"`
	MaxReissues int `yaml:"max_reissues"`
}

func (o OTPConfig) TTL() time.Duration {
	return time.Duration(o.TTLMinutes) * time.Minute
}

type SettlementConfig struct {
	// Mode is "percent" or "flat".
	Mode            string             `yaml:"mode"`
	Percent         float64            `yaml:"percent"`
	FlatFee         int64              `yaml:"flat_fee"`
	CategoryPercent map[string]float64 `yaml:"category_percent"`
}

type DemandTier struct {
	Above  int     `yaml:"above"`
	Factor float64 `yaml:"factor"`
}

const (
	FloorModeTarget  = "target"
	FloorModeTrigger = "trigger"
)

type PricingConfig struct {
	RulesCacheTTLSeconds int             `yaml:"rules_cache_ttl_seconds"`
	SeasonalFactors      map[int]float64 `yaml:"seasonal_factors"`
	DemandTiers          []DemandTier    `yaml:"demand_tiers"`
	FloorTrigger         float64         `yaml:"floor_trigger"`
	FloorTarget          float64         `yaml:"floor_target"`
	// FloorMode "target" lifts every price under FloorTarget; "trigger" lifts
	// only prices under FloorTrigger.
	FloorMode string `yaml:"floor_mode"`
}

func (p PricingConfig) RulesCacheTTL() time.Duration {
	return time.Duration(p.RulesCacheTTLSeconds) * time.Second
}

type WorkerConfig struct {
	ExpirationSweepMinutes int `yaml:"expiration_sweep_minutes"`
	AutoPriceIntervalHours int `yaml:"auto_price_interval_hours"`
	SweepBatchSize         int `yaml:"sweep_batch_size"`
}

type TemporalConfig struct {
	Address      string `yaml:"address"`
	Namespace    string `yaml:"namespace"`
	TaskQueue    string `yaml:"task_queue"`
	CronSchedule string `yaml:"cron_schedule"`
}

func (t TemporalConfig) Enabled() bool {
	return t.Address != ""
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{Address: ":8080"},
		GRPC: GRPCConfig{Address: ":9090"},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			User:          "agrirent",
			Name:          "agrirent",
			SSLMode:       "disable",
			RetryAttempts: 3,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Kafka: KafkaConfig{
			BookingEventsTopic: "booking-events",
			NotificationsTopic: "booking-notifications",
			GroupID:            "agrirent-worker",
		},
		Booking: BookingConfig{
			AcceptTTLMinutes:    60,
			ArrivalGraceMinutes: 120,
			LockTTLSeconds:      10,
		},
		OTP: OTPConfig{
			Length:      6,
			TTLMinutes:  15,
			MaxAttempts: 5,
			MaxReissues: 5,
		},
		Settlement: SettlementConfig{
			Mode:    "percent",
			Percent: 10,
		},
		Pricing: PricingConfig{
			RulesCacheTTLSeconds: 60,
			SeasonalFactors: map[int]float64{
				9: 1.15, 10: 1.15, 11: 1.15,
				3: 1.10, 4: 1.10, 5: 1.10,
			},
			DemandTiers: []DemandTier{
				{Above: 10, Factor: 1.20},
				{Above: 5, Factor: 1.10},
			},
			FloorTrigger: 0.90,
			FloorTarget:  0.95,
			FloorMode:    FloorModeTarget,
		},
		Worker: WorkerConfig{
			ExpirationSweepMinutes: 1,
			AutoPriceIntervalHours: 24,
			SweepBatchSize:         200,
		},
		Temporal: TemporalConfig{
			Namespace:    "default",
			TaskQueue:    "agrirent-autoprice",
			CronSchedule: "0 2 * * *",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets deployment secrets and addresses override the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TEMPORAL_ADDRESS"); v != "" {
		cfg.Temporal.Address = v
	}
}

func (c *Config) Validate() error {
	if c.OTP.Length < 4 || c.OTP.Length > 10 {
		return fmt.Errorf("otp.length must be between 4 and 10, got %d", c.OTP.Length)
	}
	if c.OTP.TTLMinutes <= 0 {
		return fmt.Errorf("otp.ttl_minutes must be positive")
	}
	if c.OTP.MaxAttempts <= 0 || c.OTP.MaxReissues < 0 {
		return fmt.Errorf("otp.max_attempts must be positive and otp.max_reissues non-negative")
	}
	switch c.Settlement.Mode {
	case "percent":
		if c.Settlement.Percent < 0 || c.Settlement.Percent > 100 {
			return fmt.Errorf("settlement.percent must be within [0, 100]")
		}
	case "flat":
		if c.Settlement.FlatFee < 0 {
			return fmt.Errorf("settlement.flat_fee must be non-negative")
		}
	default:
		return fmt.Errorf("settlement.mode must be percent or flat, got %q", c.Settlement.Mode)
	}
	for category, pct := range c.Settlement.CategoryPercent {
		if pct < 0 || pct > 100 {
			return fmt.Errorf("settlement.category_percent[%s] must be within [0, 100]", category)
		}
	}
	if c.Pricing.FloorTarget < 0 || c.Pricing.FloorTrigger < 0 {
		return fmt.Errorf("pricing floor factors must be non-negative")
	}
	switch c.Pricing.FloorMode {
	case FloorModeTarget, FloorModeTrigger:
	default:
		return fmt.Errorf("pricing.floor_mode must be %s or %s, got %q", FloorModeTarget, FloorModeTrigger, c.Pricing.FloorMode)
	}
	if c.Worker.ExpirationSweepMinutes <= 0 || c.Worker.AutoPriceIntervalHours <= 0 {
		return fmt.Errorf("worker intervals must be positive")
	}
	return nil
}
