package config

import (
	"time"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Log          LogConfig          `yaml:"log"`
	Web          WebConfig          `yaml:"web"`
	Ledger       LedgerConfig       `yaml:"ledger"`
	Compression  CompressionConfig  `yaml:"compression"`
	Delivery     DeliveryConfig     `yaml:"delivery"`
	Tracking     TrackingConfig     `yaml:"tracking"`
	Lifecycle    LifecycleConfig    `yaml:"lifecycle"`
	Verification VerificationConfig `yaml:"verification"`
}

type ServerConfig struct {
	Token     string `yaml:"token"`
	JWTSecret string `yaml:"jwt_secret"`
	AdminUser string `yaml:"admin_user"`
	AdminPass string `yaml:"admin_pass"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

type WebConfig struct {
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// LedgerConfig selects and configures the report ledger driver.
type LedgerConfig struct {
	Driver string            `yaml:"driver"`
	SQLite LedgerSQLiteStore `yaml:"sqlite,omitempty"`
	Redis  LedgerRedisStore  `yaml:"redis,omitempty"`
}

type LedgerSQLiteStore struct {
	Path string `yaml:"path,omitempty"`
}

type LedgerRedisStore struct {
	Addr     string `yaml:"addr"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// CompressionConfig tunes the photo compressor. Quality values are integer
// percentages as accepted by the JPEG encoder.
type CompressionConfig struct {
	TargetKB     int `yaml:"target_kb"`
	MaxDimension int `yaml:"max_dimension"`
	QualityStart int `yaml:"quality_start"`
	QualityFloor int `yaml:"quality_floor"`
	QualityStep  int `yaml:"quality_step"`
}

// DeliveryConfig configures the outbound report channel.
type DeliveryConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	ServiceID  string        `yaml:"service_id"`
	TemplateID string        `yaml:"template_id"`
	PublicKey  string        `yaml:"public_key"`
	FromName   string        `yaml:"from_name"`
	Timeout    time.Duration `yaml:"timeout"`
}

// TrackingConfig holds the simulated-progress thresholds.
type TrackingConfig struct {
	ReviewAfter   time.Duration `yaml:"review_after"`
	DispatchAfter time.Duration `yaml:"dispatch_after"`
}

// LifecycleConfig tunes the loading choreography and session retention.
type LifecycleConfig struct {
	StaffLookupAfter time.Duration `yaml:"staff_lookup_after"`
	AssignmentAfter  time.Duration `yaml:"assignment_after"`
	SessionTTL       time.Duration `yaml:"session_ttl"`
}

type VerificationConfig struct {
	BaseURL string `yaml:"base_url"`
}
