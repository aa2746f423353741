package config

import "time"

// Default returns the configuration used when no config file is present.
// The compression and tracking values mirror the behaviour of the original
// reporting front-end and should not be changed casually: stored report ids
// and shared verification links depend on them.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			JWTSecret: "cleancity_jwt_secret",
			AdminUser: "admin",
			AdminPass: "admin",
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Port:      8080,
			StaticDir: "./web",
		},
		Ledger: LedgerConfig{
			Driver: "sqlite",
			SQLite: LedgerSQLiteStore{Path: "./data/cleancity.db"},
		},
		Compression: CompressionConfig{
			TargetKB:     40,
			MaxDimension: 800,
			QualityStart: 70,
			QualityFloor: 10,
			QualityStep:  10,
		},
		Delivery: DeliveryConfig{
			Endpoint: "https://api.emailjs.com/api/v1.0/email/send",
			FromName: "Citizen Report",
			Timeout:  15 * time.Second,
		},
		Tracking: TrackingConfig{
			ReviewAfter:   5 * time.Second,
			DispatchAfter: 10 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			StaffLookupAfter: 5 * time.Second,
			AssignmentAfter:  8 * time.Second,
			SessionTTL:       30 * time.Minute,
		},
		Verification: VerificationConfig{
			BaseURL: "http://localhost:8080",
		},
	}
}
