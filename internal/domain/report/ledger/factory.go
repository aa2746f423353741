package ledger

import (
	"gorm.io/gorm"

	"cleancity-server-go/internal/platform/config"
	"cleancity-server-go/internal/platform/errors"
)

// Dependencies carries externally managed resources a driver may need.
type Dependencies struct {
	// SQLiteDB is the already-opened platform database. Required for the
	// sqlite driver; the factory does not open its own connection.
	SQLiteDB *gorm.DB
}

// New builds a Store for the configured driver. Supported drivers are
// "memory", "sqlite" and "redis"; an empty driver selects memory.
func New(cfg config.LedgerConfig, deps Dependencies) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return newMemoryStore(), nil
	case "sqlite":
		if deps.SQLiteDB == nil {
			return nil, errors.New(errors.KindStorage, "ledger.new", "sqlite driver requires an open database")
		}
		return newSQLiteStore(deps.SQLiteDB), nil
	case "redis":
		return newRedisStore(cfg.Redis)
	default:
		return nil, errors.New(errors.KindStorage, "ledger.new", "unknown ledger driver: "+cfg.Driver)
	}
}
