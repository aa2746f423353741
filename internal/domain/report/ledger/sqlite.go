package ledger

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cleancity-server-go/internal/domain/report/aggregate"
	"cleancity-server-go/internal/platform/errors"
	"cleancity-server-go/internal/platform/storage"
)

// sqliteStore persists the ledger through the platform database.
type sqliteStore struct {
	db *gorm.DB
}

func newSQLiteStore(db *gorm.DB) *sqliteStore {
	return &sqliteStore{db: db}
}

func (s *sqliteStore) Put(ctx context.Context, record *aggregate.Record) error {
	model, err := toModel(record)
	if err != nil {
		return err
	}
	// Upsert keyed on the tracking ID so a colliding mint replaces the
	// earlier row instead of failing the unique index.
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "report_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "ledger.put", "failed to store report", err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*aggregate.Record, error) {
	var model storage.Report
	err := s.db.WithContext(ctx).Where("report_id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, aggregate.ErrReportNotFound
		}
		return nil, errors.Wrap(errors.KindStorage, "ledger.get", "failed to load report", err)
	}
	return fromModel(&model)
}

func (s *sqliteStore) MarkVerified(ctx context.Context, id string, at time.Time) (*aggregate.Record, error) {
	var model storage.Report
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("report_id = ?", id).First(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return aggregate.ErrReportNotFound
			}
			return errors.Wrap(errors.KindStorage, "ledger.verify", "failed to load report", err)
		}
		model.Verified = true
		model.VerifiedAt = &at
		if err := tx.Save(&model).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "ledger.verify", "failed to update report", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fromModel(&model)
}

func (s *sqliteStore) List(ctx context.Context) ([]*aggregate.Record, error) {
	var models []storage.Report
	err := s.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "ledger.list", "failed to list reports", err)
	}
	out := make([]*aggregate.Record, 0, len(models))
	for i := range models {
		record, err := fromModel(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var total, verified int64
	if err := s.db.WithContext(ctx).Model(&storage.Report{}).Count(&total).Error; err != nil {
		return Stats{}, errors.Wrap(errors.KindStorage, "ledger.stats", "failed to count reports", err)
	}
	if err := s.db.WithContext(ctx).Model(&storage.Report{}).
		Where("verified = ?", true).Count(&verified).Error; err != nil {
		return Stats{}, errors.Wrap(errors.KindStorage, "ledger.stats", "failed to count verified reports", err)
	}
	return Stats{Total: int(total), Verified: int(verified)}, nil
}

func (s *sqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(record *aggregate.Record) (*storage.Report, error) {
	model := &storage.Report{
		ReportID:   record.ID,
		CreatedAt:  record.CreatedAt,
		Latitude:   record.Location.Latitude,
		Longitude:  record.Location.Longitude,
		Details:    record.Details,
		Verified:   record.Verified,
		VerifiedAt: record.VerifiedAt,
	}
	if len(record.Extra) > 0 {
		raw, err := json.Marshal(record.Extra)
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "ledger.put", "failed to encode report metadata", err)
		}
		model.Metadata = raw
	}
	return model, nil
}

func fromModel(model *storage.Report) (*aggregate.Record, error) {
	record := &aggregate.Record{
		ID:        model.ReportID,
		CreatedAt: model.CreatedAt,
		Location: aggregate.Location{
			Latitude:  model.Latitude,
			Longitude: model.Longitude,
		},
		Details:    model.Details,
		Verified:   model.Verified,
		VerifiedAt: model.VerifiedAt,
	}
	if len(model.Metadata) > 0 {
		if err := json.Unmarshal(model.Metadata, &record.Extra); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "ledger.get", "failed to decode report metadata", err)
		}
	}
	return record, nil
}
