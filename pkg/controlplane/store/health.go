package store

import (
	"context"
	"fmt"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

// Healthcheck reports whether the directory can serve password checks:
// the database answers and the users table is readable.
func (s *GORMStore) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("directory %s unreachable: %w", s.config.Type, err)
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Limit(1).Count(&n).Error; err != nil {
		return fmt.Errorf("directory users table: %w", err)
	}
	return nil
}

// Close releases the directory's connections. Validators and the admin API
// must not use the store afterwards.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	return sqlDB.Close()
}
