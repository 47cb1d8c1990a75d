package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/marmos91/dittobroker/pkg/controlplane/models"
)

func (s *GORMStore) GetSetting(ctx context.Context, key string) (string, error) {
	var setting models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return setting.Value, nil
}

func (s *GORMStore) SetSetting(ctx context.Context, key, value string) error {
	setting := models.Setting{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).Save(&setting).Error
}

func (s *GORMStore) DeleteSetting(ctx context.Context, key string) error {
	return deleteByField[models.Setting](s.db, ctx, "key", key, models.ErrSettingNotFound)
}

func (s *GORMStore) ListSettings(ctx context.Context) ([]*models.Setting, error) {
	return listAll[models.Setting](s.db, ctx, "key")
}

func (s *GORMStore) Intervals(ctx context.Context) (map[string]time.Duration, error) {
	var settings []models.Setting
	if err := s.db.WithContext(ctx).
		Where("key LIKE ?", models.IntervalSettingPrefix+"%").
		Find(&settings).Error; err != nil {
		return nil, err
	}

	out := make(map[string]time.Duration, len(settings))
	for _, st := range settings {
		d, err := time.ParseDuration(st.Value)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", st.Key, err)
		}
		out[strings.TrimPrefix(st.Key, models.IntervalSettingPrefix)] = d
	}
	return out, nil
}

func (s *GORMStore) SetInterval(ctx context.Context, task string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("interval for %s must be positive", task)
	}
	return s.SetSetting(ctx, models.IntervalSettingKey(task), d.String())
}
