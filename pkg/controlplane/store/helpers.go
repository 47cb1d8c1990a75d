package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// getByField retrieves a single record of type T where field=value,
// mapping gorm.ErrRecordNotFound to notFoundErr.
func getByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) (*T, error) {
	var result T
	if err := db.WithContext(ctx).Where(field+" = ?", value).First(&result).Error; err != nil {
		return nil, convertNotFoundError(err, notFoundErr)
	}
	return &result, nil
}

// listAll returns every record of type T ordered by order.
func listAll[T any](db *gorm.DB, ctx context.Context, order string) ([]*T, error) {
	var results []*T
	if err := db.WithContext(ctx).Order(order).Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// createWithID assigns a UUID when currentID is empty and inserts entity.
// Unique constraint violations become dupErr.
func createWithID[T any](db *gorm.DB, ctx context.Context, entity *T, idSetter func(*T, string), currentID string, dupErr error) (string, error) {
	id := currentID
	if id == "" {
		id = uuid.New().String()
		idSetter(entity, id)
	}
	if err := db.WithContext(ctx).Create(entity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return "", dupErr
		}
		return "", err
	}
	return id, nil
}

// deleteByField deletes records of type T where field=value. Returns
// notFoundErr if nothing was deleted.
func deleteByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) error {
	var zero T
	result := db.WithContext(ctx).Where(field+" = ?", value).Delete(&zero)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFoundErr
	}
	return nil
}
