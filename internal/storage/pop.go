package storage

import (
	"context"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"
)

// popDue selects the rows of T whose dueColumn is <= now and deletes them one by one
// by key and due time. Only rows this call actually deleted are returned, so
// overlapping pops never hand the same row to two callers.
func popDue[T any](ctx context.Context, db *gorm.DB, dueColumn string, now int64, key func(*T) (snowflake.ID, snowflake.ID, int64)) ([]T, error) {
	var popped []T
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []T
		if err := tx.Where(dueColumn+" <= ?", now).Order(dueColumn).Find(&due).Error; err != nil {
			return err
		}
		for i := range due {
			guildID, userID, at := key(&due[i])
			result := tx.Where("guild_id = ? AND user_id = ? AND "+dueColumn+" = ?", guildID, userID, at).Delete(new(T))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				popped = append(popped, due[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return popped, nil
}
