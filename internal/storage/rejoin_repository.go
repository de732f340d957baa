package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"

	"guild-warden/internal/models"
)

// RejoinRepository handles database operations for RejoinAbuseCounter
type RejoinRepository struct {
	db *gorm.DB
}

func NewRejoinRepository(db *gorm.DB) *RejoinRepository {
	return &RejoinRepository{db: db}
}

func (r *RejoinRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.RejoinAbuseCounter{})
}

// Increment bumps the counter, creating it at 1, and returns the new value
func (r *RejoinRepository) Increment(ctx context.Context, guildID, userID snowflake.ID, at int64) (int, error) {
	var count int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.RejoinAbuseCounter{}).
			Where("guild_id = ? AND user_id = ?", guildID, userID).
			Updates(map[string]interface{}{
				"rejoin_count":   gorm.Expr("rejoin_count + ?", 1),
				"last_rejoin_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			counter := &models.RejoinAbuseCounter{GuildID: guildID, UserID: userID, RejoinCount: 1, LastRejoinAt: at}
			if err := tx.Create(counter).Error; err != nil {
				return err
			}
			count = 1
			return nil
		}

		var counter models.RejoinAbuseCounter
		if err := tx.Where("guild_id = ? AND user_id = ?", guildID, userID).First(&counter).Error; err != nil {
			return err
		}
		count = counter.RejoinCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("increment rejoin %d/%d: %w", guildID, userID, err)
	}
	return count, nil
}

// Count returns the current value, 0 when there is no counter
func (r *RejoinRepository) Count(ctx context.Context, guildID, userID snowflake.ID) (int, error) {
	var counter models.RejoinAbuseCounter
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).First(&counter)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if result.Error != nil {
		return 0, fmt.Errorf("get rejoin %d/%d: %w", guildID, userID, result.Error)
	}
	return counter.RejoinCount, nil
}

func (r *RejoinRepository) Clear(ctx context.Context, guildID, userID snowflake.ID) error {
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&models.RejoinAbuseCounter{})
	if result.Error != nil {
		return fmt.Errorf("clear rejoin %d/%d: %w", guildID, userID, result.Error)
	}
	return nil
}
