package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"guild-warden/internal/models"
)

// PermabanRepository handles database operations for ScheduledPermaban
type PermabanRepository struct {
	db *gorm.DB
}

func NewPermabanRepository(db *gorm.DB) *PermabanRepository {
	return &PermabanRepository{db: db}
}

func (r *PermabanRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.ScheduledPermaban{})
}

// Schedule creates the entry or overwrites a pending one for the same member
func (r *PermabanRepository) Schedule(ctx context.Context, p *models.ScheduledPermaban) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"execute_at", "reason", "banned_by", "attempts"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("schedule permaban %d/%d: %w", p.GuildID, p.UserID, err)
	}
	return nil
}

func (r *PermabanRepository) Get(ctx context.Context, guildID, userID snowflake.ID) (*models.ScheduledPermaban, error) {
	var p models.ScheduledPermaban
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).First(&p)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("get permaban %d/%d: %w", guildID, userID, result.Error)
	}
	return &p, nil
}

// Delete cancels a pending entry. A missing entry is not an error.
func (r *PermabanRepository) Delete(ctx context.Context, guildID, userID snowflake.ID) error {
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&models.ScheduledPermaban{})
	if result.Error != nil {
		return fmt.Errorf("delete permaban %d/%d: %w", guildID, userID, result.Error)
	}
	return nil
}

// PopDue removes and returns every entry due at now
func (r *PermabanRepository) PopDue(ctx context.Context, now int64) ([]models.ScheduledPermaban, error) {
	due, err := popDue(ctx, r.db, "execute_at", now, func(p *models.ScheduledPermaban) (snowflake.ID, snowflake.ID, int64) {
		return p.GuildID, p.UserID, p.ExecuteAt
	})
	if err != nil {
		return nil, fmt.Errorf("pop due permabans: %w", err)
	}
	return due, nil
}

func (r *PermabanRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.ScheduledPermaban{}).Count(&n).Error
	return n, err
}
