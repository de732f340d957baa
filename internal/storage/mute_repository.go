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

// MuteRepository handles database operations for MuteRecord
type MuteRepository struct {
	db *gorm.DB
}

func NewMuteRepository(db *gorm.DB) *MuteRepository {
	return &MuteRepository{db: db}
}

func (r *MuteRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.MuteRecord{})
}

// Upsert creates the mute or overwrites the running one
func (r *MuteRepository) Upsert(ctx context.Context, m *models.MuteRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"ends_at", "roles_json", "reason", "muted_by", "attempts"}),
	}).Create(m).Error
	if err != nil {
		return fmt.Errorf("upsert mute %d/%d: %w", m.GuildID, m.UserID, err)
	}
	return nil
}

func (r *MuteRepository) Get(ctx context.Context, guildID, userID snowflake.ID) (*models.MuteRecord, error) {
	var m models.MuteRecord
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).First(&m)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("get mute %d/%d: %w", guildID, userID, result.Error)
	}
	return &m, nil
}

// Delete removes the mute and reports whether there was one
func (r *MuteRepository) Delete(ctx context.Context, guildID, userID snowflake.ID) (bool, error) {
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&models.MuteRecord{})
	if result.Error != nil {
		return false, fmt.Errorf("delete mute %d/%d: %w", guildID, userID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// PopDue removes and returns every mute that ended at or before now
func (r *MuteRepository) PopDue(ctx context.Context, now int64) ([]models.MuteRecord, error) {
	due, err := popDue(ctx, r.db, "ends_at", now, func(m *models.MuteRecord) (snowflake.ID, snowflake.ID, int64) {
		return m.GuildID, m.UserID, m.EndsAt
	})
	if err != nil {
		return nil, fmt.Errorf("pop due mutes: %w", err)
	}
	return due, nil
}

func (r *MuteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.MuteRecord{}).Count(&n).Error
	return n, err
}
