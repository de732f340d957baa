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

// QuarantineRepository handles database operations for QuarantineRecord
type QuarantineRepository struct {
	db *gorm.DB
}

func NewQuarantineRepository(db *gorm.DB) *QuarantineRepository {
	return &QuarantineRepository{db: db}
}

// MigrateTable ensures the quarantine table exists
func (r *QuarantineRepository) MigrateTable() error {
	return r.db.AutoMigrate(&models.QuarantineRecord{})
}

// Get returns the record of a member, nil when the member is not quarantined
func (r *QuarantineRepository) Get(ctx context.Context, guildID, userID snowflake.ID) (*models.QuarantineRecord, error) {
	var record models.QuarantineRecord
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).First(&record)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, fmt.Errorf("get quarantine %d/%d: %w", guildID, userID, result.Error)
	}
	return &record, nil
}

// Upsert creates the record or replaces the ban details of an existing one.
// Appeal bookkeeping of an existing record is kept.
func (r *QuarantineRepository) Upsert(ctx context.Context, record *models.QuarantineRecord) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "guild_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"roles_json", "banned_by", "ban_reason", "created_at"}),
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("upsert quarantine %d/%d: %w", record.GuildID, record.UserID, err)
	}
	return nil
}

// MarkAppealSubmitted counts an appeal and clears the previous decision
func (r *QuarantineRepository) MarkAppealSubmitted(ctx context.Context, guildID, userID snowflake.ID, text string, at int64) error {
	result := r.db.WithContext(ctx).Model(&models.QuarantineRecord{}).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Updates(map[string]interface{}{
			"appeal_count":     gorm.Expr("appeal_count + ?", 1),
			"last_appeal_at":   at,
			"last_appeal_text": text,
			"last_decision":    models.DecisionNone,
			"last_decision_by": 0,
			"last_decision_at": 0,
		})
	if result.Error != nil {
		return fmt.Errorf("mark appeal %d/%d: %w", guildID, userID, result.Error)
	}
	return nil
}

// SetDecision stores who decided the appeal, and how
func (r *QuarantineRepository) SetDecision(ctx context.Context, guildID, userID snowflake.ID, decision models.Decision, by snowflake.ID, at int64) error {
	result := r.db.WithContext(ctx).Model(&models.QuarantineRecord{}).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Updates(map[string]interface{}{
			"last_decision":    decision,
			"last_decision_by": by,
			"last_decision_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("set decision %d/%d: %w", guildID, userID, result.Error)
	}
	return nil
}

// SetRoles replaces the saved roles
func (r *QuarantineRepository) SetRoles(ctx context.Context, guildID, userID snowflake.ID, roles models.RoleList) error {
	result := r.db.WithContext(ctx).Model(&models.QuarantineRecord{}).
		Where("guild_id = ? AND user_id = ?", guildID, userID).
		Update("roles_json", roles)
	if result.Error != nil {
		return fmt.Errorf("set roles %d/%d: %w", guildID, userID, result.Error)
	}
	return nil
}

func (r *QuarantineRepository) Delete(ctx context.Context, guildID, userID snowflake.ID) error {
	result := r.db.WithContext(ctx).Where("guild_id = ? AND user_id = ?", guildID, userID).Delete(&models.QuarantineRecord{})
	if result.Error != nil {
		return fmt.Errorf("delete quarantine %d/%d: %w", guildID, userID, result.Error)
	}
	return nil
}

// Count returns the number of active quarantines
func (r *QuarantineRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.QuarantineRecord{}).Count(&n).Error
	return n, err
}
