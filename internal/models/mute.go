package models

import "github.com/disgoorg/snowflake/v2"

// MuteRecord is an active timed mute. EndsAt is unix seconds.
type MuteRecord struct {
	GuildID snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID  snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	EndsAt  int64        `gorm:"not null;index"`
	Roles   RoleList     `gorm:"column:roles_json;not null"`
	Reason  string       `gorm:"type:text"`
	MutedBy snowflake.ID `gorm:"not null"`
	// failed expiry attempts, reset by a new mute
	Attempts int `gorm:"not null;default:0"`
}

func (MuteRecord) TableName() string {
	return "mutes"
}
