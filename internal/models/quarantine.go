package models

import "github.com/disgoorg/snowflake/v2"

// Decision is the staff verdict on the last appeal
type Decision string

const (
	DecisionNone     Decision = ""
	DecisionApproved Decision = "approved"
	DecisionDeclined Decision = "declined"
)

// QuarantineRecord holds one quarantine-banned member together with
// the roles taken from them and the state of their appeal.
// Timestamps are unix seconds.
type QuarantineRecord struct {
	GuildID        snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID         snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	Roles          RoleList     `gorm:"column:roles_json;not null"`
	BannedBy       snowflake.ID `gorm:"not null"`
	BanReason      string       `gorm:"type:text"`
	CreatedAt      int64        `gorm:"not null;autoCreateTime:false"`
	AppealCount    int          `gorm:"not null"`
	LastAppealAt   int64
	LastAppealText string       `gorm:"type:text"`
	LastDecision   Decision     `gorm:"type:varchar(16)"`
	LastDecisionBy snowflake.ID
	LastDecisionAt int64
}

func (QuarantineRecord) TableName() string {
	return "quarantine_bans"
}

// RejoinAbuseCounter counts how often a quarantined member left and came back
type RejoinAbuseCounter struct {
	GuildID      snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID       snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	RejoinCount  int          `gorm:"not null"`
	LastRejoinAt int64        `gorm:"not null"`
}

func (RejoinAbuseCounter) TableName() string {
	return "rejoin_abuse"
}

// ScheduledPermaban is a permanent ban waiting for its grace period to end
type ScheduledPermaban struct {
	GuildID   snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	UserID    snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	ExecuteAt int64        `gorm:"not null;index"`
	Reason    string       `gorm:"type:text"`
	BannedBy  snowflake.ID `gorm:"not null"`
	// failed execution attempts, used to bound re-scheduling after transient errors
	Attempts int `gorm:"not null"`
}

func (ScheduledPermaban) TableName() string {
	return "scheduled_permabans"
}
