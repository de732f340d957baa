package service

import (
	"errors"

	"guild-warden/internal/gateway"
	"guild-warden/internal/models"
)

// PreconditionError rejects an operation before it changes anything.
// Message is shown to the member or staff that triggered it.
type PreconditionError struct {
	Reason  string
	Message string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

func precondition(reason, messageKey string, args ...interface{}) *PreconditionError {
	return &PreconditionError{Reason: reason, Message: models.Text(messageKey, args...)}
}

var (
	ErrRecordNotFound        = precondition("record not found", "record_not_found")
	ErrAppealWindowExpired   = precondition("appeal window expired", "appeal_window_expired")
	ErrAppealAlreadyUsed     = precondition("appeal already used", "appeal_already_used")
	ErrAppealFormExpired     = precondition("appeal form expired", "appeal_form_expired")
	ErrAppealEmpty           = precondition("appeal text empty", "appeal_empty")
	ErrAppealsChannelMissing = precondition("appeals channel missing", "appeals_channel_missing")
	ErrNotYourControl        = precondition("control belongs to another member", "not_your_button")
	ErrNotMuted              = precondition("member not muted", "not_muted")
	ErrNoAppealPending       = precondition("no appeal pending", "no_appeal_pending")
	ErrAppealAlreadyDecided  = precondition("appeal already decided", "appeal_already_decided")
)

// IsPrecondition reports whether err is a PreconditionError
func IsPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}

// PrivilegeError is a missing permission of the invoker, or of the bot when Missing is set.
// It matches gateway.ErrInsufficientPrivilege.
type PrivilegeError struct {
	Missing string
}

func (e *PrivilegeError) Error() string {
	if e.Missing == "" {
		return "invoker is not staff"
	}
	return "bot is missing permission " + e.Missing
}

func (e *PrivilegeError) Is(target error) bool {
	return target == gateway.ErrInsufficientPrivilege
}

// ErrNotStaff rejects invokers without moderation rights
var ErrNotStaff = &PrivilegeError{}
