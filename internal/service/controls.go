package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"
)

const controlPrefix = "appeal"

// control actions
const (
	ActionOpen    = "open"
	ActionApprove = "approve"
	ActionDecline = "decline"
	ActionForm    = "form"
)

// AppealFormField is the id of the text input of the appeal form
const AppealFormField = "appeal"

// Binding is what a button or form id carries: the action and the quarantined member.
// IssuedAt is only set on forms.
type Binding struct {
	Action   string
	GuildID  snowflake.ID
	UserID   snowflake.ID
	IssuedAt int64
}

// ID encodes the binding as appeal:<action>:<guild>:<user>[:<issued>]
func (b Binding) ID() string {
	if b.Action == ActionForm {
		return fmt.Sprintf("%s:%s:%d:%d:%d", controlPrefix, b.Action, b.GuildID, b.UserID, b.IssuedAt)
	}
	return fmt.Sprintf("%s:%s:%d:%d", controlPrefix, b.Action, b.GuildID, b.UserID)
}

// IsAppealID reports whether id was produced by Binding.ID
func IsAppealID(id string) bool {
	return strings.HasPrefix(id, controlPrefix+":")
}

// ParseBinding decodes an id produced by Binding.ID
func ParseBinding(data string) (Binding, error) {
	parts := strings.Split(data, ":")
	if len(parts) < 4 || parts[0] != controlPrefix {
		return Binding{}, fmt.Errorf("invalid control id: %s", data)
	}

	b := Binding{Action: parts[1]}
	switch b.Action {
	case ActionOpen, ActionApprove, ActionDecline:
		if len(parts) != 4 {
			return Binding{}, fmt.Errorf("invalid control id: %s", data)
		}
	case ActionForm:
		if len(parts) != 5 {
			return Binding{}, fmt.Errorf("invalid form id: %s", data)
		}
		issued, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			return Binding{}, fmt.Errorf("invalid issue time: %v", err)
		}
		b.IssuedAt = issued
	default:
		return Binding{}, fmt.Errorf("unknown control action: %s", b.Action)
	}

	guildID, err := snowflake.Parse(parts[2])
	if err != nil {
		return Binding{}, fmt.Errorf("invalid guild ID: %v", err)
	}
	userID, err := snowflake.Parse(parts[3])
	if err != nil {
		return Binding{}, fmt.Errorf("invalid user ID: %v", err)
	}
	b.GuildID, b.UserID = guildID, userID
	return b, nil
}
