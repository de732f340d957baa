package handler

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/gateway"
	"guild-warden/internal/service"
)

// Event is one of MemberJoined, MemberLeft, CommandInvoked, ControlActivated or FormSubmitted
type Event interface {
	// Key is the (guild, member) pair the event is about, used to pick its shard
	Key() (guildID, userID snowflake.ID)
}

// Responder answers the interaction an event came from
type Responder interface {
	Reply(ctx context.Context, content string) error
	OpenForm(ctx context.Context, form *service.AppealForm) error
	// DeleteSource removes the message that carried the pressed control
	DeleteSource(ctx context.Context) error
}

type MemberJoined struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

func (e MemberJoined) Key() (snowflake.ID, snowflake.ID) { return e.GuildID, e.UserID }

type MemberLeft struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

func (e MemberLeft) Key() (snowflake.ID, snowflake.ID) { return e.GuildID, e.UserID }

// CommandOptions are the slash command arguments, unused ones stay zero
type CommandOptions struct {
	Target   snowflake.ID
	Reason   string
	Duration string
	Minutes  int
}

// CommandInvoked is a slash command. GuildID is zero when it was used in a DM.
type CommandInvoked struct {
	GuildID snowflake.ID
	Invoker *gateway.Member
	Name    string
	Options CommandOptions
	Reply   Responder
}

func (e CommandInvoked) Key() (snowflake.ID, snowflake.ID) { return e.GuildID, e.Options.Target }

// ControlActivated is a button press. Actor is nil when the button was pressed in a DM.
type ControlActivated struct {
	ControlID string
	ActorID   snowflake.ID
	Actor     *gateway.Member
	Reply     Responder
}

// Key uses the member bound to the control so decisions queue behind that member's other events
func (e ControlActivated) Key() (snowflake.ID, snowflake.ID) {
	if b, err := service.ParseBinding(e.ControlID); err == nil {
		return b.GuildID, b.UserID
	}
	return 0, e.ActorID
}

// FormSubmitted is a submitted modal with its text inputs by id
type FormSubmitted struct {
	FormID  string
	ActorID snowflake.ID
	Fields  map[string]string
	Reply   Responder
}

func (e FormSubmitted) Key() (snowflake.ID, snowflake.ID) {
	if b, err := service.ParseBinding(e.FormID); err == nil {
		return b.GuildID, b.UserID
	}
	return 0, e.ActorID
}
