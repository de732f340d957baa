package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/config"
	"guild-warden/internal/duration"
	"guild-warden/internal/gateway"
	"guild-warden/internal/logger"
	"guild-warden/internal/models"
	"guild-warden/internal/service"
)

// slash command names
const (
	CommandBan     = "ban"
	CommandMute    = "mute"
	CommandUnmute  = "unmute"
	CommandWarn    = "warn"
	CommandKick    = "kick"
	CommandTimeout = "timeout"
)

// Moderator is the workflow the router drives, implemented by service.Moderation
type Moderator interface {
	Config() config.ModerationConfig

	IssueBan(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, reason string) error
	OpenAppeal(ctx context.Context, guildID, actorID, userID snowflake.ID) (*service.AppealForm, error)
	SubmitAppeal(ctx context.Context, guildID, actorID, userID snowflake.ID, text string, issuedAt int64) error
	DecideAppeal(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, userID snowflake.ID, decision models.Decision) error
	OnMemberLeave(ctx context.Context, guildID, userID snowflake.ID) error
	OnMemberJoin(ctx context.Context, guildID, userID snowflake.ID) error

	IssueMute(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, length, reason string) (int64, error)
	Unmute(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID) error
	Warn(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, reason string) error
	Kick(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, reason string) error
	Timeout(ctx context.Context, guildID snowflake.ID, staff *gateway.Member, targetID snowflake.ID, minutes int, reason string) (int, error)
}

var _ Moderator = (*service.Moderation)(nil)

// Router turns one event into workflow calls and answers the invoker
type Router struct {
	mod Moderator
}

func NewRouter(mod Moderator) *Router {
	return &Router{mod: mod}
}

// Route handles ev. Failures the invoker was told about are not returned.
func (r *Router) Route(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case MemberJoined:
		return r.mod.OnMemberJoin(ctx, e.GuildID, e.UserID)
	case MemberLeft:
		return r.mod.OnMemberLeave(ctx, e.GuildID, e.UserID)
	case CommandInvoked:
		return r.command(ctx, e)
	case ControlActivated:
		return r.control(ctx, e)
	case FormSubmitted:
		return r.form(ctx, e)
	default:
		return fmt.Errorf("unknown event %T", ev)
	}
}

func (r *Router) command(ctx context.Context, e CommandInvoked) error {
	if e.GuildID == 0 || e.Invoker == nil {
		return e.Reply.Reply(ctx, models.Text("server_only"))
	}

	target := gateway.Mention(e.Options.Target)
	var (
		reply string
		err   error
	)
	switch e.Name {
	case CommandBan:
		if err = r.mod.IssueBan(ctx, e.GuildID, e.Invoker, e.Options.Target, e.Options.Reason); err == nil {
			reply = models.Text("ban_done", target, r.mod.Config().QuarantineChannel)
		}
	case CommandMute:
		var seconds int64
		if seconds, err = r.mod.IssueMute(ctx, e.GuildID, e.Invoker, e.Options.Target, e.Options.Duration, e.Options.Reason); err == nil {
			reply = models.Text("mute_done", target, duration.Format(seconds))
		}
	case CommandUnmute:
		if err = r.mod.Unmute(ctx, e.GuildID, e.Invoker, e.Options.Target); err == nil {
			reply = models.Text("unmute_done", target)
		}
	case CommandWarn:
		if err = r.mod.Warn(ctx, e.GuildID, e.Invoker, e.Options.Target, e.Options.Reason); err == nil {
			reply = models.Text("warn_done", target)
		}
	case CommandKick:
		if err = r.mod.Kick(ctx, e.GuildID, e.Invoker, e.Options.Target, e.Options.Reason); err == nil {
			reply = models.Text("kick_done", target)
		}
	case CommandTimeout:
		var minutes int
		if minutes, err = r.mod.Timeout(ctx, e.GuildID, e.Invoker, e.Options.Target, e.Options.Minutes, e.Options.Reason); err == nil {
			reply = models.Text("timeout_done", target, minutes)
		}
	default:
		reply = models.Text("unknown_command")
	}

	if err != nil {
		reply = describe(err)
		logFailure("/"+e.Name, err)
	}
	return e.Reply.Reply(ctx, reply)
}

func (r *Router) control(ctx context.Context, e ControlActivated) error {
	b, err := service.ParseBinding(e.ControlID)
	if err != nil {
		return err
	}

	switch b.Action {
	case service.ActionOpen:
		form, err := r.mod.OpenAppeal(ctx, b.GuildID, e.ActorID, b.UserID)
		if err != nil {
			logFailure("open appeal", err)
			return e.Reply.Reply(ctx, describe(err))
		}
		return e.Reply.OpenForm(ctx, form)

	case service.ActionApprove, service.ActionDecline:
		if e.Actor == nil {
			return e.Reply.Reply(ctx, models.Text("server_only"))
		}
		decision := models.DecisionApproved
		done := models.Text("approve_done")
		if b.Action == service.ActionDecline {
			decision = models.DecisionDeclined
			done = models.Text("decline_done", int64(r.mod.Config().PermabanDelay/time.Second))
		}
		if err := r.mod.DecideAppeal(ctx, b.GuildID, e.Actor, b.UserID, decision); err != nil {
			logFailure("decide appeal", err)
			return e.Reply.Reply(ctx, describe(err))
		}
		if err := e.Reply.DeleteSource(ctx); err != nil {
			logger.Warningf("Failed to remove decided appeal post of %d: %v", b.UserID, err)
		}
		return e.Reply.Reply(ctx, done)

	default:
		return fmt.Errorf("control %s is not a button", e.ControlID)
	}
}

func (r *Router) form(ctx context.Context, e FormSubmitted) error {
	b, err := service.ParseBinding(e.FormID)
	if err != nil {
		return err
	}
	if b.Action != service.ActionForm {
		return fmt.Errorf("control %s is not a form", e.FormID)
	}

	err = r.mod.SubmitAppeal(ctx, b.GuildID, e.ActorID, b.UserID, e.Fields[service.AppealFormField], b.IssuedAt)
	if err != nil {
		logFailure("submit appeal", err)
		return e.Reply.Reply(ctx, describe(err))
	}
	return e.Reply.Reply(ctx, models.Text("appeal_submitted"))
}

// describe turns a workflow error into the text shown to the invoker
func describe(err error) string {
	var pe *service.PreconditionError
	if errors.As(err, &pe) {
		return pe.Message
	}
	var priv *service.PrivilegeError
	if errors.As(err, &priv) {
		if priv.Missing != "" {
			return models.Text("missing_bot_permission", priv.Missing)
		}
		return models.Text("no_permission")
	}
	switch {
	case errors.Is(err, gateway.ErrTargetNotFound):
		return models.Text("user_not_in_server")
	case errors.Is(err, gateway.ErrInsufficientPrivilege):
		return models.Text("action_failed", "the member or role is above me, or I lack a permission")
	case errors.Is(err, context.DeadlineExceeded):
		return models.Text("action_failed", "Discord did not answer in time")
	default:
		return models.Text("action_failed", err.Error())
	}
}

// logFailure keeps expected refusals out of the error log
func logFailure(what string, err error) {
	if service.IsPrecondition(err) || errors.Is(err, gateway.ErrInsufficientPrivilege) || errors.Is(err, gateway.ErrTargetNotFound) {
		logger.Debugf("%s refused: %v", what, err)
		return
	}
	logger.Errorf("%s failed: %v", what, err)
}
