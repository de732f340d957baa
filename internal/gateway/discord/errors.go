package discord

import (
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"guild-warden/internal/gateway"
)

// Discord JSON error codes
const (
	codeUnknownChannel     = 10003
	codeUnknownGuild       = 10004
	codeUnknownMember      = 10007
	codeUnknownMessage     = 10008
	codeUnknownRole        = 10011
	codeUnknownUser        = 10013
	codeMissingAccess      = 50001
	codeCannotMessageUser  = 50007
	codeMissingPermissions = 50013
)

// classify maps a discordgo error onto the gateway sentinels
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return errors.WithStack(gateway.Fail(op, gateway.ErrTargetNotFound, err))
	}

	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return errors.WithStack(gateway.Fail(op, gateway.ErrTransient, err))
	}

	code := 0
	if rest.Message != nil {
		code = rest.Message.Code
	}
	switch code {
	case codeMissingPermissions, codeMissingAccess:
		return errors.WithStack(gateway.Fail(op, gateway.ErrInsufficientPrivilege, err))
	case codeUnknownMember, codeUnknownUser, codeUnknownGuild, codeUnknownRole, codeUnknownChannel, codeUnknownMessage:
		return errors.WithStack(gateway.Fail(op, gateway.ErrTargetNotFound, err))
	case codeCannotMessageUser:
		return errors.WithStack(gateway.Fail(op, gateway.ErrDeliveryBlocked, err))
	}

	if rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return errors.WithStack(gateway.Fail(op, gateway.ErrInsufficientPrivilege, err))
		case http.StatusNotFound:
			return errors.WithStack(gateway.Fail(op, gateway.ErrTargetNotFound, err))
		}
	}
	return errors.WithStack(gateway.Fail(op, gateway.ErrTransient, err))
}
