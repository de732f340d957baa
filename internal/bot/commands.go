package bot

import (
	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/handler"
)

// option names shared by several commands
const (
	optionMember   = "member"
	optionReason   = "reason"
	optionDuration = "duration"
	optionMinutes  = "minutes"
)

func memberOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        optionMember,
		Description: description,
		Required:    true,
	}
}

func reasonOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        optionReason,
		Description: "Reason shown to the member and in the log",
		MaxLength:   400,
	}
}

// Commands returns the slash commands the bot registers
func Commands() []*discordgo.ApplicationCommand {
	moderate := int64(discordgo.PermissionModerateMembers)
	minMinutes := float64(1)

	return []*discordgo.ApplicationCommand{
		{
			Name:                     handler.CommandBan,
			Description:              "Quarantine-ban a member (they can only see the banned channel and appeal)",
			DefaultMemberPermissions: &moderate,
			Options:                  []*discordgo.ApplicationCommandOption{memberOption("Member to quarantine"), reasonOption()},
		},
		{
			Name:                     handler.CommandMute,
			Description:              "Mute a member for a while",
			DefaultMemberPermissions: &moderate,
			Options: []*discordgo.ApplicationCommandOption{
				memberOption("Member to mute"),
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        optionDuration,
					Description: "How long, e.g. 10m, 2h, 1d",
					Required:    true,
				},
				reasonOption(),
			},
		},
		{
			Name:                     handler.CommandUnmute,
			Description:              "Lift a mute early",
			DefaultMemberPermissions: &moderate,
			Options:                  []*discordgo.ApplicationCommandOption{memberOption("Member to unmute")},
		},
		{
			Name:                     handler.CommandWarn,
			Description:              "Warn a member by direct message",
			DefaultMemberPermissions: &moderate,
			Options:                  []*discordgo.ApplicationCommandOption{memberOption("Member to warn"), reasonOption()},
		},
		{
			Name:                     handler.CommandKick,
			Description:              "Kick a member",
			DefaultMemberPermissions: &moderate,
			Options:                  []*discordgo.ApplicationCommandOption{memberOption("Member to kick"), reasonOption()},
		},
		{
			Name:                     handler.CommandTimeout,
			Description:              "Put a member in Discord timeout",
			DefaultMemberPermissions: &moderate,
			Options: []*discordgo.ApplicationCommandOption{
				memberOption("Member to time out"),
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        optionMinutes,
					Description: "Minutes, up to one week",
					Required:    true,
					MinValue:    &minMinutes,
					MaxValue:    10080,
				},
				reasonOption(),
			},
		},
	}
}

// commandOptions reads the arguments of a slash command. Unknown options are ignored.
func commandOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) handler.CommandOptions {
	var out handler.CommandOptions
	for _, o := range opts {
		switch o.Name {
		case optionMember:
			if s, ok := o.Value.(string); ok {
				out.Target = id(s)
			}
		case optionReason:
			if s, ok := o.Value.(string); ok {
				out.Reason = s
			}
		case optionDuration:
			if s, ok := o.Value.(string); ok {
				out.Duration = s
			}
		case optionMinutes:
			if f, ok := o.Value.(float64); ok {
				out.Minutes = int(f)
			}
		}
	}
	return out
}

func id(s string) snowflake.ID {
	v, err := snowflake.Parse(s)
	if err != nil {
		return 0
	}
	return v
}
