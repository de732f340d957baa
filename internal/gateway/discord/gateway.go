// Package discord implements gateway.Gateway on top of a discordgo session.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pkg/errors"

	"guild-warden/internal/gateway"
)

// markerRoleColor is the grey used for roles the bot creates
const markerRoleColor = 0x2f3136

type Gateway struct {
	s       *discordgo.Session
	timeout time.Duration
}

var _ gateway.Gateway = (*Gateway)(nil)

// New wraps an opened session. Every REST call is bounded by timeout.
func New(s *discordgo.Session, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{s: s, timeout: timeout}
}

func (g *Gateway) call(ctx context.Context) (discordgo.RequestOption, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	return discordgo.WithContext(ctx), cancel
}

// withReason adds the audit log reason header to a request
func withReason(opt discordgo.RequestOption, reason string) []discordgo.RequestOption {
	if reason == "" {
		return []discordgo.RequestOption{opt}
	}
	return []discordgo.RequestOption{opt, discordgo.WithAuditLogReason(truncateReason(reason))}
}

func id(s string) snowflake.ID {
	v, err := snowflake.Parse(s)
	if err != nil {
		return 0
	}
	return v
}

func ids(in []string) []snowflake.ID {
	out := make([]snowflake.ID, 0, len(in))
	for _, s := range in {
		if v := id(s); v != 0 {
			out = append(out, v)
		}
	}
	return out
}

func (g *Gateway) guild(ctx context.Context, guildID snowflake.ID) (*discordgo.Guild, error) {
	if guild, err := g.s.State.Guild(guildID.String()); err == nil {
		return guild, nil
	}
	opt, cancel := g.call(ctx)
	defer cancel()
	guild, err := g.s.Guild(guildID.String(), opt)
	if err != nil {
		return nil, classify("Guild", err)
	}
	return guild, nil
}

func (g *Gateway) Guild(ctx context.Context, guildID snowflake.ID) (*gateway.Guild, error) {
	guild, err := g.guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	return &gateway.Guild{ID: guildID, Name: guild.Name, OwnerID: id(guild.OwnerID)}, nil
}

func (g *Gateway) BotMember(ctx context.Context, guildID snowflake.ID) (*gateway.Member, error) {
	if g.s.State == nil || g.s.State.User == nil {
		return nil, errors.WithStack(gateway.Fail("BotMember", gateway.ErrTransient, errors.New("session not ready")))
	}
	return g.ResolveMember(ctx, guildID, id(g.s.State.User.ID))
}

func (g *Gateway) ResolveMember(ctx context.Context, guildID, userID snowflake.ID) (*gateway.Member, error) {
	m, err := g.s.State.Member(guildID.String(), userID.String())
	if err != nil {
		opt, cancel := g.call(ctx)
		defer cancel()
		m, err = g.s.GuildMember(guildID.String(), userID.String(), opt)
		if err != nil {
			return nil, classify("ResolveMember", err)
		}
	}

	guild, err := g.guild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	roles, err := g.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}

	member := &gateway.Member{GuildID: guildID, UserID: userID, RoleIDs: ids(m.Roles)}
	if m.User != nil {
		member.Username = m.User.Username
	}
	member.Permissions = gateway.ComputePermissions(guildID, id(guild.OwnerID), userID, roles, member.RoleIDs)
	return member, nil
}

func convertRoles(in []*discordgo.Role) []gateway.Role {
	out := make([]gateway.Role, 0, len(in))
	for _, r := range in {
		out = append(out, gateway.Role{
			ID:          id(r.ID),
			Name:        r.Name,
			Position:    r.Position,
			Permissions: r.Permissions,
			Managed:     r.Managed,
		})
	}
	return out
}

func (g *Gateway) Roles(ctx context.Context, guildID snowflake.ID) ([]gateway.Role, error) {
	if guild, err := g.s.State.Guild(guildID.String()); err == nil && len(guild.Roles) > 0 {
		return convertRoles(guild.Roles), nil
	}
	opt, cancel := g.call(ctx)
	defer cancel()
	roles, err := g.s.GuildRoles(guildID.String(), opt)
	if err != nil {
		return nil, classify("Roles", err)
	}
	return convertRoles(roles), nil
}

func (g *Gateway) EnsureRole(ctx context.Context, guildID snowflake.ID, name string) (*gateway.Role, error) {
	roles, err := g.Roles(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if r.Name == name {
			found := r
			return &found, nil
		}
	}

	opt, cancel := g.call(ctx)
	defer cancel()
	color := markerRoleColor
	created, err := g.s.GuildRoleCreate(guildID.String(), &discordgo.RoleParams{Name: name, Color: &color}, opt)
	if err != nil {
		return nil, classify("EnsureRole", err)
	}
	role := convertRoles([]*discordgo.Role{created})[0]
	return &role, nil
}

func (g *Gateway) channels(ctx context.Context, guildID snowflake.ID) ([]*discordgo.Channel, error) {
	if guild, err := g.s.State.Guild(guildID.String()); err == nil && len(guild.Channels) > 0 {
		return guild.Channels, nil
	}
	opt, cancel := g.call(ctx)
	defer cancel()
	chs, err := g.s.GuildChannels(guildID.String(), opt)
	if err != nil {
		return nil, classify("TextChannels", err)
	}
	return chs, nil
}

func (g *Gateway) TextChannels(ctx context.Context, guildID snowflake.ID) ([]gateway.Channel, error) {
	chs, err := g.channels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	var out []gateway.Channel
	for _, c := range chs {
		if c.Type == discordgo.ChannelTypeGuildText {
			out = append(out, gateway.Channel{ID: id(c.ID), Name: c.Name})
		}
	}
	return out, nil
}

func (g *Gateway) EnsureTextChannel(ctx context.Context, guildID snowflake.ID, name string) (*gateway.Channel, error) {
	chs, err := g.TextChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}
	for _, c := range chs {
		if c.Name == name {
			found := c
			return &found, nil
		}
	}

	opt, cancel := g.call(ctx)
	defer cancel()
	created, err := g.s.GuildChannelCreate(guildID.String(), name, discordgo.ChannelTypeGuildText, opt)
	if err != nil {
		return nil, classify("EnsureTextChannel", err)
	}
	return &gateway.Channel{ID: id(created.ID), Name: created.Name}, nil
}

// AssignRole relies on Discord treating PUT of a held role as a no-op
func (g *Gateway) AssignRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	return classify("AssignRole", g.s.GuildMemberRoleAdd(guildID.String(), userID.String(), roleID.String(), withReason(opt, reason)...))
}

func (g *Gateway) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	return classify("RemoveRole", g.s.GuildMemberRoleRemove(guildID.String(), userID.String(), roleID.String(), withReason(opt, reason)...))
}

// SetChannelPermission merges ow into the role's current overwrite on the channel
func (g *Gateway) SetChannelPermission(ctx context.Context, channelID, roleID snowflake.ID, ow gateway.Overwrite) error {
	ch, err := g.s.State.Channel(channelID.String())
	if err != nil {
		opt, cancel := g.call(ctx)
		ch, err = g.s.Channel(channelID.String(), opt)
		cancel()
		if err != nil {
			return classify("SetChannelPermission", err)
		}
	}

	var existing gateway.Overwrite
	for _, po := range ch.PermissionOverwrites {
		if po.ID == roleID.String() && po.Type == discordgo.PermissionOverwriteTypeRole {
			existing = gateway.Overwrite{Allow: po.Allow, Deny: po.Deny}
		}
	}
	merged := ow.Merge(existing)

	opt, cancel := g.call(ctx)
	defer cancel()
	err = g.s.ChannelPermissionSet(channelID.String(), roleID.String(), discordgo.PermissionOverwriteTypeRole, merged.Allow, merged.Deny, opt)
	return classify("SetChannelPermission", err)
}

func components(controls []gateway.Control) []discordgo.MessageComponent {
	if len(controls) == 0 {
		return nil
	}
	buttons := make([]discordgo.MessageComponent, 0, len(controls))
	for _, c := range controls {
		buttons = append(buttons, discordgo.Button{Label: c.Label, Style: buttonStyle(c.Style), CustomID: c.ID})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}

func buttonStyle(s gateway.ControlStyle) discordgo.ButtonStyle {
	switch s {
	case gateway.StyleSuccess:
		return discordgo.SuccessButton
	case gateway.StyleDanger:
		return discordgo.DangerButton
	case gateway.StyleSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

func (g *Gateway) SendDirectMessage(ctx context.Context, userID snowflake.ID, content string, controls ...gateway.Control) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	dm, err := g.s.UserChannelCreate(userID.String(), opt)
	if err != nil {
		return classify("SendDirectMessage", err)
	}
	_, err = g.s.ChannelMessageSendComplex(dm.ID, &discordgo.MessageSend{Content: content, Components: components(controls)}, opt)
	return classify("SendDirectMessage", err)
}

func (g *Gateway) SendChannelMessage(ctx context.Context, channelID snowflake.ID, content string) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	_, err := g.s.ChannelMessageSend(channelID.String(), content, opt)
	return classify("SendChannelMessage", err)
}

func (g *Gateway) PostInteractiveMessage(ctx context.Context, channelID snowflake.ID, content string, controls []gateway.Control) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	_, err := g.s.ChannelMessageSendComplex(channelID.String(), &discordgo.MessageSend{Content: content, Components: components(controls)}, opt)
	return classify("PostInteractiveMessage", err)
}

func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	return classify("DeleteMessage", g.s.ChannelMessageDelete(channelID.String(), messageID.String(), opt))
}

func (g *Gateway) ExecuteBan(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	return classify("ExecuteBan", g.s.GuildBanCreateWithReason(guildID.String(), userID.String(), truncateReason(reason), 0, opt))
}

func (g *Gateway) ExecuteKick(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	return classify("ExecuteKick", g.s.GuildMemberDeleteWithReason(guildID.String(), userID.String(), truncateReason(reason), opt))
}

func (g *Gateway) ExecuteTimeout(ctx context.Context, guildID, userID snowflake.ID, until time.Time, reason string) error {
	opt, cancel := g.call(ctx)
	defer cancel()
	return classify("ExecuteTimeout", g.s.GuildMemberTimeout(guildID.String(), userID.String(), &until, withReason(opt, reason)...))
}

// audit log reasons are capped at 512 characters
func truncateReason(reason string) string {
	r := []rune(reason)
	if len(r) > 512 {
		return string(r[:512])
	}
	return reason
}
