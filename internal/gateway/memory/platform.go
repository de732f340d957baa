// Package memory is an in-process platform implementing gateway.Gateway.
// It enforces the same rank and permission rules as Discord so workflow
// tests can observe what the bot is and is not allowed to do.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/gateway"
)

type Message struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	Content   string
	Controls  []gateway.Control
}

type Ban struct {
	UserID snowflake.ID
	Reason string
}

type Timeout struct {
	UserID snowflake.ID
	Until  time.Time
	Reason string
}

type member struct {
	name  string
	roles []snowflake.ID
}

type channel struct {
	gateway.Channel
	overwrites map[snowflake.ID]gateway.Overwrite
}

type guild struct {
	info     gateway.Guild
	roles    map[snowflake.ID]*gateway.Role
	members  map[snowflake.ID]*member
	channels []*channel
	bans     []Ban
	kicks    []Ban
	timeouts []Timeout
}

// Platform holds guilds, members and everything the bot sent
type Platform struct {
	mu       sync.Mutex
	botID    snowflake.ID
	nextID   snowflake.ID
	guilds   map[snowflake.ID]*guild
	dms      map[snowflake.ID][]Message
	blocked  map[snowflake.ID]bool
	messages map[snowflake.ID][]Message
	failures map[string][]error
	calls    map[string]int
}

var _ gateway.Gateway = (*Platform)(nil)

func New(botID snowflake.ID) *Platform {
	return &Platform{
		botID:    botID,
		nextID:   1_000_000,
		guilds:   make(map[snowflake.ID]*guild),
		dms:      make(map[snowflake.ID][]Message),
		blocked:  make(map[snowflake.ID]bool),
		messages: make(map[snowflake.ID][]Message),
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

func (p *Platform) newID() snowflake.ID {
	p.nextID++
	return p.nextID
}

// AddGuild creates a guild with its @everyone role and the bot as a member
func (p *Platform) AddGuild(id snowflake.ID, name string, ownerID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := &guild{
		info:    gateway.Guild{ID: id, Name: name, OwnerID: ownerID},
		roles:   map[snowflake.ID]*gateway.Role{id: {ID: id, Name: "@everyone", Position: 0}},
		members: map[snowflake.ID]*member{p.botID: {name: "warden"}},
	}
	p.guilds[id] = g
}

func (p *Platform) AddRole(guildID snowflake.ID, role gateway.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r := role
	p.guilds[guildID].roles[role.ID] = &r
}

func (p *Platform) AddMember(guildID, userID snowflake.ID, name string, roles ...snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := p.guilds[guildID]
	if m, ok := g.members[userID]; ok {
		m.name = name
		m.roles = append([]snowflake.ID(nil), roles...)
		return
	}
	g.members[userID] = &member{name: name, roles: append([]snowflake.ID(nil), roles...)}
}

func (p *Platform) RemoveMember(guildID, userID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.guilds[guildID].members, userID)
}

func (p *Platform) AddTextChannel(guildID, channelID snowflake.ID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := p.guilds[guildID]
	g.channels = append(g.channels, &channel{
		Channel:    gateway.Channel{ID: channelID, Name: name},
		overwrites: make(map[snowflake.ID]gateway.Overwrite),
	})
}

// BlockDirectMessages makes every DM to userID fail with ErrDeliveryBlocked
func (p *Platform) BlockDirectMessages(userID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked[userID] = true
}

// FailNext makes the next call of op (the Gateway method name) return err
func (p *Platform) FailNext(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op] = append(p.failures[op], err)
}

// Calls returns how often op was called
func (p *Platform) Calls(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[op]
}

func (p *Platform) MemberRoles(guildID, userID snowflake.ID) []snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.guilds[guildID].members[userID]
	if !ok {
		return nil
	}
	return append([]snowflake.ID(nil), m.roles...)
}

func (p *Platform) IsMember(guildID, userID snowflake.ID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.guilds[guildID].members[userID]
	return ok
}

func (p *Platform) RoleByName(guildID snowflake.ID, name string) *gateway.Role {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r := p.guilds[guildID].roleByName(name); r != nil {
		copied := *r
		return &copied
	}
	return nil
}

func (p *Platform) ChannelByName(guildID snowflake.ID, name string) *gateway.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := p.guilds[guildID].channelByName(name); c != nil {
		copied := c.Channel
		return &copied
	}
	return nil
}

func (p *Platform) Overwrite(guildID, channelID, roleID snowflake.ID) (gateway.Overwrite, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.guilds[guildID].channels {
		if c.ID == channelID {
			ow, ok := c.overwrites[roleID]
			return ow, ok
		}
	}
	return gateway.Overwrite{}, false
}

func (p *Platform) DirectMessages(userID snowflake.ID) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.dms[userID]...)
}

func (p *Platform) ChannelMessages(channelID snowflake.ID) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.messages[channelID]...)
}

func (p *Platform) Bans(guildID snowflake.ID) []Ban {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Ban(nil), p.guilds[guildID].bans...)
}

func (p *Platform) Kicks(guildID snowflake.ID) []Ban {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Ban(nil), p.guilds[guildID].kicks...)
}

func (p *Platform) Timeouts(guildID snowflake.ID) []Timeout {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Timeout(nil), p.guilds[guildID].timeouts...)
}

func (g *guild) roleByName(name string) *gateway.Role {
	for _, r := range g.sortedRoles() {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func (g *guild) channelByName(name string) *channel {
	for _, c := range g.channels {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func (g *guild) sortedRoles() []*gateway.Role {
	out := make([]*gateway.Role, 0, len(g.roles))
	for _, r := range g.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (g *guild) roleList() []gateway.Role {
	sorted := g.sortedRoles()
	out := make([]gateway.Role, len(sorted))
	for i, r := range sorted {
		out[i] = *r
	}
	return out
}

func (g *guild) topPosition(userID snowflake.ID) int {
	if userID == g.info.OwnerID {
		return int(^uint(0) >> 1)
	}
	m, ok := g.members[userID]
	if !ok {
		return 0
	}
	top := 0
	for _, id := range m.roles {
		if r, ok := g.roles[id]; ok && r.Position > top {
			top = r.Position
		}
	}
	return top
}

func (g *guild) permissions(userID snowflake.ID) int64 {
	m, ok := g.members[userID]
	if !ok {
		return 0
	}
	return gateway.ComputePermissions(g.info.ID, g.info.OwnerID, userID, g.roleList(), m.roles)
}

// enter records the call and returns a queued failure for op
func (p *Platform) enter(op string) error {
	p.calls[op]++
	if queued := p.failures[op]; len(queued) > 0 {
		p.failures[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (p *Platform) lookup(op string, guildID snowflake.ID) (*guild, error) {
	g, ok := p.guilds[guildID]
	if !ok {
		return nil, gateway.Fail(op, gateway.ErrTargetNotFound, fmt.Errorf("unknown guild %d", guildID))
	}
	return g, nil
}

func (p *Platform) requirePermission(op string, g *guild, perm int64) error {
	if g.permissions(p.botID)&(perm|gateway.PermissionAdministrator) == 0 {
		return gateway.Fail(op, gateway.ErrInsufficientPrivilege, fmt.Errorf("missing permission %d", perm))
	}
	return nil
}

// outranks reports whether the bot may act on target
func (p *Platform) outranks(g *guild, target snowflake.ID) bool {
	if target == g.info.OwnerID {
		return false
	}
	return g.topPosition(p.botID) > g.topPosition(target)
}

func (p *Platform) Guild(ctx context.Context, guildID snowflake.ID) (*gateway.Guild, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("Guild"); err != nil {
		return nil, err
	}
	g, err := p.lookup("Guild", guildID)
	if err != nil {
		return nil, err
	}
	info := g.info
	return &info, nil
}

func (p *Platform) BotMember(ctx context.Context, guildID snowflake.ID) (*gateway.Member, error) {
	return p.ResolveMember(ctx, guildID, p.botID)
}

func (p *Platform) ResolveMember(ctx context.Context, guildID, userID snowflake.ID) (*gateway.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ResolveMember"); err != nil {
		return nil, err
	}
	g, err := p.lookup("ResolveMember", guildID)
	if err != nil {
		return nil, err
	}
	m, ok := g.members[userID]
	if !ok {
		return nil, gateway.Fail("ResolveMember", gateway.ErrTargetNotFound, fmt.Errorf("unknown member %d", userID))
	}
	return &gateway.Member{
		GuildID:     guildID,
		UserID:      userID,
		Username:    m.name,
		RoleIDs:     append([]snowflake.ID(nil), m.roles...),
		Permissions: g.permissions(userID),
	}, nil
}

func (p *Platform) Roles(ctx context.Context, guildID snowflake.ID) ([]gateway.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("Roles"); err != nil {
		return nil, err
	}
	g, err := p.lookup("Roles", guildID)
	if err != nil {
		return nil, err
	}
	return g.roleList(), nil
}

// EnsureRole creates missing roles right above @everyone, like Discord does
func (p *Platform) EnsureRole(ctx context.Context, guildID snowflake.ID, name string) (*gateway.Role, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("EnsureRole"); err != nil {
		return nil, err
	}
	g, err := p.lookup("EnsureRole", guildID)
	if err != nil {
		return nil, err
	}
	if r := g.roleByName(name); r != nil {
		copied := *r
		return &copied, nil
	}
	if err := p.requirePermission("EnsureRole", g, gateway.PermissionManageRoles); err != nil {
		return nil, err
	}
	for _, r := range g.roles {
		if r.Position >= 1 {
			r.Position++
		}
	}
	role := &gateway.Role{ID: p.newID(), Name: name, Position: 1}
	g.roles[role.ID] = role
	copied := *role
	return &copied, nil
}

func (p *Platform) TextChannels(ctx context.Context, guildID snowflake.ID) ([]gateway.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("TextChannels"); err != nil {
		return nil, err
	}
	g, err := p.lookup("TextChannels", guildID)
	if err != nil {
		return nil, err
	}
	out := make([]gateway.Channel, len(g.channels))
	for i, c := range g.channels {
		out[i] = c.Channel
	}
	return out, nil
}

func (p *Platform) EnsureTextChannel(ctx context.Context, guildID snowflake.ID, name string) (*gateway.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("EnsureTextChannel"); err != nil {
		return nil, err
	}
	g, err := p.lookup("EnsureTextChannel", guildID)
	if err != nil {
		return nil, err
	}
	if c := g.channelByName(name); c != nil {
		copied := c.Channel
		return &copied, nil
	}
	if err := p.requirePermission("EnsureTextChannel", g, gateway.PermissionManageChannels); err != nil {
		return nil, err
	}
	c := &channel{Channel: gateway.Channel{ID: p.newID(), Name: name}, overwrites: make(map[snowflake.ID]gateway.Overwrite)}
	g.channels = append(g.channels, c)
	copied := c.Channel
	return &copied, nil
}

func (p *Platform) mutateRole(op string, guildID, userID, roleID snowflake.ID, apply func(m *member)) error {
	if err := p.enter(op); err != nil {
		return err
	}
	g, err := p.lookup(op, guildID)
	if err != nil {
		return err
	}
	if err := p.requirePermission(op, g, gateway.PermissionManageRoles); err != nil {
		return err
	}
	m, ok := g.members[userID]
	if !ok {
		return gateway.Fail(op, gateway.ErrTargetNotFound, fmt.Errorf("unknown member %d", userID))
	}
	role, ok := g.roles[roleID]
	if !ok {
		return gateway.Fail(op, gateway.ErrTargetNotFound, fmt.Errorf("unknown role %d", roleID))
	}
	if role.Managed || roleID == guildID || role.Position >= g.topPosition(p.botID) {
		return gateway.Fail(op, gateway.ErrInsufficientPrivilege, fmt.Errorf("role %d is above the bot", roleID))
	}
	apply(m)
	return nil
}

func (p *Platform) AssignRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mutateRole("AssignRole", guildID, userID, roleID, func(m *member) {
		for _, r := range m.roles {
			if r == roleID {
				return
			}
		}
		m.roles = append(m.roles, roleID)
	})
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mutateRole("RemoveRole", guildID, userID, roleID, func(m *member) {
		kept := m.roles[:0]
		for _, r := range m.roles {
			if r != roleID {
				kept = append(kept, r)
			}
		}
		m.roles = kept
	})
}

func (p *Platform) SetChannelPermission(ctx context.Context, channelID, roleID snowflake.ID, ow gateway.Overwrite) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("SetChannelPermission"); err != nil {
		return err
	}
	for _, g := range p.guilds {
		for _, c := range g.channels {
			if c.ID != channelID {
				continue
			}
			if err := p.requirePermission("SetChannelPermission", g, gateway.PermissionManageRoles); err != nil {
				return err
			}
			c.overwrites[roleID] = ow.Merge(c.overwrites[roleID])
			return nil
		}
	}
	return gateway.Fail("SetChannelPermission", gateway.ErrTargetNotFound, fmt.Errorf("unknown channel %d", channelID))
}

func (p *Platform) SendDirectMessage(ctx context.Context, userID snowflake.ID, content string, controls ...gateway.Control) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("SendDirectMessage"); err != nil {
		return err
	}
	if p.blocked[userID] {
		return gateway.Fail("SendDirectMessage", gateway.ErrDeliveryBlocked, nil)
	}
	p.dms[userID] = append(p.dms[userID], Message{ID: p.newID(), Content: content, Controls: controls})
	return nil
}

func (p *Platform) hasChannel(channelID snowflake.ID) bool {
	for _, g := range p.guilds {
		for _, c := range g.channels {
			if c.ID == channelID {
				return true
			}
		}
	}
	return false
}

func (p *Platform) post(op string, channelID snowflake.ID, content string, controls []gateway.Control) error {
	if err := p.enter(op); err != nil {
		return err
	}
	if !p.hasChannel(channelID) {
		return gateway.Fail(op, gateway.ErrTargetNotFound, fmt.Errorf("unknown channel %d", channelID))
	}
	p.messages[channelID] = append(p.messages[channelID], Message{ID: p.newID(), ChannelID: channelID, Content: content, Controls: controls})
	return nil
}

func (p *Platform) SendChannelMessage(ctx context.Context, channelID snowflake.ID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.post("SendChannelMessage", channelID, content, nil)
}

func (p *Platform) PostInteractiveMessage(ctx context.Context, channelID snowflake.ID, content string, controls []gateway.Control) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.post("PostInteractiveMessage", channelID, content, controls)
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("DeleteMessage"); err != nil {
		return err
	}
	msgs := p.messages[channelID]
	for i, m := range msgs {
		if m.ID == messageID {
			p.messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return gateway.Fail("DeleteMessage", gateway.ErrTargetNotFound, fmt.Errorf("unknown message %d", messageID))
}

func (p *Platform) ExecuteBan(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ExecuteBan"); err != nil {
		return err
	}
	g, err := p.lookup("ExecuteBan", guildID)
	if err != nil {
		return err
	}
	if err := p.requirePermission("ExecuteBan", g, gateway.PermissionBanMembers); err != nil {
		return err
	}
	if _, ok := g.members[userID]; (ok || userID == g.info.OwnerID) && !p.outranks(g, userID) {
		return gateway.Fail("ExecuteBan", gateway.ErrInsufficientPrivilege, fmt.Errorf("member %d outranks the bot", userID))
	}
	delete(g.members, userID)
	g.bans = append(g.bans, Ban{UserID: userID, Reason: reason})
	return nil
}

func (p *Platform) ExecuteKick(ctx context.Context, guildID, userID snowflake.ID, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ExecuteKick"); err != nil {
		return err
	}
	g, err := p.lookup("ExecuteKick", guildID)
	if err != nil {
		return err
	}
	if err := p.requirePermission("ExecuteKick", g, gateway.PermissionKickMembers); err != nil {
		return err
	}
	if _, ok := g.members[userID]; !ok {
		return gateway.Fail("ExecuteKick", gateway.ErrTargetNotFound, fmt.Errorf("unknown member %d", userID))
	}
	if !p.outranks(g, userID) {
		return gateway.Fail("ExecuteKick", gateway.ErrInsufficientPrivilege, fmt.Errorf("member %d outranks the bot", userID))
	}
	delete(g.members, userID)
	g.kicks = append(g.kicks, Ban{UserID: userID, Reason: reason})
	return nil
}

func (p *Platform) ExecuteTimeout(ctx context.Context, guildID, userID snowflake.ID, until time.Time, reason string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.enter("ExecuteTimeout"); err != nil {
		return err
	}
	g, err := p.lookup("ExecuteTimeout", guildID)
	if err != nil {
		return err
	}
	if err := p.requirePermission("ExecuteTimeout", g, gateway.PermissionModerateMembers); err != nil {
		return err
	}
	if _, ok := g.members[userID]; !ok {
		return gateway.Fail("ExecuteTimeout", gateway.ErrTargetNotFound, fmt.Errorf("unknown member %d", userID))
	}
	if !p.outranks(g, userID) {
		return gateway.Fail("ExecuteTimeout", gateway.ErrInsufficientPrivilege, fmt.Errorf("member %d outranks the bot", userID))
	}
	g.timeouts = append(g.timeouts, Timeout{UserID: userID, Until: until, Reason: reason})
	return nil
}
