// Package notify delivers moderation log entries.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/gateway"
	"guild-warden/internal/logger"
)

type Field struct {
	Name  string
	Value string
}

// Entry is one moderation log line
type Entry struct {
	GuildID snowflake.ID
	Title   string
	Fields  []Field
}

func (e Entry) With(name, value string) Entry {
	e.Fields = append(e.Fields, Field{Name: name, Value: value})
	return e
}

// Text renders the entry with Discord markdown
func (e Entry) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**", e.Title)
	for _, f := range e.Fields {
		fmt.Fprintf(&b, "\n**%s:** %s", f.Name, f.Value)
	}
	return b.String()
}

// Sink receives log entries. Delivery is best effort, failures are logged by the sink.
type Sink interface {
	Post(ctx context.Context, e Entry)
}

// ChannelSink posts entries to the guild text channel with the configured name
type ChannelSink struct {
	gw      gateway.Gateway
	channel string
}

func NewChannelSink(gw gateway.Gateway, channel string) *ChannelSink {
	return &ChannelSink{gw: gw, channel: channel}
}

func (s *ChannelSink) Post(ctx context.Context, e Entry) {
	channels, err := s.gw.TextChannels(ctx, e.GuildID)
	if err != nil {
		logger.Warningf("Mod-log: cannot list channels of guild %d: %v", e.GuildID, err)
		return
	}
	for _, c := range channels {
		if c.Name != s.channel {
			continue
		}
		if err := s.gw.SendChannelMessage(ctx, c.ID, e.Text()); err != nil {
			logger.Warningf("Mod-log: cannot post to #%s in guild %d: %v", s.channel, e.GuildID, err)
		}
		return
	}
	logger.Debugf("Mod-log: guild %d has no #%s channel", e.GuildID, s.channel)
}

// Multi fans an entry out to several sinks
type Multi []Sink

func (m Multi) Post(ctx context.Context, e Entry) {
	for _, s := range m {
		s.Post(ctx, e)
	}
}

// Discard drops every entry
type Discard struct{}

func (Discard) Post(context.Context, Entry) {}
