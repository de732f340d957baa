package notify

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-warden/internal/gateway/memory"
	"guild-warden/internal/logger"
)

func TestEntryText(t *testing.T) {
	e := Entry{Title: "Member muted"}.With("Member", "alice").With("Reason", "spam")
	assert.Equal(t, "**Member muted**\n**Member:** alice\n**Reason:** spam", e.Text())
}

func TestChannelSink(t *testing.T) {
	logger.SetOutput(io.Discard, "ERROR")
	p := memory.New(2)
	p.AddGuild(1, "g", 3)
	p.AddTextChannel(1, 10, "general")
	p.AddTextChannel(1, 11, "mod-log")

	sink := NewChannelSink(p, "mod-log")
	sink.Post(context.Background(), Entry{GuildID: 1, Title: "hello"})

	msgs := p.ChannelMessages(11)
	require.Len(t, msgs, 1)
	assert.Equal(t, "**hello**", msgs[0].Content)
	assert.Empty(t, p.ChannelMessages(10))

	// missing channel and unknown guild are silently dropped
	NewChannelSink(p, "audit").Post(context.Background(), Entry{GuildID: 1, Title: "x"})
	sink.Post(context.Background(), Entry{GuildID: 99, Title: "x"})
	assert.Len(t, p.ChannelMessages(11), 1)
}

type fakeSender struct {
	sent []*telego.SendMessageParams
	err  error
}

func (f *fakeSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	f.sent = append(f.sent, params)
	return &telego.Message{}, f.err
}

func TestTelegramSink(t *testing.T) {
	logger.SetOutput(io.Discard, "ERROR")
	sender := &fakeSender{}
	sink := &TelegramSink{bot: sender, chatID: -100}

	sink.Post(context.Background(), Entry{GuildID: 5, Title: "Ban <x>"}.With("Reason", "a & b"))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, int64(-100), sender.sent[0].ChatID.ID)
	assert.Equal(t, "HTML", sender.sent[0].ParseMode)
	assert.Equal(t, "<b>Ban &lt;x&gt;</b>\n<i>guild 5</i>\n<b>Reason:</b> a &amp; b", sender.sent[0].Text)

	sender.err = errors.New("down")
	sink.Post(context.Background(), Entry{Title: "again"})
	assert.Len(t, sender.sent, 2)
}

func TestMulti(t *testing.T) {
	a, b := &fakeSender{}, &fakeSender{}
	m := Multi{&TelegramSink{bot: a}, &TelegramSink{bot: b}, Discard{}}
	m.Post(context.Background(), Entry{Title: "t"})
	assert.Len(t, a.sent, 1)
	assert.Len(t, b.sent, 1)
}
