// Package bot connects the Discord gateway session to the event dispatcher.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"

	"guild-warden/internal/config"
	"guild-warden/internal/crash"
	"guild-warden/internal/gateway"
	"guild-warden/internal/handler"
	"guild-warden/internal/logger"
	"guild-warden/internal/service"
)

// Intents the bot needs: guild structure and member join/leave
const Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

// Submitter accepts events for processing, implemented by handler.Dispatcher
type Submitter interface {
	Submit(ev handler.Event) error
}

// BotService represents the Discord bot connection
type BotService struct {
	Session        *discordgo.Session
	events         Submitter
	commandGuildID snowflake.ID
}

// NewSession creates an unopened session for the configured token
func NewSession(cfg *config.Config) (*discordgo.Session, error) {
	if cfg.Bot.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	token := cfg.Bot.Token
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}

	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackMembers = true
	s.State.TrackRoles = true
	s.State.TrackChannels = true
	return s, nil
}

// Initialize attaches the event handlers to s. Start opens the connection.
func Initialize(s *discordgo.Session, cfg *config.Config, events Submitter) *BotService {
	b := &BotService{Session: s, events: events, commandGuildID: cfg.Bot.CommandGuildID}
	s.AddHandler(b.onReady)
	s.AddHandler(b.onMemberAdd)
	s.AddHandler(b.onMemberRemove)
	s.AddHandler(b.onInteraction)
	return b
}

// Start opens the gateway connection and registers the slash commands
func (b *BotService) Start(ctx context.Context) error {
	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("failed to open gateway connection: %w", err)
	}
	if err := b.registerCommands(ctx); err != nil {
		return err
	}
	return nil
}

// Stop closes the gateway connection
func (b *BotService) Stop() {
	if err := b.Session.Close(); err != nil {
		logger.Warningf("Failed to close gateway connection: %v", err)
	}
}

func (b *BotService) registerCommands(ctx context.Context) error {
	if b.Session.State == nil || b.Session.State.User == nil {
		return fmt.Errorf("session is not ready, cannot register commands")
	}

	guildID := ""
	if b.commandGuildID != 0 {
		guildID = b.commandGuildID.String()
	}

	registered, err := b.Session.ApplicationCommandBulkOverwrite(b.Session.State.User.ID, guildID, Commands(), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	if guildID == "" {
		logger.Infof("Registered %d global commands", len(registered))
	} else {
		logger.Infof("Registered %d commands in guild %s", len(registered), guildID)
	}
	return nil
}

func (b *BotService) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	logger.Infof("Authorized on account %s, in %d guilds", r.User.Username, len(r.Guilds))
}

func (b *BotService) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	defer crash.RecoverWithStack("bot")
	if e.Member == nil || e.User == nil || e.User.Bot {
		return
	}
	b.submit(handler.MemberJoined{GuildID: id(e.GuildID), UserID: id(e.User.ID)})
}

func (b *BotService) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	defer crash.RecoverWithStack("bot")
	if e.Member == nil || e.User == nil || e.User.Bot {
		return
	}
	b.submit(handler.MemberLeft{GuildID: id(e.GuildID), UserID: id(e.User.ID)})
}

func (b *BotService) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer crash.RecoverWithStack("bot")

	r := newResponder(s, i.Interaction)
	ev, deferred := translate(i.Interaction, r)
	if ev == nil {
		return
	}
	if deferred {
		if err := r.Defer(context.Background()); err != nil {
			logger.Warningf("Failed to acknowledge interaction %s: %v", i.ID, err)
			return
		}
	}
	b.submit(ev)
}

func (b *BotService) submit(ev handler.Event) {
	if err := b.events.Submit(ev); err != nil {
		logger.Warningf("Dropped %T: %v", ev, err)
	}
}

// translate maps an interaction onto a handler event. deferred is false only
// for the appeal button, whose answer is a modal.
func translate(i *discordgo.Interaction, r handler.Responder) (ev handler.Event, deferred bool) {
	actorID := actor(i)

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		return handler.CommandInvoked{
			GuildID: id(i.GuildID),
			Invoker: invoker(i),
			Name:    data.Name,
			Options: commandOptions(data.Options),
			Reply:   r,
		}, true

	case discordgo.InteractionMessageComponent:
		data := i.MessageComponentData()
		b, err := service.ParseBinding(data.CustomID)
		if err != nil {
			logger.Debugf("Ignoring foreign component %s", data.CustomID)
			return nil, false
		}
		return handler.ControlActivated{
			ControlID: data.CustomID,
			ActorID:   actorID,
			Actor:     invoker(i),
			Reply:     r,
		}, b.Action != service.ActionOpen

	case discordgo.InteractionModalSubmit:
		data := i.ModalSubmitData()
		return handler.FormSubmitted{
			FormID:  data.CustomID,
			ActorID: actorID,
			Fields:  formFields(data.Components),
			Reply:   r,
		}, true
	}
	return nil, false
}

func actor(i *discordgo.Interaction) snowflake.ID {
	if i.Member != nil && i.Member.User != nil {
		return id(i.Member.User.ID)
	}
	if i.User != nil {
		return id(i.User.ID)
	}
	return 0
}

// invoker is the guild member behind the interaction, nil in direct messages
func invoker(i *discordgo.Interaction) *gateway.Member {
	if i.GuildID == "" || i.Member == nil || i.Member.User == nil {
		return nil
	}
	roles := make([]snowflake.ID, 0, len(i.Member.Roles))
	for _, r := range i.Member.Roles {
		if v := id(r); v != 0 {
			roles = append(roles, v)
		}
	}
	return &gateway.Member{
		GuildID:     id(i.GuildID),
		UserID:      id(i.Member.User.ID),
		Username:    i.Member.User.Username,
		RoleIDs:     roles,
		Permissions: i.Member.Permissions,
	}
}

// formFields collects the text inputs of a submitted modal by custom id
func formFields(rows []discordgo.MessageComponent) map[string]string {
	fields := make(map[string]string)
	for _, c := range rows {
		var inner []discordgo.MessageComponent
		switch row := c.(type) {
		case *discordgo.ActionsRow:
			inner = row.Components
		case discordgo.ActionsRow:
			inner = row.Components
		}
		for _, ic := range inner {
			switch in := ic.(type) {
			case *discordgo.TextInput:
				fields[in.CustomID] = in.Value
			case discordgo.TextInput:
				fields[in.CustomID] = in.Value
			}
		}
	}
	return fields
}
