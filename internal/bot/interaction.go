package bot

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"guild-warden/internal/handler"
	"guild-warden/internal/service"
)

// interactionAPI is the part of *discordgo.Session used to answer interactions
type interactionAPI interface {
	InteractionRespond(i *discordgo.Interaction, r *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	FollowupMessageCreate(i *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

// responder answers one interaction. The first answer is an interaction
// response, everything after it goes out as an ephemeral followup.
type responder struct {
	api         interactionAPI
	interaction *discordgo.Interaction

	mu    sync.Mutex
	acked bool
}

var _ handler.Responder = (*responder)(nil)

func newResponder(api interactionAPI, i *discordgo.Interaction) *responder {
	return &responder{api: api, interaction: i}
}

// Defer acknowledges the interaction so the reply may come later than Discord's three seconds
func (r *responder) Defer(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acked {
		return nil
	}

	err := r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "defer interaction")
	}
	r.acked = true
	return nil
}

func (r *responder) Reply(ctx context.Context, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.acked {
		_, err := r.api.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		}, discordgo.WithContext(ctx))
		return errors.Wrap(err, "send followup")
	}

	err := r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "respond to interaction")
	}
	r.acked = true
	return nil
}

// OpenForm shows the appeal modal. A modal has to be the first answer.
func (r *responder) OpenForm(ctx context.Context, form *service.AppealForm) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acked {
		return errors.New("interaction already answered, cannot open a form")
	}

	err := r.api.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: form.ID,
			Title:    form.Title,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  form.FieldID,
						Label:     form.Label,
						Style:     discordgo.TextInputParagraph,
						MaxLength: form.MaxLength,
						Required:  true,
					},
				}},
			},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "open appeal form")
	}
	r.acked = true
	return nil
}

func (r *responder) DeleteSource(ctx context.Context) error {
	if r.interaction.Message == nil {
		return nil
	}
	err := r.api.ChannelMessageDelete(r.interaction.Message.ChannelID, r.interaction.Message.ID, discordgo.WithContext(ctx))
	return errors.Wrap(err, "delete appeal post")
}
