package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-warden/internal/handler"
	"guild-warden/internal/service"
)

type fakeAPI struct {
	responses []*discordgo.InteractionResponse
	followups []*discordgo.WebhookParams
	deleted   []string
	failNext  error
}

func (f *fakeAPI) InteractionRespond(_ *discordgo.Interaction, r *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	f.responses = append(f.responses, r)
	return nil
}

func (f *fakeAPI) FollowupMessageCreate(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return nil
}

func guildMember(userID string, roles ...string) *discordgo.Member {
	return &discordgo.Member{
		User:        &discordgo.User{ID: userID, Username: "mod"},
		Roles:       roles,
		Permissions: discordgo.PermissionModerateMembers,
	}
}

func TestCommandsCoverEveryRoute(t *testing.T) {
	var names []string
	for _, c := range Commands() {
		names = append(names, c.Name)
		require.NotNil(t, c.DefaultMemberPermissions)
		require.NotEmpty(t, c.Options)
		assert.Equal(t, optionMember, c.Options[0].Name)
		assert.True(t, c.Options[0].Required)
	}
	assert.ElementsMatch(t, []string{
		handler.CommandBan, handler.CommandMute, handler.CommandUnmute,
		handler.CommandWarn, handler.CommandKick, handler.CommandTimeout,
	}, names)
}

func TestCommandOptions(t *testing.T) {
	opts := commandOptions([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: optionMember, Type: discordgo.ApplicationCommandOptionUser, Value: "5"},
		{Name: optionReason, Type: discordgo.ApplicationCommandOptionString, Value: "spam"},
		{Name: optionDuration, Type: discordgo.ApplicationCommandOptionString, Value: "2h"},
		{Name: optionMinutes, Type: discordgo.ApplicationCommandOptionInteger, Value: float64(30)},
		{Name: "other", Type: discordgo.ApplicationCommandOptionString, Value: "x"},
	})
	assert.Equal(t, handler.CommandOptions{Target: 5, Reason: "spam", Duration: "2h", Minutes: 30}, opts)

	assert.Zero(t, commandOptions([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: optionMember, Value: "not-a-snowflake"},
	}).Target)
}

func TestTranslateCommand(t *testing.T) {
	i := &discordgo.Interaction{
		Type:    discordgo.InteractionApplicationCommand,
		GuildID: "100",
		Member:  guildMember("4", "11", "bogus"),
		Data: discordgo.ApplicationCommandInteractionData{
			Name:    handler.CommandWarn,
			Options: []*discordgo.ApplicationCommandInteractionDataOption{{Name: optionMember, Value: "5"}},
		},
	}

	ev, deferred := translate(i, nil)
	assert.True(t, deferred)
	cmd, ok := ev.(handler.CommandInvoked)
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(100), cmd.GuildID)
	assert.Equal(t, handler.CommandWarn, cmd.Name)
	assert.Equal(t, snowflake.ID(5), cmd.Options.Target)
	require.NotNil(t, cmd.Invoker)
	assert.Equal(t, snowflake.ID(4), cmd.Invoker.UserID)
	assert.Equal(t, []snowflake.ID{11}, cmd.Invoker.RoleIDs)
	assert.Equal(t, int64(discordgo.PermissionModerateMembers), cmd.Invoker.Permissions)
}

func TestTranslateCommandInDirectMessage(t *testing.T) {
	i := &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
		User: &discordgo.User{ID: "5"},
		Data: discordgo.ApplicationCommandInteractionData{Name: handler.CommandBan},
	}
	ev, _ := translate(i, nil)
	cmd := ev.(handler.CommandInvoked)
	assert.Zero(t, cmd.GuildID)
	assert.Nil(t, cmd.Invoker)
}

func TestTranslateControls(t *testing.T) {
	open := service.Binding{Action: service.ActionOpen, GuildID: 100, UserID: 5}.ID()
	i := &discordgo.Interaction{
		Type: discordgo.InteractionMessageComponent,
		User: &discordgo.User{ID: "5"},
		Data: discordgo.MessageComponentInteractionData{CustomID: open},
	}
	ev, deferred := translate(i, nil)
	assert.False(t, deferred, "the appeal button answers with a modal")
	ctl := ev.(handler.ControlActivated)
	assert.Equal(t, snowflake.ID(5), ctl.ActorID)
	assert.Nil(t, ctl.Actor)

	decline := service.Binding{Action: service.ActionDecline, GuildID: 100, UserID: 5}.ID()
	i = &discordgo.Interaction{
		Type:    discordgo.InteractionMessageComponent,
		GuildID: "100",
		Member:  guildMember("4"),
		Data:    discordgo.MessageComponentInteractionData{CustomID: decline},
	}
	ev, deferred = translate(i, nil)
	assert.True(t, deferred)
	ctl = ev.(handler.ControlActivated)
	assert.Equal(t, snowflake.ID(4), ctl.ActorID)
	require.NotNil(t, ctl.Actor)

	i.Data = discordgo.MessageComponentInteractionData{CustomID: "someone-elses-button"}
	ev, _ = translate(i, nil)
	assert.Nil(t, ev)
}

func TestTranslateForm(t *testing.T) {
	formID := service.Binding{Action: service.ActionForm, GuildID: 100, UserID: 5, IssuedAt: 42}.ID()
	i := &discordgo.Interaction{
		Type: discordgo.InteractionModalSubmit,
		User: &discordgo.User{ID: "5"},
		Data: discordgo.ModalSubmitInteractionData{
			CustomID: formID,
			Components: []discordgo.MessageComponent{
				&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: service.AppealFormField, Value: "sorry"},
				}},
			},
		},
	}
	ev, deferred := translate(i, nil)
	assert.True(t, deferred)
	form := ev.(handler.FormSubmitted)
	assert.Equal(t, formID, form.FormID)
	assert.Equal(t, map[string]string{service.AppealFormField: "sorry"}, form.Fields)

	g, u := form.Key()
	assert.Equal(t, snowflake.ID(100), g)
	assert.Equal(t, snowflake.ID(5), u)
}

func TestTranslateIgnoresPing(t *testing.T) {
	ev, deferred := translate(&discordgo.Interaction{Type: discordgo.InteractionPing}, nil)
	assert.Nil(t, ev)
	assert.False(t, deferred)
}

func TestResponderFirstAnswerThenFollowups(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	r := newResponder(api, &discordgo.Interaction{})

	require.NoError(t, r.Reply(ctx, "first"))
	require.NoError(t, r.Reply(ctx, "second"))

	require.Len(t, api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, api.responses[0].Type)
	assert.Equal(t, "first", api.responses[0].Data.Content)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, api.responses[0].Data.Flags)
	require.Len(t, api.followups, 1)
	assert.Equal(t, "second", api.followups[0].Content)

	assert.Error(t, r.OpenForm(ctx, &service.AppealForm{ID: "x"}))
}

func TestResponderDeferredReplyIsFollowup(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	r := newResponder(api, &discordgo.Interaction{})

	require.NoError(t, r.Defer(ctx))
	require.NoError(t, r.Defer(ctx))
	require.NoError(t, r.Reply(ctx, "done"))

	require.Len(t, api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, api.responses[0].Type)
	require.Len(t, api.followups, 1)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, api.followups[0].Flags)
}

func TestResponderFailedDeferCanRetry(t *testing.T) {
	api := &fakeAPI{failNext: errors.New("unknown interaction")}
	r := newResponder(api, &discordgo.Interaction{})

	assert.Error(t, r.Defer(context.Background()))
	require.NoError(t, r.Reply(context.Background(), "hello"))
	require.Len(t, api.responses, 1)
	assert.Empty(t, api.followups)
}

func TestResponderOpenForm(t *testing.T) {
	api := &fakeAPI{}
	r := newResponder(api, &discordgo.Interaction{})

	form := &service.AppealForm{ID: "appeal:form:100:5:42", Title: "Ban Appeal", FieldID: service.AppealFormField, Label: "Your appeal", MaxLength: 1500}
	require.NoError(t, r.OpenForm(context.Background(), form))

	require.Len(t, api.responses, 1)
	resp := api.responses[0]
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, form.ID, resp.Data.CustomID)
	row := resp.Data.Components[0].(discordgo.ActionsRow)
	input := row.Components[0].(discordgo.TextInput)
	assert.Equal(t, service.AppealFormField, input.CustomID)
	assert.Equal(t, discordgo.TextInputParagraph, input.Style)
	assert.Equal(t, 1500, input.MaxLength)
}

func TestResponderDeleteSource(t *testing.T) {
	api := &fakeAPI{}
	r := newResponder(api, &discordgo.Interaction{Message: &discordgo.Message{ID: "9", ChannelID: "51"}})
	require.NoError(t, r.DeleteSource(context.Background()))
	assert.Equal(t, []string{"51/9"}, api.deleted)

	require.NoError(t, newResponder(api, &discordgo.Interaction{}).DeleteSource(context.Background()))
	assert.Len(t, api.deleted, 1)
}

type collector struct{ events []handler.Event }

func (c *collector) Submit(ev handler.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestMemberEventsAreSubmitted(t *testing.T) {
	c := &collector{}
	b := &BotService{events: c}

	b.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "5"}}})
	b.onMemberRemove(nil, &discordgo.GuildMemberRemove{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "5"}}})
	b.onMemberAdd(nil, &discordgo.GuildMemberAdd{Member: &discordgo.Member{GuildID: "100", User: &discordgo.User{ID: "7", Bot: true}}})
	b.onMemberAdd(nil, &discordgo.GuildMemberAdd{})

	assert.Equal(t, []handler.Event{
		handler.MemberJoined{GuildID: 100, UserID: 5},
		handler.MemberLeft{GuildID: 100, UserID: 5},
	}, c.events)
}
