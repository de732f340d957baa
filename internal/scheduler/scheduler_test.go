package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-warden/internal/config"
	"guild-warden/internal/gateway"
	"guild-warden/internal/gateway/memory"
	"guild-warden/internal/keylock"
	"guild-warden/internal/models"
	"guild-warden/internal/notify"
	"guild-warden/internal/service"
	"guild-warden/internal/storage"
	"guild-warden/internal/storage/storagetest"
)

const (
	guildID    = snowflake.ID(100)
	botID      = snowflake.ID(2)
	staffID    = snowflake.ID(4)
	memberID   = snowflake.ID(5)
	botRole    = snowflake.ID(10)
	staffRole  = snowflake.ID(11)
	memberRole = snowflake.ID(12)
	appealsCh  = snowflake.ID(51)
)

type env struct {
	ctx   context.Context
	now   time.Time
	gw    *memory.Platform
	store *storage.Store
	svc   *service.Moderation
}

func newEnv(t *testing.T) *env {
	gw := memory.New(botID)
	gw.AddGuild(guildID, "Test Guild", 3)
	gw.AddRole(guildID, gateway.Role{ID: memberRole, Name: "member", Position: 1})
	gw.AddRole(guildID, gateway.Role{ID: botRole, Name: "warden", Position: 4, Permissions: gateway.PermissionManageRoles | gateway.PermissionManageChannels | gateway.PermissionBanMembers})
	gw.AddRole(guildID, gateway.Role{ID: staffRole, Name: "mods", Position: 5, Permissions: gateway.PermissionBanMembers})
	gw.AddMember(guildID, botID, "warden", botRole)
	gw.AddMember(guildID, staffID, "sam", staffRole)
	gw.AddMember(guildID, memberID, "mallory", memberRole)
	gw.AddTextChannel(guildID, 50, "general")
	gw.AddTextChannel(guildID, appealsCh, "appeals")

	e := &env{ctx: context.Background(), now: time.Unix(1_700_000_000, 0), gw: gw, store: storagetest.NewStore(t)}
	e.svc = service.NewModeration(e.store, gw, keylock.NewMemory(), notify.Discard{}, config.DefaultModeration(),
		service.WithClock(func() time.Time { return e.now }))
	return e
}

func (e *env) at(offset int64) time.Time {
	e.now = time.Unix(1_700_000_000+offset, 0)
	return e.now
}

func (e *env) staff(t *testing.T) *gateway.Member {
	m, err := e.gw.ResolveMember(e.ctx, guildID, staffID)
	require.NoError(t, err)
	return m
}

func TestDeclinedAppealEndsInBan(t *testing.T) {
	e := newEnv(t)
	s := NewPermabanExecution(e.store.Permabans, e.svc, 15*time.Second)

	e.at(0)
	require.NoError(t, e.svc.IssueBan(e.ctx, guildID, e.staff(t), memberID, "spam"))
	rec, err := e.store.Quarantines.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Zero(t, rec.AppealCount)

	e.at(100)
	form, err := e.svc.OpenAppeal(e.ctx, guildID, memberID, memberID)
	require.NoError(t, err)
	b, err := service.ParseBinding(form.ID)
	require.NoError(t, err)
	require.NoError(t, e.svc.SubmitAppeal(e.ctx, guildID, memberID, memberID, "sorry", b.IssuedAt))
	rec, err = e.store.Quarantines.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.AppealCount)
	assert.Equal(t, models.DecisionNone, rec.LastDecision)

	e.at(200)
	require.NoError(t, e.svc.DecideAppeal(e.ctx, guildID, e.staff(t), memberID, models.DecisionDeclined))
	p, err := e.store.Permabans.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1_700_000_230), p.ExecuteAt)

	s.Tick(e.ctx, e.at(229))
	assert.Empty(t, e.gw.Bans(guildID))

	s.Tick(e.ctx, e.at(231))
	bans := e.gw.Bans(guildID)
	require.Len(t, bans, 1)
	assert.Equal(t, memberID, bans[0].UserID)
	rec, err = e.store.Quarantines.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	assert.Nil(t, rec)

	stats := s.Stats()
	assert.EqualValues(t, 2, stats.Ticks)
	assert.EqualValues(t, 1, stats.Processed)
	assert.Zero(t, stats.Failures)
	assert.Equal(t, int64(1_700_000_231), stats.LastTick)
}

func TestMuteExpiresAfterTenMinutes(t *testing.T) {
	e := newEnv(t)
	s := NewMuteExpiry(e.store.Mutes, e.svc, 30*time.Second)

	e.at(0)
	_, err := e.svc.IssueMute(e.ctx, guildID, e.staff(t), memberID, "10m", "spam")
	require.NoError(t, err)
	rec, err := e.store.Mutes.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1_700_000_600), rec.EndsAt)
	assert.NotContains(t, e.gw.MemberRoles(guildID, memberID), memberRole)

	s.Tick(e.ctx, e.at(601))

	roles := e.gw.MemberRoles(guildID, memberID)
	assert.Equal(t, []snowflake.ID{memberRole}, roles)
	rec, err = e.store.Mutes.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.EqualValues(t, 1, s.Stats().Processed)
}

func TestFailedMuteExpiryIsRetriedNextSweep(t *testing.T) {
	e := newEnv(t)
	s := NewMuteExpiry(e.store.Mutes, e.svc, 30*time.Second)

	e.at(0)
	_, err := e.svc.IssueMute(e.ctx, guildID, e.staff(t), memberID, "10m", "spam")
	require.NoError(t, err)

	e.gw.FailNext("ResolveMember", gateway.Fail("ResolveMember", gateway.ErrTransient, errors.New("503")))
	s.Tick(e.ctx, e.at(700))

	rec, err := e.store.Mutes.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(1_700_000_730), rec.EndsAt)
	assert.Equal(t, 1, rec.Attempts)
	assert.EqualValues(t, 1, s.Stats().Failures)
	assert.NotContains(t, e.gw.MemberRoles(guildID, memberID), memberRole)

	s.Tick(e.ctx, e.at(731))
	assert.Contains(t, e.gw.MemberRoles(guildID, memberID), memberRole)
	rec, err = e.store.Mutes.Get(e.ctx, guildID, memberID)
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.EqualValues(t, 1, s.Stats().Processed)
}

type panicky struct{ calls int }

func (p *panicky) ExecutePermaban(ctx context.Context, _ models.ScheduledPermaban) error {
	p.calls++
	if p.calls == 1 {
		panic("boom")
	}
	return nil
}

type fixedPermabans []models.ScheduledPermaban

func (f fixedPermabans) PopDue(context.Context, int64) ([]models.ScheduledPermaban, error) {
	return f, nil
}

func TestSweepSurvivesPanickingItem(t *testing.T) {
	exec := &panicky{}
	s := NewPermabanExecution(fixedPermabans{{UserID: 1}, {UserID: 2}}, exec, time.Second)

	s.Tick(context.Background(), time.Unix(10, 0))

	assert.Equal(t, 2, exec.calls)
	stats := s.Stats()
	assert.EqualValues(t, 1, stats.Processed)
	assert.EqualValues(t, 1, stats.Failures)
}

type failingMutes struct{}

func (failingMutes) PopDue(context.Context, int64) ([]models.MuteRecord, error) {
	return nil, errors.New("database is locked")
}

func TestRunStopsWithContext(t *testing.T) {
	s := NewMuteExpiry(failingMutes{}, nil, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return s.Stats().Ticks >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, s.Stats().Processed)
}
