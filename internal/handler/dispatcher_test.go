package handler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memberLog implements the member events of Moderator, anything else panics
type memberLog struct {
	Moderator

	mu     sync.Mutex
	seen   map[snowflake.ID][]string
	onJoin func(userID snowflake.ID)
}

func newMemberLog() *memberLog {
	return &memberLog{seen: make(map[snowflake.ID][]string)}
}

func (m *memberLog) record(userID snowflake.ID, what string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[userID] = append(m.seen[userID], what)
}

func (m *memberLog) events(userID snowflake.ID) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.seen[userID]...)
}

func (m *memberLog) OnMemberJoin(ctx context.Context, guildID, userID snowflake.ID) error {
	if m.onJoin != nil {
		m.onJoin(userID)
	}
	m.record(userID, "join")
	return nil
}

func (m *memberLog) OnMemberLeave(ctx context.Context, guildID, userID snowflake.ID) error {
	m.record(userID, "leave")
	return nil
}

func TestDispatcherKeepsOrderPerMember(t *testing.T) {
	log := newMemberLog()
	d := NewDispatcher(NewRouter(log), 4, 8, time.Second)
	d.Start(context.Background())
	defer d.Stop()

	var want []string
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			require.NoError(t, d.Submit(MemberJoined{GuildID: 1, UserID: 7}))
			want = append(want, "join")
		} else {
			require.NoError(t, d.Submit(MemberLeft{GuildID: 1, UserID: 7}))
			want = append(want, "leave")
		}
	}
	d.Wait()

	assert.Equal(t, want, log.events(7))
	assert.EqualValues(t, 40, d.Stats().Snapshot()["total_member_events"])
}

func TestDispatcherRunsMembersConcurrently(t *testing.T) {
	log := newMemberLog()
	d := NewDispatcher(NewRouter(log), 4, 8, time.Second)

	slow := snowflake.ID(1)
	fast := snowflake.ID(2)
	for d.shardOf(1, fast) == d.shardOf(1, slow) {
		fast++
	}

	release := make(chan struct{})
	log.onJoin = func(userID snowflake.ID) {
		switch userID {
		case slow:
			<-release
		case fast:
			close(release)
		}
	}

	d.Start(context.Background())
	defer d.Stop()
	require.NoError(t, d.Submit(MemberJoined{GuildID: 1, UserID: slow}))
	require.NoError(t, d.Submit(MemberJoined{GuildID: 1, UserID: fast}))

	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("a blocked member stalled another member")
	}
	assert.Equal(t, []string{"join"}, log.events(slow))
	assert.Equal(t, []string{"join"}, log.events(fast))
}

func TestDispatcherSurvivesPanics(t *testing.T) {
	log := newMemberLog()
	log.onJoin = func(userID snowflake.ID) {
		if userID == 9 {
			panic("boom")
		}
	}
	d := NewDispatcher(NewRouter(log), 1, 4, time.Second)
	d.Start(context.Background())

	require.NoError(t, d.Submit(MemberJoined{GuildID: 1, UserID: 9}))
	require.NoError(t, d.Submit(MemberJoined{GuildID: 1, UserID: 10}))
	d.Wait()

	assert.Equal(t, []string{"join"}, log.events(10))
	assert.EqualValues(t, 1, d.Stats().Snapshot()["total_errors"])

	d.Stop()
	d.Stop()
	assert.ErrorIs(t, d.Submit(MemberLeft{GuildID: 1, UserID: 10}), ErrStopped)
	assert.EqualValues(t, 1, d.Stats().Snapshot()["total_dropped"])
}

func TestEventKeys(t *testing.T) {
	g, u := ControlActivated{ControlID: "appeal:decline:10:20", ActorID: 99}.Key()
	assert.Equal(t, snowflake.ID(10), g)
	assert.Equal(t, snowflake.ID(20), u)

	g, u = FormSubmitted{FormID: "appeal:form:10:20:1700000000", ActorID: 20}.Key()
	assert.Equal(t, snowflake.ID(10), g)
	assert.Equal(t, snowflake.ID(20), u)

	g, u = ControlActivated{ControlID: "garbage", ActorID: 99}.Key()
	assert.Zero(t, g)
	assert.Equal(t, snowflake.ID(99), u)

	g, u = CommandInvoked{GuildID: 3, Options: CommandOptions{Target: 4}}.Key()
	assert.Equal(t, snowflake.ID(3), g)
	assert.Equal(t, snowflake.ID(4), u)
}
