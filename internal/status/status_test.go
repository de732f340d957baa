package status

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"guild-warden/internal/config"
	"guild-warden/internal/scheduler"
)

type fakeProcessing struct{}

func (fakeProcessing) Snapshot() map[string]interface{} {
	return map[string]interface{}{"total_commands": 3}
}

func (fakeProcessing) DetailedStatus() string { return "=== status ===" }

func newServer(records map[string]Counter) *Server {
	return New(config.StatusConfig{ListenAddr: ":0", DebugPath: "/internal"}, Sources{
		Processing: fakeProcessing{},
		Schedulers: map[string]func() scheduler.Stats{
			"mute_expiry": func() scheduler.Stats { return scheduler.Stats{Ticks: 2, Processed: 1} },
		},
		Records: records,
		Locks:   func() int { return 1 },
	})
}

func TestHealth(t *testing.T) {
	resp, err := newServer(nil).App().Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestDebug(t *testing.T) {
	s := newServer(map[string]Counter{
		"quarantines": func(context.Context) (int64, error) { return 4, nil },
	})

	resp, err := s.App().Test(httptest.NewRequest("GET", "/internal", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out struct {
		Processing map[string]int64            `json:"processing"`
		Schedulers map[string]scheduler.Stats `json:"schedulers"`
		Records    map[string]int64            `json:"records"`
		LocksHeld  int                         `json:"locks_held"`
	}
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, sonic.Unmarshal(body, &out))
	assert.Equal(t, int64(3), out.Processing["total_commands"])
	assert.Equal(t, int64(2), out.Schedulers["mute_expiry"].Ticks)
	assert.Equal(t, int64(4), out.Records["quarantines"])
	assert.Equal(t, 1, out.LocksHeld)

	resp, err = s.App().Test(httptest.NewRequest("GET", "/internal/text", nil))
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "=== status ===", string(body))
}

func TestDebugDatabaseDown(t *testing.T) {
	s := newServer(map[string]Counter{
		"mutes": func(context.Context) (int64, error) { return 0, errors.New("connection refused") },
	})
	resp, err := s.App().Test(httptest.NewRequest("GET", "/internal", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}
