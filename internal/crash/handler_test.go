package crash

import (
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"guild-warden/internal/logger"
)

func TestGuard(t *testing.T) {
	logger.SetOutput(io.Discard, "ERROR")

	assert.NoError(t, Guard("ok", func() error { return nil }))

	want := errors.New("boom")
	assert.ErrorIs(t, Guard("err", func() error { return want }), want)

	err := Guard("panic", func() error { panic("kaboom") })
	assert.ErrorContains(t, err, "kaboom")
}

func TestSafeGoroutineRecovers(t *testing.T) {
	logger.SetOutput(io.Discard, "ERROR")

	var wg sync.WaitGroup
	wg.Add(1)
	SafeGoroutine("test", func() {
		defer wg.Done()
		panic("recovered")
	})
	wg.Wait()
}
