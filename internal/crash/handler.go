package crash

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"guild-warden/internal/logger"
)

// RecoverWithStack recovers a panic and logs it together with its stack
func RecoverWithStack(moduleName string) {
	if r := recover(); r != nil {
		report(moduleName, "PANIC", r, debug.Stack())
	}
}

// RecoverWithStackAndExit is deferred in main: it logs the panic and exits non-zero
// so the supervisor restarts the process.
func RecoverWithStackAndExit(moduleName string) {
	if r := recover(); r != nil {
		report(moduleName, "FATAL PANIC", r, debug.Stack())
		logger.Sync()
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}
}

// Guard runs fn and turns a panic into an error, used around single work items
// so one bad item does not take its worker down.
func Guard(moduleName string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			report(moduleName, "PANIC", r, debug.Stack())
			err = fmt.Errorf("panic in %s: %v", moduleName, r)
		}
	}()
	return fn()
}

// SafeGoroutine starts fn in a goroutine with panic recovery
func SafeGoroutine(name string, fn func()) {
	go func() {
		defer RecoverWithStack(fmt.Sprintf("goroutine-%s", name))
		fn()
	}()
}

func report(moduleName, kind string, r interface{}, stack []byte) {
	logger.Errorf("%s in %s: %v", kind, moduleName, r)
	logger.Errorf("Stack trace:\n%s", string(stack))

	// stderr as well, so the panic is visible in container logs
	fmt.Fprintf(os.Stderr, "[%s] %s - %s: %v\n", kind, time.Now().Format("2006-01-02 15:04:05"), moduleName, r)
	fmt.Fprintf(os.Stderr, "Stack trace:\n%s\n", string(stack))

	logRuntimeInfo()
}

func logRuntimeInfo() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	info := fmt.Sprintf(`
Runtime Information:
- Go version: %s
- Number of CPUs: %d
- Number of goroutines: %d
- Memory stats:
  - Heap allocated: %d KB
  - Heap in use: %d KB
  - Num GC: %d
`,
		runtime.Version(),
		runtime.NumCPU(),
		runtime.NumGoroutine(),
		m.HeapAlloc/1024,
		m.HeapInuse/1024,
		m.NumGC,
	)

	logger.Error(info)
}
