package core

import (
	"sync"
	"sync/atomic"
)

// ShutdownHook is run once when the firmware enters shutdown.
type ShutdownHook func(reason string)

var (
	isShutdown     uint32 // atomic bool
	shutdownReason atomic.Value

	hooksMu       sync.Mutex
	shutdownHooks []ShutdownHook
)

// OnShutdown registers a hook, e.g. force-disabling every axis.
func OnShutdown(hook ShutdownHook) {
	hooksMu.Lock()
	shutdownHooks = append(shutdownHooks, hook)
	hooksMu.Unlock()
}

// TryShutdown enters shutdown state. Safe to call from interrupt context;
// only the first caller runs the hooks.
func TryShutdown(reason string) {
	if !atomic.CompareAndSwapUint32(&isShutdown, 0, 1) {
		return
	}
	shutdownReason.Store(reason)

	RecordTiming(EvtShutdown, 0xFF, GetTime(), 0, 0)
	DebugAsync("[SHUTDOWN] " + reason)

	hooksMu.Lock()
	hooks := shutdownHooks
	hooksMu.Unlock()
	for _, h := range hooks {
		h(reason)
	}
}

// IsShutdown returns whether the firmware is in shutdown state
func IsShutdown() bool {
	return atomic.LoadUint32(&isShutdown) != 0
}

// ShutdownReason returns the reason passed to the first TryShutdown call.
func ShutdownReason() string {
	r, _ := shutdownReason.Load().(string)
	return r
}

// ClearShutdown leaves shutdown state. Hooks stay registered.
func ClearShutdown() {
	shutdownReason.Store("")
	atomic.StoreUint32(&isShutdown, 0)
}

// ResetShutdownHooks drops every registered hook.
func ResetShutdownHooks() {
	hooksMu.Lock()
	shutdownHooks = nil
	hooksMu.Unlock()
}
