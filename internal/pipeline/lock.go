package pipeline

import "sync/atomic"

// RunLock admits one run at a time without blocking the caller.
type RunLock struct {
	state atomic.Int32 // 0 = idle, 1 = running
}

// TryAcquire reports whether the caller now holds the lock.
func (l *RunLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock. Only the holder may call it.
func (l *RunLock) Release() {
	l.state.Store(0)
}

// Held reports whether a run is in progress.
func (l *RunLock) Held() bool {
	return l.state.Load() == 1
}
