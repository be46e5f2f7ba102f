package raft

// Watcher is notified of notable engine state changes. Hooks are invoked
// synchronously while the engine holds its lock: implementations must
// return promptly and must not reenter the engine.
type Watcher interface {
	// RoleChanged is invoked when the engine transitions between roles.
	RoleChanged(old Role, new Role)

	// Committed is invoked when the commit index advances.
	Committed(index uint64)

	// PromotionAborted is invoked when the promotion of the server with
	// the provided ID is aborted because it could not catch up with the
	// leader's log in time.
	PromotionAborted(id uint64)
}

// nopWatcher is the Watcher used when none is provided.
type nopWatcher struct{}

func (nopWatcher) RoleChanged(old Role, new Role) {}
func (nopWatcher) Committed(index uint64)         {}
func (nopWatcher) PromotionAborted(id uint64)     {}
