//go:build unix

package session

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// withIndexLock holds an exclusive advisory lock on the index's .lock
// sibling for the duration of fn. Subagent processes share the same
// sessions.json, so in-process mutexes are not enough.
func (s *Store) withIndexLock(fn func() error) error {
	lockPath := s.indexPath() + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("failed to open index lock: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("failed to lock session index: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	return fn()
}
