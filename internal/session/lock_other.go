//go:build !unix

package session

// withIndexLock falls back to in-process locking only. The store mutex is
// already held by every caller, so same-process writers stay ordered.
func (s *Store) withIndexLock(fn func() error) error {
	return fn()
}
