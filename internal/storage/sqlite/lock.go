// ABOUTME: Cross-process advisory lock on "<db>.lock" guarding write transactions
// ABOUTME: Pairs with DB.mu so intra-process writers never contend on the file
package sqlite

import (
	"fmt"
	"os"
)

// FileLock is an exclusive advisory lock on a sidecar file.
// The same descriptor is reused for every Lock call, so callers must
// serialize in-process access themselves.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock opens (creating if needed) the lock file at path
func NewFileLock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	return &FileLock{path: path, file: f}, nil
}

// Lock blocks until the exclusive lock is held
func (l *FileLock) Lock() error {
	if err := lockFile(l.file); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	return nil
}

// Unlock releases the lock
func (l *FileLock) Unlock() error {
	return unlockFile(l.file)
}

// Path returns the lock file path
func (l *FileLock) Path() string {
	return l.path
}

// Close releases the descriptor, which also drops any held lock
func (l *FileLock) Close() error {
	return l.file.Close()
}
