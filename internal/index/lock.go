package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	cerrors "github.com/Warlord437/Context-Based-File-Search/internal/errors"
)

// runLockName is the lock file guarding against concurrent indexing
// runs on the same store.
const runLockName = ".index.lock"

// acquireRunLock takes the run-in-progress lock for the store directory.
// A held lock means another indexing run owns the store.
func acquireRunLock(storeRoot string) (*flock.Flock, error) {
	if err := os.MkdirAll(storeRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	lock := flock.New(filepath.Join(storeRoot, runLockName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, cerrors.New(cerrors.ErrCodeStoreLocked,
			fmt.Sprintf("another indexing run holds the lock at %s", lock.Path()), nil).
			WithSuggestion("wait for the running index operation to finish, or remove a stale lock file")
	}
	return lock, nil
}
