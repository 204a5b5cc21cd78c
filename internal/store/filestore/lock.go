package filestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// LockFileName is the per-run lock file held while a save checks and
// replaces the state document.
const LockFileName = "state.lock"

const (
	lockWait  = 5 * time.Second
	lockPoll  = 20 * time.Millisecond
	lockStale = 30 * time.Second
)

// ErrLocked is returned when a run's lock file could not be taken in time.
var ErrLocked = errors.New("run is locked by another writer")

// acquire creates the run's lock file exclusively, retrying until lockWait
// elapses. A lock older than lockStale is assumed abandoned by a crashed
// process and removed. The returned func releases the lock.
func (b *Backend) acquire(ctx context.Context, runID string) (func(), error) {
	path := filepath.Join(b.RunDir(runID), LockFileName)
	op := func() (struct{}, error) {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
			if cerr := f.Close(); werr == nil {
				werr = cerr
			}
			if werr != nil {
				os.Remove(path)
				return struct{}{}, backoff.Permanent(fmt.Errorf("writing lock file: %w", werr))
			}
			return struct{}{}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return struct{}{}, backoff.Permanent(fmt.Errorf("creating lock file: %w", err))
		}
		if info, serr := os.Stat(path); serr == nil && time.Since(info.ModTime()) > lockStale {
			os.Remove(path)
		}
		return struct{}{}, ErrLocked
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(lockPoll)),
		backoff.WithMaxElapsedTime(lockWait),
	)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	return func() { os.Remove(path) }, nil
}
