// Package iplock implements the Arducom interprocess lock (spec §4.5): a
// named, process-visible counting semaphore keyed to a transport
// endpoint, acquired around every master transaction so two unrelated
// processes sharing a physical bus never interleave frames.
//
// The key is resolved by the caller (typically transport.Transport's
// LockKey, or an explicit override) so independent processes that name
// the same endpoint string arrive at the same semaphore without prior
// agreement. Key 0 disables locking entirely.
package iplock

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/arducom-go/arducom/arducomerr"
)

// projectID is not applied to the key: New passes key to semget
// unchanged, so a given key names the same SysV semaphore set in every
// process, and nothing separates it from unrelated IPC objects that use
// the same key.
const projectID = 0x41524455 // "ARDU"

// Lock guards one transaction at a time for a given key.
type Lock struct {
	key   uint32
	semID int
	held  bool
	noop  bool
}

// New resolves a semaphore for key. A key of 0 returns a Lock whose
// Acquire/Release are no-ops (spec §4.5: "disables locking entirely").
func New(key uint32) (*Lock, error) {
	if key == 0 {
		return &Lock{noop: true}, nil
	}

	semID, err := unix.Semget(int(key), 1, unix.IPC_CREAT|0666)
	if err != nil {
		return nil, arducomerr.Wrap(arducomerr.KindTransportError, 0, err)
	}
	return &Lock{key: key, semID: semID}, nil
}

// Acquire waits until the semaphore reaches 0 then atomically increments
// it to 1, bounded by timeout. SEM_UNDO is set on the operation so an
// abnormal process exit automatically undoes the increment (spec §4.5).
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) error {
	if l.noop {
		return nil
	}
	if l.held {
		return fmt.Errorf("iplock: Acquire called twice without an intervening Release (key %#x)", l.key)
	}

	// A lone SemOp:1 never blocks: positive semop values only add to the
	// semaphore (bounded by SEMVMX), so two holders could both "acquire"
	// at once. The wait-for-zero op must run in the same atomic semop
	// call as the increment, or a second caller could slip in between
	// the wait and the increment.
	op := []unix.Sembuf{
		{SemNum: 0, SemOp: 0, SemFlg: 0},
		{SemNum: 0, SemOp: 1, SemFlg: unix.SEM_UNDO},
	}

	done := make(chan error, 1)
	go func() {
		done <- semtimedop(l.semID, op, timeout)
	}()

	select {
	case err := <-done:
		if err != nil {
			return arducomerr.Wrap(arducomerr.KindTimeout, 0, err)
		}
		l.held = true
		return nil
	case <-ctx.Done():
		return arducomerr.Wrap(arducomerr.KindTimeout, 0, ctx.Err())
	}
}

// Release decrements the semaphore back to 0. Idempotent: calling it
// without a held lock is a no-op (spec §4.5).
func (l *Lock) Release() error {
	if l.noop || !l.held {
		return nil
	}

	op := []unix.Sembuf{{
		SemNum: 0,
		SemOp:  -1,
		SemFlg: unix.SEM_UNDO,
	}}
	if err := unix.Semop(l.semID, op); err != nil {
		return arducomerr.Wrap(arducomerr.KindTransportError, 0, err)
	}
	l.held = false
	return nil
}

// semtimedop wraps unix.Semtimedop, translating a zero/negative timeout
// into "wait forever" the way the platform call expects, and plumbing a
// deadline otherwise.
func semtimedop(semID int, op []unix.Sembuf, timeout time.Duration) error {
	if timeout <= 0 {
		return unix.Semop(semID, op)
	}
	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	return unix.Semtimedop(semID, op, &ts)
}
