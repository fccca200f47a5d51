// Package kvstore provides the durable client-side key/value storage used for
// rate-limit records and the chosen display name. It survives restarts but is
// local to the device, and callers must tolerate it being cleared, full or
// absent.
//
// Two implementations are provided: BoltStore (a bbolt file, for the shell
// process) and MemoryStore (for tests and storage-less shells). Both enforce an
// optional byte quota on keys+values, emulating browser storage limits, and
// report exhaustion as a StorageQuota error.
package kvstore

import (
	"errors"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

// KV is the durable key/value storage contract.
type KV interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key.
	Set(key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error
	// Scan calls fn for every key with the given prefix, in key order.
	// Returning an error from fn stops the scan and is returned.
	Scan(prefix string, fn func(key, value string) error) error
}

var (
	// ErrQuotaExceeded is returned when a write would exceed the byte quota.
	ErrQuotaExceeded = &domain.Error{Kind: domain.KindStorageQuota, Op: "kvstore.set", Msg: "client storage quota exceeded"}

	// ErrUnavailable is returned when the store is closed or was never opened.
	ErrUnavailable = errors.New("kvstore: storage unavailable")
)

// entrySize is the accounting unit for quotas.
func entrySize(key, value string) int64 { return int64(len(key) + len(value)) }
