package handlers

import (
	"time"

	"github.com/bytedance/sonic"

	"github.com/tbourn/go-campus-chat/internal/domain"
	"github.com/tbourn/go-campus-chat/internal/kvstore"
)

const idemPrefix = "idem:"

type idemRecord struct {
	Message domain.Message `json:"message"`
	Expires int64          `json:"expires"` // unix ms
}

// IdempotencyStore remembers the message created for an Idempotency-Key so a
// retried send returns it instead of posting twice.
type IdempotencyStore struct {
	kv  kvstore.KV
	ttl time.Duration
}

// NewIdempotencyStore keeps records in kv for ttl.
func NewIdempotencyStore(kv kvstore.KV, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &IdempotencyStore{kv: kv, ttl: ttl}
}

func idemKey(sessionID, key string) string {
	return idemPrefix + sessionID + ":" + key
}

// Lookup returns the message recorded for (sessionID, key), if still valid.
// Expired records are removed.
func (s *IdempotencyStore) Lookup(sessionID, key string, now time.Time) (domain.Message, bool) {
	if s == nil || s.kv == nil {
		return domain.Message{}, false
	}
	k := idemKey(sessionID, key)
	raw, found, err := s.kv.Get(k)
	if err != nil || !found {
		return domain.Message{}, false
	}
	var rec idemRecord
	if err := sonic.UnmarshalString(raw, &rec); err != nil || now.UnixMilli() >= rec.Expires {
		_ = s.kv.Delete(k)
		return domain.Message{}, false
	}
	return rec.Message, true
}

// Save records m for (sessionID, key).
func (s *IdempotencyStore) Save(sessionID, key string, m domain.Message, now time.Time) error {
	if s == nil || s.kv == nil {
		return nil
	}
	raw, err := sonic.MarshalString(idemRecord{Message: m, Expires: now.Add(s.ttl).UnixMilli()})
	if err != nil {
		return err
	}
	return s.kv.Set(idemKey(sessionID, key), raw)
}
