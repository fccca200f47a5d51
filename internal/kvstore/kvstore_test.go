package kvstore

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-campus-chat/internal/domain"
)

func openBolt(t *testing.T, quota int64) (*BoltStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.db")
	s, err := OpenBolt(path, quota)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func stores(t *testing.T, quota int64) map[string]KV {
	t.Helper()
	b, _ := openBolt(t, quota)
	return map[string]KV{"bolt": b, "memory": NewMemory(quota)}
}

func TestKV_GetSetDeleteScan(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get("missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set("ratelimit:a:general", "1"))
			require.NoError(t, s.Set("ratelimit:a:support", "2"))
			require.NoError(t, s.Set("session:display_name", "owl"))

			v, ok, err := s.Get("session:display_name")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "owl", v)

			var keys []string
			require.NoError(t, s.Scan("ratelimit:", func(k, _ string) error {
				keys = append(keys, k)
				return nil
			}))
			assert.Equal(t, []string{"ratelimit:a:general", "ratelimit:a:support"}, keys)

			require.NoError(t, s.Delete("ratelimit:a:general"))
			require.NoError(t, s.Delete("never-there"))
			_, ok, err = s.Get("ratelimit:a:general")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestKV_ScanStopsOnError(t *testing.T) {
	for name, s := range stores(t, 0) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("p:1", "a"))
			require.NoError(t, s.Set("p:2", "b"))
			stop := errors.New("stop")
			calls := 0
			err := s.Scan("p:", func(string, string) error {
				calls++
				return stop
			})
			assert.ErrorIs(t, err, stop)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestKV_Quota(t *testing.T) {
	for name, s := range stores(t, 20) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Set("k1", "0123456789")) // 12 bytes
			err := s.Set("k2", "0123456789")              // would be 24
			require.Error(t, err)
			assert.True(t, domain.IsKind(err, domain.KindStorageQuota))

			// Overwriting with a shorter value always fits.
			require.NoError(t, s.Set("k1", "x"))
			require.NoError(t, s.Set("k2", "0123456789"))

			require.NoError(t, s.Delete("k2"))
			require.NoError(t, s.Set("k3", "0123456789"))
		})
	}
}

func TestBolt_PersistsAcrossReopen_AndAccountsUsage(t *testing.T) {
	s, path := openBolt(t, 0)
	require.NoError(t, s.Set("session:display_name", "quiet-fox"))
	require.NoError(t, s.Close())

	_, _, err := s.Get("session:display_name")
	assert.ErrorIs(t, err, ErrUnavailable)

	s2, err := OpenBolt(path, 0)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get("session:display_name")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "quiet-fox", v)
	assert.Equal(t, int64(len("session:display_name")+len("quiet-fox")), s2.Used())
}

func TestOpenBolt_MissingDir(t *testing.T) {
	_, err := OpenBolt(filepath.Join(t.TempDir(), "nope", "client.db"), 0)
	require.Error(t, err)
}

func TestMemory_InjectedFailures(t *testing.T) {
	m := NewMemory(0)
	boom := errors.New("disk gone")
	m.FailReads = boom
	_, _, err := m.Get("x")
	assert.ErrorIs(t, err, boom)
	m.FailReads = nil
	m.FailWrites = boom
	assert.ErrorIs(t, m.Set("x", "y"), boom)
	assert.Equal(t, 0, m.Len())
}
