package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/payproof/internal/models"
)

func newRecord(id string, ts time.Time) *models.ProofRecord {
	return &models.ProofRecord{
		Verified: true,
		Payment: models.PaymentSnapshot{
			ID:       id,
			Amount:   500,
			Currency: "usd",
			Status:   "succeeded",
		},
		Timestamp: ts,
		Proof:     json.RawMessage(`{"claimData":{"provider":"http","parameters":"{\"url\":\"https://api.stripe.com/v1/payment_intents/pi_123\"}"},"signatures":["0xabc"],"witnesses":[{"id":"0x1","url":"wss://witness"}]}`),
	}
}

func TestFileStore_SaveLoadRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "proofs"))
	ctx := context.Background()
	record := newRecord("pi_123", time.Date(2026, 10, 16, 9, 30, 15, 123456789, time.UTC))

	name, err := s.Save(ctx, record)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "proof_pi_123_2026-10-16T09-30-15-123456789Z_"), name)
	assert.True(t, strings.HasSuffix(name, ".json"))

	loaded, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestFileStore_SaveCompactsProof(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	record := newRecord("pi_456", time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC))
	record.Proof = json.RawMessage("{ \"claimData\": {\n    \"provider\": \"http\"\n  } }")

	name, err := s.Save(ctx, record)
	require.NoError(t, err)
	assert.Equal(t, `{"claimData":{"provider":"http"}}`, string(record.Proof))

	loaded, err := s.Load(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, record, loaded)
}

func TestFileStore_SaveInvalidProof(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	record := newRecord("pi_bad", time.Now().UTC())
	record.Proof = json.RawMessage(`{"claimData":`)

	_, err := s.Save(context.Background(), record)
	require.ErrorIs(t, err, ErrStorage)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStore_PrettyPrinted(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	name, err := s.Save(context.Background(), newRecord("pi_1", time.Now().UTC()))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"verified\": true")
}

func TestFileStore_ListMissingDirectory(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "does-not-exist"))

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, names)
	assert.Empty(t, names)
}

func TestFileStore_ListFiltersAndSorts(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()

	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first, err := s.Save(ctx, newRecord("pi_a", ts))
	require.NoError(t, err)
	second, err := s.Save(ctx, newRecord("pi_b", ts))
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".proof-123.tmp"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, names)
}

func TestFileStore_SameTimestampDoesNotCollide(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	ts := time.Date(2026, 10, 16, 9, 30, 15, 0, time.UTC)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		name, err := s.Save(ctx, newRecord("pi_dup", ts))
		require.NoError(t, err)
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, 20)
}

func TestFileStore_ConcurrentSaves(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "lazy"))
	ctx := context.Background()
	ts := time.Now().UTC()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(ctx, newRecord("pi_same", ts))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, workers)
}

func TestFileStore_LoadNotFound(t *testing.T) {
	s := NewFileStore(t.TempDir())

	tests := []string{
		"proof_missing.json",
		"../etc/passwd.json",
		"nested/proof.json",
		".hidden.json",
		"proof_pi_1.txt",
		"",
	}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := s.Load(context.Background(), name)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proof_bad.json"), []byte("{not json"), 0o644))

	_, err := s.Load(context.Background(), "proof_bad.json")
	assert.ErrorIs(t, err, ErrStorage)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestFileStore_SaveUnwritableDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := NewFileStore(filepath.Join(blocker, "proofs"))
	_, err := s.Save(context.Background(), newRecord("pi_1", time.Now().UTC()))
	assert.ErrorIs(t, err, ErrStorage)
}

func TestFileStore_CancelledContext(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, newRecord("pi_1", time.Now().UTC()))
	assert.ErrorIs(t, err, context.Canceled)

	names, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRecordName(t *testing.T) {
	ts := time.Date(2026, 10, 16, 9, 30, 15, 5, time.FixedZone("CEST", 2*3600))

	tests := []struct {
		id     string
		prefix string
	}{
		{"pi_123", "proof_pi_123_2026-10-16T07-30-15-000000005Z_"},
		{"../../evil", "proof_______evil_2026-10-16T07-30-15-000000005Z_"},
		{"", "proof_unknown_2026-10-16T07-30-15-000000005Z_"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			name := RecordName(tt.id, ts)
			assert.True(t, strings.HasPrefix(name, tt.prefix), name)
			assert.Len(t, strings.TrimSuffix(strings.TrimPrefix(name, tt.prefix), ".json"), 8)
			assert.Equal(t, filepath.Base(name), name)
		})
	}
}

func TestNewFileStore_DefaultDir(t *testing.T) {
	assert.Equal(t, DefaultDir, NewFileStore("").Dir())
}
