package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/telhawk-systems/payproof/internal/metrics"
	"github.com/telhawk-systems/payproof/internal/models"
)

var (
	// ErrNotFound is returned by Load when no record exists under the name.
	ErrNotFound = errors.New("proof not found")

	// ErrStorage wraps every persistence failure other than a missing record.
	ErrStorage = errors.New("proof storage failed")
)

const (
	filePrefix = "proof_"
	fileExt    = ".json"
)

// DefaultDir is where records land when no directory is configured.
const DefaultDir = "proofs"

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// FileStore persists proof records as one pretty-printed JSON file each.
// Writes go to a temp file in the same directory and are renamed into place,
// so readers never see a partial record.
type FileStore struct {
	dir string
}

// NewFileStore returns a store rooted at dir. The directory is created lazily
// on the first Save.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{dir: dir}
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes the record and returns the name it was stored under. The
// record's proof is compacted in place, so a later Load returns a record equal
// to it.
func (s *FileStore) Save(ctx context.Context, record *models.ProofRecord) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	start := time.Now()
	defer func() {
		metrics.StorageDuration.Observe(time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		metrics.StorageErrors.Inc()
		return "", fmt.Errorf("%w: create proof directory: %v", ErrStorage, err)
	}

	if len(record.Proof) > 0 {
		compact, err := compactJSON(record.Proof)
		if err != nil {
			metrics.StorageErrors.Inc()
			return "", fmt.Errorf("%w: invalid proof: %v", ErrStorage, err)
		}
		record.Proof = compact
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		metrics.StorageErrors.Inc()
		return "", fmt.Errorf("%w: marshal record: %v", ErrStorage, err)
	}

	name := RecordName(record.Payment.ID, record.Timestamp)
	if err := s.writeAtomic(name, data); err != nil {
		metrics.StorageErrors.Inc()
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return name, nil
}

func (s *FileStore) writeAtomic(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".proof-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Load returns the record stored under name.
func (s *FileStore) Load(ctx context.Context, name string) (*models.ProofRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !validName(name) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, name, err)
	}

	var record models.ProofRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrStorage, name, err)
	}

	// MarshalIndent re-indents the embedded proof; hand it back compact.
	if len(record.Proof) > 0 {
		compact, err := compactJSON(record.Proof)
		if err != nil {
			return nil, fmt.Errorf("%w: parse proof in %s: %v", ErrStorage, name, err)
		}
		record.Proof = compact
	}

	return &record, nil
}

// List returns the names of all stored records in lexical order.
// A missing directory yields an empty list.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: read proof directory: %v", ErrStorage, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !validName(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// RecordName derives the file name for a payment id and generation time.
// The random suffix keeps names unique when the same payment is proven twice
// within one clock tick.
func RecordName(paymentID string, ts time.Time) string {
	stamp := ts.UTC().Format("2006-01-02T15:04:05.000000000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("%s%s_%s_%s%s", filePrefix, sanitizeID(paymentID), stamp, suffix, fileExt)
}

func sanitizeID(id string) string {
	if id == "" {
		return "unknown"
	}
	return unsafeIDChars.ReplaceAllString(id, "_")
}

func validName(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		!strings.HasPrefix(name, ".") &&
		strings.HasSuffix(name, fileExt)
}

func compactJSON(raw json.RawMessage) (json.RawMessage, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
