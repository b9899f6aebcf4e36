// Package store is the file-backed persistence collaborator: raw SFP memory
// pages, stress scenario rows and a JSON index for quick listing. It never
// interprets protocol state; it only stores values the core produced.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/sfpctl/internal/scenario"
	"github.com/danmuck/sfpctl/internal/sfp"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrInvalidID = errors.New("store: invalid sfp id")
)

// idLength is the number of hex characters kept from the content hash.
const idLength = 12

type Store struct {
	mu           sync.Mutex
	baseDir      string
	pagesDir     string
	scenariosDir string
	indexPath    string
}

// Index maps SFP id to its summary.
type Index struct {
	SFPs      map[string]IndexEntry `json:"sfps"`
	UpdatedAt time.Time             `json:"updated_at"`
}

type IndexEntry struct {
	ID            string    `json:"id"`
	VendorName    string    `json:"vendor_name"`
	PartNumber    string    `json:"part_number"`
	Revision      string    `json:"revision,omitempty"`
	SerialNumber  string    `json:"serial_number"`
	WavelengthNM  int       `json:"wavelength_nm,omitempty"`
	Calibration   string    `json:"calibration"`
	ChecksumValid bool      `json:"checksum_valid"`
	HasA2         bool      `json:"has_a2"`
	Scenarios     int       `json:"scenarios"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DefaultPath returns ~/.sfpctl/store.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sfpctl", "store"), nil
}

// Open opens or creates a store rooted at path.
func Open(path string) (*Store, error) {
	s := &Store{
		baseDir:      path,
		pagesDir:     filepath.Join(path, "pages"),
		scenariosDir: filepath.Join(path, "scenarios"),
		indexPath:    filepath.Join(path, "index.json"),
	}
	for _, dir := range []string{s.pagesDir, s.scenariosDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	return s, nil
}

func (s *Store) Dir() string {
	return s.baseDir
}

// ContentID derives a stable id from the A0 identity bytes (0-95), so the same
// module imported twice maps to one entry regardless of live readings.
func ContentID(a0 []byte) (string, error) {
	if len(a0) < 96 {
		return "", fmt.Errorf("%w: need at least 96 bytes of A0, got %d", sfp.ErrPageSize, len(a0))
	}
	sum := sha256.Sum256(a0[:96])
	return hex.EncodeToString(sum[:])[:idLength], nil
}

// ImportPages stores a memory dump. a2 may be empty. The CC_BASE policy is
// applied before anything is written; reject leaves the store untouched.
func (s *Store) ImportPages(ctx context.Context, a0, a2 []byte, policy sfp.ChecksumPolicy) (IndexEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return IndexEntry{}, false, err
	}
	module, err := sfp.FromPages(a0, a2)
	if err != nil {
		return IndexEntry{}, false, err
	}
	check, err := module.VerifyBaseChecksum(policy)
	if err != nil {
		return IndexEntry{}, false, err
	}
	id, err := ContentID(a0)
	if err != nil {
		return IndexEntry{}, false, err
	}

	raw := make([]byte, 0, 2*sfp.PageSize)
	raw = append(raw, a0...)
	raw = append(raw, a2...)

	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.loadIndex()
	if err != nil {
		return IndexEntry{}, false, err
	}
	now := time.Now().UTC()
	entry, exists := index.SFPs[id]
	if !exists {
		entry = IndexEntry{ID: id, CreatedAt: now}
	}
	entry.VendorName = module.VendorName()
	entry.PartNumber = module.VendorPartNumber()
	entry.Revision = module.VendorRevision()
	entry.SerialNumber = module.VendorSerial()
	entry.WavelengthNM = module.WavelengthNM()
	entry.Calibration = module.CalibrationType().String()
	entry.ChecksumValid = check.Computed == check.Stored
	entry.HasA2 = len(a2) != 0
	entry.UpdatedAt = now

	if err := writeFileAtomic(s.pagePath(id), raw); err != nil {
		return IndexEntry{}, false, fmt.Errorf("store: write page: %w", err)
	}
	index.SFPs[id] = entry
	if err := s.saveIndex(index); err != nil {
		return IndexEntry{}, false, fmt.Errorf("store: update index: %w", err)
	}
	return entry, !exists, nil
}

// ReadPage returns the 256-byte A0 page for sfpID.
func (s *Store) ReadPage(ctx context.Context, sfpID string) ([]byte, error) {
	a0, _, err := s.ReadPages(ctx, sfpID)
	return a0, err
}

// ReadPages returns both pages; a2 is nil when the dump had none.
func (s *Store) ReadPages(ctx context.Context, sfpID string) ([]byte, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := validID(sfpID); err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(s.pagePath(sfpID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: sfp %s", ErrNotFound, sfpID)
	}
	if err != nil {
		return nil, nil, err
	}
	return sfp.SplitDump(raw)
}

// Lookup returns the index entry for sfpID.
func (s *Store) Lookup(sfpID string) (IndexEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.loadIndex()
	if err != nil {
		return IndexEntry{}, err
	}
	entry, ok := index.SFPs[sfpID]
	if !ok {
		return IndexEntry{}, fmt.Errorf("%w: sfp %s", ErrNotFound, sfpID)
	}
	return entry, nil
}

// List returns every stored SFP, newest first.
func (s *Store) List() ([]IndexEntry, error) {
	s.mu.Lock()
	index, err := s.loadIndex()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, 0, len(index.SFPs))
	for _, e := range index.SFPs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// SaveScenario appends row to the scenarios of its SFP.
func (s *Store) SaveScenario(ctx context.Context, row scenario.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(row.SFPID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	index, err := s.loadIndex()
	if err != nil {
		return err
	}
	entry, ok := index.SFPs[row.SFPID]
	if !ok {
		return fmt.Errorf("%w: sfp %s", ErrNotFound, row.SFPID)
	}
	rows, err := s.loadScenarios(row.SFPID)
	if err != nil {
		return err
	}
	rows = append(rows, row)
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.scenarioPath(row.SFPID), data); err != nil {
		return fmt.Errorf("store: write scenarios: %w", err)
	}
	entry.Scenarios = len(rows)
	entry.UpdatedAt = time.Now().UTC()
	index.SFPs[row.SFPID] = entry
	return s.saveIndex(index)
}

// Scenarios returns the stored rows for sfpID in insertion order.
func (s *Store) Scenarios(ctx context.Context, sfpID string) ([]scenario.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validID(sfpID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadScenarios(sfpID)
}

func (s *Store) loadScenarios(sfpID string) ([]scenario.Row, error) {
	data, err := os.ReadFile(s.scenarioPath(sfpID))
	if errors.Is(err, os.ErrNotExist) {
		return []scenario.Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []scenario.Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("store: parse scenarios for %s: %w", sfpID, err)
	}
	return rows, nil
}

func (s *Store) loadIndex() (*Index, error) {
	data, err := os.ReadFile(s.indexPath)
	if errors.Is(err, os.ErrNotExist) {
		return &Index{SFPs: make(map[string]IndexEntry)}, nil
	}
	if err != nil {
		return nil, err
	}
	var index Index
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("store: parse index: %w", err)
	}
	if index.SFPs == nil {
		index.SFPs = make(map[string]IndexEntry)
	}
	return &index, nil
}

func (s *Store) saveIndex(index *Index) error {
	index.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.indexPath, data)
}

func (s *Store) pagePath(id string) string {
	return filepath.Join(s.pagesDir, id+".bin")
}

func (s *Store) scenarioPath(id string) string {
	return filepath.Join(s.scenariosDir, id+".json")
}

// validID keeps ids usable as file names.
func validID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
