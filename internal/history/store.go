// Package history implements the partitioned history store.
//
// Draw records are grouped into (year, month) partitions on whichever
// backend the selector designates, with a global newest-first index kept
// for fast listing and lookup. The index is a cache over the partitions,
// not the source of truth: losing it costs nothing that RebuildIndex
// cannot reconstruct by scanning the partition tree.
//
// Index mutation is serialized by a single in-process mutex so concurrent
// saves cannot lose each other's read-modify-write, while the partition
// bodies themselves are written outside the lock. The flat layout holds
// its own mutex across partition mutation, since a whole month shares one
// value there (see layout.go).
package history

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vistamin/starrand/internal/backend"
	"github.com/vistamin/starrand/internal/record"
)

// ErrRecordNotFound indicates no record with the requested ID exists, in
// the index or in any scanned partition.
var ErrRecordNotFound = errors.New("record not found")

// ErrIndexCorrupt indicates the index document failed to decode. The
// partitions are untouched; RebuildIndex reconstructs the index from them.
var ErrIndexCorrupt = errors.New("history index corrupt")

// ErrSerialization indicates a single document failed to encode or decode.
var ErrSerialization = errors.New("serialization failed")

// ErrEditRejected indicates an edit's password hash did not match the
// record's.
var ErrEditRejected = errors.New("edit rejected")

// DefaultIndexCap is how many entries the index keeps before evicting the
// oldest. Evicted entries leave their partition files in place: records
// become unreachable through listings but are never deleted automatically.
const DefaultIndexCap = 100

// scanStartYear bounds partition scans from below. The first release
// shipped in 2020; nothing older can exist.
const scanStartYear = 2020

// Store is the partitioned history store over one backend.
type Store struct {
	mu  sync.Mutex // serializes index read-modify-write
	ad  backend.Adapter
	lay layout
	cap int
	now func() time.Time
	log *slog.Logger
}

// Options configures a Store. Zero values pick defaults.
type Options struct {
	// IndexCap overrides DefaultIndexCap. Negative disables the cap.
	IndexCap int

	Logger *slog.Logger
	Now    func() time.Time
}

// New creates a history store over the adapter, laying out partitions the
// way the adapter's substrate requires.
func New(ad backend.Adapter, opts Options) *Store {
	if opts.IndexCap == 0 {
		opts.IndexCap = DefaultIndexCap
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		ad:  ad,
		lay: layoutFor(ad, opts.Now, opts.Logger),
		cap: opts.IndexCap,
		now: opts.Now,
		log: opts.Logger,
	}
}

// Backend returns the adapter the store writes through.
func (s *Store) Backend() backend.Adapter { return s.ad }

// SaveRecord persists a record into its (year, month) partition and
// upserts the matching index entry. An existing entry with the same ID is
// replaced in place; a new one is inserted at the front, keeping the index
// newest-first. Entries beyond the cap are dropped from the index only.
func (s *Store) SaveRecord(ctx context.Context, rec record.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("save record: missing id")
	}
	if rec.Timestamp.IsZero() {
		return fmt.Errorf("save record %s: missing timestamp", rec.ID)
	}

	fileName, relativePath, err := s.lay.save(ctx, rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertEntryLocked(ctx, entryFor(rec, fileName, relativePath))
}

// GetRecord loads the record with the given ID. The index provides the
// O(1) path; when the lookup or the body load fails, a bounded scan across
// the partition range takes over, and a hit there repairs the index so
// future lookups are fast again.
func (s *Store) GetRecord(ctx context.Context, id string) (record.Record, error) {
	if e, ok := s.indexEntry(ctx, id); ok {
		rec, err := s.lay.load(ctx, e)
		if err == nil {
			return rec, nil
		}
		s.log.Warn("index points at unreadable body, falling back to scan",
			"id", id, "error", err)
	}
	return s.scanForRecord(ctx, id)
}

// DeleteRecord removes the record's index entry and physical body. A body
// already absent is not an error, and neither is an unknown ID.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	entries, _ := s.loadIndexLocked(ctx)
	var found *record.IndexEntry
	kept := entries[:0]
	for i := range entries {
		if entries[i].ID == id {
			e := entries[i]
			found = &e
			continue
		}
		kept = append(kept, entries[i])
	}
	var idxErr error
	if found != nil {
		idxErr = s.saveIndexLocked(ctx, kept)
	}
	s.mu.Unlock()
	if idxErr != nil {
		return idxErr
	}

	if found != nil {
		return s.lay.remove(ctx, *found)
	}

	// Not indexed (possibly evicted): locate the body by scanning.
	rec, err := s.scanForRecordNoRepair(ctx, id)
	if errors.Is(err, ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	fileName := record.FileName(rec.Name, rec.ID)
	e := entryFor(rec, fileName, fmt.Sprintf("%d/%02d/%s", rec.Year(), rec.Month(), fileName))
	if s.ad.Method() != backend.MethodDirectory {
		e.RelativePath = partitionKey(rec.Year(), rec.Month())
	}
	return s.lay.remove(ctx, e)
}

// Clear deletes every partition across the scan range and empties the
// index.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.saveIndexLocked(ctx, nil)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	for year := scanStartYear; year <= s.now().Year()+1; year++ {
		for month := 1; month <= 12; month++ {
			if err := s.lay.clear(ctx, year, month); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListAll hydrates the index into full records, newest first. Entries
// whose body fails to load fall back to a placeholder synthesized from the
// index fields; one bad file never aborts the listing. A corrupt index
// surfaces ErrIndexCorrupt so the caller can run RebuildIndex.
func (s *Store) ListAll(ctx context.Context) ([]record.Record, error) {
	s.mu.Lock()
	entries, err := s.loadIndexLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]record.Record, 0, len(entries))
	for _, e := range entries {
		rec, err := s.lay.load(ctx, e)
		if err != nil {
			s.log.Warn("listing falls back to index projection", "id", e.ID, "error", err)
			rec = e.Placeholder()
		}
		out = append(out, rec)
	}
	return out, nil
}

// EditResults replaces a record's results and total count. Records marked
// edit-protected require the caller-supplied password hash to match the
// stored one; hashing itself happens outside the store. Unprotected
// records accept any hash.
func (s *Store) EditResults(ctx context.Context, id, passwordHash string, results []string) error {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return err
	}
	if rec.EditProtected {
		if subtle.ConstantTimeCompare([]byte(rec.EditPasswordHash), []byte(passwordHash)) != 1 {
			return fmt.Errorf("%w: record %s", ErrEditRejected, id)
		}
	}
	rec.Results = append([]string(nil), results...)
	rec.TotalCount = len(results)
	return s.SaveRecord(ctx, rec)
}

// indexEntry looks up one entry by ID.
func (s *Store) indexEntry(ctx context.Context, id string) (record.IndexEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.loadIndexLocked(ctx)
	if err != nil {
		return record.IndexEntry{}, false
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return record.IndexEntry{}, false
}

// scanForRecord is the bounded-range fallback lookup. A hit triggers an
// index-repair write so the next lookup goes through the index again.
func (s *Store) scanForRecord(ctx context.Context, id string) (record.Record, error) {
	rec, err := s.scanForRecordNoRepair(ctx, id)
	if err != nil {
		return record.Record{}, err
	}

	fileName, relativePath, saveErr := s.lay.save(ctx, rec)
	if saveErr == nil {
		s.mu.Lock()
		saveErr = s.upsertEntryLocked(ctx, entryFor(rec, fileName, relativePath))
		s.mu.Unlock()
	}
	if saveErr != nil {
		s.log.Warn("index repair failed after scan hit", "id", id, "error", saveErr)
	}
	return rec, nil
}

func (s *Store) scanForRecordNoRepair(ctx context.Context, id string) (record.Record, error) {
	for year := scanStartYear; year <= s.now().Year()+1; year++ {
		for month := 1; month <= 12; month++ {
			recs, err := s.lay.scan(ctx, year, month)
			if err != nil {
				s.log.Warn("partition scan failed, continuing",
					"year", year, "month", month, "error", err)
				continue
			}
			for _, rec := range recs {
				if rec.ID == id {
					return rec, nil
				}
			}
		}
	}
	return record.Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
}

// upsertEntryLocked merges one entry into the index under the caller-held
// lock. A corrupt existing index is logged and treated as empty rather
// than blocking new saves; the bodies it pointed at remain recoverable via
// RebuildIndex.
func (s *Store) upsertEntryLocked(ctx context.Context, entry record.IndexEntry) error {
	entries, err := s.loadIndexLocked(ctx)
	if err != nil {
		if !errors.Is(err, ErrIndexCorrupt) {
			return err
		}
		s.log.Warn("replacing corrupt index", "error", err)
		entries = nil
	}

	replaced := false
	for i := range entries {
		if entries[i].ID == entry.ID {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append([]record.IndexEntry{entry}, entries...)
	}
	if s.cap > 0 && len(entries) > s.cap {
		entries = entries[:s.cap]
	}
	return s.saveIndexLocked(ctx, entries)
}

// loadIndexLocked reads the index document. An absent index is an empty
// one; an undecodable index returns ErrIndexCorrupt.
func (s *Store) loadIndexLocked(ctx context.Context) ([]record.IndexEntry, error) {
	data, err := s.ad.ReadKey(ctx, indexKey)
	if errors.Is(err, backend.ErrKeyAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	var entries []record.IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}
	return entries, nil
}

func (s *Store) saveIndexLocked(ctx context.Context, entries []record.IndexEntry) error {
	if entries == nil {
		entries = []record.IndexEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode index: %v", ErrSerialization, err)
	}
	if err := s.ad.WriteKey(ctx, indexKey, data); err != nil {
		return fmt.Errorf("save index: %w", err)
	}
	return nil
}

// entryFor projects a record into its index entry.
func entryFor(rec record.Record, fileName, relativePath string) record.IndexEntry {
	return record.IndexEntry{
		ID:           rec.ID,
		Name:         rec.Name,
		Timestamp:    rec.Timestamp,
		FileName:     fileName,
		RelativePath: relativePath,
		TotalCount:   rec.TotalCount,
		GroupName:    rec.GroupName,
		Year:         rec.Year(),
		Month:        rec.Month(),
	}
}
