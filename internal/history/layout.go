package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/vistamin/starrand/internal/backend"
	"github.com/vistamin/starrand/internal/record"
)

const (
	// indexKey holds the global index document on every backend.
	indexKey = "history.json"

	// historyPrefix roots all partition keys.
	historyPrefix = "history"
)

// bodyDoc is the on-disk wrapper around a record in the directory layout.
// The field names match the task files written by earlier releases.
type bodyDoc struct {
	TaskData    record.Record `json:"task-data"`
	CreatedTime time.Time     `json:"created-time"`
	Year        int           `json:"year"`
	Month       int           `json:"month"`
}

// layout maps records onto a backend's physical partition scheme.
//
// The directory backend nests one file per record under
// history/{year}/{month}. The flat keyed backend has no hierarchy, so a
// whole month lives as one array value under a composite key; a
// "partition" there is an array slot, not a file.
type layout interface {
	// save writes the record body into its partition and returns the file
	// name and index-relative path for the index entry.
	save(ctx context.Context, rec record.Record) (fileName, relativePath string, err error)

	// load reads the body an index entry points at.
	load(ctx context.Context, e record.IndexEntry) (record.Record, error)

	// remove deletes the body an index entry points at. Absent bodies are
	// tolerated.
	remove(ctx context.Context, e record.IndexEntry) error

	// scan returns every readable record in the (year, month) partition,
	// skipping bodies that fail to decode.
	scan(ctx context.Context, year, month int) ([]record.Record, error)

	// clear deletes the whole (year, month) partition.
	clear(ctx context.Context, year, month int) error

	// years lists the years with at least one partition.
	years(ctx context.Context) ([]int, error)

	// months lists the partition months present for a year.
	months(ctx context.Context, year int) ([]int, error)
}

// layoutFor picks the partition layout matching the adapter's substrate.
func layoutFor(ad backend.Adapter, now func() time.Time, log *slog.Logger) layout {
	if ad.Method() == backend.MethodDirectory {
		return &treeLayout{ad: ad, now: now, log: log}
	}
	return &flatLayout{ad: ad, log: log}
}

// treeLayout is the directory-capable mapping: one JSON file per record at
// history/{year}/{month:02d}/{fileName}.
type treeLayout struct {
	ad  backend.Adapter
	now func() time.Time
	log *slog.Logger
}

func treeKey(relativePath string) string {
	return historyPrefix + "/" + relativePath
}

func (l *treeLayout) save(ctx context.Context, rec record.Record) (string, string, error) {
	fileName := record.FileName(rec.Name, rec.ID)
	relativePath := fmt.Sprintf("%d/%02d/%s", rec.Year(), rec.Month(), fileName)

	doc := bodyDoc{
		TaskData:    rec,
		CreatedTime: l.now(),
		Year:        rec.Year(),
		Month:       rec.Month(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("%w: encode record %s: %v", ErrSerialization, rec.ID, err)
	}
	if err := l.ad.WriteKey(ctx, treeKey(relativePath), data); err != nil {
		return "", "", fmt.Errorf("save record %s: %w", rec.ID, err)
	}
	return fileName, relativePath, nil
}

func (l *treeLayout) load(ctx context.Context, e record.IndexEntry) (record.Record, error) {
	data, err := l.ad.ReadKey(ctx, treeKey(e.RelativePath))
	if err != nil {
		return record.Record{}, fmt.Errorf("load record %s: %w", e.ID, err)
	}
	var doc bodyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return record.Record{}, fmt.Errorf("%w: decode record %s: %v", ErrSerialization, e.ID, err)
	}
	return doc.TaskData, nil
}

func (l *treeLayout) remove(ctx context.Context, e record.IndexEntry) error {
	return l.ad.DeleteKey(ctx, treeKey(e.RelativePath))
}

func (l *treeLayout) scan(ctx context.Context, year, month int) ([]record.Record, error) {
	dir := fmt.Sprintf("%s/%d/%02d", historyPrefix, year, month)
	names, err := l.ad.ListChildren(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("scan partition %d/%02d: %w", year, month, err)
	}

	var out []record.Record
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := l.ad.ReadKey(ctx, dir+"/"+name)
		if err != nil {
			l.log.Warn("skipping unreadable partition file", "file", name, "error", err)
			continue
		}
		var doc bodyDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			l.log.Warn("skipping undecodable partition file", "file", name, "error", err)
			continue
		}
		out = append(out, doc.TaskData)
	}
	return out, nil
}

func (l *treeLayout) clear(ctx context.Context, year, month int) error {
	dir := fmt.Sprintf("%s/%d/%02d", historyPrefix, year, month)
	names, err := l.ad.ListChildren(ctx, dir)
	if err != nil {
		return fmt.Errorf("clear partition %d/%02d: %w", year, month, err)
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		if err := l.ad.DeleteKey(ctx, dir+"/"+name); err != nil {
			return fmt.Errorf("clear partition %d/%02d: %w", year, month, err)
		}
	}
	return nil
}

func (l *treeLayout) years(ctx context.Context) ([]int, error) {
	return childInts(l.ad, ctx, historyPrefix)
}

func (l *treeLayout) months(ctx context.Context, year int) ([]int, error) {
	return childInts(l.ad, ctx, fmt.Sprintf("%s/%d", historyPrefix, year))
}

// flatLayout is the flat keyed mapping: the whole (year, month) partition
// is one composite key, history-{year}-{month:02d}, holding the month's
// record array.
//
// Unlike the tree layout, a partition here is shared mutable state: every
// record in a month lives inside one value. mu serializes the
// read-modify-write cycles of save and remove so concurrent saves into the
// same month cannot overwrite each other's records.
type flatLayout struct {
	mu  sync.Mutex
	ad  backend.Adapter
	log *slog.Logger
}

func partitionKey(year, month int) string {
	return fmt.Sprintf("%s-%d-%02d", historyPrefix, year, month)
}

// readPartition loads a month's record array. Absent keys yield an empty
// slice.
func (l *flatLayout) readPartition(ctx context.Context, key string) ([]record.Record, error) {
	data, err := l.ad.ReadKey(ctx, key)
	if errors.Is(err, backend.ErrKeyAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read partition %s: %w", key, err)
	}
	var recs []record.Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: decode partition %s: %v", ErrSerialization, key, err)
	}
	return recs, nil
}

func (l *flatLayout) writePartition(ctx context.Context, key string, recs []record.Record) error {
	if len(recs) == 0 {
		return l.ad.DeleteKey(ctx, key)
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("%w: encode partition %s: %v", ErrSerialization, key, err)
	}
	return l.ad.WriteKey(ctx, key, data)
}

func (l *flatLayout) save(ctx context.Context, rec record.Record) (string, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := partitionKey(rec.Year(), rec.Month())
	recs, err := l.readPartition(ctx, key)
	if err != nil {
		return "", "", fmt.Errorf("save record %s: %w", rec.ID, err)
	}

	replaced := false
	for i := range recs {
		if recs[i].ID == rec.ID {
			recs[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		recs = append(recs, rec)
	}
	if err := l.writePartition(ctx, key, recs); err != nil {
		return "", "", fmt.Errorf("save record %s: %w", rec.ID, err)
	}

	// No separate file exists; the partition key serves as both.
	return record.FileName(rec.Name, rec.ID), key, nil
}

func (l *flatLayout) load(ctx context.Context, e record.IndexEntry) (record.Record, error) {
	recs, err := l.readPartition(ctx, partitionKey(e.Year, e.Month))
	if err != nil {
		return record.Record{}, fmt.Errorf("load record %s: %w", e.ID, err)
	}
	for _, r := range recs {
		if r.ID == e.ID {
			return r, nil
		}
	}
	return record.Record{}, fmt.Errorf("load record %s: %w", e.ID, backend.ErrKeyAbsent)
}

func (l *flatLayout) remove(ctx context.Context, e record.IndexEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := partitionKey(e.Year, e.Month)
	recs, err := l.readPartition(ctx, key)
	if err != nil {
		return fmt.Errorf("remove record %s: %w", e.ID, err)
	}
	kept := recs[:0]
	for _, r := range recs {
		if r.ID != e.ID {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(recs) {
		return nil
	}
	if err := l.writePartition(ctx, key, kept); err != nil {
		return fmt.Errorf("remove record %s: %w", e.ID, err)
	}
	return nil
}

func (l *flatLayout) scan(ctx context.Context, year, month int) ([]record.Record, error) {
	recs, err := l.readPartition(ctx, partitionKey(year, month))
	if errors.Is(err, ErrSerialization) {
		// A corrupt month loses its listing but must not abort the scan.
		l.log.Warn("skipping undecodable partition", "year", year, "month", month, "error", err)
		return nil, nil
	}
	return recs, err
}

func (l *flatLayout) clear(ctx context.Context, year, month int) error {
	return l.ad.DeleteKey(ctx, partitionKey(year, month))
}

func (l *flatLayout) years(ctx context.Context) ([]int, error) {
	return childInts(l.ad, ctx, historyPrefix)
}

func (l *flatLayout) months(ctx context.Context, year int) ([]int, error) {
	return childInts(l.ad, ctx, fmt.Sprintf("%s-%d", historyPrefix, year))
}

// childInts lists the children of path and keeps the ones that parse as
// positive integers, sorted ascending.
func childInts(ad backend.Adapter, ctx context.Context, path string) ([]int, error) {
	names, err := ad.ListChildren(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	var out []int
	for _, name := range names {
		n, err := strconv.Atoi(name)
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}
