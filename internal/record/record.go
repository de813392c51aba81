package record

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

// Record is one completed, named draw session with its winners.
//
// Records are created at export time and are immutable except through an
// explicit authenticated edit that replaces Results and TotalCount. The
// JSON field names match the on-disk task documents written by earlier
// releases, so existing history directories remain readable.
type Record struct {
	// ID uniquely identifies the record. Time-sortable UUIDv7.
	ID string `json:"id"`

	// Name is the human-facing session name, e.g. "Friday raffle".
	Name string `json:"name"`

	// Timestamp is when the draw session completed.
	Timestamp time.Time `json:"timestamp"`

	// Results holds the winner names in draw order.
	Results []string `json:"results"`

	// TotalCount is the number of winners in Results.
	TotalCount int `json:"total_count"`

	// GroupName is the candidate group the session drew from.
	GroupName string `json:"group_name"`

	// EditProtected marks the record as requiring a password to edit.
	EditProtected bool `json:"edit_protected"`

	// EditPasswordHash is the hash guarding edits. Hashing happens in the
	// caller; the store only compares.
	EditPasswordHash string `json:"edit_password,omitempty"`
}

// Year returns the partition year derived from Timestamp.
func (r Record) Year() int {
	return r.Timestamp.Year()
}

// Month returns the partition month (1-12) derived from Timestamp.
func (r Record) Month() int {
	return int(r.Timestamp.Month())
}

// IndexEntry is the lightweight projection of a Record kept in the global
// index for listing without loading full bodies.
//
// Exactly one live entry exists per Record, keyed by ID. Year and Month are
// derived from Timestamp and must agree with the partition holding the body.
type IndexEntry struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Timestamp    time.Time `json:"timestamp"`
	FileName     string    `json:"fileName"`
	RelativePath string    `json:"relativePath"`
	TotalCount   int       `json:"totalCount"`
	GroupName    string    `json:"groupName"`
	Year         int       `json:"year"`
	Month        int       `json:"month"`
}

// Placeholder synthesizes a Record from an index entry whose body could not
// be loaded. Results are empty and edit protection is cleared; listings use
// this instead of aborting on one bad file.
func (e IndexEntry) Placeholder() Record {
	return Record{
		ID:         e.ID,
		Name:       e.Name,
		Timestamp:  e.Timestamp,
		Results:    []string{},
		TotalCount: e.TotalCount,
		GroupName:  e.GroupName,
	}
}

// NewID returns a new time-sortable UUIDv7 record ID.
//
// Panics if UUID generation fails (should never happen in practice).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// maxCleanNameLen bounds the sanitized name component of a file name.
const maxCleanNameLen = 50

// forbidden are the characters stripped from file names. The set matches
// what Windows rejects in path components, plus the path separators.
const forbidden = `<>:"/\|?*`

// CleanName sanitizes a session name for use in a file name: the name is
// NFC normalized, forbidden characters and spaces become underscores, and
// the result is truncated to 50 runes.
func CleanName(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	b.Grow(len(name))
	for i, r := range []rune(name) {
		if i >= maxCleanNameLen {
			break
		}
		if r == ' ' || strings.ContainsRune(forbidden, r) {
			b.WriteRune('_')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FileName builds the partition file name for a record: the sanitized
// session name joined with the record ID, so files stay unique even when
// two sessions share a name.
func FileName(name, id string) string {
	return CleanName(name) + "_" + id + ".json"
}
