package catalog

import (
	"strconv"
	"sync"

	"github.com/go-faster/city"
)

// BadFileEntry records why a file is quarantined and the lastModified it
// was quarantined at; a later lastModified invalidates the entry (spec
// §3, §4.8). DirIndex/Name are carried on the entry itself so the
// registry's map key can be an opaque hash without losing the ability to
// reconstruct which file an entry names.
type BadFileEntry struct {
	DirIndex     int16
	Name         string
	LastModified float64
	Reason       string
}

// BadFileRegistry maps a file's (dirIndex, name) identity to its
// quarantine entry. It must be concurrent-safe (spec §5) since query-time
// retry failures (§4.7 step 5) can add entries from request-handler
// goroutines while the catalog updater reads it, so it is backed by
// sync.Map the same way the teacher's JSONIndex keeps its entries
// (merge/index/json_index.go). The map key is a CityHash64 digest of the
// identity rather than a formatted string, matching the teacher's
// hive_merge_tree_service.go partition-hash pattern for keying concurrent
// maps by a cheap fixed-width digest instead of a string scan.
type BadFileRegistry struct {
	m sync.Map // key uint64 (cityhash of dirIndex/name) -> BadFileEntry
}

func NewBadFileRegistry() *BadFileRegistry {
	return &BadFileRegistry{}
}

func hashKey(dirIndex int16, name string) uint64 {
	var buf [2]byte
	buf[0] = byte(dirIndex)
	buf[1] = byte(dirIndex >> 8)
	return city.Hash64(append(buf[:], name...))
}

// Get returns the entry for (dirIndex, name), or (zero, false) if absent.
func (b *BadFileRegistry) Get(dirIndex int16, name string) (BadFileEntry, bool) {
	v, ok := b.m.Load(hashKey(dirIndex, name))
	if !ok {
		return BadFileEntry{}, false
	}
	return v.(BadFileEntry), true
}

// Add quarantines (dirIndex, name) with the given lastModified and reason.
func (b *BadFileRegistry) Add(dirIndex int16, name string, lastModified float64, reason string) {
	b.m.Store(hashKey(dirIndex, name), BadFileEntry{
		DirIndex: dirIndex, Name: name, LastModified: lastModified, Reason: reason,
	})
}

// Remove clears any quarantine entry for (dirIndex, name), called when a
// file's lastModified changes (escape from quarantine requires this, per
// spec §4.8) or when the file is no longer discovered (§4.4 step 1).
func (b *BadFileRegistry) Remove(dirIndex int16, name string) {
	b.m.Delete(hashKey(dirIndex, name))
}

// Clear empties the registry, used for remote datasets at the start of
// every update pass (transient failures must not permanently exclude,
// §4.8).
func (b *BadFileRegistry) Clear() {
	b.m.Range(func(k, _ any) bool {
		b.m.Delete(k)
		return true
	})
}

// Entries returns every currently-quarantined entry, used by the
// updater's prune-bad-file-registry step (§4.4 step 1), the post-pass
// notification summary (§7), and persistence.
func (b *BadFileRegistry) Entries() []BadFileEntry {
	var out []BadFileEntry
	b.m.Range(func(_, v any) bool {
		out = append(out, v.(BadFileEntry))
		return true
	})
	return out
}

// Key renders (dirIndex, name) as the human-readable "dirIndex/name"
// identity used in persisted bad-file records, independent of the
// registry's internal hashed map key.
func (e BadFileEntry) Key() string {
	return strconv.Itoa(int(e.DirIndex)) + "/" + e.Name
}
