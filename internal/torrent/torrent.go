// Package torrent holds the in-memory representation of a torrent file and
// routes every mutation through a background job queue, so readers always
// observe consistent state and long hashing runs do not block the queuing of
// further edits.
package torrent

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"torrentutil/internal/bencode"
	"torrentutil/internal/hashing"
	"torrentutil/internal/trackers"
)

const (
	// DefaultPieceLength is used until a piece length is set explicitly.
	DefaultPieceLength = 4096 << 10

	// MinPieceLength is the hard lower bound of the file format.
	MinPieceLength = 16384

	default_encoding = "UTF-8"
)

// meta_data is the torrent metadata outside the info dict; it does not
// affect the content hash.
type meta_data struct {
	trackers *trackers.Trackers
	comment  string
	creator  string
	date     int64
	encoding string
}

// info_data is the content of the info dict; all of it affects the hash.
type info_data struct {
	files        []hashing.FileEntry
	name         string
	piece_length int64
	pieces       hashing.PieceTable
	private      bool
	source       string
}

// Torrent aggregates the metadata of one torrent file. Accessors are safe
// to call from any goroutine; mutations are queued as jobs and applied by a
// single background worker in submission order.
type Torrent struct {
	mu   sync.RWMutex
	meta meta_data
	info info_data

	queue_mu   sync.Mutex
	queue_add  *sync.Cond
	queue_idle *sync.Cond
	queue      []*Job
	running    bool
	closed     bool
	worker     chan struct{}
}

// New returns an empty torrent and starts its job worker. Callers must
// Close it when done to stop the worker.
func New() *Torrent {
	t := &Torrent{
		meta: meta_data{
			trackers: trackers.New(trackers.DefaultOptions()),
			encoding: default_encoding,
		},
		info: info_data{
			piece_length: DefaultPieceLength,
		},
		worker: make(chan struct{}),
	}
	t.queue_add = sync.NewCond(&t.queue_mu)
	t.queue_idle = sync.NewCond(&t.queue_mu)
	go t.run_jobs()
	return t
}

// ---------------------------------------------------------------------------
// accessors mirroring the keys of an actual torrent file

// Announce returns the first tracker url, i.e. the announce key.
func (t *Torrent) Announce() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.trackers.Announce()
}

// AnnounceList returns the full tier structure, or nil when fewer than two
// urls exist (in which case the announce-list key is omitted on write).
func (t *Torrent) AnnounceList() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.trackers.AnnounceList()
}

// TrackerTiers always returns the full tier structure, unlike AnnounceList.
func (t *Torrent) TrackerTiers() [][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.trackers.Tiers()
}

// TrackerURLs returns the flattened, deduplicated tracker urls.
func (t *Torrent) TrackerURLs() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.trackers.URLs()
}

func (t *Torrent) NumTrackers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.trackers.NumURLs()
}

func (t *Torrent) NumTrackerTiers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.trackers.Len()
}

func (t *Torrent) Comment() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.comment
}

func (t *Torrent) CreatedBy() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.creator
}

// CreationDate returns the creation time as unix seconds, 0 when unset.
func (t *Torrent) CreationDate() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.date
}

func (t *Torrent) Encoding() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.meta.encoding
}

func (t *Torrent) Name() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.name
}

func (t *Torrent) PieceLength() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.piece_length
}

// Pieces returns a copy of the raw concatenated piece digests.
func (t *Torrent) Pieces() hashing.PieceTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.info.pieces)
}

func (t *Torrent) Private() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.private
}

func (t *Torrent) Source() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.source
}

// FileList returns a copy of the recorded content files in stream order.
func (t *Torrent) FileList() []hashing.FileEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]hashing.FileEntry, len(t.info.files))
	for i, f := range t.info.files {
		result[i] = hashing.FileEntry{Path: slices.Clone(f.Path), Size: f.Size}
	}
	return result
}

// Size is the total size of all recorded content files.
func (t *Torrent) Size() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.total_size()
}

func (t *Torrent) NumFiles() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.info.files)
}

func (t *Torrent) NumPieces() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info.pieces.Count()
}

// TorrentSize is the size in bytes of the torrent file itself as it would
// be written now.
func (t *Torrent) TorrentSize() int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	data, err := bencode.Encode(t.torrent_dict())
	if err != nil {
		return 0
	}
	return int64(len(data))
}

// InfoHash is the SHA-1 digest of the canonically encoded info dict.
func (t *Torrent) InfoHash() [20]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info_hash()
}

// Hash is the hex form of InfoHash.
func (t *Torrent) Hash() string {
	digest := t.InfoHash()
	return hex.EncodeToString(digest[:])
}

// Magnet builds the magnet link of the torrent.
func (t *Torrent) Magnet() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "magnet:?xt=urn:btih:%x", t.info_hash())
	if t.info.name != "" {
		fmt.Fprintf(&sb, "&dn=%s", url.QueryEscape(t.info.name))
	}
	if size := t.total_size(); size > 0 {
		fmt.Fprintf(&sb, "&xl=%d", size)
	}
	for _, u := range t.meta.trackers.URLs() {
		fmt.Fprintf(&sb, "&tr=%s", url.QueryEscape(u))
	}
	return sb.String()
}

// MinimalMagnet is the magnet link with only the hash.
func (t *Torrent) MinimalMagnet() string {
	return fmt.Sprintf("magnet:?xt=urn:btih:%s", t.Hash())
}

// InfoDict returns the info dict as it would be encoded.
func (t *Torrent) InfoDict() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.info_dict()
}

// TorrentDict returns the complete dict, ready to be encoded and saved.
func (t *Torrent) TorrentDict() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.torrent_dict()
}

// ---------------------------------------------------------------------------
// consistency and lookups

// Check returns every problem preventing the torrent from being written,
// not just the first.
func (t *Torrent) Check() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.check()
}

// FileLocation maps one recorded file to its piece index range [First, End).
type FileLocation struct {
	Path  string
	First int
	End   int
}

// Index finds recorded files whose trailing path segments match target,
// e.g. "b/c" matches "a/b/c" but not "b/c/a", and returns their piece
// ranges.
func (t *Torrent) Index(target string, case_sensitive bool) []FileLocation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	want := strings.Split(path.Clean(filepath.ToSlash(target)), "/")
	results := []FileLocation{}
	var offset int64
	for _, f := range t.info.files {
		parts := append([]string{t.info.name}, f.Path...)
		if suffix_match(parts, want, case_sensitive) {
			results = append(results, FileLocation{
				Path:  path.Join(parts...),
				First: int(offset / t.info.piece_length),
				End:   int((offset + f.Size + t.info.piece_length - 1) / t.info.piece_length),
			})
		}
		offset += f.Size
	}
	return results
}

// FilesForPiece returns the paths of every file overlapping piece i.
// Negative indices count from the end.
func (t *Torrent) FilesForPiece(i int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i < 0 {
		i += t.info.pieces.Count()
	}
	return t.files_for_pieces(i, i+1)
}

// FilesForPieceRange returns the paths of every file overlapping the piece
// range [lo, hi). Negative bounds count from the end; an empty range
// returns no files.
func (t *Torrent) FilesForPieceRange(lo, hi int) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.info.pieces.Count()
	if lo < 0 {
		lo += n
	}
	if hi < 0 {
		hi += n
	}
	return t.files_for_pieces(lo, hi)
}

func (t *Torrent) files_for_pieces(lo, hi int) []string {
	layout := t.layout()
	paths := []string{}
	for _, idx := range layout.FilesForPieceRange(lo, hi) {
		parts := append([]string{t.info.name}, t.info.files[idx].Path...)
		paths = append(paths, path.Join(parts...))
	}
	return paths
}

// ---------------------------------------------------------------------------
// internal helpers, callers must hold at least a read lock

func (t *Torrent) total_size() int64 {
	var total int64
	for _, f := range t.info.files {
		total += f.Size
	}
	return total
}

func (t *Torrent) layout() hashing.Layout {
	return hashing.Layout{
		Name:        t.info.name,
		Files:       slices.Clone(t.info.files),
		PieceLength: t.info.piece_length,
		Pieces:      slices.Clone(t.info.pieces),
	}
}

func (t *Torrent) info_dict() map[string]any {
	ret := map[string]any{}
	switch len(t.info.files) {
	case 0:
	case 1:
		ret["length"] = t.info.files[0].Size
	default:
		files := []any{}
		for _, f := range t.info.files {
			files = append(files, map[string]any{"length": f.Size, "path": f.Path})
		}
		ret["files"] = files
	}
	if t.info.name != "" {
		ret["name"] = t.info.name
	}
	if t.info.piece_length > 0 {
		ret["piece length"] = t.info.piece_length
	}
	if len(t.info.pieces) > 0 {
		ret["pieces"] = string(t.info.pieces)
	}
	if t.info.private {
		ret["private"] = int64(1)
	}
	if t.info.source != "" {
		ret["source"] = t.info.source
	}
	return ret
}

func (t *Torrent) torrent_dict() map[string]any {
	ret := map[string]any{}
	if annc := t.meta.trackers.Announce(); annc != "" {
		ret["announce"] = annc
	}
	if alst := t.meta.trackers.AnnounceList(); alst != nil {
		tiers := []any{}
		for _, tier := range alst {
			tiers = append(tiers, tier)
		}
		ret["announce-list"] = tiers
	}
	if t.meta.comment != "" {
		ret["comment"] = t.meta.comment
	}
	if t.meta.date > 0 {
		ret["creation date"] = t.meta.date
	}
	if t.meta.creator != "" {
		ret["created by"] = t.meta.creator
	}
	if t.meta.encoding != "" {
		ret["encoding"] = t.meta.encoding
	}
	ret["info"] = t.info_dict()
	return ret
}

// info_hash encodes the info dict and hashes it; the dict only ever holds
// encodable types so the encode error is unreachable.
func (t *Torrent) info_hash() [20]byte {
	data, _ := bencode.Encode(t.info_dict())
	return hashing.Sum(data)
}

func (t *Torrent) check() []string {
	problems := []string{}
	if t.info.name == "" {
		problems = append(problems, "torrent name has not been set")
	}
	if t.info.piece_length == 0 {
		problems = append(problems, "piece length cannot be 0")
	}
	if len(t.info.files) == 0 {
		problems = append(problems, "torrent has no source files")
	}
	if len(t.info.pieces) == 0 {
		problems = append(problems, "piece hash is empty")
	}
	size := t.total_size()
	if len(t.info.files) > 0 && size == 0 {
		problems = append(problems, "total content size is 0")
	}
	num_pieces := int64(t.info.pieces.Count())
	if t.info.piece_length*(num_pieces-1) > size {
		problems = append(problems, "too many pieces for content size")
	}
	if t.info.piece_length*num_pieces < size {
		problems = append(problems, "too few pieces for content size")
	}
	if !valid_encoding(t.meta.encoding) {
		problems = append(problems, fmt.Sprintf("unknown encoding %q", t.meta.encoding))
	}
	return problems
}

func suffix_match(parts, want []string, case_sensitive bool) bool {
	if len(want) == 0 || len(parts) < len(want) {
		return false
	}
	tail := parts[len(parts)-len(want):]
	for i := range want {
		if case_sensitive {
			if tail[i] != want[i] {
				return false
			}
		} else if !strings.EqualFold(tail[i], want[i]) {
			return false
		}
	}
	return true
}
