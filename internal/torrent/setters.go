package torrent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"torrentutil/internal/hashing"
	"torrentutil/internal/trackers"
)

// ErrValidation wraps every synchronous argument rejection; the mutation is
// never queued when it is returned.
var ErrValidation = errors.New("invalid argument")

// ErrNotReady is recorded on a job that requires a complete torrent while
// required fields are still missing or inconsistent.
var ErrNotReady = errors.New("torrent is not ready")

// the character classes windows and most clients refuse in a torrent name
var invalid_name_chars = regexp.MustCompile(`(\s|[\/:*?"<>|])`)

var date_layouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"20060102-150405",
	"20060102",
}

var known_encodings = map[string]bool{
	"utf-8": true, "utf8": true, "utf-16": true, "utf-32": true,
	"ascii": true, "us-ascii": true,
	"latin-1": true, "latin1": true, "iso-8859-1": true,
	"cp1252": true, "windows-1252": true,
	"gbk": true, "gb2312": true, "big5": true,
	"shift_jis": true, "euc-kr": true,
}

func valid_encoding(name string) bool {
	return known_encodings[strings.ToLower(name)]
}

// AddTracker adds one tier of tracker urls, at the top when top is true,
// otherwise at the bottom. Urls already present elsewhere are moved.
func (t *Torrent) AddTracker(urls []string, top bool) (*Job, error) {
	if err := t.check_urls(urls); err != nil {
		return nil, err
	}
	return t.enqueue("add tracker", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		index := 0
		if !top {
			index = t.meta.trackers.Len()
		}
		return t.meta.trackers.Insert(urls, index)
	})
}

// SetTracker replaces the whole tracker list with one tier of urls.
func (t *Torrent) SetTracker(urls []string) (*Job, error) {
	if err := t.check_urls(urls); err != nil {
		return nil, err
	}
	return t.enqueue("set tracker", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.trackers.Clear()
		return t.meta.trackers.Set(urls, 0)
	})
}

// SetTrackerTiers replaces the whole tracker list with the given tiers.
func (t *Torrent) SetTrackerTiers(tiers [][]string) (*Job, error) {
	for _, tier := range tiers {
		if err := t.check_urls(tier); err != nil {
			return nil, err
		}
	}
	return t.enqueue("set tracker tiers", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.trackers.Clear()
		return t.meta.trackers.SetTiers(tiers, 0)
	})
}

// RemoveTracker removes the given urls from every tier.
func (t *Torrent) RemoveTracker(urls ...string) (*Job, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no tracker url given", ErrValidation)
	}
	return t.enqueue("remove tracker", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.trackers.Remove(urls...)
		return nil
	})
}

func (t *Torrent) SetComment(comment string) (*Job, error) {
	return t.enqueue("set comment", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.comment = comment
		return nil
	})
}

func (t *Torrent) SetCreator(creator string) (*Job, error) {
	return t.enqueue("set creator", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.creator = creator
		return nil
	})
}

// SetDate sets the creation time as unix seconds.
func (t *Torrent) SetDate(unix int64) (*Job, error) {
	return t.enqueue("set date", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.date = unix
		return nil
	})
}

// SetDateString parses value with the given layout, or with a list of
// common layouts when layout is empty, and sets the creation time.
func (t *Torrent) SetDateString(value, layout string) (*Job, error) {
	layouts := date_layouts
	if layout != "" {
		layouts = []string{layout}
	}
	for _, l := range layouts {
		if parsed, err := time.Parse(l, value); err == nil {
			return t.SetDate(parsed.Unix())
		}
	}
	return nil, fmt.Errorf("%w: date %q is not understood", ErrValidation, value)
}

func (t *Torrent) SetEncoding(encoding string) (*Job, error) {
	if !valid_encoding(encoding) {
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrValidation, encoding)
	}
	return t.enqueue("set encoding", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta.encoding = encoding
		return nil
	})
}

func (t *Torrent) SetName(name string) (*Job, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: torrent name cannot be empty", ErrValidation)
	}
	if invalid_name_chars.MatchString(name) {
		return nil, fmt.Errorf("%w: torrent name contains an invalid character", ErrValidation)
	}
	return t.enqueue("set name", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.info.name = name
		return nil
	})
}

// SetPieceLength sets the piece size in bytes. Changing it to a different
// value clears any existing piece hashes. With strict the size must also be
// a power of two within [256 KiB, 32 MiB]; sizes below 16 KiB are never
// allowed.
func (t *Torrent) SetPieceLength(size int64, strict bool) (*Job, error) {
	if size < MinPieceLength {
		return nil, fmt.Errorf("%w: piece length must be at least 16 KiB", ErrValidation)
	}
	if strict {
		if size < 262144 {
			return nil, fmt.Errorf("%w: piece length should be at least 256 KiB", ErrValidation)
		}
		if size > 33554432 {
			return nil, fmt.Errorf("%w: piece length should be at most 32 MiB", ErrValidation)
		}
		if size&(size-1) != 0 {
			return nil, fmt.Errorf("%w: piece length must be a power of 2", ErrValidation)
		}
	}
	return t.enqueue("set piece length", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		if size != t.info.piece_length {
			t.info.piece_length = size
			t.info.pieces = nil
		}
		return nil
	})
}

func (t *Torrent) SetPrivate(private bool) (*Job, error) {
	return t.enqueue("set private", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.info.private = private
		return nil
	})
}

func (t *Torrent) SetSource(src string) (*Job, error) {
	return t.enqueue("set source", nil, func(*Job) error {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.info.source = src
		return nil
	})
}

// Load hashes the content under spath and replaces the torrent's file list
// and piece table. The torrent name follows the source's base name unless
// keep_name is true. Hashing runs without the write lock so accessors stay
// responsive; the outcome is committed atomically at the end.
func (t *Torrent) Load(spath string, keep_name bool) (*Job, error) {
	if _, err := os.Stat(spath); err != nil {
		return nil, fmt.Errorf("source path %q: %w", spath, err)
	}
	prog := &hashing.Progress{}
	return t.enqueue("load source", prog, func(*Job) error {
		t.mu.RLock()
		piece_length := t.info.piece_length
		t.mu.RUnlock()

		entries, pieces, err := hashing.LoadSource(context.Background(), spath, piece_length, prog, hashing.LoadOptions{})
		if err != nil {
			return err
		}

		t.mu.Lock()
		defer t.mu.Unlock()
		if !keep_name {
			t.info.name = filepath.Base(filepath.Clean(spath))
		}
		t.info.files = entries
		t.info.pieces = pieces
		return nil
	})
}

// Verify compares the content under spath against the recorded piece table.
// The job's result is a hashing.VerifyResult; mismatches are data, not a
// job failure.
func (t *Torrent) Verify(spath string) (*Job, error) {
	if _, err := os.Stat(spath); err != nil {
		return nil, fmt.Errorf("source path %q: %w", spath, err)
	}
	prog := &hashing.Progress{}
	return t.enqueue("verify source", prog, func(j *Job) error {
		t.mu.RLock()
		layout := t.layout()
		t.mu.RUnlock()

		if len(layout.Files) == 0 {
			return fmt.Errorf("%w: torrent has no files", ErrNotReady)
		}

		st, err := os.Stat(spath)
		if err != nil {
			return err
		}
		base := filepath.Base(filepath.Clean(spath))
		if len(layout.Files) == 1 && layout.Files[0].Path == nil {
			if st.IsDir() {
				return fmt.Errorf("expected a single file, not directory %q", base)
			}
			if base != layout.Name {
				return fmt.Errorf("file %q does not match torrent name %q", base, layout.Name)
			}
		} else {
			if !st.IsDir() {
				return fmt.Errorf("expected a directory, not file %q", base)
			}
			if base != layout.Name {
				return fmt.Errorf("directory %q does not match torrent name %q", base, layout.Name)
			}
		}

		result, err := hashing.Verify(context.Background(), layout, spath, prog)
		if err != nil {
			return err
		}
		j.result = result
		return nil
	})
}

func (t *Torrent) check_urls(urls []string) error {
	t.mu.RLock()
	opts := t.meta.trackers.Options()
	t.mu.RUnlock()
	if _, err := trackers.CheckURLs(urls, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
