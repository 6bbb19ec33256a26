package torrent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"torrentutil/internal/bencode"
	"torrentutil/internal/hashing"
	"torrentutil/internal/trackers"
)

// metadata keys selectable by ReadMetadata
var metadata_keys = map[string]bool{
	"tracker":       true,
	"comment":       true,
	"created_by":    true,
	"creation_date": true,
	"encoding":      true,
	"source":        true,
}

// Read loads everything from an existing torrent file, clearing all current
// fields first.
func (t *Torrent) Read(tpath string) (*Job, error) {
	if err := require_file(tpath); err != nil {
		return nil, err
	}
	return t.enqueue("read torrent", nil, func(*Job) error {
		meta, info, err := parse_torrent_file(tpath)
		if err != nil {
			return err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		t.meta = meta
		t.info = info
		return nil
	})
}

// ReadMetadata copies selected non-content fields from an existing torrent
// file: trackers, comment, created_by, creation_date, encoding, source.
// With no include list all keys are copied; exclude overrides include and
// defaults to source, which is owner-specific. Trackers from the template
// are inserted above the existing ones; other fields overwrite only when
// the template has them set.
func (t *Torrent) ReadMetadata(tpath string, include, exclude []string) (*Job, error) {
	if err := require_file(tpath); err != nil {
		return nil, err
	}
	if len(include) == 0 {
		for key := range metadata_keys {
			include = append(include, key)
		}
	}
	if exclude == nil {
		exclude = []string{"source"}
	}
	for _, key := range append(append([]string{}, include...), exclude...) {
		if !metadata_keys[key] {
			return nil, fmt.Errorf("%w: unknown metadata key %q", ErrValidation, key)
		}
	}

	selected := map[string]bool{}
	for _, key := range include {
		selected[key] = true
	}
	for _, key := range exclude {
		delete(selected, key)
	}

	return t.enqueue("read metadata", nil, func(*Job) error {
		meta, info, err := parse_torrent_file(tpath)
		if err != nil {
			return err
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		if selected["tracker"] && meta.trackers.Len() > 0 {
			if err := t.meta.trackers.InsertTiers(meta.trackers.Tiers(), 0); err != nil {
				return err
			}
		}
		if selected["comment"] && meta.comment != "" {
			t.meta.comment = meta.comment
		}
		if selected["created_by"] && meta.creator != "" {
			t.meta.creator = meta.creator
		}
		if selected["creation_date"] && meta.date > 0 {
			t.meta.date = meta.date
		}
		if selected["encoding"] && meta.encoding != "" {
			t.meta.encoding = meta.encoding
		}
		if selected["source"] && info.source != "" {
			t.info.source = info.source
		}
		return nil
	})
}

// Write saves the torrent to tpath, or to <tpath>/<name>.torrent when tpath
// is a directory. The job fails with ErrNotReady listing every problem when
// required fields are missing, and refuses to replace an existing file
// unless overwrite is set. The job's result is the written path.
func (t *Torrent) Write(tpath string, overwrite bool) (*Job, error) {
	if tpath == "" {
		return nil, fmt.Errorf("%w: target path cannot be empty", ErrValidation)
	}
	return t.enqueue("write torrent", nil, func(j *Job) error {
		t.mu.RLock()
		problems := t.check()
		dict := t.torrent_dict()
		name := t.info.name
		t.mu.RUnlock()

		if len(problems) > 0 {
			return fmt.Errorf("%w: %s", ErrNotReady, strings.Join(problems, "; "))
		}

		data, err := bencode.Encode(dict)
		if err != nil {
			return err
		}

		target := tpath
		if st, err := os.Stat(tpath); err == nil && st.IsDir() {
			target = filepath.Join(tpath, name+".torrent")
		}
		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return fmt.Errorf("target %q already exists", target)
			}
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return err
		}
		j.result = target
		return nil
	})
}

func require_file(tpath string) error {
	st, err := os.Stat(tpath)
	if err != nil {
		return fmt.Errorf("torrent file %q: %w", tpath, err)
	}
	if !st.Mode().IsRegular() {
		return fmt.Errorf("%w: %q is not a file", ErrValidation, tpath)
	}
	return nil
}

// parse_torrent_file decodes a torrent file into fresh meta and info
// blocks, without touching the receiving torrent until the caller commits.
func parse_torrent_file(tpath string) (meta_data, info_data, error) {
	var no_meta meta_data
	var no_info info_data

	data, err := os.ReadFile(tpath)
	if err != nil {
		return no_meta, no_info, err
	}
	decoded, err := bencode.Decode(data)
	if err != nil {
		return no_meta, no_info, fmt.Errorf("invalid torrent: %w", err)
	}
	root, ok := decoded.(map[string]any)
	if !ok {
		return no_meta, no_info, fmt.Errorf("invalid torrent: root is not a dict")
	}

	meta := meta_data{
		trackers: trackers.New(trackers.DefaultOptions()),
		encoding: default_encoding,
	}
	if enc, err := bencode.Get[string](root, "encoding"); err == nil && enc != "" {
		if !valid_encoding(enc) {
			return no_meta, no_info, fmt.Errorf("invalid torrent: unknown encoding %q", enc)
		}
		meta.encoding = enc
	}

	// the announce url becomes its own top tier; announce-list tiers follow
	// and deduplication folds the usual announce/first-url overlap away.
	// Tiers holding only urls the format check rejects are skipped, not
	// fatal: other implementations put odd things in announce-list.
	if annc, err := bencode.Get[string](root, "announce"); err == nil && annc != "" {
		meta.trackers.Set([]string{annc}, 0)
	}
	if alist, err := bencode.Get[[]any](root, "announce-list"); err == nil {
		for _, entry := range alist {
			raw, ok := entry.([]any)
			if !ok {
				return no_meta, no_info, fmt.Errorf("invalid announce-list entry: %v", entry)
			}
			tier := []string{}
			for _, sub := range raw {
				u, ok := sub.(string)
				if !ok {
					return no_meta, no_info, fmt.Errorf("invalid announce-list entry: %v", entry)
				}
				tier = append(tier, u)
			}
			meta.trackers.Set(tier, meta.trackers.Len())
		}
	}

	if comment, err := bencode.Get[string](root, "comment"); err == nil {
		meta.comment = comment
	}
	if creator, err := bencode.Get[string](root, "created by"); err == nil {
		meta.creator = creator
	}
	if date, err := bencode.Get[int64](root, "creation date"); err == nil {
		meta.date = date
	}

	info_raw, err := bencode.Get[map[string]any](root, "info")
	if err != nil {
		return no_meta, no_info, fmt.Errorf("invalid torrent: %v", err)
	}

	info := info_data{}
	if info.name, err = bencode.Get[string](info_raw, "name"); err != nil {
		return no_meta, no_info, fmt.Errorf("invalid torrent: %v", err)
	}
	if info.piece_length, err = bencode.Get[int64](info_raw, "piece length"); err != nil {
		return no_meta, no_info, fmt.Errorf("invalid torrent: %v", err)
	}
	if info.piece_length < MinPieceLength {
		return no_meta, no_info, fmt.Errorf("invalid torrent: piece length %d is below 16 KiB", info.piece_length)
	}
	if src, err := bencode.Get[string](info_raw, "source"); err == nil {
		info.source = src
	}
	if private, err := bencode.Get[int64](info_raw, "private"); err == nil {
		info.private = private != 0
	}

	pieces, err := bencode.Get[string](info_raw, "pieces")
	if err != nil {
		return no_meta, no_info, fmt.Errorf("invalid torrent: %v", err)
	}
	if len(pieces)%20 != 0 {
		return no_meta, no_info, fmt.Errorf("invalid torrent: pieces length %d is not a multiple of 20", len(pieces))
	}
	info.pieces = hashing.PieceTable(pieces)

	length, length_err := bencode.Get[int64](info_raw, "length")
	files_raw, files_err := bencode.Get[[]any](info_raw, "files")
	switch {
	case length_err == nil && files_err == nil:
		return no_meta, no_info, fmt.Errorf("invalid torrent: has both length and files")
	case length_err == nil:
		info.files = []hashing.FileEntry{{Size: length}}
	case files_err == nil:
		for _, entry := range files_raw {
			fdict, ok := entry.(map[string]any)
			if !ok {
				return no_meta, no_info, fmt.Errorf("invalid torrent: bad files entry: %v", entry)
			}
			fsize, err := bencode.Get[int64](fdict, "length")
			if err != nil {
				return no_meta, no_info, fmt.Errorf("invalid torrent: %v", err)
			}
			segments, err := bencode.GetStrings(fdict, "path")
			if err != nil {
				return no_meta, no_info, fmt.Errorf("invalid torrent: %v", err)
			}
			if len(segments) == 0 {
				return no_meta, no_info, fmt.Errorf("invalid torrent: files entry with empty path")
			}
			info.files = append(info.files, hashing.FileEntry{Path: segments, Size: fsize})
		}
	default:
		return no_meta, no_info, fmt.Errorf("invalid torrent: has neither length nor files")
	}

	return meta, info, nil
}
