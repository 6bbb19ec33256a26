package hashing

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// LoadOptions carries the runtime knobs of LoadSource.
type LoadOptions struct {
	Workers int // hash workers, defaults to GOMAXPROCS
}

// LoadSource enumerates the content under root (a single file or a
// directory tree in lexical order), streams it as one virtual byte stream
// and hashes every piece_length-sized window. Reads are sequential with one
// piece buffered at a time; digest computation is fanned out to a bounded
// worker pool since pieces are independent.
func LoadSource(ctx context.Context, root string, piece_length int64, prog *Progress, opts LoadOptions) ([]FileEntry, PieceTable, error) {
	if piece_length <= 0 {
		return nil, nil, fmt.Errorf("piece length must be positive, got %d", piece_length)
	}

	entries, paths, err := enumerate(root)
	if err != nil {
		return nil, nil, err
	}
	if len(entries) == 0 {
		return nil, nil, fmt.Errorf("no files found under %s", root)
	}

	var total int64
	for _, e := range entries {
		total += e.Size
	}
	if total == 0 {
		return nil, nil, ErrEmptySource
	}
	prog.set_totals(int64(len(entries)), total)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	num_pieces := int((total + piece_length - 1) / piece_length)
	digests := make([]byte, num_pieces*20)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	// hand the filled buffer to a worker and start a fresh one; disjoint
	// copy targets per index keep the table ordered without coordination
	piece_idx := 0
	buf := make([]byte, piece_length)
	var filled int64
	submit := func() {
		data, idx := buf[:filled], piece_idx
		group.Go(func() error {
			digest := Sum(data)
			copy(digests[idx*20:], digest[:])
			return nil
		})
		piece_idx++
		buf = make([]byte, piece_length)
		filled = 0
	}

	for _, fpath := range paths {
		if err := gctx.Err(); err != nil {
			group.Wait()
			return nil, nil, err
		}

		f, err := os.Open(fpath)
		if err != nil {
			group.Wait()
			return nil, nil, err
		}
		for {
			n, rerr := f.Read(buf[filled:])
			filled += int64(n)
			prog.add_bytes(int64(n))
			if filled == piece_length {
				if piece_idx >= num_pieces {
					f.Close()
					group.Wait()
					return nil, nil, fmt.Errorf("source grew while hashing %s", fpath)
				}
				submit()
			}
			if rerr == io.EOF {
				break
			}
			if rerr != nil {
				f.Close()
				group.Wait()
				return nil, nil, rerr
			}
		}
		f.Close()
		prog.add_file()
	}
	if filled > 0 {
		submit()
	}

	if err := group.Wait(); err != nil {
		return nil, nil, err
	}
	if piece_idx != num_pieces {
		return nil, nil, fmt.Errorf("source shrank while hashing %s", root)
	}

	return entries, PieceTable(digests), nil
}

// enumerate lists the content files under root in deterministic order,
// together with their absolute paths.
func enumerate(root string) ([]FileEntry, []string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}

	if !info.IsDir() {
		// a single-file torrent has no path segments of its own
		return []FileEntry{{Size: info.Size()}}, []string{root}, nil
	}

	var entries []FileEntry
	var paths []string
	err = filepath.WalkDir(root, func(fpath string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		st, serr := d.Info()
		if serr != nil {
			return serr
		}
		rel, rerr := filepath.Rel(root, fpath)
		if rerr != nil {
			return rerr
		}
		entries = append(entries, FileEntry{
			Path: strings.Split(filepath.ToSlash(rel), "/"),
			Size: st.Size(),
		})
		paths = append(paths, fpath)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return entries, paths, nil
}
