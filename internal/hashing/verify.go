package hashing

import (
	"bytes"
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// VerifyResult lists what failed verification: piece indices whose
// recomputed digest mismatched, and the files involved. Mismatches are
// data, not errors.
type VerifyResult struct {
	Pieces []int
	Files  []string
}

// Verify re-derives the virtual byte stream from the files under root and
// compares every piece digest against the layout's table. Missing files are
// treated as zero-filled for their recorded length, truncated files have
// their missing suffix zero-filled, and a file larger than recorded is read
// only up to the recorded length without being flagged on that basis alone.
func Verify(ctx context.Context, layout Layout, root string, prog *Progress) (VerifyResult, error) {
	prog.set_totals(int64(len(layout.Files)), layout.TotalSize())

	broken_pieces := map[int]bool{}
	size_mismatch := map[int]bool{}

	buf := make([]byte, layout.PieceLength)
	var filled int64
	piece_idx := 0
	flush := func() {
		digest := Sum(buf[:filled])
		if piece_idx >= layout.Pieces.Count() || !bytes.Equal(digest[:], layout.Pieces.Digest(piece_idx)) {
			broken_pieces[piece_idx] = true
		}
		piece_idx++
		filled = 0
	}

	for i, entry := range layout.Files {
		if err := ctx.Err(); err != nil {
			return VerifyResult{}, err
		}

		fpath := filepath.Join(append([]string{root}, entry.Path...)...)
		var actual int64
		if st, err := os.Stat(fpath); err == nil && st.Mode().IsRegular() {
			actual = st.Size()
		}
		if actual != entry.Size {
			size_mismatch[i] = true
		}

		// read at most the recorded length, then zero-fill the shortfall
		quota := min(entry.Size, actual)
		if quota > 0 {
			f, err := os.Open(fpath)
			if err != nil {
				return VerifyResult{}, err
			}
			for quota > 0 {
				n := min(layout.PieceLength-filled, quota)
				if _, err := io.ReadFull(f, buf[filled:filled+n]); err != nil {
					f.Close()
					return VerifyResult{}, err
				}
				filled += n
				quota -= n
				prog.add_bytes(n)
				if filled == layout.PieceLength {
					flush()
				}
			}
			f.Close()
		}

		missing := entry.Size - min(entry.Size, actual)
		for missing > 0 {
			n := min(layout.PieceLength-filled, missing)
			clear(buf[filled : filled+n])
			filled += n
			missing -= n
			prog.add_bytes(n)
			if filled == layout.PieceLength {
				flush()
			}
		}

		prog.add_file()
	}
	if filled > 0 {
		flush()
	}

	// every file overlapping a broken piece is implicated, plus any file
	// whose on-disk size disagrees with the recorded one
	broken_files := map[int]bool{}
	for idx := range size_mismatch {
		broken_files[idx] = true
	}
	for piece := range broken_pieces {
		for _, idx := range layout.FilesForPieceRange(piece, piece+1) {
			broken_files[idx] = true
		}
	}

	result := VerifyResult{Pieces: []int{}, Files: []string{}}
	for piece := range broken_pieces {
		result.Pieces = append(result.Pieces, piece)
	}
	sort.Ints(result.Pieces)
	for idx := range broken_files {
		result.Files = append(result.Files, path.Join(append([]string{layout.Name}, layout.Files[idx].Path...)...))
	}
	sort.Strings(result.Files)
	return result, nil
}
