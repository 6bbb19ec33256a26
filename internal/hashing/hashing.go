// Package hashing implements the piece hashing and verification engine.
// The files of a torrent are treated as one virtual byte stream which is
// sliced into fixed-size pieces; pieces do not respect file boundaries.
package hashing

import (
	"crypto/sha1"
	"errors"
)

// ErrEmptySource is returned when the source files hold zero bytes in total.
var ErrEmptySource = errors.New("all source files are empty")

// Sum returns the SHA-1 digest of the given bytes.
func Sum(data []byte) [20]byte {
	return sha1.Sum(data)
}

// FileEntry records one content file: its path segments relative to the
// torrent root and its size. A single-file torrent has one entry with no
// path segments. Entry order defines the virtual concatenation order.
type FileEntry struct {
	Path []string
	Size int64
}

// PieceTable is the concatenated 20-byte SHA-1 digests of all pieces.
type PieceTable []byte

func (pt PieceTable) Count() int {
	return len(pt) / 20
}

func (pt PieceTable) Digest(index int) []byte {
	return pt[index*20 : (index+1)*20]
}

func (pt PieceTable) Valid() bool {
	return len(pt)%20 == 0
}

// Layout is the content description needed to hash or verify: the shape of
// the virtual stream plus the expected digests.
type Layout struct {
	Name        string
	Files       []FileEntry
	PieceLength int64
	Pieces      PieceTable
}

func (l Layout) TotalSize() int64 {
	var total int64
	for _, f := range l.Files {
		total += f.Size
	}
	return total
}

// PieceCount is the number of pieces implied by the total size, which must
// equal l.Pieces.Count() for a consistent torrent.
func (l Layout) PieceCount() int {
	if l.PieceLength <= 0 {
		return 0
	}
	return int((l.TotalSize() + l.PieceLength - 1) / l.PieceLength)
}

// FileRange returns the byte range [start, end) of file i within the
// virtual stream.
func (l Layout) FileRange(i int) (int64, int64) {
	var offset int64
	for _, f := range l.Files[:i] {
		offset += f.Size
	}
	return offset, offset + l.Files[i].Size
}

// PiecesForFile converts file i's byte range to a piece index range
// [first, end).
func (l Layout) PiecesForFile(i int) (int, int) {
	start, end := l.FileRange(i)
	return int(start / l.PieceLength), int((end + l.PieceLength - 1) / l.PieceLength)
}

// FilesForPieceRange returns the indices of every file whose byte range
// intersects the piece range [lo, hi).
func (l Layout) FilesForPieceRange(lo, hi int) []int {
	range_start := int64(lo) * l.PieceLength
	range_end := int64(hi) * l.PieceLength

	result := []int{}
	var offset int64
	for i, f := range l.Files {
		file_start, file_end := offset, offset+f.Size
		if file_start < range_end && file_end > range_start {
			result = append(result, i)
		}
		offset = file_end
	}
	return result
}
