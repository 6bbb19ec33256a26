package torrent

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"torrentutil/internal/bencode"
	"torrentutil/internal/hashing"
)

func new_torrent(t *testing.T) *Torrent {
	t.Helper()
	tor := New()
	t.Cleanup(tor.Close)
	return tor
}

// must.job unwraps a (job, error) pair, failing the test on a queueing
// error; a plain function cannot take both t and a two-valued call.
type must struct{ t *testing.T }

func (m must) job(job *Job, err error) *Job {
	m.t.Helper()
	if err != nil {
		m.t.Fatalf("queueing job failed: %v", err)
	}
	return job
}

func pattern(n int, seed byte) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)*13 + seed
	}
	return data
}

func write_file(t *testing.T, fpath string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fpath, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// a "content" directory of three files spanning piece boundaries at 16384
func build_content(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "content")
	write_file(t, filepath.Join(dir, "a.bin"), pattern(10000, 1))
	write_file(t, filepath.Join(dir, "b.bin"), pattern(20000, 2))
	write_file(t, filepath.Join(dir, "c.bin"), pattern(18616, 3))
	return dir
}

func TestJobOrdering(t *testing.T) {
	m := must{t}
	data := pattern(40000, 9)
	dir := t.TempDir()
	src := filepath.Join(dir, "content.bin")
	write_file(t, src, data)
	out := filepath.Join(dir, "out.torrent")

	tor := new_torrent(t)
	jobs := []*Job{
		m.job(tor.SetPieceLength(16384, false)),
		m.job(tor.Load(src, false)),
		m.job(tor.Write(out, false)),
	}
	tor.WaitIdle()
	for _, job := range jobs {
		if !job.Succeeded() {
			t.Fatalf("job %q failed: %s", job.Name(), job.FailedReason())
		}
	}

	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := bencode.Decode(raw)
	if err != nil {
		t.Fatalf("written torrent does not decode: %v", err)
	}
	root := decoded.(map[string]any)
	info, err := bencode.Get[map[string]any](root, "info")
	if err != nil {
		t.Fatal(err)
	}

	if got, _ := bencode.Get[int64](info, "piece length"); got != 16384 {
		t.Errorf("piece length = %d, want 16384", got)
	}
	if got, _ := bencode.Get[int64](info, "length"); got != 40000 {
		t.Errorf("length = %d, want 40000", got)
	}

	// 40000 bytes at 16384 -> 3 pieces -> 60 digest bytes
	var want []byte
	for start := 0; start < len(data); start += 16384 {
		end := min(start+16384, len(data))
		digest := hashing.Sum(data[start:end])
		want = append(want, digest[:]...)
	}
	pieces, _ := bencode.Get[string](info, "pieces")
	if len(pieces) != 60 {
		t.Fatalf("pieces length = %d, want 60", len(pieces))
	}
	if pieces != string(want) {
		t.Error("pieces do not match independently recomputed digests")
	}
}

func TestHashIndependentOfFieldOrder(t *testing.T) {
	m := must{t}
	a := new_torrent(t)
	m.job(a.SetName("sample"))
	m.job(a.SetPieceLength(1<<20, true))
	m.job(a.SetSource("CLUB"))
	m.job(a.SetPrivate(true))

	b := new_torrent(t)
	m.job(b.SetPrivate(true))
	m.job(b.SetSource("CLUB"))
	m.job(b.SetPieceLength(1<<20, true))
	m.job(b.SetName("sample"))

	a.WaitIdle()
	b.WaitIdle()
	if a.Hash() != b.Hash() {
		t.Errorf("hashes differ by construction order: %s vs %s", a.Hash(), b.Hash())
	}
}

func TestFailedJobDoesNotBlockQueue(t *testing.T) {
	m := must{t}
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.bin")
	write_file(t, empty, nil)

	tor := new_torrent(t)
	load_job := m.job(tor.Load(empty, false))
	comment_job := m.job(tor.SetComment("still applied"))
	tor.WaitIdle()

	if !load_job.Failed() {
		t.Fatal("loading an empty source should fail the job")
	}
	if reason := load_job.FailedReason(); !strings.Contains(reason, "empty") {
		t.Errorf("FailedReason() = %q, want mention of empty source", reason)
	}
	if !comment_job.Succeeded() {
		t.Error("job queued after a failing one did not run")
	}
	if got := tor.Comment(); got != "still applied" {
		t.Errorf("Comment() = %q", got)
	}
	if tor.NumPieces() != 0 {
		t.Error("failed load still changed the piece table")
	}
}

func TestSetPieceLengthValidation(t *testing.T) {
	cases := []struct {
		size     int64
		strict   bool
		want_err bool
	}{
		{8192, false, true},
		{16384, false, false},
		{16384, true, true},
		{262144, true, false},
		{262144 * 3, true, true},
		{300000, true, true},
		{1 << 25, true, false},
		{1 << 26, true, true},
	}
	for _, c := range cases {
		tor := new_torrent(t)
		_, err := tor.SetPieceLength(c.size, c.strict)
		if c.want_err && !errors.Is(err, ErrValidation) {
			t.Errorf("SetPieceLength(%d, %v) error = %v, want validation error", c.size, c.strict, err)
		}
		if !c.want_err && err != nil {
			t.Errorf("SetPieceLength(%d, %v) error = %v", c.size, c.strict, err)
		}
	}
}

func TestSetNameValidation(t *testing.T) {
	cases := []struct {
		name     string
		want_err bool
	}{
		{"", true},
		{"has space", true},
		{"bad/slash", true},
		{"bad:colon", true},
		{"what?", true},
		{"good-name_1.0", false},
	}
	tor := new_torrent(t)
	for _, c := range cases {
		_, err := tor.SetName(c.name)
		if c.want_err && !errors.Is(err, ErrValidation) {
			t.Errorf("SetName(%q) error = %v, want validation error", c.name, err)
		}
		if !c.want_err && err != nil {
			t.Errorf("SetName(%q) error = %v", c.name, err)
		}
	}
}

func TestPieceLengthChangeClearsPieces(t *testing.T) {
	m := must{t}
	dir := build_content(t)
	tor := new_torrent(t)
	m.job(tor.Load(dir, false))
	tor.WaitIdle()
	if tor.NumPieces() == 0 {
		t.Fatal("load produced no pieces")
	}

	// same value keeps the table
	m.job(tor.SetPieceLength(DefaultPieceLength, false))
	tor.WaitIdle()
	if tor.NumPieces() == 0 {
		t.Error("setting the same piece length cleared the piece table")
	}

	m.job(tor.SetPieceLength(262144, true))
	tor.WaitIdle()
	if tor.NumPieces() != 0 {
		t.Error("changing the piece length kept a stale piece table")
	}
}

func TestMagnet(t *testing.T) {
	m := must{t}
	tor := new_torrent(t)
	m.job(tor.SetName("sample"))
	m.job(tor.AddTracker([]string{"http://tracker.example.org/announce"}, true))
	tor.WaitIdle()

	magnet := tor.Magnet()
	if !strings.HasPrefix(magnet, "magnet:?xt=urn:btih:") {
		t.Fatalf("Magnet() = %q", magnet)
	}
	if !strings.Contains(magnet, "&dn=sample") {
		t.Errorf("Magnet() = %q, missing display name", magnet)
	}
	if !strings.Contains(magnet, "&tr=http%3A%2F%2Ftracker.example.org%2Fannounce") {
		t.Errorf("Magnet() = %q, missing tracker", magnet)
	}

	minimal := tor.MinimalMagnet()
	if want := "magnet:?xt=urn:btih:" + tor.Hash(); minimal != want {
		t.Errorf("MinimalMagnet() = %q, want %q", minimal, want)
	}
	if len(tor.Hash()) != 40 {
		t.Errorf("Hash() length = %d, want 40", len(tor.Hash()))
	}
}

func TestAliases(t *testing.T) {
	m := must{t}
	tor := new_torrent(t)
	m.job(tor.SetByAlias("Piece_Size", 1<<20))
	m.job(tor.SetByAlias("by", "somebody"))
	m.job(tor.SetByAlias("n", "aliased"))
	tor.WaitIdle()

	if got := tor.PieceLength(); got != 1<<20 {
		t.Errorf("PieceLength() = %d after aliased set", got)
	}
	if got := tor.CreatedBy(); got != "somebody" {
		t.Errorf("CreatedBy() = %q after aliased set", got)
	}

	got, err := tor.GetByAlias("torrent name")
	if err != nil || got != "aliased" {
		t.Errorf("GetByAlias(torrent name) = %v, %v", got, err)
	}
	if got, err := tor.GetByAlias("NP"); err != nil || got != 0 {
		t.Errorf("GetByAlias(NP) = %v, %v", got, err)
	}

	if _, err := tor.GetByAlias("bogus"); !errors.Is(err, ErrValidation) {
		t.Errorf("GetByAlias(bogus) error = %v, want validation error", err)
	}
	if _, err := tor.SetByAlias("hash", "x"); !errors.Is(err, ErrValidation) {
		t.Errorf("SetByAlias(hash) error = %v, want validation error", err)
	}
	if _, err := tor.SetByAlias("name", 42); !errors.Is(err, ErrValidation) {
		t.Errorf("SetByAlias(name, int) error = %v, want validation error", err)
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	m := must{t}
	dir := build_content(t)
	out := filepath.Join(t.TempDir(), "rt.torrent")

	tor := new_torrent(t)
	m.job(tor.AddTracker([]string{"http://a.example.org/announce"}, true))
	m.job(tor.AddTracker([]string{"http://b.example.org/announce"}, false))
	m.job(tor.SetComment("round trip"))
	m.job(tor.SetCreator("torrentutil"))
	m.job(tor.SetDate(1700000000))
	m.job(tor.SetPieceLength(262144, true))
	m.job(tor.SetPrivate(true))
	m.job(tor.Load(dir, false))
	write_job := m.job(tor.Write(out, false))
	tor.WaitIdle()
	if !write_job.Succeeded() {
		t.Fatalf("write failed: %s", write_job.FailedReason())
	}

	read := new_torrent(t)
	read_job := m.job(read.Read(out))
	read.WaitIdle()
	if !read_job.Succeeded() {
		t.Fatalf("read failed: %s", read_job.FailedReason())
	}

	if read.Hash() != tor.Hash() {
		t.Errorf("hash changed across write/read: %s vs %s", read.Hash(), tor.Hash())
	}
	if read.Name() != "content" {
		t.Errorf("Name() = %q, want content", read.Name())
	}
	if read.PieceLength() != 262144 {
		t.Errorf("PieceLength() = %d", read.PieceLength())
	}
	if read.Comment() != "round trip" || read.CreatedBy() != "torrentutil" {
		t.Errorf("metadata lost: %q / %q", read.Comment(), read.CreatedBy())
	}
	if read.CreationDate() != 1700000000 {
		t.Errorf("CreationDate() = %d", read.CreationDate())
	}
	if !read.Private() {
		t.Error("private flag lost")
	}
	want_tiers := [][]string{
		{"http://a.example.org/announce"},
		{"http://b.example.org/announce"},
	}
	if got := read.TrackerTiers(); !reflect.DeepEqual(got, want_tiers) {
		t.Errorf("TrackerTiers() = %v, want %v", got, want_tiers)
	}
	if !reflect.DeepEqual(read.FileList(), tor.FileList()) {
		t.Errorf("file list changed: %v vs %v", read.FileList(), tor.FileList())
	}
}

func TestVerifyJob(t *testing.T) {
	m := must{t}
	dir := build_content(t)
	tor := new_torrent(t)
	m.job(tor.SetPieceLength(16384, false))
	m.job(tor.Load(dir, false))
	tor.WaitIdle()

	clean := m.job(tor.Verify(dir))
	tor.WaitIdle()
	if !clean.Succeeded() {
		t.Fatalf("verify failed: %s", clean.FailedReason())
	}
	result := clean.Result().(hashing.VerifyResult)
	if len(result.Pieces) != 0 || len(result.Files) != 0 {
		t.Fatalf("verify of pristine content = %v, want clean", result)
	}

	// corrupt one byte inside c.bin
	cpath := filepath.Join(dir, "c.bin")
	data, err := os.ReadFile(cpath)
	if err != nil {
		t.Fatal(err)
	}
	data[10000] ^= 0xff
	write_file(t, cpath, data)

	broken := m.job(tor.Verify(dir))
	tor.WaitIdle()
	if !broken.Succeeded() {
		t.Fatalf("verify failed: %s", broken.FailedReason())
	}
	result = broken.Result().(hashing.VerifyResult)
	if !reflect.DeepEqual(result.Pieces, []int{2}) {
		t.Errorf("broken pieces = %v, want [2]", result.Pieces)
	}
	if !reflect.DeepEqual(result.Files, []string{"content/c.bin"}) {
		t.Errorf("broken files = %v, want [content/c.bin]", result.Files)
	}
}

func TestVerifyRejectsMismatchedName(t *testing.T) {
	m := must{t}
	dir := build_content(t)
	other := filepath.Join(t.TempDir(), "elsewhere")
	write_file(t, filepath.Join(other, "a.bin"), pattern(100, 0))

	tor := new_torrent(t)
	m.job(tor.Load(dir, false))
	job := m.job(tor.Verify(other))
	tor.WaitIdle()

	if !job.Failed() {
		t.Fatal("verifying a directory with the wrong name should fail the job")
	}
	if reason := job.FailedReason(); !strings.Contains(reason, "does not match torrent name") {
		t.Errorf("FailedReason() = %q", reason)
	}
}

func TestWriteNotReady(t *testing.T) {
	m := must{t}
	tor := new_torrent(t)
	job := m.job(tor.Write(filepath.Join(t.TempDir(), "x.torrent"), false))
	tor.WaitIdle()

	if !job.Failed() {
		t.Fatal("writing an empty torrent should fail the job")
	}
	reason := job.FailedReason()
	for _, fragment := range []string{"name", "piece hash", "source files"} {
		if !strings.Contains(reason, fragment) {
			t.Errorf("FailedReason() = %q, missing %q", reason, fragment)
		}
	}
}

// accessors must stay responsive and consistent while a load job holds the
// queue; run with -race
func TestAccessorsDuringLoad(t *testing.T) {
	m := must{t}
	dir := t.TempDir()
	src := filepath.Join(dir, "big.bin")
	write_file(t, src, pattern(8<<20, 5))

	tor := new_torrent(t)
	m.job(tor.AddTracker([]string{"http://tracker.example.org/announce"}, true))
	load_job := m.job(tor.Load(src, false))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for !load_job.Done() {
			tor.Name()
			tor.Hash()
			tor.Magnet()
			tor.NumPieces()
			tor.TrackerTiers()
			if p := load_job.Progress(); p < 0 || p > 1 {
				t.Errorf("Progress() = %v, want within [0, 1]", p)
				return
			}
		}
	}()
	tor.WaitIdle()
	<-done

	if !load_job.Succeeded() {
		t.Fatalf("load failed: %s", load_job.FailedReason())
	}
	// 8 MiB at the default piece length of 4 MiB
	if tor.NumPieces() != 2 {
		t.Errorf("NumPieces() = %d, want 2", tor.NumPieces())
	}
}

func TestCloseRejectsNewJobs(t *testing.T) {
	tor := New()
	tor.Close()
	if _, err := tor.SetComment("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("SetComment() after Close error = %v, want ErrClosed", err)
	}
}

func TestIndexAndPieceLookup(t *testing.T) {
	m := must{t}
	dir := build_content(t)
	tor := new_torrent(t)
	m.job(tor.SetPieceLength(16384, false))
	m.job(tor.Load(dir, false))
	tor.WaitIdle()

	// b.bin occupies bytes [10000, 30000): pieces 0 and 1
	locations := tor.Index("b.bin", true)
	want := []FileLocation{{Path: "content/b.bin", First: 0, End: 2}}
	if !reflect.DeepEqual(locations, want) {
		t.Errorf("Index(b.bin) = %v, want %v", locations, want)
	}

	if got := tor.Index("B.BIN", false); !reflect.DeepEqual(got, want) {
		t.Errorf("Index(B.BIN, insensitive) = %v, want %v", got, want)
	}
	if got := tor.Index("content/b.bin", true); !reflect.DeepEqual(got, want) {
		t.Errorf("Index(content/b.bin) = %v, want %v", got, want)
	}
	if got := tor.Index("nope.bin", true); len(got) != 0 {
		t.Errorf("Index(nope.bin) = %v, want empty", got)
	}

	if got := tor.FilesForPiece(2); !reflect.DeepEqual(got, []string{"content/c.bin"}) {
		t.Errorf("FilesForPiece(2) = %v", got)
	}
	if got := tor.FilesForPiece(-1); !reflect.DeepEqual(got, []string{"content/c.bin"}) {
		t.Errorf("FilesForPiece(-1) = %v", got)
	}
	all := []string{"content/a.bin", "content/b.bin", "content/c.bin"}
	if got := tor.FilesForPieceRange(0, 3); !reflect.DeepEqual(got, all) {
		t.Errorf("FilesForPieceRange(0, 3) = %v", got)
	}
	if got := tor.FilesForPieceRange(0, 0); len(got) != 0 {
		t.Errorf("FilesForPieceRange(0, 0) = %v, want empty", got)
	}
	if got := tor.FilesForPieceRange(-1, 3); !reflect.DeepEqual(got, []string{"content/c.bin"}) {
		t.Errorf("FilesForPieceRange(-1, 3) = %v", got)
	}
}

func TestReadMetadata(t *testing.T) {
	m := must{t}
	dir := build_content(t)
	out := filepath.Join(t.TempDir(), "template.torrent")

	template := new_torrent(t)
	m.job(template.AddTracker([]string{"http://a.example.org/announce"}, true))
	m.job(template.SetComment("copied"))
	m.job(template.SetSource("OWNER"))
	m.job(template.Load(dir, false))
	write_job := m.job(template.Write(out, false))
	template.WaitIdle()
	if !write_job.Succeeded() {
		t.Fatalf("write failed: %s", write_job.FailedReason())
	}

	tor := new_torrent(t)
	m.job(tor.ReadMetadata(out, nil, nil))
	tor.WaitIdle()

	if got := tor.Comment(); got != "copied" {
		t.Errorf("Comment() = %q, want copied", got)
	}
	if got := tor.Announce(); got != "http://a.example.org/announce" {
		t.Errorf("Announce() = %q", got)
	}
	// source is excluded by default, it is owner-specific
	if got := tor.Source(); got != "" {
		t.Errorf("Source() = %q, want empty", got)
	}
	if tor.NumFiles() != 0 {
		t.Error("ReadMetadata must not touch content fields")
	}

	if _, err := tor.ReadMetadata(out, []string{"nonsense"}, nil); !errors.Is(err, ErrValidation) {
		t.Errorf("ReadMetadata(nonsense) error = %v, want validation error", err)
	}
}
