package trackers

import (
	"reflect"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		url            string
		case_sensitive bool
		want           string
	}{
		{"HTTP://Tracker.Example.ORG:6969/Announce", true, "http://tracker.example.org:6969/Announce"},
		{"HTTP://Tracker.Example.ORG:6969/Announce", false, "http://tracker.example.org:6969/announce"},
		{"udp://tracker.example.org:1337", true, "udp://tracker.example.org:1337"},
		{"https://EXAMPLE.com/path/To/Announce", true, "https://example.com/path/To/Announce"},
	}
	for _, c := range cases {
		if got := Normalize(c.url, c.case_sensitive); got != c.want {
			t.Errorf("Normalize(%q, %v) = %q, want %q", c.url, c.case_sensitive, got, c.want)
		}
	}
}

func TestWellFormed(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"http://tracker.example.org/announce", true},
		{"https://tracker.example.org:443/announce", true},
		{"udp://tracker.example.org:1337", true},
		{"udp://tracker.example.org:1337/announce?key=abc123", true},
		{"ftp://tracker.example.org/announce", false},
		{"tracker.example.org/announce", false},
		{"http://", false},
		{"", false},
	}
	for _, c := range cases {
		if got := WellFormed(c.url); got != c.want {
			t.Errorf("WellFormed(%q) = %v, want %v", c.url, got, c.want)
		}
	}
}

func TestCheckURLsDropsMalformed(t *testing.T) {
	urls, err := CheckURLs([]string{
		"http://good.example.org/announce",
		"not a url",
	}, DefaultOptions())
	if err != nil {
		t.Fatalf("CheckURLs() error = %v", err)
	}
	if want := []string{"http://good.example.org/announce"}; !reflect.DeepEqual(urls, want) {
		t.Errorf("CheckURLs() = %v, want %v", urls, want)
	}

	opts := DefaultOptions()
	opts.RaiseMalformed = true
	if _, err := CheckURLs([]string{"http://good.example.org/announce", "not a url"}, opts); err == nil {
		t.Error("CheckURLs() with RaiseMalformed accepted a malformed url")
	}

	if _, err := CheckURLs([]string{"not a url"}, DefaultOptions()); err == nil {
		t.Error("CheckURLs() accepted an input with no valid urls")
	}
}

func TestSetAppendsAndReplaces(t *testing.T) {
	tr := New(DefaultOptions())

	// each Set past the end appends a new tier
	if err := tr.Set([]string{"http://one.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set([]string{"http://two.example.org/announce"}, 99); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"http://one.example.org/announce"},
		{"http://two.example.org/announce"},
	}
	if got := tr.Tiers(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Tiers() = %v, want %v", got, want)
	}

	// an in-range index replaces the tier
	if err := tr.Set([]string{"http://three.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}
	if got := tr.Tiers()[1]; !reflect.DeepEqual(got, []string{"http://three.example.org/announce"}) {
		t.Errorf("Tiers()[1] = %v after replace", got)
	}

	// before -len prepends
	if err := tr.Set([]string{"http://zero.example.org/announce"}, -99); err != nil {
		t.Fatal(err)
	}
	if got := tr.Announce(); got != "http://zero.example.org/announce" {
		t.Errorf("Announce() = %q after prepend", got)
	}
}

func TestSetMovesDuplicate(t *testing.T) {
	tr := New(DefaultOptions())
	if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set([]string{"http://b.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}

	// re-adding an existing url into a new tier moves it there; its old
	// tier empties out and is dropped
	if err := tr.Set([]string{"http://a.example.org/announce"}, 99); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"http://b.example.org/announce"},
		{"http://a.example.org/announce"},
	}
	if got := tr.Tiers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tiers() = %v, want %v", got, want)
	}
	if tr.NumURLs() != 2 {
		t.Errorf("NumURLs() = %d, want 2", tr.NumURLs())
	}
}

func TestKeepEmptyTier(t *testing.T) {
	opts := DefaultOptions()
	opts.KeepEmptyTier = true
	tr := New(opts)
	if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set([]string{"http://a.example.org/announce"}, 99); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (emptied tier kept)", tr.Len())
	}
	tr.Clean(true, true, false)
	if tr.Len() != 1 {
		t.Errorf("Len() = %d after Clean, want 1", tr.Len())
	}
}

func TestExtendPrepends(t *testing.T) {
	tr := New(DefaultOptions())
	if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Extend([]string{"http://b.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	want := []string{"http://b.example.org/announce", "http://a.example.org/announce"}
	if got := tr.Tiers()[0]; !reflect.DeepEqual(got, want) {
		t.Errorf("Tiers()[0] = %v, want %v", got, want)
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}
}

func TestInsertAlwaysCreatesTier(t *testing.T) {
	tr := New(DefaultOptions())
	if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set([]string{"http://c.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}
	if err := tr.Insert([]string{"http://b.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"http://a.example.org/announce"},
		{"http://b.example.org/announce"},
		{"http://c.example.org/announce"},
	}
	if got := tr.Tiers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tiers() = %v, want %v", got, want)
	}
}

func TestIndexClamping(t *testing.T) {
	cases := []struct {
		index int
		first string // expected Announce() after inserting "new" at index
	}{
		{0, "http://new.example.org/announce"},
		{-1, "http://a.example.org/announce"}, // wraps to the last slot
		{-99, "http://new.example.org/announce"},
		{99, "http://a.example.org/announce"},
	}
	for _, c := range cases {
		tr := New(DefaultOptions())
		if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
			t.Fatal(err)
		}
		if err := tr.Set([]string{"http://b.example.org/announce"}, 1); err != nil {
			t.Fatal(err)
		}
		if err := tr.Insert([]string{"http://new.example.org/announce"}, c.index); err != nil {
			t.Fatal(err)
		}
		if got := tr.Announce(); got != c.first {
			t.Errorf("Insert at %d: Announce() = %q, want %q", c.index, got, c.first)
		}
	}
}

func TestRemoveAndHas(t *testing.T) {
	tr := New(DefaultOptions())
	if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set([]string{"http://b.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}

	if !tr.Has("HTTP://A.Example.ORG/announce") {
		t.Error("Has() did not match a url differing only in host case")
	}

	tr.Remove("http://a.example.org/announce")
	if tr.Has("http://a.example.org/announce") {
		t.Error("Has() still true after Remove()")
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d after Remove, want 1 (empty tier dropped)", tr.Len())
	}

	tier, pos, ok := tr.Index("http://b.example.org/announce")
	if !ok || tier != 0 || pos != 0 {
		t.Errorf("Index() = %d, %d, %v, want 0, 0, true", tier, pos, ok)
	}
}

func TestAnnounceList(t *testing.T) {
	tr := New(DefaultOptions())
	if tr.AnnounceList() != nil {
		t.Error("AnnounceList() with no urls should be nil")
	}

	if err := tr.Set([]string{"http://a.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if tr.AnnounceList() != nil {
		t.Error("AnnounceList() with a single url should be nil")
	}

	if err := tr.Set([]string{"http://b.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}
	want := [][]string{
		{"http://a.example.org/announce"},
		{"http://b.example.org/announce"},
	}
	if got := tr.AnnounceList(); !reflect.DeepEqual(got, want) {
		t.Errorf("AnnounceList() = %v, want %v", got, want)
	}
}

func TestURLsFlattens(t *testing.T) {
	opts := Options{PathCaseSensitive: true} // no dedup on the way in
	tr := New(opts)
	if err := tr.Set([]string{"http://a.example.org/announce", "http://b.example.org/announce"}, 0); err != nil {
		t.Fatal(err)
	}
	if err := tr.Set([]string{"http://a.example.org/announce", "http://c.example.org/announce"}, 1); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"http://a.example.org/announce",
		"http://b.example.org/announce",
		"http://c.example.org/announce",
	}
	if got := tr.URLs(); !reflect.DeepEqual(got, want) {
		t.Errorf("URLs() = %v, want %v", got, want)
	}
	if tr.NumURLs() != 4 {
		t.Errorf("NumURLs() = %d, want 4", tr.NumURLs())
	}
}

func TestClean(t *testing.T) {
	tr := New(Options{PathCaseSensitive: true})
	tr.tiers = [][]string{
		{"http://a.example.org/announce", "junk"},
		{"http://a.example.org/announce"},
		{},
	}
	tr.Clean(false, false, false)
	want := [][]string{{"http://a.example.org/announce"}}
	if got := tr.Tiers(); !reflect.DeepEqual(got, want) {
		t.Errorf("Tiers() after Clean = %v, want %v", got, want)
	}
}
