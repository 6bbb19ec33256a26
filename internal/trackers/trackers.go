// Package trackers maintains the ordered tiers of announce urls of a
// torrent (BEP 12). A tier is an equivalence class of urls; tiers are tried
// in order, urls within a tier in random order by convention.
package trackers

import (
	"fmt"
	"slices"
)

// Options controls url checking and tier bookkeeping. The zero value means
// no format checking and no cross-tier deduplication; most callers want
// DefaultOptions.
type Options struct {
	CheckFormat       bool // validate and normalize urls on the way in
	RaiseMalformed    bool // error on malformed input instead of dropping it
	UniqueInTiers     bool // remove a url from all other tiers before placing it
	KeepEmptyTier     bool // keep tiers emptied by deduplication or removal
	PathCaseSensitive bool // compare url paths case-sensitively
}

func DefaultOptions() Options {
	return Options{
		CheckFormat:       true,
		UniqueInTiers:     true,
		PathCaseSensitive: true,
	}
}

type Trackers struct {
	tiers [][]string
	opts  Options
}

func New(opts Options) *Trackers {
	return &Trackers{opts: opts}
}

// Options returns the options the container was built with.
func (t *Trackers) Options() Options {
	return t.opts
}

// Len returns the number of tiers.
func (t *Trackers) Len() int {
	return len(t.tiers)
}

// NumURLs returns the number of urls across all tiers.
func (t *Trackers) NumURLs() int {
	n := 0
	for _, tier := range t.tiers {
		n += len(tier)
	}
	return n
}

// Tiers returns a copy of the full tier structure.
func (t *Trackers) Tiers() [][]string {
	result := make([][]string, len(t.tiers))
	for i, tier := range t.tiers {
		result[i] = slices.Clone(tier)
	}
	return result
}

// URLs returns a flattened, deduplicated list of all urls in tier order.
func (t *Trackers) URLs() []string {
	result := []string{}
	for _, tier := range t.tiers {
		for _, url := range tier {
			if !t.contains(result, url) {
				result = append(result, url)
			}
		}
	}
	return result
}

// Has reports whether the url exists in any tier.
func (t *Trackers) Has(url string) bool {
	for _, tier := range t.tiers {
		if t.contains(tier, url) {
			return true
		}
	}
	return false
}

// Index returns the first (tier, position) of the url. The position within
// a tier carries no meaning per BEP 12, but the tier does.
func (t *Trackers) Index(url string) (int, int, bool) {
	for i, tier := range t.tiers {
		for j, u := range tier {
			if Equal(u, url, t.opts.PathCaseSensitive) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

// Announce returns the first url of the first tier, or "" when there are
// no trackers. This is what the torrent's announce key holds.
func (t *Trackers) Announce() string {
	if len(t.tiers) == 0 || len(t.tiers[0]) == 0 {
		return ""
	}
	return t.tiers[0][0]
}

// AnnounceList returns the tier structure for the announce-list key, which
// is only meaningful with at least two urls in total; otherwise nil.
func (t *Trackers) AnnounceList() [][]string {
	if t.NumURLs() < 2 {
		return nil
	}
	return t.Tiers()
}

// Set replaces the tier at index with the given urls. An index at or beyond
// the tier count appends a new last tier, an index before -count prepends a
// new first tier; in-range negative indices count from the end.
func (t *Trackers) Set(urls []string, index int) error {
	urls, err := t.prepare(urls)
	if err != nil {
		return err
	}
	if t.opts.UniqueInTiers {
		t.remove(urls, true)
	}
	switch {
	case index >= len(t.tiers):
		t.tiers = append(t.tiers, urls)
	case index < -len(t.tiers):
		t.tiers = slices.Insert(t.tiers, 0, urls)
	default:
		if index < 0 {
			index += len(t.tiers)
		}
		t.tiers[index] = urls
	}
	t.prune()
	return nil
}

// SetTiers replaces consecutive tiers starting at index, one per given tier.
func (t *Trackers) SetTiers(tiers [][]string, index int) error {
	start := t.resolve(index)
	for k, tier := range tiers {
		if err := t.Set(tier, start+k); err != nil {
			return err
		}
	}
	return nil
}

// Extend prepends the given urls into the tier at index, creating the tier
// if the index clamps outside the existing range.
func (t *Trackers) Extend(urls []string, index int) error {
	urls, err := t.prepare(urls)
	if err != nil {
		return err
	}
	if t.opts.UniqueInTiers {
		t.remove(urls, true)
	}
	switch {
	case index >= len(t.tiers):
		t.tiers = append(t.tiers, urls)
	case index < -len(t.tiers):
		t.tiers = slices.Insert(t.tiers, 0, urls)
	default:
		if index < 0 {
			index += len(t.tiers)
		}
		t.tiers[index] = append(urls, t.tiers[index]...)
	}
	t.prune()
	return nil
}

// ExtendTiers prepends into consecutive tiers starting at index.
func (t *Trackers) ExtendTiers(tiers [][]string, index int) error {
	start := t.resolve(index)
	for k, tier := range tiers {
		if err := t.Extend(tier, start+k); err != nil {
			return err
		}
	}
	return nil
}

// Insert always creates a new tier at the clamped index, shifting later
// tiers down.
func (t *Trackers) Insert(urls []string, index int) error {
	urls, err := t.prepare(urls)
	if err != nil {
		return err
	}
	if t.opts.UniqueInTiers {
		t.remove(urls, true)
	}
	pos := t.resolve(index)
	t.tiers = slices.Insert(t.tiers, pos, urls)
	t.prune()
	return nil
}

// InsertTiers creates consecutive new tiers starting at the clamped index.
func (t *Trackers) InsertTiers(tiers [][]string, index int) error {
	start := t.resolve(index)
	for k, tier := range tiers {
		if err := t.Insert(tier, start+k); err != nil {
			return err
		}
	}
	return nil
}

// Remove deletes every matching url from every tier.
func (t *Trackers) Remove(urls ...string) {
	t.remove(urls, t.opts.KeepEmptyTier)
}

// Clear drops all tiers.
func (t *Trackers) Clear() {
	t.tiers = nil
}

// Clean drops malformed urls, cross-tier duplicates and empty tiers, each
// step individually skippable.
func (t *Trackers) Clean(keep_malformed, keep_duplicated, keep_empty bool) {
	if !keep_malformed {
		for i, tier := range t.tiers {
			kept := tier[:0]
			for _, url := range tier {
				if WellFormed(url) {
					kept = append(kept, url)
				}
			}
			t.tiers[i] = kept
		}
	}
	if !keep_duplicated {
		seen := []string{}
		for i, tier := range t.tiers {
			kept := tier[:0]
			for _, url := range tier {
				if !t.contains(seen, url) {
					seen = append(seen, url)
					kept = append(kept, url)
				}
			}
			t.tiers[i] = kept
		}
	}
	if !keep_empty {
		t.drop_empty()
	}
}

// prepare validates, normalizes and deduplicates incoming urls.
func (t *Trackers) prepare(urls []string) ([]string, error) {
	urls, err := CheckURLs(urls, t.opts)
	if err != nil {
		return nil, err
	}
	deduped := []string{}
	for _, url := range urls {
		if !t.contains(deduped, url) {
			deduped = append(deduped, url)
		}
	}
	if len(deduped) == 0 {
		return nil, fmt.Errorf("empty or no valid tracker")
	}
	return deduped, nil
}

// resolve clamps an index into [0, len]: past the end means append,
// before -len means prepend, in-range negatives count from the end.
func (t *Trackers) resolve(index int) int {
	length := len(t.tiers)
	switch {
	case index >= length:
		return length
	case index < -length:
		return 0
	case index < 0:
		return index + length
	default:
		return index
	}
}

func (t *Trackers) contains(urls []string, url string) bool {
	for _, u := range urls {
		if Equal(u, url, t.opts.PathCaseSensitive) {
			return true
		}
	}
	return false
}

func (t *Trackers) remove(urls []string, keep_empty bool) {
	for i, tier := range t.tiers {
		kept := []string{}
		for _, u := range tier {
			if !t.contains(urls, u) {
				kept = append(kept, u)
			}
		}
		t.tiers[i] = kept
	}
	if !keep_empty {
		t.drop_empty()
	}
}

func (t *Trackers) drop_empty() {
	kept := t.tiers[:0]
	for _, tier := range t.tiers {
		if len(tier) > 0 {
			kept = append(kept, tier)
		}
	}
	t.tiers = kept
}

func (t *Trackers) prune() {
	if !t.opts.KeepEmptyTier {
		t.drop_empty()
	}
}
