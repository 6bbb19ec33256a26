package torrent

import (
	"fmt"
	"strings"
)

// Metadata can be read and written through loose string keys: aliases are
// case-insensitive and every character outside ASCII letters and digits is
// ignored, so "Piece_Size" and "piecesize" both land on the piece length.

var alias_table = map[string]string{}

func init() {
	groups := map[string][]string{
		"tracker":     {"t", "tracker", "trackers", "tl", "tlist", "trackerlist", "announce", "announces", "announcelist", "alist"},
		"comment":     {"c", "comment", "comm", "comments"},
		"creator":     {"b", "by", "createdby", "creator", "tool", "creatingtool", "maker", "madeby"},
		"date":        {"d", "date", "time", "second", "seconds", "creationdate", "creationtime", "creatingdate", "creatingtime"},
		"encoding":    {"e", "enc", "encoding", "codec"},
		"name":        {"n", "name", "torrentname"},
		"piecelength": {"ps", "pl", "psz", "psize", "piecesize", "piecelength"},
		"private":     {"p", "private", "priv", "pt"},
		"source":      {"s", "src", "source"},
		"filelist":    {"fl", "flist", "filelist"},
		"size":        {"size", "ssz", "sourcesize", "sourcesz"},
		"torrentsize": {"tsz", "torrentsize", "torrentsz"},
		"numpieces":   {"np", "numpiece", "numpieces"},
		"numfiles":    {"nf", "numfile", "numfiles"},
		"hash":        {"hash", "th", "torrenthash", "sha1"},
		"magnet":      {"magnet", "magnetlink", "magneturl"},
	}
	for canonical, aliases := range groups {
		for _, alias := range aliases {
			alias_table[alias] = canonical
		}
	}
}

func normalize_alias(key string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// SetByAlias queues the typed setter behind the aliased key. The value type
// must fit the target field.
func (t *Torrent) SetByAlias(key string, value any) (*Job, error) {
	canonical, ok := alias_table[normalize_alias(key)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrValidation, key)
	}

	switch canonical {
	case "tracker":
		switch v := value.(type) {
		case string:
			return t.SetTracker([]string{v})
		case []string:
			return t.SetTracker(v)
		case [][]string:
			return t.SetTrackerTiers(v)
		}
	case "comment":
		if v, ok := value.(string); ok {
			return t.SetComment(v)
		}
	case "creator":
		if v, ok := value.(string); ok {
			return t.SetCreator(v)
		}
	case "date":
		switch v := value.(type) {
		case int:
			return t.SetDate(int64(v))
		case int64:
			return t.SetDate(v)
		case string:
			return t.SetDateString(v, "")
		}
	case "encoding":
		if v, ok := value.(string); ok {
			return t.SetEncoding(v)
		}
	case "name":
		if v, ok := value.(string); ok {
			return t.SetName(v)
		}
	case "piecelength":
		switch v := value.(type) {
		case int:
			return t.SetPieceLength(int64(v), true)
		case int64:
			return t.SetPieceLength(v, true)
		}
	case "private":
		switch v := value.(type) {
		case bool:
			return t.SetPrivate(v)
		case int:
			return t.SetPrivate(v != 0)
		}
	case "source":
		if v, ok := value.(string); ok {
			return t.SetSource(v)
		}
	default:
		return nil, fmt.Errorf("%w: key %q is read-only", ErrValidation, key)
	}
	return nil, fmt.Errorf("%w: value type %T does not fit key %q", ErrValidation, value, key)
}

// GetByAlias reads the metadata behind the aliased key.
func (t *Torrent) GetByAlias(key string) (any, error) {
	canonical, ok := alias_table[normalize_alias(key)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown key %q", ErrValidation, key)
	}

	switch canonical {
	case "tracker":
		return t.TrackerTiers(), nil
	case "comment":
		return t.Comment(), nil
	case "creator":
		return t.CreatedBy(), nil
	case "date":
		return t.CreationDate(), nil
	case "encoding":
		return t.Encoding(), nil
	case "name":
		return t.Name(), nil
	case "piecelength":
		return t.PieceLength(), nil
	case "private":
		return t.Private(), nil
	case "source":
		return t.Source(), nil
	case "filelist":
		return t.FileList(), nil
	case "size":
		return t.Size(), nil
	case "torrentsize":
		return t.TorrentSize(), nil
	case "numpieces":
		return t.NumPieces(), nil
	case "numfiles":
		return t.NumFiles(), nil
	case "hash":
		return t.Hash(), nil
	case "magnet":
		return t.Magnet(), nil
	}
	return nil, fmt.Errorf("%w: unknown key %q", ErrValidation, key)
}
