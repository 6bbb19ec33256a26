package trackers

import (
	"fmt"
	"regexp"
	"strings"
)

// scheme, host and optional port: the part of a url that compares
// case-insensitively per RFC 3986 section 6.2.2.1
var simple_url_regex = regexp.MustCompile(`(?i)^([a-z0-9+.-]+://)?[a-z0-9.-]+(:[0-9]+)?`)

var tracker_url_regex = regexp.MustCompile(
	`(?i)^(udp|http|https)://` +
		`[a-zA-Z0-9\-.]+(:[0-9]+)?` +
		`(/[a-zA-Z0-9\-.]+)*` +
		`(/announce)?` +
		`(/scrape)?` +
		`(\?[a-zA-Z0-9\-._?=%&]+)?$`)

// Normalize lowercases the scheme+host[:port] of a tracker url. The path
// portion keeps its case unless path_case_sensitive is false.
func Normalize(url string, path_case_sensitive bool) string {
	loc := simple_url_regex.FindStringIndex(url)
	if loc == nil {
		if path_case_sensitive {
			return url
		}
		return strings.ToLower(url)
	}
	head := strings.ToLower(url[:loc[1]])
	tail := url[loc[1]:]
	if !path_case_sensitive {
		tail = strings.ToLower(tail)
	}
	return head + tail
}

// Equal reports whether two tracker urls are the same after normalization.
func Equal(a, b string, path_case_sensitive bool) bool {
	return Normalize(a, path_case_sensitive) == Normalize(b, path_case_sensitive)
}

// WellFormed reports whether the url looks like a valid tracker url.
func WellFormed(url string) bool {
	return tracker_url_regex.MatchString(url)
}

// CheckURLs validates and normalizes a batch of tracker urls. Malformed
// urls are silently dropped unless opts.RaiseMalformed; an input that ends
// up empty is always an error.
func CheckURLs(urls []string, opts Options) ([]string, error) {
	if !opts.CheckFormat {
		for _, url := range urls {
			if url == "" {
				return nil, fmt.Errorf("tracker url cannot be empty")
			}
		}
		return urls, nil
	}

	valid := []string{}
	for _, url := range urls {
		if WellFormed(url) {
			valid = append(valid, Normalize(url, opts.PathCaseSensitive))
		}
	}
	if len(valid) < len(urls) && opts.RaiseMalformed {
		return nil, fmt.Errorf("invalid tracker url(s): %v", urls)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("empty or no valid tracker")
	}
	return valid, nil
}
