// Package sitemap extracts declared URLs from sitemap XML and compares them
// with the set of paths crawled by bots.
package sitemap

import (
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/antchfx/xmlquery"
)

// locExpr selects every element named loc, whatever its namespace prefix.
const locExpr = "//*[local-name()='loc']"

// Set is an unordered collection of URL or path strings.
type Set map[string]struct{}

// NewSet builds a Set from items.
func NewSet(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Has reports whether item is in the set.
func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Sorted returns the members in ascending order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Diff compares declared sitemap URLs with crawled URLs.
// orphans are crawled but never declared; missed are declared but never crawled.
func Diff(sitemapURLs, crawledURLs Set) (orphans, missed Set) {
	orphans = make(Set)
	for u := range crawledURLs {
		if !sitemapURLs.Has(u) {
			orphans[u] = struct{}{}
		}
	}
	missed = make(Set)
	for u := range sitemapURLs {
		if !crawledURLs.Has(u) {
			missed[u] = struct{}{}
		}
	}
	return orphans, missed
}

// ParseLocs returns the trimmed text of every loc element in r, in document order.
func ParseLocs(r io.Reader) ([]string, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("sitemap: parse xml: %w", err)
	}
	nodes, err := xmlquery.QueryAll(doc, locExpr)
	if err != nil {
		return nil, fmt.Errorf("sitemap: query loc: %w", err)
	}
	locs := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

// ToPath reduces an absolute URL to its path and query so it can be compared
// with request paths from access logs. Relative values are returned unchanged.
func ToPath(loc string) string {
	u, err := url.Parse(loc)
	if err != nil || u.Host == "" {
		return loc
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// LoadSet parses r and returns its loc values as a Set. When asPaths is true
// each value is reduced with ToPath first.
func LoadSet(r io.Reader, asPaths bool) (Set, error) {
	locs, err := ParseLocs(r)
	if err != nil {
		return nil, err
	}
	s := make(Set, len(locs))
	for _, loc := range locs {
		if asPaths {
			loc = ToPath(loc)
		}
		s[loc] = struct{}{}
	}
	return s, nil
}

// Report is a Diff rendered as sorted lists.
type Report struct {
	Orphans []string `json:"orphans" yaml:"orphans"`
	Missed  []string `json:"missed" yaml:"missed"`
}

// Compare diffs the declared set against crawled paths.
func Compare(declared Set, crawled map[string]struct{}) Report {
	orphans, missed := Diff(declared, Set(crawled))
	return Report{Orphans: orphans.Sorted(), Missed: missed.Sorted()}
}
