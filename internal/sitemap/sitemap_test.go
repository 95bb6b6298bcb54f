package sitemap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiff(t *testing.T) {
	t.Parallel()
	orphans, missed := Diff(NewSet("/a", "/b"), NewSet("/a", "/c"))
	assert.Equal(t, []string{"/c"}, orphans.Sorted())
	assert.Equal(t, []string{"/b"}, missed.Sorted())
}

func TestDiff_EmptyInputs(t *testing.T) {
	t.Parallel()
	orphans, missed := Diff(NewSet(), NewSet("/x"))
	assert.Equal(t, []string{"/x"}, orphans.Sorted())
	assert.Empty(t, missed)

	orphans, missed = Diff(nil, nil)
	assert.Empty(t, orphans)
	assert.Empty(t, missed)
}

const urlset = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://example.com/a</loc></url>
  <url><loc>
    https://example.com/b?page=2
  </loc></url>
</urlset>`

const prefixed = `<?xml version="1.0" encoding="UTF-8"?>
<sm:urlset xmlns:sm="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sm:url><sm:loc>https://example.com/</sm:loc></sm:url>
  <sm:url><sm:loc>/relative</sm:loc></sm:url>
</sm:urlset>`

func TestParseLocs(t *testing.T) {
	t.Parallel()
	locs, err := ParseLocs(strings.NewReader(urlset))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b?page=2"}, locs)
}

func TestParseLocs_NamespacePrefix(t *testing.T) {
	t.Parallel()
	locs, err := ParseLocs(strings.NewReader(prefixed))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "/relative"}, locs)
}

func TestLoadSet_AsPaths(t *testing.T) {
	t.Parallel()
	s, err := LoadSet(strings.NewReader(urlset), true)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "/b?page=2"}, s.Sorted())
}

func TestToPath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/", ToPath("https://example.com"))
	assert.Equal(t, "/a/b", ToPath("http://example.com/a/b"))
	assert.Equal(t, "/already/path", ToPath("/already/path"))
}

func TestCompare(t *testing.T) {
	declared := NewSet("/", "/about", "/blog")
	crawled := map[string]struct{}{"/": {}, "/blog": {}, "/old": {}, "/admin": {}}

	r := Compare(declared, crawled)
	assert.Equal(t, []string{"/admin", "/old"}, r.Orphans)
	assert.Equal(t, []string{"/about"}, r.Missed)
}
