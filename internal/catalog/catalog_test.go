package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hogsim/internal/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cat := Default()
	require.NoError(t, cat.Validate())
	assert.NotEmpty(t, cat.Sections)
	assert.NotEmpty(t, cat.SearchTerms)

	ids := map[string]bool{}
	for _, item := range cat.Items {
		assert.False(t, ids[item.ID], "duplicate id %s", item.ID)
		ids[item.ID] = true
	}
}

func TestLoadFile_CSV(t *testing.T) {
	path := writeFile(t, "titles.csv", "id,title,genre,duration_seconds\nx1,Hog Wild,Comedy,1200\nx2,Deep Dive,documentary,\n")

	cat, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, cat.Items, 2)
	assert.Equal(t, Content{ID: "x1", Title: "Hog Wild", Genre: "comedy", Duration: 1200}, cat.Items[0])
	assert.Equal(t, 0, cat.Items[1].Duration)
	assert.Equal(t, Default().Sections, cat.Sections)
}

func TestLoadFile_CSVMissingColumn(t *testing.T) {
	_, err := LoadFile(writeFile(t, "titles.csv", "id,title\nx1,Hog Wild\n"))
	assert.ErrorContains(t, err, `missing "genre"`)
}

func TestLoadFile_CSVHeaderOnly(t *testing.T) {
	_, err := LoadFile(writeFile(t, "titles.csv", "id,title,genre\n"))
	assert.Error(t, err)
}

func TestLoadFile_JSONArray(t *testing.T) {
	cat, err := LoadFile(writeFile(t, "titles.json", `[{"id":"j1","title":"Json Bourne","genre":"thriller"}]`))
	require.NoError(t, err)
	require.Len(t, cat.Items, 1)
	assert.Equal(t, "Json Bourne", cat.Items[0].Title)
	assert.NotEmpty(t, cat.SearchTerms)
}

func TestLoadFile_JSONObject(t *testing.T) {
	cat, err := LoadFile(writeFile(t, "catalog.json", `{
		"items": [{"id":"j1","title":"Json Bourne","genre":"thriller"}],
		"sections": ["only-this"],
		"search_terms": ["bourne"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"only-this"}, cat.Sections)
	assert.Equal(t, []string{"bourne"}, cat.SearchTerms)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(writeFile(t, "titles.txt", "x"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = LoadFile(writeFile(t, "titles.json", `{"items": []}`))
	assert.ErrorContains(t, err, "no content items")

	_, err = LoadFile(writeFile(t, "titles.json", `[{"id":"","title":"x"}]`))
	assert.ErrorContains(t, err, "id and title")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestSearch(t *testing.T) {
	cat := Default()
	hits := cat.Search("  HEDGEHOG ")
	require.Len(t, hits, 1)
	assert.Equal(t, "hf-001", hits[0].ID)

	assert.Len(t, cat.Search("documentary"), 2)
	assert.Empty(t, cat.Search("zzz"))
}

func TestLookup(t *testing.T) {
	item, ok := Default().Lookup("hf-008")
	assert.True(t, ok)
	assert.Equal(t, "Cohort", item.Title)

	_, ok = Default().Lookup("nope")
	assert.False(t, ok)
}

func TestRandomPicksComeFromCatalog(t *testing.T) {
	cat := Default()
	r := core.NewRand(5)
	for i := 0; i < 50; i++ {
		_, ok := cat.Lookup(cat.RandomContent(r).ID)
		assert.True(t, ok)
		assert.Contains(t, cat.Sections, cat.RandomSection(r))
		assert.Contains(t, cat.SearchTerms, cat.RandomTerm(r))
	}
}
