package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const oneDrifterDoc = `{"drifters": {"9": {"name": "Nine", "supportStationBonus": {"supportBonus": "Armor", "supportBonusValue": "5"}}}}`

const oneCompanionDoc = `{"companions": [{"name": "Solo", "bonus": "Armor 1", "required": 1, "drifterIds": ["9"]}]}`

func TestParseDrifterDocumentKeepsOrder(t *testing.T) {
	doc := `{"drifters": {
		"b": {"gameId": "20", "name": "Zed", "stats": {"Armor": "10", "Block": null, "MP": " "}},
		"a": {"name": "Amy", "supportLevel": "12", "stats": {"Armor": 5}}
	}}`
	raws, err := parseDrifterDocument([]byte(doc))
	require.NoError(t, err)
	require.Len(t, raws, 2)
	assert.Equal(t, "20", raws[0].GameID)
	assert.Equal(t, "a", raws[1].GameID, "the mapping key stands in for a missing gameId")
	assert.Equal(t, []statEntry{{Key: "Armor", Value: "10"}}, raws[0].Stats)
	assert.Equal(t, []statEntry{{Key: "Armor", Value: "5"}}, raws[1].Stats)
	assert.Equal(t, 12, raws[1].SupportLevel.intOr(0))
}

func TestParseDrifterDocumentErrors(t *testing.T) {
	_, err := parseDrifterDocument([]byte(`{"drifters": `))
	assert.Error(t, err)

	_, err = parseDrifterDocument([]byte(`{"drifters": {"1": "nope"}}`))
	assert.ErrorContains(t, err, "not an object")

	raws, err := parseDrifterDocument([]byte(`{"other": {}}`))
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestParseCompanionDocument(t *testing.T) {
	doc := `{"companions": [
		{"name": "A", "bonus": "Armor  10", "driftersNeeded": "3", "drifterIds": [1, "2"]},
		{"name": "B", "bonus": "Armor 1", "required": -2, "category": "Guard"}
	]}`
	comps, err := parseCompanionDocument([]byte(doc))
	require.NoError(t, err)
	require.Len(t, comps, 2)
	assert.Equal(t, Companion{Name: "A", Bonus: "Armor 10", Required: 3, MemberIDs: []string{"1", "2"}, Category: defaultCategoryName}, comps[0])
	assert.Equal(t, 0, comps[1].Required)
	assert.Equal(t, "Guard", comps[1].Category)
}

func TestParseCompanionDocumentRejectsMalformedEntries(t *testing.T) {
	for _, doc := range []string{`{"companions": {}}`, `{"companions": "x"}`, `{"other": []}`} {
		_, err := parseCompanionDocument([]byte(doc))
		assert.ErrorIs(t, err, ErrNoCompanions, doc)
	}

	_, err := parseCompanionDocument([]byte(`{"companions": ["x"]}`))
	assert.ErrorContains(t, err, "companion 0 is not an object")

	_, err = parseCompanionDocument([]byte(`{"companions": [{"name": "A", "bonus": "Armor 1"}, {"bonus": "Armor 1"}]}`))
	assert.ErrorContains(t, err, "companion 1 has no name")

	_, err = parseCompanionDocument([]byte(`{"companions": [{"name": "  ", "bonus": "Armor 1"}]}`))
	assert.ErrorContains(t, err, "has no name")
}

func TestLoadCatalogFailFast(t *testing.T) {
	src := mapSource{
		"one.json":        oneDrifterDoc,
		"companions.json": oneCompanionDoc,
	}
	_, err := loadCatalog(context.Background(), src, testManifest("one.json", "missing.json"), PolicyStrict)
	require.Error(t, err)
	assert.ErrorIs(t, err, errMissingDocument)
	assert.ErrorContains(t, err, "load missing.json")

	src["bad.json"] = `{"drifters": [`
	_, err = loadCatalog(context.Background(), src, testManifest("bad.json"), PolicyStrict)
	assert.ErrorContains(t, err, "parse bad.json")
}

func TestLoadCatalogEmptyCollections(t *testing.T) {
	src := mapSource{
		"empty.json":      `{"drifters": {}}`,
		"one.json":        oneDrifterDoc,
		"companions.json": `{"companions": []}`,
	}
	_, err := loadCatalog(context.Background(), src, testManifest("empty.json"), PolicyStrict)
	assert.ErrorIs(t, err, ErrNoDrifters)

	_, err = loadCatalog(context.Background(), src, testManifest("one.json"), PolicyStrict)
	assert.ErrorIs(t, err, ErrNoCompanions)

	src["companions.json"] = `{"companions": {}}`
	_, err = loadCatalog(context.Background(), src, testManifest("one.json"), PolicyStrict)
	assert.ErrorIs(t, err, ErrNoCompanions)
	assert.ErrorContains(t, err, "parse companions.json")
}

func TestFileSourceReadsRelativeToRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs", "one.json"), []byte(oneDrifterDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "companions.json"), []byte(oneCompanionDoc), 0o644))

	cat, err := loadCatalog(context.Background(), fileSource{root: dir}, testManifest("docs/one.json"), PolicyStrict)
	require.NoError(t, err)
	d, ok := cat.Roster(true).Get("9")
	require.True(t, ok)
	assert.Equal(t, placeholderEffect, d.Buff, "maximized mode reads the empty maximized record under strict")
	d, _ = cat.Roster(false).Get("9")
	assert.Equal(t, "Armor 5", d.Buff)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/data/one.json":
			_, _ = w.Write([]byte(oneDrifterDoc))
		case "/data/companions.json":
			_, _ = w.Write([]byte(oneCompanionDoc))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src := newHTTPSource(srv.URL+"/data/", time.Second)
	cat, err := loadCatalog(context.Background(), src, testManifest("one.json"), PolicyStrict)
	require.NoError(t, err)
	assert.Len(t, cat.Companions, 1)

	_, err = loadCatalog(context.Background(), src, testManifest("nope.json"), PolicyStrict)
	assert.ErrorContains(t, err, "status 404")
}
