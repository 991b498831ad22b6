package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// useTestLogger routes the package logger into t for the test's duration.
func useTestLogger(t *testing.T) {
	t.Helper()
	logger = zaptest.NewLogger(t)
	t.Cleanup(func() { logger = zap.NewNop() })
}

// loadSampleCatalog reads the documents under data/ with the default manifest.
func loadSampleCatalog(t *testing.T, policy FallbackPolicy) *Catalog {
	t.Helper()
	useTestLogger(t)
	cat, err := loadCatalog(context.Background(), fileSource{root: "."}, defaultManifest(), policy)
	require.NoError(t, err)
	return cat
}

// mapSource serves documents from memory.
type mapSource map[string]string

func (s mapSource) Fetch(_ context.Context, name string) ([]byte, error) {
	body, ok := s[name]
	if !ok {
		return nil, errMissingDocument
	}
	return []byte(body), nil
}

type sourceError string

func (e sourceError) Error() string { return string(e) }

const errMissingDocument = sourceError("no such document")

func testManifest(drifterFiles ...string) Manifest {
	m := defaultManifest()
	m.DrifterFiles = drifterFiles
	m.CompanionsFile = "companions.json"
	return m
}

func mustPlanner(t *testing.T, cat *Catalog, maximized bool, ids ...string) *Planner {
	t.Helper()
	p, err := plannerFor(cat, maximized, ids)
	require.NoError(t, err)
	return p
}

func totalsByKey(totals []Total) map[string]Total {
	out := make(map[string]Total, len(totals))
	for _, t := range totals {
		out[t.Key] = t
	}
	return out
}
