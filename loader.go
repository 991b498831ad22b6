package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Source fetches one named data document.
type Source interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

type fileSource struct {
	root string
}

func (s fileSource) Fetch(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(s.root, filepath.FromSlash(name)))
}

type httpSource struct {
	base   string
	client *http.Client
}

func newHTTPSource(base string, timeout time.Duration) httpSource {
	return httpSource{base: strings.TrimRight(base, "/"), client: &http.Client{Timeout: timeout}}
}

func (s httpSource) Fetch(ctx context.Context, name string) ([]byte, error) {
	url := s.base + "/" + strings.TrimLeft(name, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", url, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// loadCatalog fetches every drifter document and then the companion
// document, in manifest order, stopping at the first failure.
func loadCatalog(ctx context.Context, src Source, m Manifest, policy FallbackPolicy) (*Catalog, error) {
	var raws []*RawDrifter
	for _, name := range m.DrifterFiles {
		body, err := src.Fetch(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		docRaws, err := parseDrifterDocument(body)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		logger.Debug("drifter document loaded", zap.String("file", name), zap.Int("drifters", len(docRaws)))
		raws = append(raws, docRaws...)
	}
	if len(raws) == 0 {
		return nil, ErrNoDrifters
	}

	body, err := src.Fetch(ctx, m.CompanionsFile)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", m.CompanionsFile, err)
	}
	companions, err := parseCompanionDocument(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", m.CompanionsFile, err)
	}

	cat, err := newCatalog(m, policy, raws, companions)
	if err != nil {
		return nil, err
	}
	logger.Info("catalog loaded",
		zap.Int("drifters", len(raws)),
		zap.Int("companions", len(companions)),
		zap.String("policy", string(policy)))
	return cat, nil
}

// parseDrifterDocument reads {"drifters": {"<key>": {...}}} keeping the
// mapping's document order. A document without the key yields nothing.
func parseDrifterDocument(body []byte) ([]*RawDrifter, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	var (
		out     []*RawDrifter
		itemErr error
	)
	gjson.GetBytes(body, "drifters").ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			itemErr = fmt.Errorf("drifter %s is not an object", key.String())
			return false
		}
		raw := &RawDrifter{}
		if err := json.Unmarshal([]byte(value.Raw), raw); err != nil {
			itemErr = fmt.Errorf("decode drifter %s: %w", key.String(), err)
			return false
		}
		raw.GameID = strings.TrimSpace(value.Get("gameId").String())
		if raw.GameID == "" {
			raw.GameID = key.String()
		}
		value.Get("stats").ForEach(func(k, v gjson.Result) bool {
			s := strings.TrimSpace(v.String())
			if v.Type != gjson.Null && s != "" {
				raw.Stats = append(raw.Stats, statEntry{Key: k.String(), Value: s})
			}
			return true
		})
		out = append(out, raw)
		return true
	})
	if itemErr != nil {
		return nil, itemErr
	}
	return out, nil
}

func parseCompanionDocument(body []byte) ([]Companion, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	list := gjson.GetBytes(body, "companions")
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: companions is not an array", ErrNoCompanions)
	}
	var out []Companion
	for i, c := range list.Array() {
		if !c.IsObject() {
			return nil, fmt.Errorf("companion %d is not an object", i)
		}
		if strings.TrimSpace(c.Get("name").String()) == "" {
			return nil, fmt.Errorf("companion %d has no name", i)
		}
		comp := Companion{
			Name:      c.Get("name").String(),
			Bonus:     cleanStr(c.Get("bonus").String()),
			Required:  requiredCount(c),
			TypeBonus: strings.TrimSpace(c.Get("type_bonus").String()),
			Category:  orDefault(c.Get("category").String(), defaultCategoryName),
		}
		for _, id := range c.Get("drifterIds").Array() {
			comp.MemberIDs = append(comp.MemberIDs, id.String())
		}
		out = append(out, comp)
	}
	return out, nil
}

// requiredCount reads "required", falling back to "driftersNeeded" when the
// former is missing or zero.
func requiredCount(c gjson.Result) int {
	n := looseInt(c.Get("required"))
	if n == 0 {
		n = looseInt(c.Get("driftersNeeded"))
	}
	if n < 0 {
		return 0
	}
	return n
}

func looseInt(r gjson.Result) int {
	switch r.Type {
	case gjson.Number:
		return int(r.Int())
	case gjson.String:
		v, ok := leadingFloat(strings.TrimSpace(r.Str))
		if ok {
			return int(v)
		}
	}
	return 0
}
