// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pagination implements stable, cursor-based pagination over a
// directory of change names that may be mutated concurrently with the
// listing. Offset-based pagination silently skips or duplicates items
// under concurrent mutation; a cursor keyed on the last item returned
// does not.
package pagination

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kraklabs/changesd/internal/wfserr"
)

const (
	DefaultPageSize = 50
	MinPageSize     = 1
	MaxPageSize     = 200
	DefaultTokenTTL = 24 * time.Hour
	MaxTokenBytes   = 1024
)

// Item is one entry available for listing. The engine is generic over
// what an Item represents; lifecycle.ActiveItem is converted to Item at
// the call site.
type Item struct {
	Slug  string
	MTime time.Time
	Path  string
}

// sortKey returns the composite sort key that travels inside a token: the
// UTC RFC 3339 mtime joined to the slug. Items are ordered by sortItems;
// locateAfter compares these strings to find where a page resumes.
func (it Item) sortKey() string {
	return fmt.Sprintf("%s_%s", it.MTime.UTC().Format(time.RFC3339Nano), it.Slug)
}

// tokenPayload is the canonical JSON encoded inside a page token.
type tokenPayload struct {
	Page      int    `json:"page"`
	Timestamp int64  `json:"timestamp"`
	SortKey   string `json:"sortKey"`
}

// Engine computes pages over a caller-supplied item set using the
// composite sort key (mtime desc, slug asc, path tertiary) and opaque
// cursor tokens, optionally HMAC-signed.
type Engine struct {
	SigningKey []byte // nil disables signing
	TokenTTL   time.Duration
	Clock      func() time.Time

	// epochs tracks, per issued token, the total item count observed when
	// the listing walk began, so later pages of the same walk can flag
	// concurrent mutation. Entries expire with their token.
	epochMu sync.Mutex
	epochs  map[string]epochEntry
}

type epochEntry struct {
	total   int
	created time.Time
}

// rememberEpoch records the walk-start total under the token just issued,
// evicting entries whose tokens have expired anyway.
func (e *Engine) rememberEpoch(token string, total int) {
	e.epochMu.Lock()
	defer e.epochMu.Unlock()
	if e.epochs == nil {
		e.epochs = make(map[string]epochEntry)
	}
	cutoff := e.now().Add(-e.tokenTTL())
	for k, v := range e.epochs {
		if v.created.Before(cutoff) {
			delete(e.epochs, k)
		}
	}
	e.epochs[token] = epochEntry{total: total, created: e.now()}
}

// takeEpoch consumes the walk-start total recorded for token, if any.
func (e *Engine) takeEpoch(token string) (int, bool) {
	e.epochMu.Lock()
	defer e.epochMu.Unlock()
	entry, ok := e.epochs[token]
	if ok {
		delete(e.epochs, token)
	}
	return entry.total, ok
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

func (e *Engine) tokenTTL() time.Duration {
	if e.TokenTTL > 0 {
		return e.TokenTTL
	}
	return DefaultTokenTTL
}

// Page is a single page of results.
type Page struct {
	Items               []Item
	Page                int
	PageSize            int
	TotalItems          int
	HasMore             bool
	NextPageToken       string
	ModificationWarning bool
}

// sortItems sorts by mtime descending, slug ascending, path ascending —
// a deterministic total order even when two items share an mtime.
func sortItems(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].MTime.Equal(items[j].MTime) {
			return items[i].MTime.After(items[j].MTime)
		}
		if items[i].Slug != items[j].Slug {
			return items[i].Slug < items[j].Slug
		}
		return items[i].Path < items[j].Path
	})
}

// List computes a page over items (already filtered to non-archived by the
// caller), honoring an optional cursor token and requested pageSize.
func (e *Engine) List(items []Item, pageSize int, cursorToken string) (*Page, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize < MinPageSize {
		pageSize = MinPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sortItems(sorted)

	pageNumber := 1
	start := 0
	epochTotal := len(sorted)
	sameEpoch := false

	if cursorToken != "" {
		tok, err := e.decodeToken(cursorToken)
		if err != nil {
			return nil, err
		}
		pageNumber = tok.Page + 1
		start = locateAfter(sorted, tok.SortKey)
		if total, ok := e.takeEpoch(cursorToken); ok {
			epochTotal = total
			sameEpoch = true
		}
	}

	end := start + pageSize
	if end > len(sorted) {
		end = len(sorted)
	}
	if start > len(sorted) {
		start = len(sorted)
	}
	slice := sorted[start:end]

	page := &Page{
		Items:               slice,
		Page:                pageNumber,
		PageSize:            pageSize,
		TotalItems:          len(sorted),
		HasMore:             end < len(sorted),
		ModificationWarning: sameEpoch && epochTotal != len(sorted),
	}

	if page.HasMore && len(slice) > 0 {
		last := slice[len(slice)-1]
		tok, err := e.encodeToken(pageNumber, last.sortKey())
		if err != nil {
			return nil, err
		}
		page.NextPageToken = tok
		e.rememberEpoch(tok, epochTotal)
	}

	return page, nil
}

// locateAfter finds the index of the first item strictly after the given
// sort key in descending order. If no item matches the key exactly (it was
// deleted between pages), it returns the index of the first item whose key
// is strictly less than cursorKey: the cursor is a lower bound, not an
// identity.
func locateAfter(sorted []Item, cursorKey string) int {
	for i, it := range sorted {
		key := it.sortKey()
		if key == cursorKey {
			return i + 1
		}
		if key < cursorKey {
			return i
		}
	}
	return len(sorted)
}

func (e *Engine) encodeToken(page int, sortKey string) (string, error) {
	payload := tokenPayload{Page: page, Timestamp: e.now().Unix(), SortKey: sortKey}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", wfserr.Internal("cannot marshal page token", err)
	}
	encoded := base64.URLEncoding.EncodeToString(data)
	if e.SigningKey == nil {
		return encoded, nil
	}
	mac := hmac.New(sha256.New, e.SigningKey)
	mac.Write(data)
	sig := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return encoded + "." + sig, nil
}

func (e *Engine) decodeToken(token string) (*tokenPayload, error) {
	if len(token) > MaxTokenBytes {
		return nil, wfserr.InvalidCursorToken("token exceeds maximum size")
	}

	encoded := token
	var sig string
	if e.SigningKey != nil {
		parts := strings.SplitN(token, ".", 2)
		if len(parts) != 2 {
			return nil, wfserr.InvalidCursorToken("missing signature")
		}
		encoded, sig = parts[0], parts[1]
	}

	data, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, wfserr.InvalidCursorToken("not valid base64")
	}

	if e.SigningKey != nil {
		mac := hmac.New(sha256.New, e.SigningKey)
		mac.Write(data)
		expected := base64.URLEncoding.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(expected), []byte(sig)) {
			return nil, wfserr.InvalidCursorToken("signature mismatch")
		}
	}

	var payload tokenPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, wfserr.InvalidCursorToken("payload does not parse")
	}

	age := e.now().Sub(time.Unix(payload.Timestamp, 0))
	if age > e.tokenTTL() {
		return nil, wfserr.ExpiredCursorToken()
	}

	return &payload, nil
}
