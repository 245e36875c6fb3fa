package sessions

import (
	"context"

	"github.com/allclear/allclear/backend/go-services/internal/kv"
)

const DefaultPageSize = 100

// Filter narrows a session search.
type Filter struct {
	// IDPrefix matches sessions whose id starts with it. Empty matches all.
	IDPrefix string
	// Cursor is the value returned in Page.Next by the previous call; 0 starts over.
	Cursor   uint64
	PageSize int
}

// Page is one step of a session search.
type Page struct {
	Sessions []*Session
	// Next is the cursor for the following call; 0 once the keyspace is exhausted.
	Next uint64
}

// More reports whether another call with Next may return further sessions.
func (p *Page) More() bool { return p.Next != 0 }

// Search performs one cursor step over the session keyspace.
//
// Results come in the store's internal bucket order, not by creation or
// access time, and a step may hold more or fewer than PageSize sessions
// (the size is a hint to the store). A page can be empty while More is true.
// Sessions expiring between the scan and the read are skipped.
func (s *Store) Search(ctx context.Context, f Filter) (*Page, error) {
	size := f.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	pattern := keyPrefix + kv.EscapeGlob(f.IDPrefix) + "*"

	keys, next, err := s.kv.Scan(ctx, f.Cursor, pattern, int64(size))
	if err != nil {
		return nil, err
	}
	page := &Page{Sessions: make([]*Session, 0, len(keys)), Next: next}
	for _, k := range keys {
		sess, err := s.get(ctx, k)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			page.Sessions = append(page.Sessions, sess)
		}
	}
	return page, nil
}
