package fakesessionrepo

import (
	"context"
	"sort"
	"sync"

	"github.com/jrsteele09/go-session-gateway/internal/errors"
	"github.com/jrsteele09/go-session-gateway/sessions"
)

var _ sessions.Store = (*FakeSessionStore)(nil)

type FakeSessionStore struct {
	records map[string]sessions.Record
	lock    sync.RWMutex

	// FailUpdates makes UpdateAll fail for the listed record ids.
	FailUpdates map[string]bool
	// FailCreate makes Create fail.
	FailCreate bool
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{
		records:     make(map[string]sessions.Record),
		FailUpdates: make(map[string]bool),
	}
}

func (s *FakeSessionStore) Find(_ context.Context, q sessions.Query, page sessions.Page) ([]sessions.Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	matched := make([]sessions.Record, 0)
	for _, r := range s.records {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].LoginTime == matched[j].LoginTime {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].LoginTime > matched[j].LoginTime
	})

	offset := page.Offset()
	if offset >= len(matched) {
		return nil, nil
	}
	end := len(matched)
	if page.Size > 0 && offset+page.Size < end {
		end = offset + page.Size
	}
	return matched[offset:end], nil
}

func (s *FakeSessionStore) UpdateAll(_ context.Context, records []sessions.Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	var failed []string
	for _, r := range records {
		if _, ok := s.records[r.ID]; !ok || s.FailUpdates[r.ID] {
			failed = append(failed, r.ID)
			continue
		}
		s.records[r.ID] = r
	}
	if len(failed) > 0 {
		return &sessions.UpdateError{Failed: failed, Err: errors.ErrStoreUnavailable}
	}
	return nil
}

func (s *FakeSessionStore) Create(_ context.Context, record sessions.Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.FailCreate {
		return errors.ErrStoreUnavailable
	}
	if _, ok := s.records[record.ID]; ok {
		return errors.ErrInvalidRequest
	}
	s.records[record.ID] = record
	return nil
}

// All returns every stored record, live or not.
func (s *FakeSessionStore) All() []sessions.Record {
	s.lock.RLock()
	defer s.lock.RUnlock()
	all := make([]sessions.Record, 0, len(s.records))
	for _, r := range s.records {
		all = append(all, r)
	}
	return all
}
