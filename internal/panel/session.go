package panel

import (
	"sort"
	"sync"

	"github.com/memohai/joingate/internal/channels"
)

// Operators is the allow-list of accounts that may use the panel and the API.
type Operators struct {
	ids map[int64]struct{}
}

// NewOperators builds the allow-list.
func NewOperators(ids []int64) *Operators {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &Operators{ids: set}
}

// Contains reports whether id is an operator.
func (o *Operators) Contains(id int64) bool {
	if o == nil {
		return false
	}
	_, ok := o.ids[id]
	return ok
}

// IDs returns the operators in ascending order.
func (o *Operators) IDs() []int64 {
	if o == nil {
		return nil
	}
	out := make([]int64, 0, len(o.ids))
	for id := range o.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type preview struct {
	info    channels.ChatInfo
	isAdmin bool
}

// session is the per-operator conversation state.
type session struct {
	preview      *preview
	countChannel string
}

type sessions struct {
	mu    sync.Mutex
	items map[int64]*session
}

func newSessions() *sessions {
	return &sessions{items: map[int64]*session{}}
}

func (s *sessions) update(userID int64, fn func(*session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.items[userID]
	if !ok {
		sess = &session{}
		s.items[userID] = sess
	}
	fn(sess)
	if sess.preview == nil && sess.countChannel == "" {
		delete(s.items, userID)
	}
}

func (s *sessions) get(userID int64) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.items[userID]; ok {
		return *sess
	}
	return session{}
}

func (s *sessions) clear(userID int64) {
	s.mu.Lock()
	delete(s.items, userID)
	s.mu.Unlock()
}
