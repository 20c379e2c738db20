// Package knowledge holds the versioned protocol text store. The whole
// active set is replaced atomically; readers see either the old complete
// version or the new one, never a mix.
package knowledge

import (
	"sync/atomic"
	"time"

	"github.com/m-mizutani/triagent/pkg/model"
)

type version struct {
	snippets  []*model.KnowledgeSnippet
	versionAt time.Time
}

// Store is a hot-swappable protocol repository. The zero value via New is a
// valid cold-start state with an empty active set.
type Store struct {
	current atomic.Pointer[version]
}

// New creates a Store with an empty active set
func New() *Store {
	s := &Store{}
	s.current.Store(&version{})
	return s
}

// PublishVersion atomically replaces the entire active set. Publishes are
// monotonic by timestamp; a stale publish is discarded and reported as false.
func (s *Store) PublishVersion(snippets []*model.KnowledgeSnippet, versionAt time.Time) bool {
	next := &version{
		snippets:  make([]*model.KnowledgeSnippet, len(snippets)),
		versionAt: versionAt,
	}
	for i, sn := range snippets {
		c := *sn
		c.VersionAt = versionAt
		next.snippets[i] = &c
	}

	for {
		cur := s.current.Load()
		if !cur.versionAt.IsZero() && !versionAt.After(cur.versionAt) {
			return false
		}
		if s.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// ActiveSnapshot returns the current complete set. Snippets are shared and
// must not be mutated by callers; the slice is owned by the caller.
func (s *Store) ActiveSnapshot() []*model.KnowledgeSnippet {
	cur := s.current.Load()
	out := make([]*model.KnowledgeSnippet, len(cur.snippets))
	copy(out, cur.snippets)
	return out
}

// VersionAt returns the timestamp of the active set, zero when never published
func (s *Store) VersionAt() time.Time {
	return s.current.Load().versionAt
}
