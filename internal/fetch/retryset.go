package fetch

import (
	"slices"
	"sync"
)

// RetrySet is the set of URLs whose last attempt failed. It is safe for
// concurrent use by the requests of a pass.
type RetrySet struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func NewRetrySet() *RetrySet {
	return &RetrySet{urls: make(map[string]struct{})}
}

func (s *RetrySet) Add(url string) {
	s.mu.Lock()
	s.urls[url] = struct{}{}
	s.mu.Unlock()
}

func (s *RetrySet) Remove(url string) {
	s.mu.Lock()
	delete(s.urls, url)
	s.mu.Unlock()
}

func (s *RetrySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

// Snapshot returns the current members in sorted order.
func (s *RetrySet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	slices.Sort(out)
	return out
}
