package cache

import "sync"

// Retainer keeps caches alive across host UI teardown, one per namespace.
type Retainer interface {
	Get(namespace string) (*ImageCache, bool)
	// GetOrCreate returns the cache retained for namespace, or retains the
	// one create returns. Concurrent calls for a namespace create at most
	// one cache.
	GetOrCreate(namespace string, create func() (*ImageCache, error)) (*ImageCache, error)
}

// RetainedStore is an in-process Retainer.
type RetainedStore struct {
	mu     sync.Mutex
	caches map[string]*ImageCache
}

// NewRetainedStore creates an empty store.
func NewRetainedStore() *RetainedStore {
	return &RetainedStore{caches: make(map[string]*ImageCache)}
}

// Get implements Retainer.
func (s *RetainedStore) Get(namespace string) (*ImageCache, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[namespace]
	return c, ok
}

// Put retains c under namespace, replacing any earlier cache.
func (s *RetainedStore) Put(namespace string, c *ImageCache) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[namespace] = c
}

// Remove forgets the cache for namespace and returns it.
func (s *RetainedStore) Remove(namespace string) (*ImageCache, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.caches[namespace]
	delete(s.caches, namespace)
	return c, ok
}

// GetOrCreate implements Retainer. create runs with the store locked.
func (s *RetainedStore) GetOrCreate(namespace string, create func() (*ImageCache, error)) (*ImageCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c := s.caches[namespace]; c != nil {
		return c, nil
	}
	c, err := create()
	if err != nil {
		return nil, err
	}
	s.caches[namespace] = c
	return c, nil
}

// GetOrCreate returns the cache r retains for namespace, creating and
// retaining a new one from params if there is none. An existing cache keeps
// its original params.
func GetOrCreate(r Retainer, namespace string, params Params, opts ...Option) (*ImageCache, error) {
	return r.GetOrCreate(namespace, func() (*ImageCache, error) {
		return New(params, opts...)
	})
}
