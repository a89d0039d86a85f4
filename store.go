package bookexport

// ResourceStore holds the bytes fetched during one export, keyed by
// container-internal path. Entries are write-once and keep insertion order.
//
// A ResourceStore is not safe for concurrent use by multiple goroutines.
type ResourceStore struct {
	files map[string][]byte
	order []string
}

// NewResourceStore returns an empty store.
func NewResourceStore() *ResourceStore {
	return &ResourceStore{files: make(map[string][]byte)}
}

// Put records data for p. It reports false, leaving the store unchanged, when
// p is already present.
func (s *ResourceStore) Put(p string, data []byte) bool {
	if _, exists := s.files[p]; exists {
		return false
	}
	s.files[p] = data
	s.order = append(s.order, p)
	return true
}

// Get returns the bytes stored for p.
func (s *ResourceStore) Get(p string) ([]byte, bool) {
	data, ok := s.files[p]
	return data, ok
}

// Has reports whether p is present.
func (s *ResourceStore) Has(p string) bool {
	_, ok := s.files[p]
	return ok
}

// Len returns the number of stored paths.
func (s *ResourceStore) Len() int {
	return len(s.order)
}

// Paths returns the stored paths in insertion order.
func (s *ResourceStore) Paths() []string {
	return append([]string(nil), s.order...)
}

// Files returns a path → bytes map suitable for an ArchiveWriter. The map is
// a copy; the byte slices are shared.
func (s *ResourceStore) Files() map[string][]byte {
	out := make(map[string][]byte, len(s.files))
	for k, v := range s.files {
		out[k] = v
	}
	return out
}

// Progress counts the items of one export. Both counters only grow.
type Progress struct {
	Total     int
	Completed int
}
