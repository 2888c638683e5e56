package resource

import (
	"encoding/json"
	"strings"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Supplementary is the ordered, additive map of sub-lookup results.
// Keys are never removed; setting an existing key replaces its value in place.
type Supplementary struct {
	mu sync.RWMutex
	m  *orderedmap.OrderedMap[string, any]
}

// NewSupplementary returns an empty map.
func NewSupplementary() *Supplementary {
	return &Supplementary{m: orderedmap.New[string, any]()}
}

// Set stores value under key.
func (s *Supplementary) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m.Set(key, value)
}

// Get returns the value stored under key.
func (s *Supplementary) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Get(key)
}

// Keys returns keys in insertion order.
func (s *Supplementary) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, s.m.Len())
	for pair := s.m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

// Len returns the number of keys.
func (s *Supplementary) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.Len()
}

// Failure returns the failure marker stored under key, if any.
func (s *Supplementary) Failure(key string) (Failure, bool) {
	v, ok := s.Get(key)
	if !ok {
		return Failure{}, false
	}
	f, ok := v.(Failure)
	return f, ok
}

// Path resolves a slash-separated path ("storage/TotalProvisionedStorageInMegaBytes")
// against the JSON form of the stored values.
func (s *Supplementary) Path(path string) (any, bool) {
	parts := strings.Split(path, "/")
	root, ok := s.Get(parts[0])
	if !ok {
		return nil, false
	}

	data, err := json.Marshal(root)
	if err != nil {
		return nil, false
	}
	var node any
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, false
	}

	for _, p := range parts[1:] {
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = obj[p]; !ok {
			return nil, false
		}
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// MarshalJSON keeps insertion order on the wire.
func (s *Supplementary) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m.MarshalJSON()
}

// Failure is recorded in place of a sub-lookup result that could not be fetched.
type Failure struct {
	Failed  bool   `json:"failed"`
	Kind    string `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
