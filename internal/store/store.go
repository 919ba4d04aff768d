package store

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/spaolacci/murmur3"
)

const DefaultShards = 32

var (
	ErrNotInteger = errors.New("store: value is not an integer")
	ErrNotFloat   = errors.New("store: value is not a valid float")
	ErrOverflow   = errors.New("store: increment would overflow")
	ErrBadPattern = errors.New("store: malformed key pattern")
)

// Store is a sharded in-memory byte store. Values are copied on Set and Get.
type Store struct {
	shards []*shard
}

type shard struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func New(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	s := &Store{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string][]byte)}
	}
	return s
}

func (s *Store) shardFor(key string) *shard {
	return s.shards[murmur3.Sum64([]byte(key))%uint64(len(s.shards))]
}

func (s *Store) Get(key string) ([]byte, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	v, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return clone(v), true
}

func (s *Store) Set(key string, value []byte) {
	sh := s.shardFor(key)
	stored := clone(value)
	sh.mu.Lock()
	sh.m[key] = stored
	sh.mu.Unlock()
}

// Delete removes keys and returns how many existed.
func (s *Store) Delete(keys ...string) int {
	removed := 0
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.Lock()
		if _, ok := sh.m[key]; ok {
			delete(sh.m, key)
			removed++
		}
		sh.mu.Unlock()
	}
	return removed
}

// Exists counts how many of keys are present; repeats count each time.
func (s *Store) Exists(keys ...string) int {
	found := 0
	for _, key := range keys {
		sh := s.shardFor(key)
		sh.mu.RLock()
		_, ok := sh.m[key]
		sh.mu.RUnlock()
		if ok {
			found++
		}
	}
	return found
}

// Keys returns the sorted keys matching a glob pattern; "" or "*" matches all.
// See Match for the pattern syntax.
func (s *Store) Keys(pattern string) ([]string, error) {
	all := pattern == "" || pattern == "*"
	if !all && !ValidPattern(pattern) {
		return nil, ErrBadPattern
	}
	out := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k := range sh.m {
			if all || Match(pattern, k) {
				out = append(out, k)
			}
		}
		sh.mu.RUnlock()
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}

func (s *Store) Flush() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.m = make(map[string][]byte)
		sh.mu.Unlock()
	}
}

// IncrBy adds delta to the integer stored at key, treating a missing key as 0.
func (s *Store) IncrBy(key string, delta int64) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var cur int64
	if raw, ok := sh.m[key]; ok {
		n, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return 0, ErrNotInteger
		}
		cur = n
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return 0, ErrOverflow
	}
	cur += delta
	sh.m[key] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

// IncrByFloat adds delta to the float stored at key, treating a missing key as 0.
func (s *Store) IncrByFloat(key string, delta float64) (float64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	var cur float64
	if raw, ok := sh.m[key]; ok {
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return 0, ErrNotFloat
		}
		cur = f
	}
	next := cur + delta
	if math.IsNaN(next) || math.IsInf(next, 0) {
		return 0, ErrNotFloat
	}
	sh.m[key] = []byte(strconv.FormatFloat(next, 'f', -1, 64))
	return next, nil
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
