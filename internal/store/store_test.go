package store

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetDelete(t *testing.T) {
	s := New(0)
	require.Len(t, s.shards, DefaultShards)

	s.Set("a", []byte("1"))
	s.Set("b", []byte{})

	v, ok := s.Get("a")
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	v, ok = s.Get("b")
	require.True(t, ok)
	require.Empty(t, v)

	_, ok = s.Get("missing")
	require.False(t, ok)

	require.Equal(t, 2, s.Exists("a", "b", "c"))
	require.Equal(t, 1, s.Delete("a", "c"))
	require.Equal(t, 1, s.Len())
}

func TestValuesAreCopied(t *testing.T) {
	s := New(4)
	in := []byte("abc")
	s.Set("k", in)
	in[0] = 'X'

	out, _ := s.Get("k")
	require.Equal(t, "abc", string(out))
	out[0] = 'Y'

	again, _ := s.Get("k")
	require.Equal(t, "abc", string(again))
}

func TestKeysPattern(t *testing.T) {
	s := New(8)
	for _, k := range []string{"user:2", "user:1", "order:1"} {
		s.Set(k, []byte("x"))
	}
	keys, err := s.Keys("")
	require.NoError(t, err)
	require.Equal(t, []string{"order:1", "user:1", "user:2"}, keys)

	keys, err = s.Keys("user:*")
	require.NoError(t, err)
	require.Equal(t, []string{"user:1", "user:2"}, keys)

	_, err = s.Keys("[")
	require.ErrorIs(t, err, ErrBadPattern)
}

func TestKeysWildcardCrossesSlash(t *testing.T) {
	s := New(8)
	s.Set("user/1", []byte("a"))
	s.Set("plain", []byte("b"))

	for _, pattern := range []string{"", "*"} {
		keys, err := s.Keys(pattern)
		require.NoError(t, err)
		require.Equal(t, []string{"plain", "user/1"}, keys, "pattern %q", pattern)
		require.Len(t, keys, s.Len())
	}

	keys, err := s.Keys("user*")
	require.NoError(t, err)
	require.Equal(t, []string{"user/1"}, keys)

	keys, err = s.Keys("*/?")
	require.NoError(t, err)
	require.Equal(t, []string{"user/1"}, keys)
}

func TestMatch(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "", true},
		{"*", "a/b/c", true},
		{"a*c", "abbbc", true},
		{"a*c", "abbbd", false},
		{"*b*", "aabaa", true},
		{"h?llo", "hello", true},
		{"h?llo", "hllo", false},
		{"h[ae]llo", "hallo", true},
		{"h[ae]llo", "hillo", false},
		{"h[^e]llo", "hallo", true},
		{"h[^e]llo", "hello", false},
		{"h[a-c]llo", "hbllo", true},
		{"h[c-a]llo", "hbllo", true},
		{"h[a-c]llo", "hdllo", false},
		{`a\*`, "a*", true},
		{`a\*`, "ab", false},
		{`[\]]`, "]", true},
		{"abc", "abcd", false},
		{"abc*", "abc", true},
	}
	for _, tc := range cases {
		require.True(t, ValidPattern(tc.pattern), tc.pattern)
		require.Equal(t, tc.want, Match(tc.pattern, tc.key), "Match(%q, %q)", tc.pattern, tc.key)
	}

	for _, bad := range []string{"[", "[abc", `abc\`, "x[^"} {
		require.False(t, ValidPattern(bad), bad)
	}
}

func TestIncrBy(t *testing.T) {
	s := New(2)
	n, err := s.IncrBy("counter", 5)
	require.NoError(t, err)
	require.Equal(t, int64(5), n)

	n, err = s.IncrBy("counter", -7)
	require.NoError(t, err)
	require.Equal(t, int64(-2), n)

	s.Set("text", []byte("abc"))
	_, err = s.IncrBy("text", 1)
	require.ErrorIs(t, err, ErrNotInteger)

	s.Set("big", []byte(fmt.Sprint(int64(math.MaxInt64))))
	_, err = s.IncrBy("big", 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestIncrByFloat(t *testing.T) {
	s := New(2)
	f, err := s.IncrByFloat("f", 1.5)
	require.NoError(t, err)
	require.Equal(t, 1.5, f)

	f, err = s.IncrByFloat("f", 0.25)
	require.NoError(t, err)
	require.Equal(t, 1.75, f)

	raw, _ := s.Get("f")
	require.Equal(t, "1.75", string(raw))

	s.Set("bad", []byte("nope"))
	_, err = s.IncrByFloat("bad", 1)
	require.ErrorIs(t, err, ErrNotFloat)

	_, err = s.IncrByFloat("f", math.Inf(1))
	require.ErrorIs(t, err, ErrNotFloat)
}

func TestConcurrentIncr(t *testing.T) {
	s := New(16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if _, err := s.IncrBy("hits", 1); err != nil {
					t.Errorf("incr: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	raw, _ := s.Get("hits")
	require.Equal(t, "4000", string(raw))
}

func TestFlush(t *testing.T) {
	s := New(4)
	s.Set("a", []byte("1"))
	s.Flush()
	require.Equal(t, 0, s.Len())
}
