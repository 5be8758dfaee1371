package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := MakeSet[string](4)
	require.Len(t, s, 0)

	s.Insert("send_0", "send_1")
	require.Len(t, s, 2)
	assert.True(t, s.Has("send_0"))
	assert.True(t, s.Has("send_1"))
	assert.False(t, s.Has("out"))

	s2 := SetWith("out", "send_1")
	require.Len(t, s2, 2)
	assert.True(t, s2.Has("out"))
	assert.False(t, s2.Has("send_0"))

	s3 := s.Sub(s2)
	require.Len(t, s3, 1)
	assert.True(t, s3.Has("send_0"))

	delete(s, "send_1")
	assert.True(t, s.Equal(s3))
	assert.False(t, s.Equal(s2))
	assert.False(t, s.Equal(SetWith("in")))
}

func TestToSnakeCase(t *testing.T) {
	for _, tc := range []struct{ in, want string }{
		{"RingAllReduce", "ring_all_reduce"},
		{"ReduceConcat", "reduce_concat"},
		{"NormalForward", "normal_forward"},
		{"HostPinned", "host_pinned"},
		{"GPU", "gpu"},
	} {
		assert.Equal(t, tc.want, ToSnakeCase(tc.in), "ToSnakeCase(%q)", tc.in)
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "ring_0", NormalizeIdentifier("ring-0"))
	assert.Equal(t, "_0ring", NormalizeIdentifier("0ring"))
	assert.Equal(t, "", NormalizeIdentifier(""))
}
