package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripconcierge/pkg/errors"
)

func TestUsageStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore()

	_, err := s.Get(ctx, "usage:u1:s1")
	require.True(t, errors.Is(err, errors.ErrNotFound))

	require.NoError(t, s.Set(ctx, "usage:u1:s1", []byte(`{"queries_used":1}`)))
	got, err := s.Get(ctx, "usage:u1:s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"queries_used":1}`, string(got))

	require.NoError(t, s.Delete(ctx, "usage:u1:s1"))
	_, err = s.Get(ctx, "usage:u1:s1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Equal(t, 0, s.Len())
}

func TestUsageStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewUsageStore()

	in := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", in))
	in[0] = 'x'

	out, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(out))

	out[1] = 'y'
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, "abc", string(again))
}
