package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobroker/pkg/backing"
)

func TestFactoryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := New()

	r, err := f.Create(ctx, "alice")
	require.NoError(t, err)
	require.NoError(t, f.Validate(ctx, r))
	assert.Equal(t, 1, f.Open())

	mr := r.(*Resource)
	mr.Invalidate()
	assert.ErrorIs(t, f.Validate(ctx, r), ErrInvalidated)

	require.NoError(t, r.Close())
	assert.ErrorIs(t, r.Ping(ctx), backing.ErrResourceClosed)
	assert.Equal(t, 0, f.Open())
	assert.EqualValues(t, 3, mr.Pings())
}

func TestFactoryFailCreate(t *testing.T) {
	f := New()
	boom := errors.New("down")

	f.FailCreate(boom)
	_, err := f.Create(context.Background(), "bob")
	assert.ErrorIs(t, err, boom)

	f.FailCreate(nil)
	_, err = f.Create(context.Background(), "bob")
	assert.NoError(t, err)
	assert.Len(t, f.Created(), 1)
}
