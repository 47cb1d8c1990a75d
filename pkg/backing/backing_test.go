package backing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandDSN(t *testing.T) {
	dsn, err := ExpandDSN("file:/data/{principal}.db", "alice")
	require.NoError(t, err)
	assert.Equal(t, "file:/data/alice.db", dsn)

	dsn, err = ExpandDSN("host=db user=app", "../etc")
	require.NoError(t, err, "templates without the placeholder ignore the principal")
	assert.Equal(t, "host=db user=app", dsn)

	for _, bad := range []string{"", "../x", "a/b", "a b", "a..b", "x;drop"} {
		_, err := ExpandDSN("{principal}", bad)
		assert.ErrorIs(t, err, ErrInvalidPrincipal, "principal %q", bad)
	}
}

type nopFactory struct{}

func (nopFactory) Create(context.Context, string) (Resource, error) { return nil, errors.New("nop") }
func (nopFactory) Validate(context.Context, Resource) error         { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	var got Config
	r.Register("nop", func(cfg Config) (Factory, error) {
		got = cfg
		return nopFactory{}, nil
	})

	f, err := r.Build(Config{Type: "nop", DSN: "x"})
	require.NoError(t, err)
	assert.NotNil(t, f)
	assert.Equal(t, "x", got.DSN)
	assert.NotZero(t, got.PingTimeout, "defaults applied before construction")

	_, err = r.Build(Config{Type: "oracle"})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, []string{"nop"}, r.Types())
}
