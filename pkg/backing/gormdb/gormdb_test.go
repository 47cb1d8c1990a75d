package gormdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobroker/pkg/backing"
)

type note struct {
	ID   uint
	Body string
}

func TestSQLitePerPrincipalFiles(t *testing.T) {
	dir := t.TempDir()
	f, err := New(DialectSQLite, backing.Config{DSN: filepath.Join(dir, "{principal}", "data.db")})
	require.NoError(t, err)

	ctx := context.Background()
	r, err := f.Create(ctx, "alice")
	require.NoError(t, err)
	defer r.Close()

	db := r.(*Resource).DB()
	require.NoError(t, db.AutoMigrate(&note{}))
	require.NoError(t, db.Create(&note{Body: "hello"}).Error)

	var count int64
	require.NoError(t, db.Model(&note{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	assert.FileExists(t, filepath.Join(dir, "alice", "data.db"))
	require.NoError(t, f.Validate(ctx, r))
}

func TestValidateFailsAfterClose(t *testing.T) {
	f, err := New(DialectSQLite, backing.Config{DSN: filepath.Join(t.TempDir(), "{principal}.db")})
	require.NoError(t, err)

	r, err := f.Create(context.Background(), "bob")
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Error(t, f.Validate(context.Background(), r))
}

func TestRejectsUnsafePrincipal(t *testing.T) {
	f, err := New(DialectSQLite, backing.Config{DSN: filepath.Join(t.TempDir(), "{principal}.db")})
	require.NoError(t, err)

	_, err = f.Create(context.Background(), "../escape")
	assert.ErrorIs(t, err, backing.ErrInvalidPrincipal)
}

func TestNewValidation(t *testing.T) {
	_, err := New(DialectSQLite, backing.Config{})
	assert.Error(t, err)

	_, err = New(Dialect("mysql"), backing.Config{DSN: "x"})
	assert.Error(t, err)
}
