package db

import (
	"errors"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrate struct {
	upErr      error
	downErr    error
	version    uint
	dirty      bool
	versionErr error
	closed     bool
}

func (f *fakeMigrate) Up() error   { return f.upErr }
func (f *fakeMigrate) Down() error { return f.downErr }
func (f *fakeMigrate) Version() (uint, bool, error) {
	return f.version, f.dirty, f.versionErr
}
func (f *fakeMigrate) Close() (error, error) {
	f.closed = true
	return nil, nil
}

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable":   "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"pgx5://u:p@h:5432/db":                       "pgx5://u:p@h:5432/db",
	}

	for in, want := range tests {
		assert.Equal(t, want, migrateURL(in), in)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}

	assert.Positive(t, up)
	assert.Equal(t, up, down, "every up migration needs a down")

	body, err := migrationsFS.ReadFile("migrations/000001_create_users.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(body), "UNIQUE (email)")
}

func TestMigrator_IgnoresNoChange(t *testing.T) {
	m := &Migrator{m: &fakeMigrate{upErr: migrate.ErrNoChange, downErr: migrate.ErrNoChange}}

	assert.NoError(t, m.Up())
	assert.NoError(t, m.Down())
}

func TestMigrator_WrapsFailures(t *testing.T) {
	boom := errors.New("relation already exists")
	m := &Migrator{m: &fakeMigrate{upErr: boom}}

	err := m.Up()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMigrator_VersionOnEmptyDatabase(t *testing.T) {
	fake := &fakeMigrate{versionErr: migrate.ErrNilVersion}
	m := &Migrator{m: fake}

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Close())
	assert.True(t, fake.closed)
}
