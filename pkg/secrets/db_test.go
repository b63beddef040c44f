package secrets

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestDBStore_EncryptDecrypt(t *testing.T) {
	p := &DBStore{key: []byte("test_key")}

	enc, err := p.encrypt("test_value")
	require.NoError(t, err)
	assert.NotContains(t, enc, "test_value")

	enc2, err := p.encrypt("test_value")
	require.NoError(t, err)
	assert.NotEqual(t, enc, enc2, "random salt and nonce")

	dec, err := p.decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "test_value", dec)

	other := &DBStore{key: []byte("other_key")}
	_, err = other.decrypt(enc)
	require.Error(t, err)

	_, err = p.decrypt("c2hvcnQ=")
	require.ErrorContains(t, err, "too short")

	_, err = p.decrypt("not base64!")
	require.Error(t, err)
}

func TestDBStore_Sqlite(t *testing.T) {
	conns := []string{":memory:", filepath.Join(t.TempDir(), "secrets.db")}
	for _, conn := range conns {
		t.Run(conn, func(t *testing.T) {
			p, err := NewDBStore(conn, []byte("test_key"))
			require.NoError(t, err)
			defer p.Close()
			checkStore(t, p)
		})
	}
}

func TestDBStore_Persists(t *testing.T) {
	conn := "file:" + filepath.Join(t.TempDir(), "secrets.sqlite")
	p, err := NewDBStore(conn, []byte("k1"))
	require.NoError(t, err)
	require.NoError(t, p.Set(KeyClientID, "cid"))
	require.NoError(t, p.Close())

	p, err = NewDBStore(conn, []byte("k1"))
	require.NoError(t, err)
	defer p.Close()
	val, err := p.Get(KeyClientID)
	require.NoError(t, err)
	assert.Equal(t, "cid", val)

	wrongKey, err := NewDBStore(conn, []byte("k2"))
	require.NoError(t, err)
	defer wrongKey.Close()
	_, err = wrongKey.Get(KeyClientID)
	require.ErrorContains(t, err, "can't decrypt")
}

func TestDBStore_Errors(t *testing.T) {
	_, err := NewDBStore("something", []byte("k"))
	require.ErrorContains(t, err, "can't detect database type")

	_, err = NewDBStore(":memory:", nil)
	require.ErrorContains(t, err, "empty encryption key")
}

func TestDBType(t *testing.T) {
	tbl := []struct {
		conn, exp string
	}{
		{"postgres://u:p@localhost:5432/db?sslmode=disable", "postgres"},
		{"root:password@tcp(localhost:3306)/db", "mysql"},
		{"file:/tmp/secrets.db", "sqlite"},
		{"/tmp/secrets.sqlite", "sqlite"},
		{"secrets.db", "sqlite"},
		{":memory:", "sqlite"},
	}
	for _, tt := range tbl {
		t.Run(tt.conn, func(t *testing.T) {
			res, err := dbType(tt.conn)
			require.NoError(t, err)
			assert.Equal(t, tt.exp, res)
		})
	}
}

func TestDBStore_Containers(t *testing.T) {
	if testing.Short() {
		t.Skip("skip container tests in short mode")
	}
	ctx := context.Background()
	pgContainer, pgConn, mysqlContainer, mysqlConn := setupTestContainers(t)
	defer func() {
		require.NoError(t, pgContainer.Terminate(ctx))
		require.NoError(t, mysqlContainer.Terminate(ctx))
	}()

	for name, conn := range map[string]string{"postgres": pgConn, "mysql": mysqlConn} {
		t.Run(name, func(t *testing.T) {
			p, err := NewDBStore(conn, []byte("test_key"))
			require.NoError(t, err)
			defer p.Close()
			assert.Equal(t, name, p.dbType)
			checkStore(t, p)
		})
	}
}

// checkStore runs set, replace, list, get and delete round on empty store
func checkStore(t *testing.T, p *DBStore) {
	t.Helper()
	require.NoError(t, p.Set("google/client_id", "cid"))
	require.NoError(t, p.Set("google/client_secret", "old"))
	require.NoError(t, p.Set("google/client_secret", "csecret"))
	require.NoError(t, p.Set("token", `{"secret":"tok"}`))

	val, err := p.Get("google/client_secret")
	require.NoError(t, err)
	assert.Equal(t, "csecret", val)

	keys, err := p.List("google/")
	require.NoError(t, err)
	assert.Equal(t, []string{"google/client_id", "google/client_secret"}, keys)

	keys, err = p.List("*")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	keys, err = p.List("nothing")
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, p.Delete("token"))
	_, err = p.Get("token")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, p.Delete("token"), ErrNotFound)
}

func setupTestContainers(t *testing.T) (pc testcontainers.Container, ps string, mc testcontainers.Container, ms string) {
	t.Helper()
	ctx := context.Background()

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env:          map[string]string{"POSTGRES_PASSWORD": "password"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	require.NoError(t, err)
	pgHost, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	pgPort, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)
	pgConn := fmt.Sprintf("postgres://postgres:password@%s:%d/postgres?sslmode=disable", pgHost, pgPort.Int())

	mysqlReq := testcontainers.ContainerRequest{
		Image:        "mysql:8",
		ExposedPorts: []string{"3306/tcp"},
		Env:          map[string]string{"MYSQL_ROOT_PASSWORD": "password"},
		WaitingFor:   wait.ForLog("port: 3306  MySQL Community Server - GPL"),
	}
	mysqlContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: mysqlReq,
		Started:          true,
	})
	require.NoError(t, err)
	mysqlHost, err := mysqlContainer.Host(ctx)
	require.NoError(t, err)
	mysqlPort, err := mysqlContainer.MappedPort(ctx, "3306")
	require.NoError(t, err)
	mysqlConn := fmt.Sprintf("root:password@tcp(%s:%d)/mysql", mysqlHost, mysqlPort.Int())

	return pgContainer, pgConn, mysqlContainer, mysqlConn
}
