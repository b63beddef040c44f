package secrets

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	_ "github.com/go-sql-driver/mysql" // mysql driver loaded here
	_ "github.com/lib/pq"              // postgres driver loaded here
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
	_ "modernc.org/sqlite" // sqlite driver loaded here
)

const (
	nonceSize = 24
	saltSize  = 16
)

// DBStore keeps secrets encrypted in a database table.
// Supported databases are sqlite, postgres and mysql, the type is detected from the connection string.
type DBStore struct {
	db     *sql.DB
	key    []byte
	dbType string
}

// NewDBStore opens the database and makes sure secrets table exists
func NewDBStore(conn string, key []byte) (*DBStore, error) {
	if len(key) == 0 {
		return nil, errors.New("empty encryption key")
	}
	dbt, err := dbType(conn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dbt, conn)
	if err != nil {
		return nil, fmt.Errorf("can't open secrets database: %w", err)
	}
	if dbt == "sqlite" {
		db.SetMaxOpenConns(1) // in-memory database lives in a single connection
	}
	if _, err = db.Exec(`CREATE TABLE IF NOT EXISTS gsqlite_secrets (skey VARCHAR(255) PRIMARY KEY, sval TEXT)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't create secrets table: %w", err)
	}
	log.Printf("[DEBUG] secrets store, %s database", dbt)
	return &DBStore{db: db, dbType: dbt, key: key}, nil
}

func dbType(conn string) (string, error) {
	switch {
	case strings.HasPrefix(conn, "postgres://"):
		return "postgres", nil
	case strings.Contains(conn, "@tcp("):
		return "mysql", nil
	case conn == ":memory:", strings.HasPrefix(conn, "file:"),
		strings.HasSuffix(conn, ".sqlite"), strings.HasSuffix(conn, ".db"):
		return "sqlite", nil
	}
	return "", fmt.Errorf("can't detect database type of %q", conn)
}

// placeholders returns n positional parameters in the database dialect
func (p *DBStore) placeholders(n int) []string {
	res := make([]string, n)
	for i := range res {
		if p.dbType == "mysql" {
			res[i] = "?"
			continue
		}
		res[i] = fmt.Sprintf("$%d", i+1)
	}
	return res
}

// Get loads and decrypts the secret
func (p *DBStore) Get(key string) (string, error) {
	var encrypted string
	q := "SELECT sval FROM gsqlite_secrets WHERE skey = " + p.placeholders(1)[0]
	if err := p.db.QueryRow(q, key).Scan(&encrypted); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return "", fmt.Errorf("can't load secret %s: %w", key, err)
	}

	res, err := p.decrypt(encrypted)
	if err != nil {
		return "", fmt.Errorf("can't decrypt secret %s: %w", key, err)
	}
	return res, nil
}

// Set encrypts and stores the secret, replacing existing value
func (p *DBStore) Set(key, value string) error {
	encrypted, err := p.encrypt(value)
	if err != nil {
		return fmt.Errorf("can't encrypt secret %s: %w", key, err)
	}

	ph := p.placeholders(2)
	var q string
	switch p.dbType {
	case "sqlite":
		q = fmt.Sprintf("INSERT OR REPLACE INTO gsqlite_secrets (skey, sval) VALUES (%s, %s)", ph[0], ph[1])
	case "postgres":
		q = fmt.Sprintf("INSERT INTO gsqlite_secrets (skey, sval) VALUES (%s, %s) ON CONFLICT (skey) DO UPDATE SET sval = EXCLUDED.sval",
			ph[0], ph[1])
	case "mysql":
		q = "REPLACE INTO gsqlite_secrets (skey, sval) VALUES (?, ?)"
	default:
		return fmt.Errorf("unsupported database type %s", p.dbType)
	}

	if _, err = p.db.Exec(q, key, encrypted); err != nil {
		return fmt.Errorf("can't store secret %s: %w", key, err)
	}
	return nil
}

// Delete removes the secret, missing key is an error
func (p *DBStore) Delete(key string) error {
	res, err := p.db.Exec("DELETE FROM gsqlite_secrets WHERE skey = "+p.placeholders(1)[0], key)
	if err != nil {
		return fmt.Errorf("can't delete secret %s: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("can't check deleted rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return nil
}

// List returns sorted keys starting with prefix, empty prefix or "*" lists all
func (p *DBStore) List(prefix string) ([]string, error) {
	q := "SELECT skey FROM gsqlite_secrets"
	var args []any
	if prefix != "" && prefix != "*" {
		q += " WHERE skey LIKE " + p.placeholders(1)[0]
		args = append(args, prefix+"%")
	}
	q += " ORDER BY skey"

	rows, err := p.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't list secrets: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("can't scan secret key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't iterate secret keys: %w", err)
	}
	return keys, nil
}

// Close closes the database
func (p *DBStore) Close() error {
	return p.db.Close()
}

// encrypt seals data with nacl secretbox. The key is derived from the store key and a random salt,
// result is base64 of nonce, salt and sealed data.
func (p *DBStore) encrypt(data string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	nonce := new([nonceSize]byte)
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}

	out := make([]byte, nonceSize+saltSize)
	copy(out, nonce[:])
	copy(out[nonceSize:], salt)
	sealed := secretbox.Seal(out, []byte(data), nonce, p.boxKey(salt))
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (p *DBStore) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(sealed) < nonceSize+saltSize+secretbox.Overhead {
		return "", errors.New("encrypted value is too short")
	}

	nonce := new([nonceSize]byte)
	copy(nonce[:], sealed[:nonceSize])
	salt := sealed[nonceSize : nonceSize+saltSize]

	res, ok := secretbox.Open(nil, sealed[nonceSize+saltSize:], nonce, p.boxKey(salt))
	if !ok {
		return "", errors.New("failed to decrypt, wrong key or corrupted value")
	}
	return string(res), nil
}

// boxKey derives 32-byte secretbox key with argon2id
func (p *DBStore) boxKey(salt []byte) *[32]byte {
	res := new([32]byte)
	copy(res[:], argon2.IDKey(p.key, salt, 1, 64*1024, 4, 32))
	return res
}
