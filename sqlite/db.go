// Package sqlite keeps alarms and armed tickets in a SQLite database.
package sqlite

import (
	"fmt"
	"sync"

	"bsid.es/despertador/sqlite/migration"
	"crawshaw.io/sqlite"
)

// DB is a migrated connection shared by Store and Ledger. SQLite
// connections are not safe for concurrent use, so every query holds mu.
type DB struct {
	mu   sync.Mutex
	conn *sqlite.Conn
}

// Open opens (creating if needed) and migrates the database at path. Use
// ":memory:" for a private in-memory database.
func Open(path string) (*DB, error) {
	conn, err := sqlite.OpenConn(path, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", path, err)
	}
	if err := Migrate(conn, migration.Scripts); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate %s: %v", path, err)
	}
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// with runs f with exclusive use of the connection.
func (db *DB) with(f func(conn *sqlite.Conn) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return f(db.conn)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
