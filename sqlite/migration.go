package sqlite

import (
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Migrate runs the *.sql scripts of fsys that the database has not seen
// yet, in lexical order. The number of applied scripts is kept in
// pragma user_version; everything runs inside one savepoint.
func Migrate(conn *sqlite.Conn, fsys fs.FS) (err error) {
	release := sqlitex.Save(conn)
	defer release(&err)

	applied, err := userVersion(conn)
	if err != nil {
		return fmt.Errorf("get version: %v", err)
	}

	scripts, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return fmt.Errorf("list scripts: %v", err)
	}
	if applied >= len(scripts) {
		return nil
	}

	sort.Strings(scripts)
	for _, script := range scripts[applied:] {
		buf, err := fs.ReadFile(fsys, script)
		if err != nil {
			return fmt.Errorf("read %s: %v", script, err)
		}
		if err := execScript(conn, string(buf)); err != nil {
			return fmt.Errorf("%s: %v", script, err)
		}
	}

	if err := sqlitex.ExecTransient(conn, "pragma user_version="+strconv.Itoa(len(scripts)), nil); err != nil {
		return fmt.Errorf("set version: %v", err)
	}
	return nil
}

func userVersion(conn *sqlite.Conn) (int, error) {
	var v int
	err := sqlitex.ExecTransient(conn, "pragma user_version", func(stmt *sqlite.Stmt) error {
		v = stmt.ColumnInt(0)
		return nil
	})
	return v, err
}

// execScript runs every statement of a multi-statement script.
func execScript(conn *sqlite.Conn, queries string) error {
	queries = strings.TrimSpace(queries)
	for i := 0; queries != ""; i++ {
		stmt, trailingBytes, err := conn.PrepareTransient(queries)
		if err != nil {
			return fmt.Errorf("prepare stmt %d: %v", i, err)
		}
		queries = strings.TrimSpace(queries[len(queries)-trailingBytes:])
		_, err = stmt.Step()
		stmt.Finalize()
		if err != nil {
			return fmt.Errorf("execute stmt %d: %v", i, err)
		}
	}
	return nil
}
