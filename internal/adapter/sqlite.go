package adapter

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dustin/go-humanize"
)

// SQLiteAdapter is the reference Adapter implementation: a pure-Go
// database/sql backend over modernc.org/sqlite, giving the bridge's
// connection-guard discipline a real, testable database to exercise
// instead of a mock.
type SQLiteAdapter struct {
	dsn string

	mu      sync.Mutex
	db      *sql.DB
	opened  time.Time
	queries int
}

func NewSQLiteAdapter(dsn string) *SQLiteAdapter {
	if dsn == "" {
		dsn = ":memory:"
	}
	return &SQLiteAdapter{dsn: dsn}
}

// sqliteConn implements Connection. A single *sql.DB backs every
// connection the bridge borrows, so Close is a no-op: sql.DB already
// pools and the bridge only needs Connection's borrow/return discipline,
// not a 1:1 mapping to an OS-level database handle.
type sqliteConn struct {
	db *sql.DB
}

func (c *sqliteConn) Close() error { return nil }

func (a *SQLiteAdapter) Open() (Connection, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		db, err := sql.Open("sqlite", a.dsn)
		if err != nil {
			return nil, fmt.Errorf("adapter: open %s: %w", a.dsn, err)
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("adapter: ping %s: %w", a.dsn, err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		a.db = db
		a.opened = time.Now()
	}
	return &sqliteConn{db: a.db}, nil
}

func (a *SQLiteAdapter) dbOf(conn Connection) (*sql.DB, error) {
	c, ok := conn.(*sqliteConn)
	if !ok {
		return nil, fmt.Errorf("adapter: connection was not opened by this adapter")
	}
	return c.db, nil
}

// Stats reports a human-readable summary of activity against this adapter:
// the number of queries run and how long ago the adapter was opened.
func (a *SQLiteAdapter) Stats() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("%s queries since %s", humanize.Comma(int64(a.queries)), humanize.Time(a.opened))
}

func (a *SQLiteAdapter) Execute(conn Connection, query string, autoBegin, fetch bool) (ExecuteResult, error) {
	db, err := a.dbOf(conn)
	if err != nil {
		return ExecuteResult{}, err
	}
	a.mu.Lock()
	a.queries++
	a.mu.Unlock()

	if !fetch {
		res, err := db.Exec(query)
		if err != nil {
			return ExecuteResult{}, fmt.Errorf("adapter: execute: %w", err)
		}
		n, _ := res.RowsAffected()
		return ExecuteResult{RowsAffected: n}, nil
	}

	rows, err := db.Query(query)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("adapter: execute (fetch): %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("adapter: reading columns: %w", err)
	}

	var out [][]interface{}
	for rows.Next() {
		scanTargets := make([]interface{}, len(cols))
		scanned := make([]interface{}, len(cols))
		for i := range scanTargets {
			scanTargets[i] = &scanned[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return ExecuteResult{}, fmt.Errorf("adapter: scanning row: %w", err)
		}
		out = append(out, scanned)
	}
	if err := rows.Err(); err != nil {
		return ExecuteResult{}, fmt.Errorf("adapter: iterating rows: %w", err)
	}

	return ExecuteResult{RowsAffected: int64(len(out)), Columns: cols, Rows: out}, nil
}

func (a *SQLiteAdapter) AddQuery(conn Connection, query string, autoBegin bool) error {
	_, err := a.Execute(conn, query, autoBegin, false)
	return err
}

func (a *SQLiteAdapter) DropRelation(conn Connection, rel Relation) error {
	db, err := a.dbOf(conn)
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", rel.Identifier))
	if err != nil {
		return fmt.Errorf("adapter: drop_relation %s: %w", rel, err)
	}
	return nil
}

func (a *SQLiteAdapter) RenameRelation(conn Connection, from, to Relation) error {
	db, err := a.dbOf(conn)
	if err != nil {
		return err
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %q RENAME TO %q", from.Identifier, to.Identifier))
	if err != nil {
		return fmt.Errorf("adapter: rename_relation %s -> %s: %w", from, to, err)
	}
	return nil
}

func (a *SQLiteAdapter) GetRelation(conn Connection, database, schema, identifier string) (Relation, bool, error) {
	db, err := a.dbOf(conn)
	if err != nil {
		return Relation{}, false, err
	}
	row := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name = ?",
		identifier,
	)
	var name string
	switch err := row.Scan(&name); err {
	case nil:
		return Relation{Database: database, Schema: schema, Identifier: name}, true, nil
	case sql.ErrNoRows:
		return Relation{}, false, nil
	default:
		return Relation{}, false, fmt.Errorf("adapter: get_relation %s.%s.%s: %w", database, schema, identifier, err)
	}
}

func (a *SQLiteAdapter) GetColumnsInRelation(conn Connection, rel Relation) ([]Column, error) {
	db, err := a.dbOf(conn)
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", rel.Identifier))
	if err != nil {
		return nil, fmt.Errorf("adapter: get_columns_in_relation %s: %w", rel, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("adapter: scanning table_info row: %w", err)
		}
		cols = append(cols, Column{Name: name, DType: ctype})
	}
	return cols, rows.Err()
}

func (a *SQLiteAdapter) GrantAccessTo(conn Connection, rel Relation, entityType, grantee string) error {
	// SQLite has no grant model; the call succeeds as a no-op so templates
	// written against a grant-supporting warehouse still render here.
	_ = entityType
	_ = grantee
	_ = rel
	return nil
}
