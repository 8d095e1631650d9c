// Package store persists workspace symbol snapshots to SQLite so external
// tooling (CI scripts, sqlite3 one-liners) can query the index without
// running the engine.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/erlscope/erlscope/internal/semantic"
	"github.com/erlscope/erlscope/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS symbols (
	module    TEXT NOT NULL,
	name      TEXT NOT NULL,
	arity     INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	path      TEXT NOT NULL,
	start_off INTEGER NOT NULL,
	end_off   INTEGER NOT NULL,
	exported  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_symbols_module ON symbols(module);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
`

// SymbolStore is a SQLite-backed symbol snapshot.
type SymbolStore struct {
	db *sql.DB
}

// Open creates or opens the store at path and ensures the schema exists.
func Open(path string) (*SymbolStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open symbol store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create symbol schema: %w", err)
	}
	return &SymbolStore{db: db}, nil
}

// Close releases the database handle.
func (s *SymbolStore) Close() error {
	return s.db.Close()
}

// Replace swaps the stored snapshot for the given symbols atomically.
func (s *SymbolStore) Replace(syms []semantic.SymbolInfo) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM symbols`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO symbols
		(module, name, arity, kind, path, start_off, end_off, exported)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, sym := range syms {
		exported := 0
		if sym.Exported {
			exported = 1
		}
		_, err := stmt.Exec(
			sym.ID.Module,
			sym.ID.Entity.Name,
			sym.ID.Entity.Arity,
			sym.ID.Kind.String(),
			sym.Path,
			sym.Range.Start,
			sym.Range.End,
			exported,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Count reports how many symbols the snapshot holds.
func (s *SymbolStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM symbols`).Scan(&n)
	return n, err
}

// ByModule lists the stored symbols of one module, functions first by name.
func (s *SymbolStore) ByModule(module string) ([]semantic.SymbolInfo, error) {
	rows, err := s.db.Query(`SELECT module, name, arity, kind, path, start_off, end_off, exported
		FROM symbols WHERE module = ? ORDER BY kind, name, arity`, module)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []semantic.SymbolInfo
	for rows.Next() {
		var (
			sym      semantic.SymbolInfo
			kind     string
			exported int
		)
		if err := rows.Scan(&sym.ID.Module, &sym.ID.Entity.Name, &sym.ID.Entity.Arity,
			&kind, &sym.Path, &sym.Range.Start, &sym.Range.End, &exported); err != nil {
			return nil, err
		}
		sym.ID.Kind = parseKind(kind)
		sym.Exported = exported != 0
		out = append(out, sym)
	}
	return out, rows.Err()
}

func parseKind(s string) types.SymbolKind {
	switch s {
	case "module":
		return types.SymbolModule
	case "function":
		return types.SymbolFunction
	case "record":
		return types.SymbolRecord
	case "macro":
		return types.SymbolMacro
	case "type":
		return types.SymbolType
	case "variable":
		return types.SymbolVariable
	}
	return types.SymbolUnknown
}
