package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"javagent/internal/graph"
)

// SQLiteStore persists per-unit graph contributions. The graph itself is
// rebuilt from contributions on load, so the database never stores derived
// state like placeholders or materialized edges.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates or opens a SQLite database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS units (
			unit_id TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS entities (
			unit_id TEXT,
			id TEXT,
			kind TEXT,
			name TEXT,
			qualified_name TEXT,
			package TEXT,
			modifiers JSON,
			annotations JSON,
			signature TEXT,
			return_type TEXT,
			doc TEXT,
			PRIMARY KEY (unit_id, id)
		);`,
		`CREATE TABLE IF NOT EXISTS claims (
			unit_id TEXT,
			from_id TEXT,
			target TEXT,
			kind TEXT,
			PRIMARY KEY (unit_id, from_id, target, kind)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_entities_qname ON entities(qualified_name);`,
		`CREATE INDEX IF NOT EXISTS idx_claims_target ON claims(target);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// SaveUnit replaces one unit's contribution in a single transaction. A
// crash between units leaves the database at some unit boundary, never
// with a half-written unit.
func (s *SQLiteStore) SaveUnit(ctx context.Context, c graph.UnitContribution) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteUnitTx(ctx, tx, c.UnitID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO units (unit_id) VALUES (?)`, c.UnitID); err != nil {
		return err
	}

	entStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (unit_id, id, kind, name, qualified_name, package, modifiers, annotations, signature, return_type, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer entStmt.Close()

	for _, e := range c.Entities {
		modifiers, _ := json.Marshal(e.Modifiers)
		annotations, _ := json.Marshal(e.Annotations)
		if _, err := entStmt.ExecContext(ctx, c.UnitID, e.ID, string(e.Kind), e.Name,
			e.QualifiedName, e.Package, modifiers, annotations, e.Signature, e.ReturnType, e.Doc); err != nil {
			return fmt.Errorf("failed to save entity %s: %w", e.QualifiedName, err)
		}
	}

	claimStmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO claims (unit_id, from_id, target, kind) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer claimStmt.Close()

	for _, cl := range c.Claims {
		if _, err := claimStmt.ExecContext(ctx, c.UnitID, cl.From, cl.Target, string(cl.Kind)); err != nil {
			return fmt.Errorf("failed to save claim %s -> %s: %w", cl.From, cl.Target, err)
		}
	}

	return tx.Commit()
}

// DeleteUnit removes a unit's contribution, if present.
func (s *SQLiteStore) DeleteUnit(ctx context.Context, unitID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := deleteUnitTx(ctx, tx, unitID); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteUnitTx(ctx context.Context, tx *sql.Tx, unitID string) error {
	for _, q := range []string{
		`DELETE FROM claims WHERE unit_id = ?`,
		`DELETE FROM entities WHERE unit_id = ?`,
		`DELETE FROM units WHERE unit_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, unitID); err != nil {
			return err
		}
	}
	return nil
}

// SaveAll writes every contribution currently held by the in-memory store.
func (s *SQLiteStore) SaveAll(ctx context.Context, g *graph.Store) error {
	for _, c := range g.Units() {
		if err := s.SaveUnit(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// Load rebuilds the in-memory graph from stored contributions. Resolution
// happens exactly as it does during indexing, so a loaded graph is
// indistinguishable from a freshly built one.
func (s *SQLiteStore) Load(ctx context.Context) (*graph.Store, error) {
	entities, err := s.loadEntities(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := s.loadClaims(ctx)
	if err != nil {
		return nil, err
	}

	unitIDs, err := s.UnitIDs(ctx)
	if err != nil {
		return nil, err
	}

	g := graph.NewStore()
	for _, unitID := range unitIDs {
		if err := g.UpsertUnit(unitID, entities[unitID], claims[unitID]); err != nil {
			return nil, fmt.Errorf("failed to restore unit %s: %w", unitID, err)
		}
	}
	g.Promote()
	return g, nil
}

// UnitIDs lists stored units in lexical order.
func (s *SQLiteStore) UnitIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT unit_id FROM units ORDER BY unit_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) loadEntities(ctx context.Context) (map[string][]graph.Entity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit_id, id, kind, name, qualified_name, package, modifiers, annotations, signature, return_type, doc
		FROM entities
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]graph.Entity{}
	for rows.Next() {
		var unitID, kind string
		var e graph.Entity
		var modifiers, annotations []byte
		if err := rows.Scan(&unitID, &e.ID, &kind, &e.Name, &e.QualifiedName, &e.Package,
			&modifiers, &annotations, &e.Signature, &e.ReturnType, &e.Doc); err != nil {
			return nil, err
		}
		e.Kind = graph.Kind(kind)
		if err := json.Unmarshal(modifiers, &e.Modifiers); err != nil {
			return nil, fmt.Errorf("corrupt modifiers for %s: %w", e.QualifiedName, err)
		}
		if err := json.Unmarshal(annotations, &e.Annotations); err != nil {
			return nil, fmt.Errorf("corrupt annotations for %s: %w", e.QualifiedName, err)
		}
		out[unitID] = append(out[unitID], e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) loadClaims(ctx context.Context) (map[string][]graph.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT unit_id, from_id, target, kind FROM claims`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string][]graph.Claim{}
	for rows.Next() {
		var unitID, kind string
		var c graph.Claim
		if err := rows.Scan(&unitID, &c.From, &c.Target, &kind); err != nil {
			return nil, err
		}
		c.Kind = graph.RelationKind(kind)
		out[unitID] = append(out[unitID], c)
	}
	return out, rows.Err()
}
