package merkle

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Registers the "sqlite3" database/sql driver.
	_ "github.com/mattn/go-sqlite3"
)

// Table and columns of the node store.
const (
	nodesTable = "nodes"

	columnHash       = "hash"
	columnParentHash = "parent_hash"
	columnContent    = "content"
	columnCreatedAt  = "created_at"
)

const parentIndex = `CREATE INDEX IF NOT EXISTS idx_nodes_parent_hash ON nodes(parent_hash)`

var _ Storer = (*SQLiteStorer)(nil)

// SQLiteStorer persists nodes in a SQLite database. Queries are built with
// ent's SQL dialect layer.
type SQLiteStorer struct {
	drv *entsql.Driver
}

// NewSQLiteStorer opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteStorer(path string) (*SQLiteStorer, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorer{drv: entsql.OpenDB(dialect.SQLite, db)}
	if err := s.migrate(context.Background()); err != nil {
		s.drv.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorer) migrate(ctx context.Context) error {
	query, args := s.builder().CreateTable(nodesTable).
		IfNotExists().
		Columns(
			entsql.Column(columnHash).Type("TEXT").Attr("PRIMARY KEY"),
			entsql.Column(columnParentHash).Type("TEXT"),
			entsql.Column(columnContent).Type("TEXT").Attr("NOT NULL"),
			entsql.Column(columnCreatedAt).Type("INTEGER").Attr("NOT NULL"),
		).
		Query()
	if err := s.drv.Exec(ctx, query, args, nil); err != nil {
		return err
	}

	return s.drv.Exec(ctx, parentIndex, []any{}, nil)
}

func (s *SQLiteStorer) builder() *entsql.DialectBuilder {
	return entsql.Dialect(s.drv.Dialect())
}

func (s *SQLiteStorer) Put(ctx context.Context, node *Node) (bool, error) {
	if node == nil {
		return false, errNilNode
	}

	content, err := json.Marshal(node.Content)
	if err != nil {
		return false, fmt.Errorf("marshal content: %w", err)
	}

	var parent sql.NullString
	if node.ParentHash != nil {
		parent = sql.NullString{String: *node.ParentHash, Valid: true}
	}

	query, args := s.builder().Insert(nodesTable).
		Columns(columnHash, columnParentHash, columnContent, columnCreatedAt).
		Values(node.Hash, parent, string(content), time.Now().UnixNano()).
		OnConflict(entsql.ConflictColumns(columnHash), entsql.DoNothing()).
		Query()

	var res sql.Result
	if err := s.drv.Exec(ctx, query, args, &res); err != nil {
		return false, fmt.Errorf("insert node %s: %w", node.Hash, err)
	}

	// A conflicting hash inserts nothing.
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert node %s: %w", node.Hash, err)
	}
	return n > 0, nil
}

func (s *SQLiteStorer) Get(ctx context.Context, hash string) (*Node, error) {
	nodes, err := s.query(ctx, s.selectNodes(entsql.Table(nodesTable)).
		Where(entsql.EQ(columnHash, hash)))
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound{Hash: hash}
	}
	return nodes[0], nil
}

func (s *SQLiteStorer) Has(ctx context.Context, hash string) (bool, error) {
	query, args := s.builder().Select(columnHash).
		From(entsql.Table(nodesTable)).
		Where(entsql.EQ(columnHash, hash)).
		Limit(1).
		Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return false, fmt.Errorf("check node %s: %w", hash, err)
	}
	defer rows.Close()

	exists := rows.Next()
	return exists, rows.Err()
}

func (s *SQLiteStorer) List(ctx context.Context) ([]*Node, error) {
	return s.query(ctx, s.selectNodes(entsql.Table(nodesTable)))
}

func (s *SQLiteStorer) Roots(ctx context.Context) ([]*Node, error) {
	return s.query(ctx, s.selectNodes(entsql.Table(nodesTable)).
		Where(entsql.IsNull(columnParentHash)))
}

// Leaves returns the nodes no other node names as its parent.
func (s *SQLiteStorer) Leaves(ctx context.Context) ([]*Node, error) {
	n := entsql.Table(nodesTable).As("n")
	c := entsql.Table(nodesTable).As("c")

	children := entsql.Select(c.C(columnHash)).
		From(c).
		Where(entsql.ColumnsEQ(c.C(columnParentHash), n.C(columnHash)))

	return s.query(ctx, s.selectNodes(n).Where(entsql.NotExists(children)))
}

func (s *SQLiteStorer) Ancestry(ctx context.Context, hash string) ([]*Node, error) {
	return ancestry(ctx, s, hash)
}

func (s *SQLiteStorer) Close() error {
	return s.drv.Close()
}

// selectNodes selects the node columns of t in insertion order.
func (s *SQLiteStorer) selectNodes(t *entsql.SelectTable) *entsql.Selector {
	return s.builder().Select(t.C(columnHash), t.C(columnParentHash), t.C(columnContent)).
		From(t).
		OrderBy(t.C(columnCreatedAt), t.C("rowid"))
}

func (s *SQLiteStorer) query(ctx context.Context, sel *entsql.Selector) ([]*Node, error) {
	query, args := sel.Query()

	rows := &entsql.Rows{}
	if err := s.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []*Node{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var (
		node    Node
		parent  sql.NullString
		content string
	)

	if err := row.Scan(&node.Hash, &parent, &content); err != nil {
		return nil, err
	}
	if parent.Valid {
		node.ParentHash = &parent.String
	}
	if err := json.Unmarshal([]byte(content), &node.Content); err != nil {
		return nil, fmt.Errorf("unmarshal content of %s: %w", node.Hash, err)
	}

	return &node, nil
}
