// Package entity maps relational tables to a uniform CRUD contract.
//
// An Entity is constructed once at process start from a static column
// specification and is immutable and shared (read-only) across requests.
// Each column carries its own codec pair (see Column), so filter values and
// persisted values always undergo the same coercion. Rows are never
// physically removed: deletion sets the deleted_at marker, which hides the
// row from get and list while preserving referential history.
package entity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/makerspace/memberd/db"
	"github.com/makerspace/memberd/service"
)

// Entity maps one table to a full CRUD contract using an ordered list of
// columns. The implicit id column is always present, readable, never
// writeable, and filterable under the alias entity_id unless overridden.
type Entity struct {
	// Table is the backing table name.
	Table string

	// AllowDelete enables the soft-delete operation. When false, Delete
	// reports a method-not-allowed condition instead of writing anything.
	AllowDelete bool

	columns   []Column
	readable  []Column
	writeable []Column

	readFields  string
	writeFields string

	handle *db.Handle
	log    *slog.Logger
}

// Option adjusts entity construction.
type Option func(*Entity)

// WithoutDelete disables the delete operation for the entity.
func WithoutDelete() Option {
	return func(e *Entity) { e.AllowDelete = false }
}

// New builds an entity for the given table from a static column
// specification. The id column is injected if the specification does not
// declare one; a declared id column keeps its settings but is always forced
// read-only.
func New(table string, columns []Column, opts ...Option) (*Entity, error) {
	hasID := false
	for _, c := range columns {
		if c.Name == "id" {
			hasID = true
		}
	}
	if !hasID {
		columns = append([]Column{{Name: "id"}}, columns...)
	}

	e := &Entity{Table: table, AllowDelete: true}

	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if c.Name == "" {
			return nil, fmt.Errorf("entity %s: column with empty storage name", table)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("entity %s: duplicate column %s", table, c.Name)
		}
		seen[c.Name] = true

		if c.Name == "id" {
			c.OmitWrite = true
			c.Encode = nil
			if c.Alias == "" {
				c.Alias = "entity_id"
			}
		}
		c = c.resolve()
		e.columns = append(e.columns, c)
		if c.readable() {
			e.readable = append(e.readable, c)
		}
		if c.writeable() {
			e.writeable = append(e.writeable, c)
		}
	}

	for _, opt := range opts {
		opt(e)
	}

	readNames := make([]string, len(e.readable))
	for i, c := range e.readable {
		readNames[i] = c.Name
	}
	e.readFields = strings.Join(readNames, ",")

	writeNames := make([]string, len(e.writeable))
	for i, c := range e.writeable {
		writeNames[i] = c.Name
	}
	e.writeFields = strings.Join(writeNames, ",")

	return e, nil
}

// Bind attaches the database handle and logger the entity operates through.
// AddRoutes calls this with the owning service's handle; tests may bind
// directly.
func (e *Entity) Bind(handle *db.Handle, log *slog.Logger) {
	e.handle = handle
	e.log = log
}

// Get selects the readable columns of the row with the given id. Rows whose
// soft-delete marker is set are invisible. Fails with a not-found error when
// no row matches.
func (e *Entity) Get(ctx context.Context, id int64) (map[string]any, error) {
	cur, err := e.handle.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id=?", e.readFields, e.Table)
	if e.AllowDelete {
		query += " AND deleted_at IS NULL"
	}

	row, err := e.scanRow(cur.QueryRow(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, service.NotFound("no item with id '%d' in table %s", id, e.Table)
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

// List returns the decoded rows matching the given WHERE clause. An empty
// clause returns every row in storage order. Use BuildFilter to derive the
// clause from request query parameters.
func (e *Entity) List(ctx context.Context, where string, args ...any) ([]map[string]any, error) {
	cur, err := e.handle.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	query := fmt.Sprintf("SELECT %s FROM %s", e.readFields, e.Table)
	if where != "" {
		query += " WHERE " + where
	}

	rows, err := cur.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []map[string]any{}
	for rows.Next() {
		item, err := e.scanRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Create encodes the writeable subset of data, inserts a new row and returns
// the freshly read row under its storage-generated identifier. Keys outside
// the writeable subset are ignored.
func (e *Entity) Create(ctx context.Context, data map[string]any) (map[string]any, error) {
	values, err := e.encodeRow(data)
	if err != nil {
		return nil, err
	}

	cur, err := e.handle.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(e.writeable)), ",")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.Table, e.writeFields, placeholders)
	res, err := cur.Exec(ctx, query, values...)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return e.Get(ctx, id)
}

// Update encodes the writeable subset of data and updates the row matching
// id. Updating a nonexistent id is a silent no-op; see the routes package
// for the rationale behind keeping that contract.
func (e *Entity) Update(ctx context.Context, data map[string]any, id int64) error {
	values, err := e.encodeRow(data)
	if err != nil {
		return err
	}

	cur, err := e.handle.Cursor(ctx)
	if err != nil {
		return err
	}
	defer cur.Close()

	assignments := make([]string, len(e.writeable))
	for i, c := range e.writeable {
		assignments[i] = c.Name + "=?"
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id=?", e.Table, strings.Join(assignments, ","))
	_, err = cur.Exec(ctx, query, append(values, id)...)
	return err
}

// Delete sets the soft-delete marker on the row with the given id. Deleting
// an already-deleted or nonexistent id succeeds silently. When deletion is
// disallowed for the entity, a method-not-allowed condition is reported and
// nothing is written.
func (e *Entity) Delete(ctx context.Context, id int64) error {
	if !e.AllowDelete {
		return service.MethodNotAllowed("deletion is not allowed for %s", e.Table)
	}

	cur, err := e.handle.Cursor(ctx)
	if err != nil {
		return err
	}
	defer cur.Close()

	query := fmt.Sprintf("UPDATE %s SET deleted_at=CURRENT_TIMESTAMP WHERE id=?", e.Table)
	_, err = cur.Exec(ctx, query, id)
	return err
}

// encodeRow maps the writeable subset of data through each column's write
// transform, in column order. A missing key or a value the codec rejects is
// a bad request.
func (e *Entity) encodeRow(data map[string]any) ([]any, error) {
	values := make([]any, len(e.writeable))
	for i, c := range e.writeable {
		v, ok := data[c.Exposed]
		if !ok {
			return nil, service.BadRequest("Missing required parameter %s", c.Exposed)
		}
		encoded, err := c.Encode(v)
		if err != nil {
			return nil, service.BadRequest("invalid value for %s: %v", c.Exposed, err)
		}
		values[i] = encoded
	}
	return values, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRow scans one result row and decodes it into an exposed-name map.
func (e *Entity) scanRow(row scanner) (map[string]any, error) {
	values := make([]any, len(e.readable))
	ptrs := make([]any, len(e.readable))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil, err
	}

	item := make(map[string]any, len(e.readable))
	for i, c := range e.readable {
		decoded, err := c.Decode(values[i])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		item[c.Exposed] = decoded
	}
	return item, nil
}
