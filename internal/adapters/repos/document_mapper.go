package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/architeacher/svc-pubsub/internal/domain"
	"github.com/architeacher/svc-pubsub/internal/ports"
)

const documentsTable = "documents"

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         UUID        NOT NULL,
	body       JSONB       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING GIN (body jsonb_path_ops);
`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type (
	// DBOpener hands out the shared connection pool.
	DBOpener interface {
		GetDB() (*sqlx.DB, error)
	}

	// DocumentMapper stores domain objects as JSON documents grouped by
	// collection in a single Postgres table.
	DocumentMapper struct {
		opener DBOpener
		now    func() time.Time
		newID  func() (string, error)

		mu   sync.RWMutex
		conn *sqlx.DB
	}

	documentRow struct {
		ID   string `db:"id"`
		Body []byte `db:"body"`
	}
)

var _ ports.Mapper = (*DocumentMapper)(nil)

func NewDocumentMapper(opener DBOpener) *DocumentMapper {
	return &DocumentMapper{
		opener: opener,
		now:    time.Now,
		newID:  newObjectID,
	}
}

// Connect opens the pool and creates the documents table when missing.
func (m *DocumentMapper) Connect(ctx context.Context) error {
	db, err := m.opener.GetDB()
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to reach storage: %w", err)
	}

	if _, err := db.ExecContext(ctx, documentsSchema); err != nil {
		return fmt.Errorf("failed to ensure %s table: %w", documentsTable, err)
	}

	m.mu.Lock()
	m.conn = db
	m.mu.Unlock()

	return nil
}

// Close detaches the mapper. The pool belongs to the opener and stays open.
func (m *DocumentMapper) Close() error {
	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()

	return nil
}

func (m *DocumentMapper) Ping(ctx context.Context) error {
	db, err := m.db()
	if err != nil {
		return err
	}

	return db.PingContext(ctx)
}

// SaveObject inserts obj, or replaces the stored document when obj already
// carries an identity. The returned object is a new instance.
func (m *DocumentMapper) SaveObject(ctx context.Context, obj domain.Object) (domain.Object, error) {
	db, err := m.db()
	if err != nil {
		return nil, err
	}

	if obj == nil {
		return nil, domain.ErrInvalidObject
	}

	collection := domain.CollectionName(obj)

	id := obj.ObjectID()
	if id == "" {
		if id, err = m.newID(); err != nil {
			return nil, fmt.Errorf("failed to issue object id: %w", err)
		}
	} else if !validObjectID(id) {
		return nil, fmt.Errorf("object id %q: %w", id, domain.ErrInvalidObject)
	}

	body, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s object: %w", collection, err)
	}

	now := m.now().UTC()

	query, args, err := psql.Insert(documentsTable).
		Columns("collection", "id", "body", "created_at", "updated_at").
		Values(collection, id, body, now, now).
		Suffix("ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to save %s object: %w", collection, err)
	}

	return decodeObject(obj, id, body)
}

func (m *DocumentMapper) GetObject(ctx context.Context, id string, prototype domain.Object) (domain.Object, error) {
	db, err := m.db()
	if err != nil {
		return nil, err
	}

	collection := domain.CollectionName(prototype)
	if !validObjectID(id) {
		return nil, domain.ErrObjectNotFound
	}

	query, args, err := psql.Select("id", "body").
		From(documentsTable).
		Where(sq.Eq{"collection": collection, "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row documentRow
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrObjectNotFound
		}

		return nil, fmt.Errorf("failed to get %s object: %w", collection, err)
	}

	return decodeObject(prototype, row.ID, row.Body)
}

// FindObjects returns the objects of the prototype's collection whose body
// contains every field of filter, oldest first.
func (m *DocumentMapper) FindObjects(ctx context.Context, prototype domain.Object, filter map[string]any) ([]domain.Object, error) {
	db, err := m.db()
	if err != nil {
		return nil, err
	}

	collection := domain.CollectionName(prototype)

	builder := psql.Select("id", "body").
		From(documentsTable).
		Where(sq.Eq{"collection": collection}).
		OrderBy("created_at ASC", "id ASC")

	if len(filter) > 0 {
		containment, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to encode filter: %w", err)
		}

		builder = builder.Where(sq.Expr("body @> ?::jsonb", string(containment)))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []documentRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find %s objects: %w", collection, err)
	}

	objects := make([]domain.Object, 0, len(rows))
	for _, row := range rows {
		obj, err := decodeObject(prototype, row.ID, row.Body)
		if err != nil {
			return nil, err
		}

		objects = append(objects, obj)
	}

	return objects, nil
}

// DeleteObject removes obj and returns the document as it was stored.
func (m *DocumentMapper) DeleteObject(ctx context.Context, obj domain.Object) (domain.Object, error) {
	db, err := m.db()
	if err != nil {
		return nil, err
	}

	if obj == nil || !validObjectID(obj.ObjectID()) {
		return nil, domain.ErrObjectNotFound
	}

	collection := domain.CollectionName(obj)

	query, args, err := psql.Delete(documentsTable).
		Where(sq.Eq{"collection": collection, "id": obj.ObjectID()}).
		Suffix("RETURNING id, body").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build delete query: %w", err)
	}

	var row documentRow
	if err := db.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrObjectNotFound
		}

		return nil, fmt.Errorf("failed to delete %s object: %w", collection, err)
	}

	return decodeObject(obj, row.ID, row.Body)
}

func (m *DocumentMapper) db() (*sqlx.DB, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.conn == nil {
		return nil, domain.ErrMapperNotConnected
	}

	return m.conn, nil
}

// decodeObject builds a new value of prototype's type from body.
func decodeObject(prototype domain.Object, id string, body []byte) (domain.Object, error) {
	t := reflect.TypeOf(prototype)
	if t == nil || t.Kind() != reflect.Pointer {
		return nil, fmt.Errorf("prototype %T must be a pointer: %w", prototype, domain.ErrInvalidObject)
	}

	obj, ok := reflect.New(t.Elem()).Interface().(domain.Object)
	if !ok {
		return nil, fmt.Errorf("prototype %T: %w", prototype, domain.ErrInvalidObject)
	}

	if err := json.Unmarshal(body, obj); err != nil {
		return nil, fmt.Errorf("failed to decode %s object: %w", domain.CollectionName(prototype), err)
	}

	obj.SetObjectID(id)

	return obj, nil
}
