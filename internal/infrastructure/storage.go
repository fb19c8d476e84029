package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/architeacher/svc-pubsub/internal/config"
)

const postgresDriver = "postgres"

var errStorageClosed = errors.New("storage is closed")

// Storage owns the lazily opened Postgres pool.
type Storage struct {
	cfg config.StorageConfig

	mu     sync.Mutex
	db     *sqlx.DB
	closed bool
}

func NewStorage(cfg config.StorageConfig) (*Storage, error) {
	if cfg.Host == "" || cfg.Database == "" {
		return nil, fmt.Errorf("storage host and database are required")
	}

	return &Storage{cfg: cfg}, nil
}

// DSN renders the connection URL understood by lib/pq.
func (s *Storage) DSN() string {
	u := url.URL{
		Scheme: postgresDriver,
		User:   url.UserPassword(s.cfg.Username, s.cfg.Password),
		Host:   net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port)),
		Path:   s.cfg.Database,
	}

	q := u.Query()
	q.Set("sslmode", s.cfg.SSLMode)

	if s.cfg.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(int(s.cfg.ConnectTimeout.Seconds())))
	}

	u.RawQuery = q.Encode()

	return u.String()
}

// GetDB opens the pool on first use. sqlx.Open does not dial, so the first
// query or Ping reports an unreachable server.
func (s *Storage) GetDB() (*sqlx.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errStorageClosed
	}

	if s.db != nil {
		return s.db, nil
	}

	db, err := sqlx.Open(postgresDriver, s.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(s.cfg.ConnMaxIdleTime)

	s.db = db

	return db, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	db, err := s.GetDB()
	if err != nil {
		return err
	}

	if s.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	if s.db == nil {
		return nil
	}

	db := s.db
	s.db = nil

	return db.Close()
}
