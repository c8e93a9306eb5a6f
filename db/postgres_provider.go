package db

import (
	"bytes"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/mezonai/votechain/logx"
)

const (
	postgresTable      = "votechain_kv"
	postgresMaxRetries = 5
	postgresRetryDelay = 3 * time.Second
)

// PostgresProvider implements DatabaseProvider on a single bytea key/value table
type PostgresProvider struct {
	once sync.Once
	db   *sql.DB
}

// NewPostgresProvider connects to dsn, retrying while the server comes up,
// and creates the key/value table if it does not exist
func NewPostgresProvider(dsn string) (*PostgresProvider, error) {
	db, err := connectPostgres(dsn, postgresMaxRetries, postgresRetryDelay)
	if err != nil {
		return nil, err
	}

	createTableSQL := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		k BYTEA PRIMARY KEY,
		v BYTEA NOT NULL
	);`, postgresTable)
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "failed to create %s table", postgresTable)
	}

	return &PostgresProvider{db: db}, nil
}

func connectPostgres(dsn string, maxRetries int, retryDelay time.Duration) (*sql.DB, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			logx.Warn("POSTGRES", fmt.Sprintf("Retrying connection (attempt %d/%d) after error: %v", attempt+1, maxRetries, lastErr))
			time.Sleep(retryDelay)
		}

		db, err := sql.Open("postgres", dsn)
		if err != nil {
			lastErr = errors.Wrap(err, "failed to open postgres connection")
			continue
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			lastErr = errors.Wrap(err, "failed to ping postgres")
			continue
		}

		logx.Info("POSTGRES", "Connection established")
		return db, nil
	}
	return nil, errors.Wrapf(lastErr, "failed to connect to postgres after %d attempts", maxRetries)
}

// Get retrieves a value by key
func (p *PostgresProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.QueryRow("SELECT v FROM "+postgresTable+" WHERE k = $1", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "postgres get")
	}
	return value, nil
}

// GetBatch retrieves multiple values by keys in a single query
func (p *PostgresProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	// lib/pq has no bytea array encoder, so the IN list is built positionally
	var query bytes.Buffer
	query.WriteString("SELECT k, v FROM " + postgresTable + " WHERE k IN (")
	args := make([]interface{}, len(keys))
	for i, key := range keys {
		if i > 0 {
			query.WriteString(", ")
		}
		fmt.Fprintf(&query, "$%d", i+1)
		args[i] = key
	}
	query.WriteString(")")

	rows, err := p.db.Query(query.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "postgres get batch")
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, errors.Wrap(err, "postgres get batch scan")
		}
		result[string(k)] = v
	}
	return result, errors.Wrap(rows.Err(), "postgres get batch rows")
}

// Put stores a key-value pair
func (p *PostgresProvider) Put(key, value []byte) error {
	_, err := p.db.Exec(upsertSQL, key, value)
	return errors.Wrap(err, "postgres put")
}

// Delete removes a key-value pair
func (p *PostgresProvider) Delete(key []byte) error {
	_, err := p.db.Exec("DELETE FROM "+postgresTable+" WHERE k = $1", key)
	return errors.Wrap(err, "postgres delete")
}

// Has checks if a key exists
func (p *PostgresProvider) Has(key []byte) (bool, error) {
	var found bool
	err := p.db.QueryRow("SELECT EXISTS(SELECT 1 FROM "+postgresTable+" WHERE k = $1)", key).Scan(&found)
	return found, errors.Wrap(err, "postgres has")
}

// Close closes the connection pool
func (p *PostgresProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

// Batch returns a batch that is applied in a single SQL transaction
func (p *PostgresProvider) Batch() DatabaseBatch {
	return &PostgresBatch{db: p.db}
}

// IteratePrefix walks keys with the given prefix in byte order.
// bytea compares bytewise, so a range scan from prefix is ordered like leveldb.
func (p *PostgresProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	rows, err := p.db.Query("SELECT k, v FROM "+postgresTable+" WHERE k >= $1 ORDER BY k", prefix)
	if err != nil {
		return errors.Wrap(err, "postgres iterate")
	}
	defer rows.Close()

	for rows.Next() {
		var k, v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return errors.Wrap(err, "postgres iterate scan")
		}
		if !bytes.HasPrefix(k, prefix) || !callback(k, v) {
			break
		}
	}
	return errors.Wrap(rows.Err(), "postgres iterate rows")
}

var upsertSQL = "INSERT INTO " + postgresTable + " (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v"

// PostgresBatch buffers writes until Write
type PostgresBatch struct {
	db  *sql.DB
	ops []batchOp
}

// Put adds a key-value pair to the batch
func (b *PostgresBatch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete adds a deletion to the batch
func (b *PostgresBatch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: append([]byte(nil), key...), delete: true})
}

// Write commits all operations in the batch
func (b *PostgresBatch) Write() error {
	tx, err := b.db.Begin()
	if err != nil {
		return errors.Wrap(err, "postgres batch begin")
	}

	for _, op := range b.ops {
		if op.delete {
			_, err = tx.Exec("DELETE FROM "+postgresTable+" WHERE k = $1", op.key)
		} else {
			_, err = tx.Exec(upsertSQL, op.key, op.value)
		}
		if err != nil {
			_ = tx.Rollback()
			return errors.Wrap(err, "postgres batch write")
		}
	}

	return errors.Wrap(tx.Commit(), "postgres batch commit")
}

// Reset clears the batch
func (b *PostgresBatch) Reset() {
	b.ops = b.ops[:0]
}

// Close releases batch resources
func (b *PostgresBatch) Close() {
	b.ops = nil
}
