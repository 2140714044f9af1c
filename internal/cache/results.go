package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// ResultKey identifies a query result by operation name and variables.
// encoding/json sorts map keys, so equal variables give equal keys.
func ResultKey(op string, vars map[string]any) string {
	data, err := json.Marshal(vars)
	if err != nil {
		return op
	}
	return op + ":" + string(data)
}

// GetResult decodes the cached result for key into dst. Returns
// (found, isFresh, error); isFresh reports whether the result is within ttl.
func (d *DB) GetResult(key string, ttl time.Duration, dst any) (bool, bool, error) {
	row := d.db.QueryRow(`SELECT data, fetched_at FROM query_results WHERE key = ?`, key)

	var data string
	var fetchedAt int64
	err := row.Scan(&data, &fetchedAt)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return false, false, fmt.Errorf("decoding cached %s: %w", key, err)
	}

	isFresh := time.Since(time.Unix(fetchedAt, 0)) < ttl
	return true, isFresh, nil
}

// PutResult stores v under key.
func (d *DB) PutResult(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = d.db.Exec(`INSERT OR REPLACE INTO query_results (key, data, fetched_at) VALUES (?, ?, ?)`,
		key, string(data), time.Now().Unix())
	return err
}

// DeleteResults drops every cached result, used when the access token
// changes and results may differ per viewer.
func (d *DB) DeleteResults() error {
	_, err := d.db.Exec(`DELETE FROM query_results`)
	return err
}
