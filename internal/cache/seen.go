package cache

import (
	"strings"
	"time"
)

// SeenComment is a comment the poller has already looked at.
type SeenComment struct {
	CommentID string
	IssueID   string
}

// MarkSeen records comments so later polls do not report them again.
func (d *DB) MarkSeen(comments []SeenComment) error {
	if len(comments) == 0 {
		return nil
	}
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, c := range comments {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO seen_comments (comment_id, issue_id, seen_at) VALUES (?, ?, ?)`,
			c.CommentID, c.IssueID, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Seen returns which of ids are already recorded.
func (d *DB) Seen(ids []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return seen, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := d.db.Query(`SELECT comment_id FROM seen_comments WHERE comment_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seen[id] = true
	}
	return seen, rows.Err()
}

// SeenCount returns how many comments are recorded. Zero means the poller
// has never run against this database.
func (d *DB) SeenCount() int {
	var count int
	d.db.QueryRow(`SELECT COUNT(*) FROM seen_comments`).Scan(&count)
	return count
}
