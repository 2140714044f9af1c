package cache

import (
	"database/sql"
	"time"
)

// Notification is a comment that arrived through the comment subscription.
type Notification struct {
	ID          int64
	CommentID   string
	IssueID     string
	IssueTitle  string
	AuthorLogin string
	BodyPreview string
	CreatedAt   time.Time
	Read        bool
}

// AddNotification inserts n unless its comment is already recorded.
// Reports whether a row was added.
func (d *DB) AddNotification(n Notification) (bool, error) {
	res, err := d.db.Exec(`INSERT OR IGNORE INTO notifications
		(comment_id, issue_id, issue_title, author_login, body_preview, created_at, read)
		VALUES (?, ?, ?, ?, ?, ?, 0)`,
		n.CommentID, n.IssueID, nullStr(n.IssueTitle), nullStr(n.AuthorLogin),
		nullStr(n.BodyPreview), n.CreatedAt.Unix())
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListNotifications returns the newest notifications first.
func (d *DB) ListNotifications(limit int) ([]Notification, error) {
	rows, err := d.db.Query(`SELECT id, comment_id, issue_id, issue_title, author_login,
		body_preview, created_at, read
		FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Notification
	for rows.Next() {
		var n Notification
		var title, author, preview sql.NullString
		var createdAt int64
		var read int
		if err := rows.Scan(&n.ID, &n.CommentID, &n.IssueID, &title, &author, &preview, &createdAt, &read); err != nil {
			return nil, err
		}
		n.IssueTitle = title.String
		n.AuthorLogin = author.String
		n.BodyPreview = preview.String
		n.CreatedAt = time.Unix(createdAt, 0)
		n.Read = read != 0
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkRead marks one notification read.
func (d *DB) MarkRead(id int64) error {
	_, err := d.db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
	return err
}

// MarkAllRead marks every notification read.
func (d *DB) MarkAllRead() error {
	_, err := d.db.Exec(`UPDATE notifications SET read = 1 WHERE read = 0`)
	return err
}

// UnreadNotificationCount returns the count of unread notifications.
func (d *DB) UnreadNotificationCount() int {
	var count int
	d.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE read = 0`).Scan(&count)
	return count
}
