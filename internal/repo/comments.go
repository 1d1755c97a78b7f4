package repo

import (
	"context"
	"database/sql"

	"opsboard/internal/domain"
)

func (r Repo) InsertComment(ctx context.Context, tx *sql.Tx, c domain.Comment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO comments(id,request_id,user_id,content,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.RequestID, c.UserID, c.Content, c.CreatedAt, c.UpdatedAt)
	return err
}

// GetCommentScoped resolves a comment through its resource request's project.
// The join keeps a valid comment id under the wrong project or request from
// resolving.
func (r Repo) GetCommentScoped(ctx context.Context, projectID, requestID, commentID string) (domain.Comment, error) {
	var c domain.Comment
	err := r.DB.QueryRowContext(ctx, `SELECT c.id, c.request_id, c.user_id, c.content, c.created_at, c.updated_at
FROM comments c
JOIN resource_requests r ON r.id = c.request_id
WHERE c.id=? AND c.request_id=? AND r.project_id=?`, commentID, requestID, projectID).
		Scan(&c.ID, &c.RequestID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) UpdateCommentContent(ctx context.Context, tx *sql.Tx, commentID, content, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE comments SET content=?, updated_at=? WHERE id=?`, content, now, commentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteComment(ctx context.Context, tx *sql.Tx, commentID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id=?`, commentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListComments(ctx context.Context, requestID string) ([]domain.Comment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,request_id,user_id,content,created_at,updated_at FROM comments WHERE request_id=? ORDER BY created_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		if err := rows.Scan(&c.ID, &c.RequestID, &c.UserID, &c.Content, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
