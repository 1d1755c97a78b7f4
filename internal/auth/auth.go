package auth

import (
	"context"
	"database/sql"
	"fmt"

	"opsboard/internal/domain"
)

// ForbiddenError indicates the actor may not perform an action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// Elevated reports whether a role bypasses ownership checks.
func Elevated(role string) bool {
	return role == domain.RoleSuperAdmin || role == domain.RoleAdmin
}

// CanModerateComment applies the moderation rule: the author may always edit
// or delete their own comment; anyone else needs an elevated role.
func CanModerateComment(userID, role string, c domain.Comment) bool {
	if c.UserID == userID {
		return true
	}
	return Elevated(role)
}

// Service answers membership questions backed by SQL.
type Service struct {
	DB *sql.DB
}

func (s Service) IsMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID string) (bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT 1 FROM project_members WHERE project_id=? AND user_id=? LIMIT 1`, projectID, userID)
	var n int
	err := row.Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// RequireMemberTx returns ForbiddenError unless the user belongs to the
// project or holds an elevated role.
func (s Service) RequireMemberTx(ctx context.Context, tx *sql.Tx, projectID, userID, role, action string) error {
	if Elevated(role) {
		return nil
	}
	ok, err := s.IsMemberTx(ctx, tx, projectID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ForbiddenError{Action: action}
	}
	return nil
}
