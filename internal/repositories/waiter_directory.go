package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"restaurant-chat/internal/models"
)

// WaiterDirectory resolves waiter ids owned by the staff directory.
type WaiterDirectory interface {
	FindWaiter(ctx context.Context, waiterID string) (models.Waiter, error)
}

// WaiterRepo reads waiters from the shared database.
type WaiterRepo struct {
	db *sqlx.DB
}

func NewWaiterRepo(db *sqlx.DB) *WaiterRepo {
	return &WaiterRepo{db: db}
}

// FindWaiter returns ErrWaiterNotFound when no row matches.
func (r *WaiterRepo) FindWaiter(ctx context.Context, waiterID string) (models.Waiter, error) {
	var w models.Waiter
	err := r.db.GetContext(ctx, &w, `SELECT id, name, is_active FROM waiters WHERE id=$1`, waiterID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Waiter{}, ErrWaiterNotFound
	}
	return w, err
}
