package sqlite

import (
	"context"
	"fmt"
	"time"
)

// DeliveryRepo deduplicates webhook deliveries by their delivery id.
type DeliveryRepo struct {
	db *DB
}

func NewDeliveryRepo(db *DB) *DeliveryRepo {
	return &DeliveryRepo{db: db}
}

// MarkDelivered records id and reports whether it was seen for the first
// time. Redelivered webhooks return false.
func (r *DeliveryRepo) MarkDelivered(ctx context.Context, id, event string) (bool, error) {
	const query = `INSERT OR IGNORE INTO webhook_deliveries (delivery_id, event, received_at) VALUES (?, ?, ?)`
	res, err := r.db.Writer.ExecContext(ctx, query, id, event, formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("record delivery %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record delivery %s: %w", id, err)
	}
	return n == 1, nil
}

// Prune deletes deliveries received before cutoff.
func (r *DeliveryRepo) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM webhook_deliveries WHERE received_at < ?`
	res, err := r.db.Writer.ExecContext(ctx, query, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune deliveries: %w", err)
	}
	return res.RowsAffected()
}
