package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/starkville/storefront/internal/domain/transaction"
)

// AuditRecord is one row of the transaction audit log.
type AuditRecord struct {
	ID         int64
	StreamID   string
	CheckoutID string
	Status     transaction.Status
	OrderType  transaction.OrderType
	Phone      string
	Amount     float64
	ResultCode *int
	ResultDesc string
	Payload    json.RawMessage
	RecordedAt time.Time
}

// AuditRepository appends relayed transaction events to PostgreSQL and
// records merch fulfilment.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

func (r *AuditRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// Append stores event once per stream message ID; redelivered messages are
// ignored.
func (r *AuditRepository) Append(ctx context.Context, streamID string, event transaction.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO transaction_events
		   (stream_id, checkout_id, status, order_type, phone, amount, result_code, result_desc, payload)
		 VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
		 ON CONFLICT (stream_id) DO NOTHING`,
		streamID, event.CheckoutID, string(event.Status), string(event.Type), event.Phone,
		amountToNumeric(event.Amount), event.ResultCode, event.ResultDesc, payload,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

// RecordFulfilment marks a paid merch order for dispatch. It reports false
// when the order was already recorded.
func (r *AuditRepository) RecordFulfilment(ctx context.Context, event transaction.Event) (bool, error) {
	items, err := json.Marshal(event.Items)
	if err != nil {
		return false, fmt.Errorf("marshal items: %w", err)
	}

	tag, err := r.db(ctx).Exec(ctx,
		`INSERT INTO merch_fulfilments (checkout_id, phone, items, amount)
		 VALUES ($1, $2, $3, $4::numeric)
		 ON CONFLICT (checkout_id) DO NOTHING`,
		event.CheckoutID, event.Phone, items, amountToNumeric(event.Amount),
	)
	if err != nil {
		return false, fmt.Errorf("record fulfilment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByCheckout returns the audit trail of one transaction, oldest first.
func (r *AuditRepository) ListByCheckout(ctx context.Context, checkoutID string) ([]AuditRecord, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, stream_id, checkout_id, status, order_type, phone, amount::text,
		        result_code, result_desc, payload, recorded_at
		 FROM transaction_events WHERE checkout_id = $1 ORDER BY id`, checkoutID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var records []AuditRecord
	for rows.Next() {
		var (
			rec       AuditRecord
			status    string
			orderType string
			amount    string
		)
		if err := rows.Scan(
			&rec.ID, &rec.StreamID, &rec.CheckoutID, &status, &orderType, &rec.Phone, &amount,
			&rec.ResultCode, &rec.ResultDesc, &rec.Payload, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		rec.Status = transaction.Status(status)
		rec.OrderType = transaction.OrderType(orderType)
		if rec.Amount, err = numericToAmount(amount); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
