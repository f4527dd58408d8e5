package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Avanquish/DoughNation-sub000/internal/domain"
)

type InventoryRepo struct {
	db *sql.DB
}

func NewInventoryRepo(db *sql.DB) *InventoryRepo {
	return &InventoryRepo{db: db}
}

var _ domain.InventoryRepository = (*InventoryRepo)(nil)

const requestColumns = `id, inventory_id, requester_id, message_id, quantity, status, accepted_by, created_at`

func scanRequest(s rowScanner) (*domain.DonationRequest, error) {
	req := &domain.DonationRequest{}
	var status string
	if err := s.Scan(
		&req.ID, &req.InventoryID, &req.RequesterID, &req.MessageID,
		&req.Quantity, &status, &req.AcceptedBy, &req.CreatedAt,
	); err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	req.CreatedAt = req.CreatedAt.UTC()
	return req, nil
}

func (r *InventoryRepo) CreateItem(ctx context.Context, item *domain.InventoryItem) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory_items (id, owner_id, product_name, remaining_quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.OwnerID, item.ProductName, item.RemainingQuantity, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert inventory item: %w", err)
	}
	return nil
}

func (r *InventoryRepo) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	item := &domain.InventoryItem{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, product_name, remaining_quantity, created_at
		FROM inventory_items WHERE id = $1
	`, id).Scan(&item.ID, &item.OwnerID, &item.ProductName, &item.RemainingQuantity, &item.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get inventory item: %w", err)
	}
	return item, nil
}

func (r *InventoryRepo) CreateRequest(ctx context.Context, req *domain.DonationRequest) error {
	return insertRequest(ctx, r.db, req)
}

// CreateRequestWithMessage stores a donation request and the card message
// carrying it in one transaction.
func (r *InventoryRepo) CreateRequestWithMessage(ctx context.Context, req *domain.DonationRequest, msg *domain.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin request tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	if err := insertRequest(ctx, tx, req); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit request tx: %w", err)
	}
	return nil
}

func insertRequest(ctx context.Context, ex execer, req *domain.DonationRequest) error {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = domain.StatusPending
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO donation_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, req.ID, req.InventoryID, req.RequesterID, req.MessageID, req.Quantity, string(req.Status), req.AcceptedBy, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert donation request: %w", err)
	}
	return nil
}

func (r *InventoryRepo) GetRequest(ctx context.Context, id string) (*domain.DonationRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM donation_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donation request: %w", err)
	}
	return req, nil
}

func (r *InventoryRepo) ListRequests(ctx context.Context, inventoryID string) ([]*domain.DonationRequest, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+requestColumns+` FROM donation_requests
		WHERE inventory_id = $1
		ORDER BY created_at ASC, id ASC
	`, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("list donation requests: %w", err)
	}
	defer rows.Close()

	var res []*domain.DonationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan donation request: %w", err)
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

// Accept locks the inventory row so concurrent accepts on the same item
// are decided one after the other.
func (r *InventoryRepo) Accept(ctx context.Context, requestID, actorID string) (*domain.DonationRequest, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin accept tx: %w", err)
	}
	defer tx.Rollback()

	req, err := scanRequest(tx.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM donation_requests WHERE id = $1`, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get donation request: %w", err)
	}

	var owner string
	var remaining int
	if err := tx.QueryRowContext(ctx, `
		SELECT owner_id, remaining_quantity FROM inventory_items WHERE id = $1 FOR UPDATE
	`, req.InventoryID).Scan(&owner, &remaining); err != nil {
		return nil, fmt.Errorf("lock inventory item: %w", err)
	}
	if owner != actorID {
		return nil, domain.ErrForbidden
	}

	// Re-read under the lock: a competing accept may have committed while
	// this transaction waited.
	var status string
	var accepted int
	if err := tx.QueryRowContext(ctx, `
		SELECT (SELECT status FROM donation_requests WHERE id = $1),
		       (SELECT COUNT(*) FROM donation_requests WHERE inventory_id = $2 AND status = 'accepted')
	`, requestID, req.InventoryID).Scan(&status, &accepted); err != nil {
		return nil, fmt.Errorf("check donation request: %w", err)
	}
	if domain.RequestStatus(status) != domain.StatusPending || remaining <= 0 || accepted > 0 {
		return nil, domain.ErrConflict
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE donation_requests SET status = 'accepted', accepted_by = $1 WHERE id = $2
	`, actorID, requestID); err != nil {
		return nil, fmt.Errorf("accept request: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE inventory_items SET remaining_quantity = GREATEST(remaining_quantity - $1, 0) WHERE id = $2
	`, req.Quantity, req.InventoryID); err != nil {
		return nil, fmt.Errorf("decrement inventory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE donation_requests SET status = 'canceled'
		WHERE inventory_id = $1 AND id <> $2 AND status = 'pending'
	`, req.InventoryID, requestID); err != nil {
		return nil, fmt.Errorf("cancel competing requests: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit accept: %w", err)
	}

	req.Status = domain.StatusAccepted
	req.AcceptedBy = &actorID
	return req, nil
}

func (r *InventoryRepo) Cancel(ctx context.Context, requestID string) (*domain.DonationRequest, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `
		UPDATE donation_requests SET status = 'canceled'
		WHERE id = $1 AND status = 'pending'
		RETURNING `+requestColumns, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetRequest(ctx, requestID); getErr != nil {
			return nil, getErr
		}
		return nil, domain.ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("cancel request: %w", err)
	}
	return req, nil
}
