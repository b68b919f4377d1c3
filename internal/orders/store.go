package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lotuscatalog/curator/pkg/database"
	"github.com/lotuscatalog/curator/pkg/logging"
)

// Order statuses.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var statuses = []string{StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s string) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// ErrNotFound is returned when an order does not exist.
var ErrNotFound = errors.New("order not found")

// Order is a donation request placed by a site visitor.
type Order struct {
	ID              string    `json:"id"`
	Status          string    `json:"status"`
	RecipientName   string    `json:"recipient_name"`
	Email           string    `json:"email,omitempty"`
	TrackingNumber  string    `json:"tracking_number,omitempty"`
	AdminNotes      string    `json:"admin_notes,omitempty"`
	OverrideMonthly bool      `json:"override_monthly"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// UpdateParams holds optional fields for a partial order update.
type UpdateParams struct {
	Status          *string
	TrackingNumber  *string
	AdminNotes      *string
	OverrideMonthly *bool
}

// Store provides access to orders.
type Store struct {
	db     database.PostgresConn
	logger logging.Logger
}

func NewStore(db database.PostgresConn, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const orderColumns = `id, status, recipient_name, email, tracking_number, admin_notes, override_monthly, created_at, updated_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*Order, error) {
	var o Order
	var email, tracking, notes sql.NullString
	err := row.Scan(&o.ID, &o.Status, &o.RecipientName, &email, &tracking, &notes,
		&o.OverrideMonthly, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Email = email.String
	o.TrackingNumber = tracking.String
	o.AdminNotes = notes.String
	return &o, nil
}

// GetOrder fetches one order by id.
func (s *Store) GetOrder(ctx context.Context, id string) (*Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE id = $1"
	order, err := scanOrder(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// UpdateOrder applies a partial update and returns the stored row.
func (s *Store) UpdateOrder(ctx context.Context, id string, params UpdateParams) (*Order, error) {
	sets := []string{}
	args := []interface{}{}
	idx := 1

	if params.Status != nil {
		if !ValidStatus(*params.Status) {
			return nil, fmt.Errorf("invalid order status %q", *params.Status)
		}
		sets = append(sets, fmt.Sprintf("status = $%d", idx))
		args = append(args, *params.Status)
		idx++
	}
	if params.TrackingNumber != nil {
		sets = append(sets, fmt.Sprintf("tracking_number = $%d", idx))
		args = append(args, *params.TrackingNumber)
		idx++
	}
	if params.AdminNotes != nil {
		sets = append(sets, fmt.Sprintf("admin_notes = $%d", idx))
		args = append(args, *params.AdminNotes)
		idx++
	}
	if params.OverrideMonthly != nil {
		sets = append(sets, fmt.Sprintf("override_monthly = $%d", idx))
		args = append(args, *params.OverrideMonthly)
		idx++
	}

	if len(sets) == 0 {
		return s.GetOrder(ctx, id)
	}

	sets = append(sets, "updated_at = NOW()")
	query := fmt.Sprintf("UPDATE orders SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), idx, orderColumns)
	args = append(args, id)

	order, err := scanOrder(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	return order, nil
}

// SearchOrders lists orders filtered by status and/or a free query matched
// against order id and tracking number, newest first.
func (s *Store) SearchOrders(ctx context.Context, status, q string, limit int) ([]Order, error) {
	where := []string{}
	args := []interface{}{}
	idx := 1

	if status != "" {
		if !ValidStatus(status) {
			return nil, fmt.Errorf("invalid order status %q", status)
		}
		where = append(where, fmt.Sprintf("status = $%d", idx))
		args = append(args, status)
		idx++
	}
	if q != "" {
		where = append(where, fmt.Sprintf("(id::text ILIKE $%d OR tracking_number ILIKE $%d OR recipient_name ILIKE $%d)", idx, idx, idx))
		args = append(args, "%"+q+"%")
		idx++
	}

	query := "SELECT " + orderColumns + " FROM orders"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"

	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d", idx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search orders: %w", err)
	}
	defer rows.Close()

	var result []Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("search orders: scan: %w", err)
		}
		result = append(result, *order)
	}
	return result, rows.Err()
}
