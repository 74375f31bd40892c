package dbrepository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"payconnect/internal/payconnect/data"
	"payconnect/pkg/logging"
)

type DBStorage interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) (pgx.Row, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryValue(ctx context.Context, query string, args []any, dest []any) error
}

// DBRepository stores orders in PostgreSQL. Unlike Airtable it can make
// the notification claim and status changes conditional in SQL.
type DBRepository struct {
	storage DBStorage
	logger  *logging.ZapLogger
}

func New(storage DBStorage, logger *logging.ZapLogger) *DBRepository {
	return &DBRepository{
		storage: storage,
		logger:  logger,
	}
}

//go:embed sql/insert_order.sql
var insertOrderQuery string

func (db *DBRepository) InsertOrder(ctx context.Context, order *data.Order) error {
	var (
		recordID  string
		createdAt time.Time
	)
	err := db.storage.QueryValue(
		ctx,
		insertOrderQuery,
		[]any{
			order.OrderID,
			order.IdempotencyKey,
			order.Email,
			order.CustomerPhone,
			order.RecipientNumber,
			order.DataPlan,
			string(order.Network),
			order.Amount.String(),
			string(order.Status),
		},
		[]any{&recordID, &createdAt},
	)
	if err != nil {
		return handleSQLError(err)
	}
	order.RecordID = recordID
	order.CreatedAt = createdAt
	return nil
}

//go:embed sql/select_order_by_order_id.sql
var selectOrderByOrderIDQuery string

func (db *DBRepository) GetOrderByOrderID(ctx context.Context, orderID string) (data.Order, error) {
	db.logger.DebugCtx(ctx, "getting order", zap.String("orderId", orderID))
	return db.selectOrder(ctx, selectOrderByOrderIDQuery, orderID)
}

//go:embed sql/select_order_by_idempotency_key.sql
var selectOrderByIdempotencyKeyQuery string

func (db *DBRepository) GetOrderByIdempotencyKey(ctx context.Context, key string) (data.Order, error) {
	return db.selectOrder(ctx, selectOrderByIdempotencyKeyQuery, key)
}

//go:embed sql/select_pending_orders.sql
var selectPendingOrdersQuery string

func (db *DBRepository) GetPendingOrders(ctx context.Context, limit int) ([]data.Order, error) {
	rows, err := db.storage.Query(ctx, selectPendingOrdersQuery, limit)
	if err != nil {
		return nil, handleSQLError(err)
	}
	defer rows.Close()

	result := make([]data.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, handleSQLError(err)
		}
		result = append(result, order)
	}
	if err = rows.Err(); err != nil {
		return nil, handleSQLError(err)
	}
	return result, nil
}

//go:embed sql/claim_notification.sql
var claimNotificationQuery string

func (db *DBRepository) ClaimNotification(ctx context.Context, order data.Order) (bool, error) {
	tag, err := db.storage.Exec(ctx, claimNotificationQuery, order.OrderID)
	if err != nil {
		return false, handleSQLError(err)
	}
	return tag.RowsAffected() == 1, nil
}

//go:embed sql/release_notification.sql
var releaseNotificationQuery string

func (db *DBRepository) ReleaseNotification(ctx context.Context, order data.Order) error {
	return db.execForOrder(ctx, releaseNotificationQuery, order.OrderID)
}

//go:embed sql/append_response_log.sql
var appendResponseLogQuery string

func (db *DBRepository) AppendResponseLog(ctx context.Context, order data.Order, entry string) error {
	return db.execForOrder(ctx, appendResponseLogQuery, order.OrderID, entry)
}

//go:embed sql/update_provider_response.sql
var updateProviderResponseQuery string

func (db *DBRepository) SetProviderResponse(ctx context.Context, order data.Order, reference string, entry string) error {
	return db.execForOrder(ctx, updateProviderResponseQuery, order.OrderID, reference, entry)
}

//go:embed sql/update_order_status.sql
var updateOrderStatusQuery string

// SetOrderStatus only moves pending orders; a terminal status is left as is.
func (db *DBRepository) SetOrderStatus(ctx context.Context, order data.Order, status data.Status) error {
	tag, err := db.storage.Exec(ctx, updateOrderStatusQuery, order.OrderID, string(status))
	if err != nil {
		return handleSQLError(err)
	}
	if tag.RowsAffected() == 0 {
		db.logger.DebugCtx(
			ctx,
			"order status left unchanged",
			zap.String("orderId", order.OrderID),
			zap.String("status", string(status)),
		)
	}
	return nil
}

func (db *DBRepository) execForOrder(ctx context.Context, query string, orderID string, args ...any) error {
	tag, err := db.storage.Exec(ctx, query, append([]any{orderID}, args...)...)
	if err != nil {
		return handleSQLError(err)
	}
	if tag.RowsAffected() == 0 {
		return data.ErrOrderNotFound
	}
	return nil
}

func (db *DBRepository) selectOrder(ctx context.Context, query string, arg string) (data.Order, error) {
	row, err := db.storage.QueryRow(ctx, query, arg)
	if err != nil {
		return data.Order{}, handleSQLError(err)
	}
	order, err := scanOrder(row)
	if err != nil {
		return data.Order{}, handleSQLError(err)
	}
	return order, nil
}

func scanOrder(row pgx.Row) (data.Order, error) {
	var (
		order   data.Order
		network string
		amount  string
		status  string
	)
	err := row.Scan(
		&order.RecordID,
		&order.OrderID,
		&order.IdempotencyKey,
		&order.Email,
		&order.CustomerPhone,
		&order.RecipientNumber,
		&order.DataPlan,
		&network,
		&amount,
		&status,
		&order.ProviderReference,
		&order.NotificationSent,
		&order.ResponseLog,
		&order.CreatedAt,
	)
	if err != nil {
		return data.Order{}, err
	}
	order.Network = data.Network(network)
	order.Status = data.Status(status)
	order.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return data.Order{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return order, nil
}

func handleSQLError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return data.ErrOrderNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return data.ErrUniqueConstraintViolation
		}
	}
	return err
}
