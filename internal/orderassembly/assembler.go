// internal/orderassembly/assembler.go
package orderassembly

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orderbot-workers/internal/catalog"
	commonerrors "orderbot-workers/internal/common/errors"
	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/common/metrics"
	"orderbot-workers/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
)

const (
	dedupKeyFormat = "order-dedup:%s:%s"
	dedupTTL       = 24 * time.Hour

	uniqueViolation = pq.ErrorCode("23505")
)

var (
	// ErrInsufficientStock means stock ran out between validation and
	// commit. The conversation downgrades to a partial reply.
	ErrInsufficientStock = errors.New("INSUFFICIENT_STOCK")

	// ErrProductVanished means a validated product was removed or
	// disabled before commit.
	ErrProductVanished = errors.New("PRODUCT_NOT_FOUND")
)

// Assembler turns a fully validated extraction into a persisted order.
// Stock is decremented and the order inserted in one transaction, so a
// concurrent order for the last unit can never double-sell it.
type Assembler struct {
	db     *sql.DB
	store  *catalog.Store
	redis  *redis.Client
	logger logger.Logger
}

func NewAssembler(db *sql.DB, store *catalog.Store, rdb *redis.Client, log logger.Logger) *Assembler {
	return &Assembler{
		db:     db,
		store:  store,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"component": "orderassembly"}),
	}
}

// Assemble creates the order for msg, or returns the existing one when
// the message was already converted. The bool reports whether a new
// order was created by this call.
//
// Idempotency is layered: a redis SETNX short-circuits obvious
// redeliveries, and the unique constraint on orders.source_message_id
// is the authority when redis is cold or unavailable.
func (a *Assembler) Assemble(ctx context.Context, msg *models.IncomingMessage, result *models.ExtractionResult) (*models.Order, bool, error) {
	if !result.ReadyForOrder() {
		return nil, false, commonerrors.NewContractViolationError(
			fmt.Sprintf("extraction for message %s is not order-ready", msg.ID))
	}

	if existing := a.dedupFastPath(ctx, msg); existing != nil {
		return existing, false, nil
	}

	order := &models.Order{
		ID:              uuid.New().String(),
		TenantID:        msg.TenantID,
		CustomerPhone:   msg.CustomerPhone,
		SourceMessageID: msg.ID,
		Status:          models.OrderStatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	for _, p := range result.Products {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: p.ProductID,
			Name:      p.MatchedName,
			Quantity:  p.Quantity,
		})
	}

	created, err := a.persist(ctx, order)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent delivery of the same
			// message. The winner's order is the order.
			existing, lookupErr := a.store.OrderByMessageID(ctx, msg.TenantID, msg.ID)
			if lookupErr != nil {
				return nil, false, commonerrors.NewOrderPersistFailedError(lookupErr)
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	if created {
		a.store.InvalidateCatalog(ctx, msg.TenantID)
		metrics.OrdersCreated.WithLabelValues(msg.TenantID).Inc()
		a.logger.Info("order created", map[string]interface{}{
			"orderId":   order.ID,
			"tenantId":  order.TenantID,
			"messageId": msg.ID,
			"total":     order.Total,
			"items":     len(order.Items),
		})
	}

	return order, created, nil
}

func (a *Assembler) dedupFastPath(ctx context.Context, msg *models.IncomingMessage) *models.Order {
	if a.redis == nil {
		return nil
	}
	key := fmt.Sprintf(dedupKeyFormat, msg.TenantID, msg.ID)
	acquired, err := a.redis.SetNX(ctx, key, "1", dedupTTL).Result()
	if err != nil {
		// Redis down: fall through, the database constraint decides.
		a.logger.Warn("dedup fast path unavailable", map[string]interface{}{
			"messageId": msg.ID,
			"error":     err.Error(),
		})
		return nil
	}
	if acquired {
		return nil
	}

	existing, err := a.store.OrderByMessageID(ctx, msg.TenantID, msg.ID)
	if err != nil {
		// Marked but not persisted: a previous attempt died mid-flight.
		// Proceed and let the insert settle it.
		return nil
	}
	a.logger.Info("duplicate message, returning existing order", map[string]interface{}{
		"messageId": msg.ID,
		"orderId":   existing.ID,
	})
	return existing
}

// persist runs the stock decrement and order insert in one transaction.
// Prices are re-read under lock inside the transaction, so the snapshot
// stored on order_items can never drift from what was charged.
func (a *Assembler) persist(ctx context.Context, order *models.Order) (bool, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return false, commonerrors.NewDatabaseConnectionFailedError(err)
	}
	defer tx.Rollback()

	for i := range order.Items {
		item := &order.Items[i]

		var price float64
		var available, trackStock bool
		err := tx.QueryRowContext(ctx,
			`SELECT price, available, track_stock FROM products
			 WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
			item.ProductID, order.TenantID,
		).Scan(&price, &available, &trackStock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, fmt.Errorf("%w: %s", ErrProductVanished, item.Name)
			}
			return false, commonerrors.NewOrderPersistFailedError(err)
		}
		if !available {
			return false, fmt.Errorf("%w: %s", ErrProductVanished, item.Name)
		}
		item.UnitPrice = price

		if trackStock {
			res, err := tx.ExecContext(ctx,
				`UPDATE products SET stock = stock - $1, updated_at = NOW()
				 WHERE id = $2 AND stock >= $1`,
				item.Quantity, item.ProductID,
			)
			if err != nil {
				return false, commonerrors.NewOrderPersistFailedError(err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return false, commonerrors.NewOrderPersistFailedError(err)
			}
			if affected == 0 {
				return false, fmt.Errorf("%w: %s", ErrInsufficientStock, item.Name)
			}
		}
	}

	order.Total = order.ComputeTotal()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, tenant_id, customer_name, customer_phone, source_message_id, total, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		order.ID, order.TenantID, order.CustomerName, order.CustomerPhone,
		order.SourceMessageID, order.Total, order.Status, order.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, err
		}
		return false, commonerrors.NewOrderPersistFailedError(err)
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)`,
			order.ID, item.ProductID, item.Name, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return false, commonerrors.NewOrderPersistFailedError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, commonerrors.NewOrderPersistFailedError(err)
	}
	return true, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}
