// internal/catalog/store.go
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"orderbot-workers/internal/common/logger"
	"orderbot-workers/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	catalogCacheKey = "catalog:%s"
	catalogCacheTTL = 2 * time.Minute
)

var ErrOrderNotFound = errors.New("order not found")

// Store gives the pipeline read/write access to products, conversation
// messages and orders. Products are mutated here only through the
// assembler's conditional stock decrement.
type Store struct {
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func NewStore(db *sql.DB, rdb *redis.Client, log logger.Logger) *Store {
	return &Store{
		db:     db,
		redis:  rdb,
		logger: log.WithFields(map[string]interface{}{"component": "catalog"}),
	}
}

// ProductsByTenant returns the tenant's full catalog in name order. A
// short-lived redis cache sits in front of the table; the assembler
// invalidates it after every stock decrement.
func (s *Store) ProductsByTenant(ctx context.Context, tenantID string) ([]models.Product, error) {
	cacheKey := fmt.Sprintf(catalogCacheKey, tenantID)
	if s.redis != nil {
		if val, err := s.redis.Get(ctx, cacheKey).Result(); err == nil {
			var products []models.Product
			if err := json.Unmarshal([]byte(val), &products); err == nil {
				return products, nil
			}
		}
	}

	query := `SELECT id, tenant_id, name, COALESCE(description, ''), price, COALESCE(sku, ''),
	                 available, COALESCE(stock, 0), COALESCE(min_stock, 0), track_stock, updated_at
	          FROM products WHERE tenant_id = $1 ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Price, &p.SKU,
			&p.Available, &p.Stock, &p.MinStock, &p.TrackStock, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}

	if s.redis != nil {
		if data, err := json.Marshal(products); err == nil {
			s.redis.Set(ctx, cacheKey, data, catalogCacheTTL)
		}
	}

	return products, nil
}

// InvalidateCatalog drops the cached catalog after stock changes.
func (s *Store) InvalidateCatalog(ctx context.Context, tenantID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, fmt.Sprintf(catalogCacheKey, tenantID)).Err(); err != nil {
		s.logger.Warn("catalog cache invalidation failed", map[string]interface{}{
			"tenantId": tenantID,
			"error":    err.Error(),
		})
	}
}

// RecentMessages returns the last messages exchanged with a customer in
// chronological order, for classifier context.
func (s *Store) RecentMessages(ctx context.Context, tenantID, customerPhone string, limit int) ([]models.IncomingMessage, error) {
	query := `SELECT id, tenant_id, customer_phone, body, direction, COALESCE(order_id, ''), created_at
	          FROM messages
	          WHERE tenant_id = $1 AND customer_phone = $2
	          ORDER BY created_at DESC LIMIT $3`
	rows, err := s.db.QueryContext(ctx, query, tenantID, customerPhone, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []models.IncomingMessage
	for rows.Next() {
		var m models.IncomingMessage
		if err := rows.Scan(&m.ID, &m.TenantID, &m.CustomerPhone, &m.Body, &m.Direction, &m.OrderID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AttachNLPMetadata stores the extraction summary on the inbound message.
// This is the only mutation allowed on a persisted message.
func (s *Store) AttachNLPMetadata(ctx context.Context, messageID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET nlp_metadata = $2 WHERE id = $1`,
		messageID, blob,
	)
	if err != nil {
		return fmt.Errorf("attach nlp metadata: %w", err)
	}
	return nil
}

// SaveOutboundMessage persists the reply as an outbound message row.
func (s *Store) SaveOutboundMessage(ctx context.Context, msg *models.IncomingMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Direction = models.DirectionOutbound

	var orderID interface{}
	if msg.OrderID != "" {
		orderID = msg.OrderID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, tenant_id, customer_phone, body, direction, order_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		msg.ID, msg.TenantID, msg.CustomerPhone, msg.Body, msg.Direction, orderID, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbound message: %w", err)
	}
	return nil
}

// OrderByMessageID looks up an order previously created from the given
// inbound message. Used as the redelivery dedup check.
func (s *Store) OrderByMessageID(ctx context.Context, tenantID, messageID string) (*models.Order, error) {
	var o models.Order
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, COALESCE(customer_name, ''), customer_phone, source_message_id, total, status, created_at
		 FROM orders WHERE tenant_id = $1 AND source_message_id = $2`,
		tenantID, messageID,
	).Scan(&o.ID, &o.TenantID, &o.CustomerName, &o.CustomerPhone, &o.SourceMessageID, &o.Total, &o.Status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("query order by message: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT product_id, name, quantity, unit_price FROM order_items WHERE order_id = $1`,
		o.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it models.OrderItem
		if err := rows.Scan(&it.ProductID, &it.Name, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return &o, nil
}
