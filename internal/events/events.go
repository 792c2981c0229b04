package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"vendas/backend/internal/domain"
)

type Type string

const (
	ProductCreated       Type = "product.created"
	ProductUpdated       Type = "product.updated"
	ProductDeleted       Type = "product.deleted"
	ProductStockAdjusted Type = "product.stock_adjusted"
	SaleRecorded         Type = "sale.recorded"
	SaleCancelled        Type = "sale.cancelled"
)

// Event is the envelope written to the sales topic. Exactly one of Product
// or Sale is set depending on Type.
type Event struct {
	EventID    string          `json:"event_id"`
	Type       Type            `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Product    *domain.Product `json:"product,omitempty"`
	Sale       *domain.Sale    `json:"sale,omitempty"`
	Delta      int             `json:"delta,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

func NewProductEvent(eventType Type, product domain.Product) Event {
	return Event{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Product:    &product,
	}
}

func NewSaleEvent(eventType Type, sale domain.Sale) Event {
	return Event{
		EventID:    uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Sale:       &sale,
	}
}

// ProductID is the partition key: all events of one product stay ordered.
func (e Event) ProductID() int64 {
	switch {
	case e.Sale != nil:
		return e.Sale.ProductID
	case e.Product != nil:
		return e.Product.ID
	default:
		return 0
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}
