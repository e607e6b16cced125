package kitchen

import (
	"time"

	"cafe-pos/models"
)

// SchemaVersion is bumped whenever an event's JSON shape changes.
const SchemaVersion = 1

// Topic is the single logical channel every kitchen display listens on.
const Topic = "kitchen_orders"

type Action string

const (
	ActionOrderCreated      Action = "order_created"
	ActionLineStatusChanged Action = "line_status_changed"
	ActionBulkStatusChanged Action = "bulk_status_changed"
	ActionOrderCompleted    Action = "order_completed"
)

// Event is the envelope delivered to displays. Every variant carries the
// current state of what it references (the full order, or the full line),
// so a display replaces its local copy instead of patching it.
type Event struct {
	Version   int               `json:"version"`
	Action    Action            `json:"action"`
	OrderID   uint              `json:"order_id"`
	LineID    *uint             `json:"line_id,omitempty"`
	Status    models.LineStatus `json:"status,omitempty"`
	Order     *models.Order     `json:"order,omitempty"`
	Line      *models.OrderLine `json:"line,omitempty"`
	EmittedAt time.Time         `json:"emitted_at"`
}

// OrderCreated announces an order arriving at the kitchen.
func OrderCreated(o *models.Order) Event {
	return Event{Version: SchemaVersion, Action: ActionOrderCreated, OrderID: o.ID, Order: o, EmittedAt: time.Now().UTC()}
}

// LineStatusChanged carries the line as it is after the change.
func LineStatusChanged(line *models.OrderLine) Event {
	id := line.ID
	return Event{
		Version:   SchemaVersion,
		Action:    ActionLineStatusChanged,
		OrderID:   line.OrderID,
		LineID:    &id,
		Status:    line.Status,
		Line:      line,
		EmittedAt: time.Now().UTC(),
	}
}

// BulkStatusChanged carries the whole order after every line was set to status.
func BulkStatusChanged(o *models.Order, status models.LineStatus) Event {
	return Event{Version: SchemaVersion, Action: ActionBulkStatusChanged, OrderID: o.ID, Status: status, Order: o, EmittedAt: time.Now().UTC()}
}

func OrderCompleted(o *models.Order) Event {
	return Event{Version: SchemaVersion, Action: ActionOrderCompleted, OrderID: o.ID, Order: o, EmittedAt: time.Now().UTC()}
}
