// Package stock holds the bookkeeping rules for moving units between the
// warehouse and delivery agents, and for reconciling an agent's counters
// against the movement history.
package stock

import (
	"go-ops-dashboard/internal/apperr"
	"go-ops-dashboard/internal/models"
)

// Levels are the counters a single movement can touch: the product's
// warehouse counters and one agent's counters for that product.
type Levels struct {
	Warehouse          int `json:"warehouse"`
	WarehouseDefective int `json:"warehouse_defective"`
	Held               int `json:"held"`
	Defective          int `json:"defective"`
	Missing            int `json:"missing"`
}

// Total is every unit tracked by these levels
func (l Levels) Total() int {
	return l.Warehouse + l.WarehouseDefective + l.Held + l.Defective + l.Missing
}

// AgentMoves are the movement types that require an agent
var AgentMoves = map[string]bool{
	models.MoveAssign:          true,
	models.MoveReturn:          true,
	models.MoveDefective:       true,
	models.MoveReturnDefective: true,
	models.MoveMissing:         true,
	models.MoveRecover:         true,
	models.MoveDispatch:        true,
	models.MoveRedeliver:       true,
}

// ManualAgentMoves can be requested directly; DISPATCH and REDELIVER are
// only produced by order transitions.
var ManualAgentMoves = map[string]bool{
	models.MoveAssign:          true,
	models.MoveReturn:          true,
	models.MoveDefective:       true,
	models.MoveReturnDefective: true,
	models.MoveMissing:         true,
	models.MoveRecover:         true,
}

// Apply returns the levels after moving qty units of kind. qty must be
// positive except for ADJUST, where it is a signed delta.
func Apply(l Levels, kind string, qty int) (Levels, error) {
	if kind != models.MoveAdjust && qty <= 0 {
		return l, apperr.Wrap(apperr.ErrInvalidInput, "quantity must be positive")
	}

	switch kind {
	case models.MoveRestock:
		l.Warehouse += qty
	case models.MoveAdjust:
		if qty == 0 {
			return l, apperr.Wrap(apperr.ErrInvalidInput, "adjustment cannot be zero")
		}
		if l.Warehouse+qty < 0 {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "adjustment would leave %d units in the warehouse", l.Warehouse+qty)
		}
		l.Warehouse += qty
	case models.MoveAssign:
		if l.Warehouse < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "warehouse holds %d units, cannot assign %d", l.Warehouse, qty)
		}
		l.Warehouse -= qty
		l.Held += qty
	case models.MoveReturn:
		if l.Held < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "agent holds %d units, cannot return %d", l.Held, qty)
		}
		l.Held -= qty
		l.Warehouse += qty
	case models.MoveDefective:
		if l.Held < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "agent holds %d units, cannot mark %d defective", l.Held, qty)
		}
		l.Held -= qty
		l.Defective += qty
	case models.MoveReturnDefective:
		if l.Defective < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "agent holds %d defective units, cannot return %d", l.Defective, qty)
		}
		l.Defective -= qty
		l.WarehouseDefective += qty
	case models.MoveMissing:
		if l.Held < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "agent holds %d units, cannot mark %d missing", l.Held, qty)
		}
		l.Held -= qty
		l.Missing += qty
	case models.MoveRecover:
		if l.Missing < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "only %d units are missing, cannot recover %d", l.Missing, qty)
		}
		l.Missing -= qty
		l.Held += qty
	case models.MoveDispatch:
		if l.Held < qty {
			return l, apperr.Wrap(apperr.ErrInsufficientStock, "agent holds %d units, order needs %d", l.Held, qty)
		}
		l.Held -= qty
	case models.MoveRedeliver:
		l.Held += qty
	default:
		return l, apperr.Wrap(apperr.ErrInvalidInput, "unknown movement type %q", kind)
	}
	return l, nil
}

// Counters are an agent's per-product counters
type Counters struct {
	Quantity  int `json:"quantity"`
	Defective int `json:"defective"`
	Missing   int `json:"missing"`
}

// ReconciliationRow compares one product's stored agent counters with the
// counters implied by its movement history.
type ReconciliationRow struct {
	ProductID         uint     `json:"product_id"`
	ProductName       string   `json:"product_name"`
	Assigned          int      `json:"assigned"`
	Returned          int      `json:"returned"`
	Dispatched        int      `json:"dispatched"` // net of redelivered units
	DefectiveMarked   int      `json:"defective_marked"`
	DefectiveReturned int      `json:"defective_returned"`
	MissingMarked     int      `json:"missing_marked"`
	Recovered         int      `json:"recovered"`
	Expected          Counters `json:"expected"`
	Actual            Counters `json:"actual"`
	Discrepancy       Counters `json:"discrepancy"` // actual - expected
	Balanced          bool     `json:"balanced"`
}

// Reconciliation is the full report for one agent
type Reconciliation struct {
	AgentID  uint                `json:"agent_id"`
	Rows     []ReconciliationRow `json:"rows"`
	Balanced bool                `json:"balanced"`
}

// Reconcile replays the agent's movements and compares the result with the
// stored counters. Products with history but no stored row are compared
// against zero; stored rows without history must themselves be zero.
func Reconcile(agentID uint, movements []models.StockMovement, held []models.AgentStock) Reconciliation {
	rows := make(map[uint]*ReconciliationRow)
	var order []uint
	row := func(productID uint) *ReconciliationRow {
		r, ok := rows[productID]
		if !ok {
			r = &ReconciliationRow{ProductID: productID}
			rows[productID] = r
			order = append(order, productID)
		}
		return r
	}

	for _, s := range held {
		r := row(s.ProductID)
		r.ProductName = s.Product.Name
		r.Actual = Counters{Quantity: s.Quantity, Defective: s.Defective, Missing: s.Missing}
	}

	for _, m := range movements {
		if m.AgentID == nil || *m.AgentID != agentID {
			continue
		}
		r := row(m.ProductID)
		switch m.Type {
		case models.MoveAssign:
			r.Assigned += m.Quantity
			r.Expected.Quantity += m.Quantity
		case models.MoveReturn:
			r.Returned += m.Quantity
			r.Expected.Quantity -= m.Quantity
		case models.MoveDefective:
			r.DefectiveMarked += m.Quantity
			r.Expected.Quantity -= m.Quantity
			r.Expected.Defective += m.Quantity
		case models.MoveReturnDefective:
			r.DefectiveReturned += m.Quantity
			r.Expected.Defective -= m.Quantity
		case models.MoveMissing:
			r.MissingMarked += m.Quantity
			r.Expected.Quantity -= m.Quantity
			r.Expected.Missing += m.Quantity
		case models.MoveRecover:
			r.Recovered += m.Quantity
			r.Expected.Missing -= m.Quantity
			r.Expected.Quantity += m.Quantity
		case models.MoveDispatch:
			r.Dispatched += m.Quantity
			r.Expected.Quantity -= m.Quantity
		case models.MoveRedeliver:
			r.Dispatched -= m.Quantity
			r.Expected.Quantity += m.Quantity
		}
	}

	report := Reconciliation{AgentID: agentID, Rows: make([]ReconciliationRow, 0, len(order)), Balanced: true}
	for _, id := range order {
		r := rows[id]
		r.Discrepancy = Counters{
			Quantity:  r.Actual.Quantity - r.Expected.Quantity,
			Defective: r.Actual.Defective - r.Expected.Defective,
			Missing:   r.Actual.Missing - r.Expected.Missing,
		}
		r.Balanced = r.Discrepancy == Counters{}
		if !r.Balanced {
			report.Balanced = false
		}
		report.Rows = append(report.Rows, *r)
	}
	return report
}
