package cost

import (
	"context"
	"sort"
	"sync"
)

// Accountant consumes the cost of successful operations
type Accountant interface {
	// Charge records that tenant spent cost on operation
	Charge(ctx context.Context, tenant string, operation string, cost int64)
}

// Discard is an Accountant that drops every charge
var Discard Accountant = discard{}

type discard struct{}

func (discard) Charge(ctx context.Context, tenant string, operation string, cost int64) {
}

var _ Accountant = (*Ledger)(nil)

// Ledger accumulates charges per tenant in memory.
// It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]int64
}

// NewLedger creates an empty Ledger
func NewLedger() *Ledger {
	return &Ledger{balances: map[string]int64{}}
}

// Charge implements Accountant.Charge. Balances
// saturate at math.MaxInt64.
func (ledger *Ledger) Charge(ctx context.Context, tenant string, operation string, cost int64) {
	if cost <= 0 {
		return
	}

	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	ledger.balances[tenant] = add(ledger.balances[tenant], cost)
}

// Balance returns the total charged to tenant
func (ledger *Ledger) Balance(tenant string) int64 {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	return ledger.balances[tenant]
}

// Tenants lists the tenants that have been charged in
// ascending order
func (ledger *Ledger) Tenants() []string {
	ledger.mu.Lock()
	defer ledger.mu.Unlock()

	tenants := make([]string, 0, len(ledger.balances))

	for tenant := range ledger.balances {
		tenants = append(tenants, tenant)
	}

	sort.Strings(tenants)

	return tenants
}
