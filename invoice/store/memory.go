// Package store provides RecordStore implementations.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/invoicepro/invoice"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	invoices []invoice.Invoice
	numbers  map[numberKey]bool

	// Now stamps CreatedAt on inserts that don't carry one.
	Now func() time.Time
}

type numberKey struct {
	Owner         string
	ClientRef     string
	InvoiceNumber string
}

func NewMemory() *Memory {
	return &Memory{
		numbers: make(map[numberKey]bool),
		Now:     time.Now,
	}
}

// Insert adds a record, enforcing (owner, client, invoice number) uniqueness.
func (m *Memory) Insert(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(inv)
}

func (m *Memory) insertLocked(inv invoice.Invoice) (invoice.Invoice, error) {
	k := keyOf(inv)
	if inv.InvoiceNumber != "" && m.numbers[k] {
		return invoice.Invoice{}, invoice.ErrDuplicateInvoiceNumber
	}
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = m.Now().UTC()
	}
	inv = clone(inv)
	m.invoices = append(m.invoices, inv)
	if inv.InvoiceNumber != "" {
		m.numbers[k] = true
	}
	return clone(inv), nil
}

func (m *Memory) Find(_ context.Context, filter invoice.Filter) ([]invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(filter), nil
}

func (m *Memory) findLocked(filter invoice.Filter) []invoice.Invoice {
	var result []invoice.Invoice
	for _, inv := range m.invoices {
		if filter.Matches(inv) {
			result = append(result, clone(inv))
		}
	}
	return result
}

func (m *Memory) FindOne(_ context.Context, filter invoice.Filter, sort invoice.Sort) (*invoice.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOneLocked(filter, sort), nil
}

func (m *Memory) findOneLocked(filter invoice.Filter, sort invoice.Sort) *invoice.Invoice {
	var best *invoice.Invoice
	for i := range m.invoices {
		inv := m.invoices[i]
		if !filter.Matches(inv) {
			continue
		}
		// Strict Less keeps the earliest-inserted record among ties.
		if best == nil || sort.Less(inv, *best) {
			best = &m.invoices[i]
		}
	}
	if best == nil {
		return nil
	}
	out := clone(*best)
	return &out
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.invoices)
}

func keyOf(inv invoice.Invoice) numberKey {
	return numberKey{Owner: inv.Owner, ClientRef: inv.ClientRef, InvoiceNumber: inv.InvoiceNumber}
}

func clone(inv invoice.Invoice) invoice.Invoice {
	inv.Items = slices.Clone(inv.Items)
	if inv.RecurringEndDate != nil {
		d := *inv.RecurringEndDate
		inv.RecurringEndDate = &d
	}
	if inv.DueDate != nil {
		d := *inv.DueDate
		inv.DueDate = &d
	}
	return inv
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(invoice.RecordStore) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	numbers := make(map[numberKey]bool, len(tm.numbers))
	for k, v := range tm.numbers {
		numbers[k] = v
	}
	return memorySnapshot{invoices: slices.Clone(tm.invoices), numbers: numbers}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.invoices = s.invoices
	tm.numbers = s.numbers
}

type memorySnapshot struct {
	invoices []invoice.Invoice
	numbers  map[numberKey]bool
}

// txMemoryView operates on the parent while its lock is held by WithTx.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Find(_ context.Context, filter invoice.Filter) ([]invoice.Invoice, error) {
	return tv.parent.findLocked(filter), nil
}

func (tv *txMemoryView) FindOne(_ context.Context, filter invoice.Filter, sort invoice.Sort) (*invoice.Invoice, error) {
	return tv.parent.findOneLocked(filter, sort), nil
}

func (tv *txMemoryView) Insert(_ context.Context, inv invoice.Invoice) (invoice.Invoice, error) {
	return tv.parent.insertLocked(inv)
}
