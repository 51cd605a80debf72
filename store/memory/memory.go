// Package memory provides an in-memory maintenance.Source (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/society/dues-engine/generic"
	"github.com/society/dues-engine/maintenance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	members     map[maintenance.UserID]maintenance.Member
	banned      map[maintenance.UserID]bool
	payments    []maintenance.Payment // ordered by payment date, then insertion
	idempotency map[string]bool
}

var _ maintenance.Source = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		members:     make(map[maintenance.UserID]maintenance.Member),
		banned:      make(map[maintenance.UserID]bool),
		idempotency: make(map[string]bool),
	}
}

// SaveMember inserts or replaces a member. The ban flag is kept.
func (m *Memory) SaveMember(_ context.Context, member maintenance.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[member.UserID] = member
	return nil
}

// SetBanned bans or reinstates a member.
func (m *Memory) SetBanned(_ context.Context, id maintenance.UserID, banned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[id]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrMemberNotFound, id)
	}
	m.banned[id] = banned
	return nil
}

// SavePayment appends a payment. Append-only.
func (m *Memory) SavePayment(_ context.Context, p maintenance.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.members[p.UserID]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrMemberNotFound, p.UserID)
	}
	if p.IdempotencyKey != "" && m.idempotency[p.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}

	// Insert after every payment on or before the same date.
	i := sort.Search(len(m.payments), func(i int) bool {
		return m.payments[i].PaymentDate.After(p.PaymentDate)
	})
	m.payments = append(m.payments, maintenance.Payment{})
	copy(m.payments[i+1:], m.payments[i:])
	m.payments[i] = p

	if p.IdempotencyKey != "" {
		m.idempotency[p.IdempotencyKey] = true
	}
	return nil
}

// ListPaymentPeriods returns the category's payments joined with member
// identity, in payment order. Banned members are included.
func (m *Memory) ListPaymentPeriods(_ context.Context, categoryID int64) ([]maintenance.PaymentPeriod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []maintenance.PaymentPeriod
	for _, p := range m.payments {
		if p.CategoryID != categoryID {
			continue
		}
		out = append(out, p.PeriodRecord(m.members[p.UserID]))
	}
	return out, nil
}

// ListActiveMembers returns non-banned members ordered by house number.
func (m *Memory) ListActiveMembers(_ context.Context) ([]maintenance.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]maintenance.Member, 0, len(m.members))
	for id, member := range m.members {
		if !m.banned[id] {
			out = append(out, member)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HouseNumber != out[j].HouseNumber {
			return out[i].HouseNumber < out[j].HouseNumber
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}
