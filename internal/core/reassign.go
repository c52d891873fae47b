package core

import (
	"fmt"

	"patientcore/pkg/domain"
)

// ReassignmentHandler moves ownership of one record category from the losing
// identity to the primary. Every category referencing a patient identity
// must register a handler: the executor consolidates exactly what the
// registry enumerates, so a record kind missing here silently escapes the
// merge.
type ReassignmentHandler interface {
	Category() RecordCategory
	Reassign(tx Transaction, fromPatientID, toPatientID string) (int, error)
}

type handlerFunc struct {
	category RecordCategory
	fn       func(tx Transaction, from, to string) (int, error)
}

func (h handlerFunc) Category() RecordCategory { return h.category }

func (h handlerFunc) Reassign(tx Transaction, from, to string) (int, error) {
	return h.fn(tx, from, to)
}

// ReassignmentRegistry is the central list of per-category handlers iterated
// by the executor.
type ReassignmentRegistry struct {
	handlers []ReassignmentHandler
}

// NewReassignmentRegistry returns a registry covering every record category
// the schema attaches to a patient identity.
func NewReassignmentRegistry() *ReassignmentRegistry {
	r := &ReassignmentRegistry{}
	r.Register(handlerFunc{domain.CategoryOrders, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignOrders(from, to)
	}})
	r.Register(handlerFunc{domain.CategoryResults, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignLabResults(from, to)
	}})
	r.Register(handlerFunc{domain.CategorySamples, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignSamples(from, to)
	}})
	r.Register(handlerFunc{domain.CategoryDocuments, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignDocuments(from, to)
	}})
	r.Register(handlerFunc{domain.CategoryIdentifiers, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignIdentifiers(from, to)
	}})
	r.Register(handlerFunc{domain.CategoryContacts, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignContacts(from, to)
	}})
	r.Register(handlerFunc{domain.CategoryRelations, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignRelations(from, to)
	}})
	r.Register(handlerFunc{domain.CategoryAuditTrail, func(tx Transaction, from, to string) (int, error) {
		return tx.ReassignAuditTrail(from, to)
	}})
	return r
}

// Register appends a handler. Registering a duplicate category panics, since
// it would double-count a category during consolidation.
func (r *ReassignmentRegistry) Register(h ReassignmentHandler) {
	for _, existing := range r.handlers {
		if existing.Category() == h.Category() {
			panic(fmt.Sprintf("reassignment handler for %s already registered", h.Category()))
		}
	}
	r.handlers = append(r.handlers, h)
}

// Categories lists the registered categories in registration order.
func (r *ReassignmentRegistry) Categories() []RecordCategory {
	out := make([]RecordCategory, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, h.Category())
	}
	return out
}

// ReassignAll runs every handler, moving all dependent records from the
// losing identity to the primary, and reports per-category counts.
func (r *ReassignmentRegistry) ReassignAll(tx Transaction, fromPatientID, toPatientID string) (ReassignmentCounts, error) {
	counts := make(ReassignmentCounts, len(r.handlers))
	for _, h := range r.handlers {
		n, err := h.Reassign(tx, fromPatientID, toPatientID)
		if err != nil {
			return nil, fmt.Errorf("reassign %s: %w", h.Category(), err)
		}
		counts[h.Category()] = n
	}
	return counts, nil
}
