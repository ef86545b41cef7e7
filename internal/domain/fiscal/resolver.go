// Package fiscal derives the user-facing fiscal compliance status of a sales
// invoice from its lifecycle stage, its customer and its linked e-Factura
// records. Resolution is pure: callers load the inputs and persist the result.
package fiscal

import (
	"github.com/shopspring/decimal"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
)

// Status is the derived fiscal compliance label. It is recomputed on every
// relevant mutation and never hand-edited.
type Status string

const (
	// StatusNone means resolution does not apply (invoice not submitted);
	// the caller must not persist it.
	StatusNone Status = ""

	StatusNotRequired   Status = "Not Required"
	StatusNotApplicable Status = "Not Applicable"
	StatusPending       Status = "Pending"
	StatusInProgress    Status = "In Progress"
	StatusFailed        Status = "Failed"
	StatusPartial       Status = "Partial"
	StatusCompleted     Status = "Completed"
)

// Scope is the configured fiscal territory scope. Root is the nested-set
// interval of the configured root territory; Configured is false when the
// setting is missing entirely.
type Scope struct {
	Configured bool
	Root       entity.Territory
}

// Input carries everything Resolve needs, pre-loaded by the caller.
// Records must already exclude locally cancelled e-Factura documents.
type Input struct {
	Invoice           *entity.SalesInvoice
	Customer          *entity.Customer
	Scope             Scope
	CustomerTerritory *entity.Territory // nil when the customer territory is unknown
	Records           []*entity.EFactura
}

// minorUnitPlaces is the rounding applied before total comparison. The leu
// has two minor units (bani); comparing at this precision keeps floating
// noise in upstream systems from producing spurious Partial results.
const minorUnitPlaces = 2

// Resolve maps the input to a fiscal status, in strict priority order.
// A missing fiscal scope configuration is an error distinct from any business
// outcome: the caller must surface it, not swallow it.
func Resolve(in Input) (Status, error) {
	if in.Invoice == nil || !in.Invoice.Submitted() {
		return StatusNone, nil
	}

	if in.Customer == nil || !in.Customer.IsBusiness() {
		return StatusNotRequired, nil
	}

	if !in.Scope.Configured {
		return StatusNone, apperrors.Configuration(
			"fiscal territory is not set; invoice %s cannot be classified", in.Invoice.Name)
	}

	if in.CustomerTerritory == nil || !in.Scope.Root.Contains(*in.CustomerTerritory) {
		return StatusNotApplicable, nil
	}

	records := nonCancelled(in.Records)
	if len(records) == 0 {
		return StatusPending, nil
	}

	// Failed dominates everything below.
	for _, r := range records {
		if classify(r) == classFailed {
			return StatusFailed, nil
		}
	}

	for _, r := range records {
		if classify(r) == classInProgress {
			return StatusInProgress, nil
		}
	}

	// All records settled: compare the linked total against the grand total.
	linked := decimal.Zero
	for _, r := range records {
		linked = linked.Add(r.Total)
	}
	linked = linked.Round(minorUnitPlaces)
	grand := in.Invoice.GrandTotal.Round(minorUnitPlaces)

	switch linked.Cmp(grand) {
	case -1:
		return StatusPartial, nil
	case 0:
		return StatusCompleted, nil
	default:
		// Over-invoiced: more was reported to the registry than was sold.
		return StatusFailed, nil
	}
}

// recordClass buckets a non-cancelled record for resolution purposes.
type recordClass int

const (
	classSettled recordClass = iota // counts toward the total comparison
	classInProgress
	classFailed
)

func classify(r *entity.EFactura) recordClass {
	switch r.RemoteStatus {
	case entity.RemoteStatusRejected, entity.RemoteStatusCancelled:
		return classFailed
	case entity.RemoteStatusPending, entity.RemoteStatusDraft,
		entity.RemoteStatusSent, entity.RemoteStatusSentAlt,
		entity.RemoteStatusInTransport:
		return classInProgress
	case entity.RemoteStatusSignedBySupplier, entity.RemoteStatusAccepted,
		entity.RemoteStatusSignedByCustomer:
		return classSettled
	}
	// Unknown codes are never ignored: treat as failed so a human looks.
	return classFailed
}

func nonCancelled(records []*entity.EFactura) []*entity.EFactura {
	out := records[:0:0]
	for _, r := range records {
		if r.DocStatus != entity.DocStatusCancelled {
			out = append(out, r)
		}
	}
	return out
}
