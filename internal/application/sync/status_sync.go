// Package sync holds the reconciliation strategies that keep local e-Factura
// records aligned with the registry, plus the scheduler that drives them.
// Every strategy is idempotent: runs may overlap with each other and with
// manual refreshes, and updates are compare-then-write.
package sync

import (
	"context"
	"time"

	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// StatusPoller reconciles a page of checkable records per run: one batched
// status call, then per-record compare-then-write.
type StatusPoller struct {
	efacturas repository.EFacturaRepository
	gateway   Gateway
	refresher FiscalRefresher
	batchSize int
	log       *logger.Logger
}

func NewStatusPoller(
	efacturas repository.EFacturaRepository,
	gateway Gateway,
	refresher FiscalRefresher,
	batchSize int,
	log *logger.Logger,
) *StatusPoller {
	return &StatusPoller{
		efacturas: efacturas,
		gateway:   gateway,
		refresher: refresher,
		batchSize: batchSize,
		log:       log,
	}
}

// Run executes one polling pass. A failure on one record never aborts the
// rest of the page; the outcome counts are logged once at the end.
func (p *StatusPoller) Run(ctx context.Context) error {
	records, err := p.efacturas.ListCheckable(ctx, entity.CheckableRemoteStatuses, p.batchSize)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	ids := make([]efactura.InvoiceIdentifier, len(records))
	for i, r := range records {
		ids[i] = efactura.InvoiceIdentifier{Seria: r.RemoteSeries, Number: r.RemoteNumber}
	}

	statuses, err := p.gateway.CheckStatus(ctx, ids)
	if err != nil {
		p.log.Error().Err(err).Int("batch", len(records)).Msg("status poll: batch request failed")
		return err
	}

	now := time.Now()
	var updated, unchanged, missing, errored int

	for _, record := range records {
		key := efactura.InvoiceIdentifier{Seria: record.RemoteSeries, Number: record.RemoteNumber}
		code, ok := statuses[key]
		if !ok {
			// The registry did not report on this identity. Leave the record
			// untouched, including its check timestamp, so it stays at the
			// front of the queue.
			missing++
			continue
		}

		if code == record.RemoteStatus {
			if err := p.efacturas.TouchChecked(ctx, record.ID, now); err != nil {
				errored++
				continue
			}
			unchanged++
			continue
		}

		if err := p.efacturas.SetRemoteStatus(ctx, record.ID, code, now); err != nil {
			errored++
			continue
		}
		if err := p.refresher.RefreshInvoice(ctx, record.InvoiceID); err != nil {
			p.log.Warn().Err(err).
				Str("efactura", record.Name).
				Msg("status poll: fiscal status refresh failed")
			errored++
			continue
		}
		updated++
	}

	evt := p.log.Info()
	if missing > 0 || errored > 0 {
		evt = p.log.Warn()
	}
	evt.
		Int("batch", len(records)).
		Int("updated", updated).
		Int("unchanged", unchanged).
		Int("missing", missing).
		Int("errored", errored).
		Msg("status poll: run complete")

	return nil
}
