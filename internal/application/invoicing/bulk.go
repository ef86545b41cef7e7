package invoicing

import (
	"context"

	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// BulkFiscalStatus re-resolves fiscal statuses for many invoices as a
// background job. The caller gets a job id back immediately and follows
// progress through the hub; a single invoice's failure never stops the run.
type BulkFiscalStatus struct {
	fiscal *FiscalStatusService
	hub    *ProgressHub
	log    *logger.Logger
}

func NewBulkFiscalStatus(fiscal *FiscalStatusService, hub *ProgressHub, log *logger.Logger) *BulkFiscalStatus {
	return &BulkFiscalStatus{fiscal: fiscal, hub: hub, log: log}
}

// Start launches the job and returns its id. ctx bounds the whole run; it
// should come from the application lifecycle, not the HTTP request that
// triggered the job.
func (b *BulkFiscalStatus) Start(ctx context.Context, invoiceIDs []string) string {
	jobID := b.hub.Begin(len(invoiceIDs))
	go b.run(ctx, jobID, invoiceIDs)
	return jobID
}

func (b *BulkFiscalStatus) run(ctx context.Context, jobID string, invoiceIDs []string) {
	p := Progress{JobID: jobID, Total: len(invoiceIDs)}

	for _, id := range invoiceIDs {
		if ctx.Err() != nil {
			break
		}
		if err := b.fiscal.RefreshInvoice(ctx, id); err != nil {
			p.Failed++
			b.log.Warn().Err(err).Str("invoice", id).Msg("bulk fiscal status: refresh failed")
		} else {
			p.Updated++
		}
		p.Current++
		b.hub.Publish(p)
	}

	p.Done = true
	b.hub.Publish(p)

	b.log.Info().
		Str("job", jobID).
		Int("total", p.Total).
		Int("updated", p.Updated).
		Int("failed", p.Failed).
		Msg("bulk fiscal status: run complete")
}
