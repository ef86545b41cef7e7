package sync

import (
	"context"
	"errors"
	"time"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// CancellationSweep finds documents the supplier cancelled on the registry
// side within the lookback window and mirrors the cancellation locally.
// A cancellation performed on the portal never reaches the poller (code 5 is
// not checkable), so this sweep is the only path that catches it.
type CancellationSweep struct {
	efacturas    repository.EFacturaRepository
	gateway      Gateway
	refresher    FiscalRefresher
	lookbackDays int
	log          *logger.Logger
}

func NewCancellationSweep(
	efacturas repository.EFacturaRepository,
	gateway Gateway,
	refresher FiscalRefresher,
	lookbackDays int,
	log *logger.Logger,
) *CancellationSweep {
	return &CancellationSweep{
		efacturas:    efacturas,
		gateway:      gateway,
		refresher:    refresher,
		lookbackDays: lookbackDays,
		log:          log,
	}
}

// Run executes one sweep. Remote duplicates are collapsed before applying;
// matches with no local record are skipped silently, they belong to flows
// this service never tracked.
func (s *CancellationSweep) Run(ctx context.Context) error {
	now := time.Now()
	from := now.AddDate(0, 0, -s.lookbackDays)

	cancelled := entity.RemoteStatusCancelled
	matches, err := s.gateway.SearchInvoices(ctx, efactura.ActorRoleSupplier, efactura.SearchParameters{
		InvoiceStatus: &cancelled,
		DateFrom:      from.Format("2006-01-02"),
		DateTo:        now.Format("2006-01-02"),
	})
	if err != nil {
		s.log.Error().Err(err).Msg("cancellation sweep: search failed")
		return err
	}

	seen := make(map[efactura.InvoiceIdentifier]struct{}, len(matches))
	var applied, skipped, errored int

	for _, m := range matches {
		key := efactura.InvoiceIdentifier{Seria: m.Seria, Number: m.Number}
		if key.Seria == "" || key.Number == "" {
			skipped++
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		record, err := s.efacturas.FindBySeriesNumber(ctx, key.Seria, key.Number)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				skipped++
				continue
			}
			errored++
			continue
		}
		if record.RemoteStatus == entity.RemoteStatusCancelled {
			skipped++
			continue
		}

		if err := s.efacturas.SetRemoteStatus(ctx, record.ID, entity.RemoteStatusCancelled, now); err != nil {
			errored++
			continue
		}
		if err := s.refresher.RefreshInvoice(ctx, record.InvoiceID); err != nil {
			s.log.Warn().Err(err).
				Str("efactura", record.Name).
				Msg("cancellation sweep: fiscal status refresh failed")
			errored++
			continue
		}
		applied++
	}

	s.log.Info().
		Int("matches", len(matches)).
		Int("applied", applied).
		Int("skipped", skipped).
		Int("errored", errored).
		Msg("cancellation sweep: run complete")

	return nil
}
