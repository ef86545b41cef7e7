package sync

import (
	"context"
	"errors"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// DraftPromotion resolves the identity gap left by unsigned posting: the
// registry only assigns series and number once the portal processes the
// upload, so a record posted unsigned sits locally with code 0 and no
// identity. Each such record is searched by its own document name (the
// correlation id embedded in the uploaded XML) and, on a unique hit, adopts
// the identity and status found.
type DraftPromotion struct {
	efacturas repository.EFacturaRepository
	gateway   Gateway
	refresher FiscalRefresher
	log       *logger.Logger
}

func NewDraftPromotion(
	efacturas repository.EFacturaRepository,
	gateway Gateway,
	refresher FiscalRefresher,
	log *logger.Logger,
) *DraftPromotion {
	return &DraftPromotion{
		efacturas: efacturas,
		gateway:   gateway,
		refresher: refresher,
		log:       log,
	}
}

// Run executes one promotion pass. Zero matches leave the record for the
// next run; ambiguous matches are logged and left untouched, never resolved
// by guessing.
func (p *DraftPromotion) Run(ctx context.Context) error {
	records, err := p.efacturas.ListUnregisteredDrafts(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	var promoted, pending, ambiguous, errored int

	for _, record := range records {
		match, err := p.gateway.SearchByCorrelationID(ctx, record.Name)
		if err != nil {
			if errors.Is(err, apperrors.ErrAmbiguousResult) {
				p.log.Warn().Err(err).
					Str("efactura", record.Name).
					Msg("draft promotion: ambiguous registry match")
				ambiguous++
				continue
			}
			errored++
			continue
		}
		if match == nil {
			// The portal has not processed the upload yet.
			pending++
			continue
		}

		code, ok := match.StatusCode()
		if !ok || match.Seria == "" || match.Number == "" {
			errored++
			continue
		}

		if err := p.efacturas.AdoptRegistration(ctx, record.ID, match.Seria, match.Number, code); err != nil {
			errored++
			continue
		}
		if err := p.refresher.RefreshInvoice(ctx, record.InvoiceID); err != nil {
			p.log.Warn().Err(err).
				Str("efactura", record.Name).
				Msg("draft promotion: fiscal status refresh failed")
			errored++
			continue
		}
		promoted++
	}

	p.log.Info().
		Int("candidates", len(records)).
		Int("promoted", promoted).
		Int("pending", pending).
		Int("ambiguous", ambiguous).
		Int("errored", errored).
		Msg("draft promotion: run complete")

	return nil
}
