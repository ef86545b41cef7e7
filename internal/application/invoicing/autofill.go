package invoicing

import (
	"context"

	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
)

// AutofillParties refreshes the record's taxpayer blocks from the registry.
// Each block with a known IDNO is re-read via GetTaxpayersInfo; bank details
// are confirmed via GetBankAccountInfo when an account is on file. A lookup
// failure on one block logs and moves on: autofill must never block saving a
// draft.
//
// Cancelled records are left untouched, and callers that want to skip the
// refresh entirely (bulk imports, migrations) simply do not call this.
func (s *RecordService) AutofillParties(ctx context.Context, name string) error {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if record.DocStatus == entity.DocStatusCancelled {
		return nil
	}

	blocks := []struct {
		role  string
		party entity.Party
	}{
		{repository.PartySupplier, record.Supplier},
		{repository.PartyCustomer, record.Customer},
		{repository.PartyTransporter, record.Transporter},
	}

	for _, b := range blocks {
		if b.party.IDNO == "" {
			continue
		}
		if err := s.autofillBlock(ctx, record.ID, b.role, b.party); err != nil {
			s.log.Warn().Err(err).
				Str("efactura", record.Name).
				Str("role", b.role).
				Msg("party autofill failed")
		}
	}
	return nil
}

func (s *RecordService) autofillBlock(ctx context.Context, recordID, role string, current entity.Party) error {
	taxpayers, err := s.gateway.GetTaxpayersInfo(ctx, []string{current.IDNO})
	if err != nil {
		return err
	}
	if len(taxpayers) == 0 {
		// Unknown to the registry; keep whatever the user entered.
		return nil
	}
	tp := taxpayers[0]

	fresh := entity.Party{
		IDNO:         tp.IDNO,
		VATID:        tp.VATCode,
		Name:         tp.Name,
		Address:      tp.Address,
		TaxpayerType: tp.TaxpayerType,
		BankAccount:  current.BankAccount,
		BankName:     current.BankName,
		BankCode:     current.BankCode,
	}

	if current.BankAccount != "" {
		accounts, err := s.gateway.GetBankAccountInfo(ctx, current.IDNO, current.BankAccount)
		if err != nil {
			return err
		}
		for _, acc := range accounts {
			if acc.AccountNumber == current.BankAccount {
				fresh.BankAccount = acc.AccountNumber
				fresh.BankName = acc.BranchTitle
				fresh.BankCode = acc.BranchCode
				break
			}
		}
	}

	return s.efacturas.SetParty(ctx, recordID, role, fresh)
}
