package invoicing

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/repository"
	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// RecordService implements the e-Factura record workflow: sending, the
// external-signature round-trip, manual status refresh, cancellation and the
// content downloads.
type RecordService struct {
	efacturas   repository.EFacturaRepository
	gateway     Gateway
	composer    *efactura.Composer
	fiscal      *FiscalStatusService
	vatIncluded bool
	log         *logger.Logger
}

func NewRecordService(
	efacturas repository.EFacturaRepository,
	gateway Gateway,
	composer *efactura.Composer,
	fiscal *FiscalStatusService,
	vatIncluded bool,
	log *logger.Logger,
) *RecordService {
	return &RecordService{
		efacturas:   efacturas,
		gateway:     gateway,
		composer:    composer,
		fiscal:      fiscal,
		vatIncluded: vatIncluded,
		log:         log,
	}
}

// ── Manual status refresh ──────────────────────────────────────────────────────

// RefreshStatus re-reads one record's registry status on user request.
// Registered records ask the registry directly; unregistered ones fall back
// to the correlation-id search and adopt the identity found. An ambiguous
// search surfaces to the user untouched.
func (s *RecordService) RefreshStatus(ctx context.Context, name string) (*entity.EFactura, error) {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if !record.Registered() {
		match, err := s.gateway.SearchByCorrelationID(ctx, record.Name)
		if err != nil {
			return nil, err
		}
		if match == nil {
			return record, nil
		}
		code, ok := match.StatusCode()
		if !ok || match.Seria == "" || match.Number == "" {
			return record, nil
		}
		if err := s.efacturas.AdoptRegistration(ctx, record.ID, match.Seria, match.Number, code); err != nil {
			return nil, err
		}
		record.RemoteSeries = match.Seria
		record.RemoteNumber = match.Number
		record.RemoteStatus = code
		if err := s.fiscal.RefreshInvoice(ctx, record.InvoiceID); err != nil {
			return nil, err
		}
		return record, nil
	}

	id := efactura.InvoiceIdentifier{Seria: record.RemoteSeries, Number: record.RemoteNumber}
	statuses, err := s.gateway.CheckStatus(ctx, []efactura.InvoiceIdentifier{id})
	if err != nil {
		return nil, err
	}

	now := time.Now()
	code, ok := statuses[id]
	if !ok || code == record.RemoteStatus {
		if err := s.efacturas.TouchChecked(ctx, record.ID, now); err != nil {
			return nil, err
		}
		return record, nil
	}

	if err := s.efacturas.SetRemoteStatus(ctx, record.ID, code, now); err != nil {
		return nil, err
	}
	record.RemoteStatus = code
	record.LastChecked = &now
	if err := s.fiscal.RefreshInvoice(ctx, record.InvoiceID); err != nil {
		return nil, err
	}
	return record, nil
}

// ── Unsigned submission ────────────────────────────────────────────────────────

// SendUnsigned uploads the document XML without a signature. The registry
// assigns series and number only once the portal signs, so any stale local
// identity is cleared; draft promotion later picks the record up by its
// correlation id.
func (s *RecordService) SendUnsigned(ctx context.Context, name string) (int, error) {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return 0, err
	}

	s.checkTotals(record)

	xmlDoc, err := s.composer.Compose(record, efactura.ComposeOptions{Envelope: true, Declaration: true})
	if err != nil {
		return 0, err
	}

	result, err := s.gateway.PostInvoices(ctx, record.Name,
		efactura.ActorRoleSupplier, string(xmlDoc), efactura.XMLStatusUnsigned)
	if err != nil {
		return 0, err
	}
	if err := result.Err(); err != nil {
		return 0, apperrors.Remote("PostInvoices", err)
	}

	if err := s.efacturas.ClearRegistration(ctx, record.ID, entity.RemoteStatusDraft); err != nil {
		return 0, err
	}
	if err := s.fiscal.RefreshInvoice(ctx, record.InvoiceID); err != nil {
		return 0, err
	}
	return result.TotalInvoicesPosted, nil
}

// checkTotals recomputes the VAT math over the lines under the configured
// inclusion policy and warns when the stored totals disagree. The stored
// values stay authoritative; a mismatch means the ERP saved the record under
// a different VAT setting.
func (s *RecordService) checkTotals(record *entity.EFactura) {
	check := *record
	check.Items = append([]entity.EFacturaItem(nil), record.Items...)
	check.ApplyVAT(s.vatIncluded)

	if !check.Total.Round(2).Equal(record.Total.Round(2)) ||
		!check.VATTotal.Round(2).Equal(record.VATTotal.Round(2)) {
		s.log.Warn().
			Str("efactura", record.Name).
			Str("stored_total", record.Total.StringFixed(2)).
			Str("computed_total", check.Total.StringFixed(2)).
			Str("stored_vat", record.VATTotal.StringFixed(2)).
			Str("computed_vat", check.VATTotal.StringFixed(2)).
			Msg("stored totals differ from recomputed VAT totals")
	}
}

// ── External signing round-trip ────────────────────────────────────────────────

// GetForSign prepares the payload a browser signing plugin needs. A record
// with no registry identity first reserves one; the identity must be inside
// the signed region, so it is persisted before composing.
func (s *RecordService) GetForSign(ctx context.Context, name string) (*efactura.SigningPayload, error) {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}

	if !record.Registered() {
		ids, err := s.gateway.ReserveSeriaAndNumbers(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 || ids[0].Seria == "" || ids[0].Number == "" {
			return nil, apperrors.Remote("GetSeriaAndNumbers",
				fmt.Errorf("registry returned no usable series and number"))
		}
		if err := s.efacturas.AdoptRegistration(ctx, record.ID,
			ids[0].Seria, ids[0].Number, record.RemoteStatus); err != nil {
			return nil, err
		}
		record.RemoteSeries = ids[0].Seria
		record.RemoteNumber = ids[0].Number
	}

	return s.composer.ComposeForSigning(record)
}

var xmlDeclRe = regexp.MustCompile(`(?i)^<\?xml[^>]*\?>\s*`)

// decodeSignedPart decodes one base64 payload from the signing plugin and
// strips the BOM and any XML declaration, which must not survive into the
// assembled document.
func decodeSignedPart(field, b64 string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return "", apperrors.Validation(field, "invalid base64 payload")
	}
	raw = []byte(strings.TrimPrefix(string(raw), "\xef\xbb\xbf"))
	text := strings.TrimSpace(string(raw))
	text = xmlDeclRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text), nil
}

// ProcessSignedXML assembles the signed document the plugin returned and
// uploads it. Content and signature arrive base64; the inner whitespace of
// the signed region must pass through untouched or the signature breaks.
func (s *RecordService) ProcessSignedXML(ctx context.Context, name, contentB64, signatureB64 string) (int, error) {
	if contentB64 == "" {
		return 0, apperrors.Validation("content", "must not be empty")
	}
	if signatureB64 == "" {
		return 0, apperrors.Validation("signature", "must not be empty")
	}

	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return 0, err
	}

	content, err := decodeSignedPart("content", contentB64)
	if err != nil {
		return 0, err
	}
	signature, err := decodeSignedPart("signature", signatureB64)
	if err != nil {
		return 0, err
	}

	// The registry validates the digest from inside the signature; the hash
	// element only needs to exist, with a unique id.
	var sb strings.Builder
	sb.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\" standalone=\"no\"?>\n")
	sb.WriteString("<Documents>\n<Document>\n")
	sb.WriteString(content)
	sb.WriteString("\n<Signatures>\n<SignatureContent>\n<SignedDoc>\n")
	sb.WriteString(fmt.Sprintf("<hash Id=\"_%s\">Hash is incapsulated into the signature</hash>\n", uuid.New().String()))
	sb.WriteString(signature)
	sb.WriteString("\n</SignedDoc>\n</SignatureContent>\n</Signatures>\n</Document>\n</Documents>\n")

	result, err := s.gateway.PostInvoices(ctx, record.Name,
		efactura.ActorRoleSupplier, sb.String(), efactura.XMLStatusSigned)
	if err != nil {
		return 0, err
	}
	if err := result.Err(); err != nil {
		return 0, apperrors.Remote("PostInvoices", err)
	}

	if err := s.efacturas.SetRemoteStatus(ctx, record.ID,
		entity.RemoteStatusSignedBySupplier, time.Now()); err != nil {
		return 0, err
	}
	if err := s.fiscal.RefreshInvoice(ctx, record.InvoiceID); err != nil {
		return 0, err
	}
	return result.TotalInvoicesPosted, nil
}

// ── Downloads ──────────────────────────────────────────────────────────────────

// DownloadXML renders the record's document XML as a file attachment.
func (s *RecordService) DownloadXML(ctx context.Context, name string) (filename string, data []byte, err error) {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return "", nil, err
	}
	data, err = s.composer.Compose(record, efactura.ComposeOptions{Envelope: true, Declaration: true})
	if err != nil {
		return "", nil, err
	}
	return record.Name + ".xml", data, nil
}

// DownloadPDF fetches the registry's print rendering of a registered record.
func (s *RecordService) DownloadPDF(ctx context.Context, name string) (filename string, data []byte, err error) {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return "", nil, err
	}
	if !record.Registered() {
		return "", nil, apperrors.Validation("series", "record has no registry identity yet")
	}
	data, err = s.gateway.GetPrintContent(ctx,
		efactura.InvoiceIdentifier{Seria: record.RemoteSeries, Number: record.RemoteNumber}, 0)
	if err != nil {
		return "", nil, err
	}
	return record.RemoteSeries + record.RemoteNumber + ".pdf", data, nil
}

// ── Mutations ──────────────────────────────────────────────────────────────────

// UpdateDates changes the issue and delivery dates. Allowed only on
// submitted records still pending registration; anything later is already on
// file with the registry.
func (s *RecordService) UpdateDates(ctx context.Context, name string, issue, delivery time.Time) error {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if record.DocStatus != entity.DocStatusSubmitted {
		return apperrors.Validation("docstatus", "dates can be updated only on submitted documents")
	}
	if record.RemoteStatus != entity.RemoteStatusPending {
		return apperrors.Validation("remote_status", "dates can be updated only in pending registration status")
	}
	if issue.IsZero() || delivery.IsZero() {
		return apperrors.Validation("dates", "both issue and delivery dates are required")
	}
	return s.efacturas.SetDates(ctx, record.ID, issue, delivery)
}

// Cancel marks the record cancelled locally. Permitted only when the
// registry has never seen the document or the supplier already cancelled it
// there; any other state must be resolved on the portal first.
func (s *RecordService) Cancel(ctx context.Context, name string) error {
	record, err := s.efacturas.GetByName(ctx, name)
	if err != nil {
		return err
	}
	if !record.CancellableLocally() {
		return apperrors.Validation("remote_status", fmt.Sprintf(
			"cannot cancel in status %q; cancel it in the e-Factura portal first", record.StatusLabel()))
	}
	if err := s.efacturas.Cancel(ctx, record.ID); err != nil {
		return err
	}
	return s.fiscal.RefreshInvoice(ctx, record.InvoiceID)
}
