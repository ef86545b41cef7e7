package efactura

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/config"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// ── Actor roles ────────────────────────────────────────────────────────────────

// The registry distinguishes who is acting on a document.
const (
	ActorRoleCustomer = 0
	ActorRoleSupplier = 1
)

// XML statuses accepted by PostInvoices.
const (
	XMLStatusUnsigned = 0
	XMLStatusSigned   = 1
)

// ── Client ─────────────────────────────────────────────────────────────────────

// Client is the e-Factura gateway: one method per registry operation, plus
// the composite search helper used by draft promotion. Every call carries a
// fresh RequestId; the registry rejects replays of the same id.
type Client struct {
	t *transport
}

// NewClient builds a gateway from the service configuration.
func NewClient(cfg config.EFacturaConfig, log *logger.Logger) *Client {
	return &Client{
		t: newTransport(
			cfg.APIURL,
			cfg.Username,
			cfg.Password,
			time.Duration(cfg.TimeoutSeconds)*time.Second,
			cfg.VerifyTLS,
			log,
		),
	}
}

func newRequestID() string { return uuid.New().String() }

// ── Connectivity ───────────────────────────────────────────────────────────────

// Ping echoes a message off the registry. Used by the settings screen to
// verify credentials and connectivity.
func (c *Client) Ping(ctx context.Context, message string) (string, error) {
	req := testBody{Xmlns: soapNSService, Message: message}
	var resp testResponse
	if err := c.t.call(ctx, "Test", req, &resp); err != nil {
		return "", err
	}
	return resp.Result, nil
}

// ── Registry lookups ───────────────────────────────────────────────────────────

// GetTaxpayersInfo resolves fiscal codes to registry taxpayer records.
func (c *Client) GetTaxpayersInfo(ctx context.Context, fiscalCodes []string) ([]TaxpayerInfo, error) {
	req := taxpayersInfoBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.FiscalCodes = fiscalCodes
	var resp taxpayersInfoResponse
	if err := c.t.call(ctx, "GetTaxpayersInfo", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Taxpayers, nil
}

// GetBankAccountInfo lists bank accounts for an IDNO, optionally narrowed to
// one account number.
func (c *Client) GetBankAccountInfo(ctx context.Context, idno, accountNumber string) ([]BankAccountInfo, error) {
	req := bankAccountInfoBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.IDNO = idno
	req.Request.AccountNumber = accountNumber
	var resp bankAccountInfoResponse
	if err := c.t.call(ctx, "GetBankAccountInfo", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Accounts, nil
}

// ReserveSeriaAndNumbers asks the registry for count fresh identities.
func (c *Client) ReserveSeriaAndNumbers(ctx context.Context, count int) ([]InvoiceIdentifier, error) {
	req := seriaAndNumbersBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.Count = count
	var resp seriaAndNumbersResponse
	if err := c.t.call(ctx, "GetSeriaAndNumbers", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Identifiers, nil
}

// GetQRCodes fetches QR code images for registered documents, keyed by the
// concatenated seria+number.
func (c *Client) GetQRCodes(ctx context.Context, ids []InvoiceIdentifier) (map[string][]byte, error) {
	req := qrCodesBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.Identifiers = ids
	var resp qrCodesResponse
	if err := c.t.call(ctx, "GetInvoicesQRcodes", req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(resp.Result.QRCodes))
	for _, qr := range resp.Result.QRCodes {
		img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(qr.Content))
		if err != nil {
			continue
		}
		out[qr.Seria+qr.Number] = img
	}
	return out, nil
}

// GetPrintContent fetches the registry's printable PDF for one document.
func (c *Client) GetPrintContent(ctx context.Context, id InvoiceIdentifier, orientation int) ([]byte, error) {
	req := contentForPrintBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.Identifiers = []InvoiceIdentifier{id}
	req.Request.ActorRole = ActorRoleSupplier
	req.Request.Orientation = orientation
	var resp contentForPrintResponse
	if err := c.t.call(ctx, "GetInvoicesContentForPrint", req, &resp); err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(strings.TrimSpace(resp.Result.Content))
	if err != nil {
		return nil, apperrors.Remote("GetInvoicesContentForPrint",
			fmt.Errorf("decode content: %w", err))
	}
	// The registry has been seen returning error pages in this field.
	if !strings.HasPrefix(string(content), "%PDF") {
		return nil, apperrors.Remote("GetInvoicesContentForPrint",
			fmt.Errorf("non-PDF content returned"))
	}
	return content, nil
}

// GetInvoicesBySeriaNumber fetches the registry's stored XML for documents,
// keyed by the concatenated seria+number.
func (c *Client) GetInvoicesBySeriaNumber(ctx context.Context, ids []InvoiceIdentifier) (map[string]string, error) {
	req := bySeriaNumberBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.Identifiers = ids
	var resp bySeriaNumberResponse
	if err := c.t.call(ctx, "GetInvoicesBySeriaNumber", req, &resp); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(resp.Result.Invoices))
	for _, inv := range resp.Result.Invoices {
		out[inv.Seria+inv.Number] = inv.Content
	}
	return out, nil
}

// ── Status ─────────────────────────────────────────────────────────────────────

// CheckStatus returns the current registry status per identity. Rows with a
// malformed status code are skipped rather than failing the batch; absent
// keys mean the registry did not report on that identity.
func (c *Client) CheckStatus(ctx context.Context, ids []InvoiceIdentifier) (map[InvoiceIdentifier]int, error) {
	req := checkStatusBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.Identifiers = ids
	var resp checkStatusResponse
	if err := c.t.call(ctx, "CheckInvoicesStatus", req, &resp); err != nil {
		return nil, err
	}
	out := make(map[InvoiceIdentifier]int, len(resp.Result.Invoices))
	for _, row := range resp.Result.Invoices {
		code, err := strconv.Atoi(strings.TrimSpace(row.InvoiceStatus))
		if err != nil {
			continue
		}
		if row.Seria == "" || row.Number == "" {
			continue
		}
		out[InvoiceIdentifier{Seria: row.Seria, Number: row.Number}] = code
	}
	return out, nil
}

// ── Signing workflow ───────────────────────────────────────────────────────────

// GetInvoicesForSigning lists documents awaiting the given actor's signature.
func (c *Client) GetInvoicesForSigning(ctx context.Context, actorRole, order int) ([]SigningInvoice, error) {
	req := forSigningBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.ActorRole = actorRole
	req.Request.Order = order
	var resp forSigningResponse
	if err := c.t.call(ctx, "GetInvoicesForSigning", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Invoices, nil
}

// GetAcceptedInvoices lists identities the counterparty has accepted.
func (c *Client) GetAcceptedInvoices(ctx context.Context, actorRole int) ([]InvoiceIdentifier, error) {
	req := acceptedInvoicesBody{Xmlns: soapNSService}
	req.Request = actorRoleRequest{RequestID: newRequestID(), ActorRole: actorRole}
	var resp acceptedInvoicesResponse
	if err := c.t.call(ctx, "GetAcceptedInvoices", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Identifiers, nil
}

// GetRejectedInvoices lists identities the counterparty has rejected.
func (c *Client) GetRejectedInvoices(ctx context.Context, actorRole int) ([]InvoiceIdentifier, error) {
	req := rejectedInvoicesBody{Xmlns: soapNSService}
	req.Request = actorRoleRequest{RequestID: newRequestID(), ActorRole: actorRole}
	var resp rejectedInvoicesResponse
	if err := c.t.call(ctx, "GetRejectedInvoices", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Identifiers, nil
}

// PostAccepted marks documents as accepted by the acting party.
func (c *Client) PostAccepted(ctx context.Context, ids []InvoiceIdentifier) (*PostResult, error) {
	req := postAcceptedBody{Xmlns: soapNSService}
	req.Request = identifiersRequest{RequestID: newRequestID(), Identifiers: ids}
	var resp postAcceptedResponse
	if err := c.t.call(ctx, "PostAcceptedInvoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// PostRejected marks documents as rejected, with reasons.
func (c *Client) PostRejected(ctx context.Context, comments []InvoiceComment) (*PostResult, error) {
	req := postRejectedBody{Xmlns: soapNSService}
	req.Request = commentsRequest{RequestID: newRequestID(), Comments: comments}
	var resp postRejectedResponse
	if err := c.t.call(ctx, "PostRejectedInvoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// PostCanceled cancels registered documents on the registry, with reasons.
func (c *Client) PostCanceled(ctx context.Context, comments []InvoiceComment) (*PostResult, error) {
	req := postCanceledBody{Xmlns: soapNSService}
	req.Request = commentsRequest{RequestID: newRequestID(), Comments: comments}
	var resp postCanceledResponse
	if err := c.t.call(ctx, "PostCanceledInvoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// ── Submission ─────────────────────────────────────────────────────────────────

// PostInvoices uploads document XML. xmlStatus says whether it is signed.
// Unlike every other operation the RequestId here is the caller's correlation
// id (the local document name): it is what SearchInvoices later finds the
// registry record by.
func (c *Client) PostInvoices(ctx context.Context, correlationID string, actorRole int, invoicesXML string, xmlStatus int) (*PostResult, error) {
	req := postInvoicesBody{Xmlns: soapNSService}
	req.Request = postInvoicesRequest{
		RequestID:         correlationID,
		ActorRole:         actorRole,
		InvoicesXML:       invoicesXML,
		InvoicesXMLStatus: xmlStatus,
	}
	var resp postInvoicesResponse
	if err := c.t.call(ctx, "PostInvoices", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// PostInvoicesWithAttachment uploads document XML together with a binary
// attachment (e.g. a scan of supporting paperwork).
func (c *Client) PostInvoicesWithAttachment(ctx context.Context, correlationID string, actorRole int, invoicesXML string, xmlStatus int, att *Attachment) (*PostResult, error) {
	req := postInvoicesWithAttachmentBody{Xmlns: soapNSService}
	req.Request = postInvoicesRequest{
		RequestID:         correlationID,
		ActorRole:         actorRole,
		InvoicesXML:       invoicesXML,
		InvoicesXMLStatus: xmlStatus,
		Attachment:        att,
	}
	var resp postInvoicesWithAttachmentResponse
	if err := c.t.call(ctx, "PostInvoicesWithAttachment", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Result, nil
}

// ── Search and audit ───────────────────────────────────────────────────────────

// SearchInvoices runs one filtered search. The registry requires a status
// filter in the parameters; broader searches must iterate statuses.
func (c *Client) SearchInvoices(ctx context.Context, actorRole int, params SearchParameters) ([]SearchMatch, error) {
	req := searchInvoicesBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.ActorRole = actorRole
	req.Request.Parameters = params
	var resp searchInvoicesResponse
	if err := c.t.call(ctx, "SearchInvoices", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Invoices, nil
}

// GetLogs fetches the registry audit trail for a date window.
func (c *Client) GetLogs(ctx context.Context, from, to time.Time) ([]RemoteLogEntry, error) {
	req := getLogsBody{Xmlns: soapNSService}
	req.Request.RequestID = newRequestID()
	req.Request.From = from.Format("2006-01-02")
	req.Request.To = to.Format("2006-01-02")
	var resp getLogsResponse
	if err := c.t.call(ctx, "GetLogs", req, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Logs, nil
}

// ── Composite helpers ──────────────────────────────────────────────────────────

// SearchByCorrelationID locates the registry record created from the local
// document named correlationID. The registry insists on a status filter, so
// the search walks the status codes in likelihood order and stops at the
// first hit. Returns (nil, nil) when no status yields a match; more than one
// match under a single status is an ambiguity the caller must not resolve
// automatically.
func (c *Client) SearchByCorrelationID(ctx context.Context, correlationID string) (*SearchMatch, error) {
	for _, status := range entity.SearchStatusOrder {
		st := status
		matches, err := c.SearchInvoices(ctx, ActorRoleSupplier, SearchParameters{
			APIeInvoiceID: correlationID,
			InvoiceStatus: &st,
		})
		if err != nil {
			return nil, err
		}
		switch len(matches) {
		case 0:
			continue
		case 1:
			m := matches[0]
			m.Seria = strings.TrimSpace(m.Seria)
			m.Number = strings.TrimSpace(m.Number)
			return &m, nil
		default:
			return nil, apperrors.Ambiguous(correlationID, len(matches))
		}
	}
	return nil, nil
}

// StatusCode parses the match's status field. The second return is false
// when the registry sent a non-numeric code.
func (m *SearchMatch) StatusCode() (int, bool) {
	code, err := strconv.Atoi(strings.TrimSpace(m.InvoiceStatus))
	if err != nil {
		return 0, false
	}
	return code, true
}
