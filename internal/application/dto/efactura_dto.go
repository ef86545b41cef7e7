package dto

import (
	"time"

	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
)

// EFacturaResponse is the API view of one e-Factura record.
type EFacturaResponse struct {
	Name         string     `json:"name"`
	Invoice      string     `json:"invoice"`
	DocStatus    int        `json:"docstatus"`
	Series       string     `json:"series,omitempty"`
	Number       string     `json:"number,omitempty"`
	RemoteStatus int        `json:"remote_status"`
	StatusLabel  string     `json:"status_label"`
	LastChecked  *time.Time `json:"last_checked,omitempty"`
}

// NewEFacturaResponse maps the entity into its API view.
func NewEFacturaResponse(ef *entity.EFactura) EFacturaResponse {
	return EFacturaResponse{
		Name:         ef.Name,
		Invoice:      ef.InvoiceID,
		DocStatus:    ef.DocStatus,
		Series:       ef.RemoteSeries,
		Number:       ef.RemoteNumber,
		RemoteStatus: ef.RemoteStatus,
		StatusLabel:  ef.StatusLabel(),
		LastChecked:  ef.LastChecked,
	}
}

// ActualizeResponse is the outcome of a fiscal status actualization.
type ActualizeResponse struct {
	Invoice      string `json:"invoice"`
	FiscalStatus string `json:"fiscal_status"`
}

// BulkActualizeRequest starts a background fiscal status job.
type BulkActualizeRequest struct {
	InvoiceIDs []string `json:"invoice_ids"`
}

// BulkActualizeResponse returns the job handle to follow.
type BulkActualizeResponse struct {
	JobID string `json:"job_id"`
}

// SendResponse reports how many documents the registry accepted.
type SendResponse struct {
	Posted int `json:"posted"`
}

// SignPayloadResponse carries what a browser signing plugin needs: the
// document region to display and its digest, both base64.
type SignPayloadResponse struct {
	XML  string `json:"xml"`
	Hash string `json:"hash"`
}

// SignedXMLRequest is the signing plugin's round-trip result, both base64.
type SignedXMLRequest struct {
	Content   string `json:"content"`
	Signature string `json:"signature"`
}

// UpdateDatesRequest changes the document dates, format 2006-01-02.
type UpdateDatesRequest struct {
	IssueDate    string `json:"issue_date"`
	DeliveryDate string `json:"delivery_date"`
}

// PingResponse is the registry connectivity check result.
type PingResponse struct {
	Echo string `json:"echo"`
}

// TaxpayerResponse is one registry taxpayer lookup row.
type TaxpayerResponse struct {
	IDNO            string `json:"idno"`
	VATCode         string `json:"vat_code,omitempty"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	TaxpayerType    string `json:"taxpayer_type"`
	IsEFacturaActor bool   `json:"is_efactura_actor"`
}
