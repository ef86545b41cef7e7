package efactura

import (
	"encoding/xml"
	"fmt"
)

// ── Wire identifiers ───────────────────────────────────────────────────────────

// InvoiceIdentifier is the registry identity of a document: the series plus
// the number assigned by e-Factura at registration.
type InvoiceIdentifier struct {
	Seria  string `xml:"Seria"`
	Number string `xml:"Number"`
}

// InvoiceComment pairs a registry identity with a free-text reason, used when
// rejecting or cancelling documents on the registry side.
type InvoiceComment struct {
	Seria   string `xml:"Seria"`
	Number  string `xml:"Number"`
	Comment string `xml:"Comment"`
}

// Attachment is an optional binary attached to PostInvoicesWithAttachment.
// Content must already be base64; encoding/xml does not encode []byte.
type Attachment struct {
	FileName string `xml:"FileName"`
	Content  string `xml:"Content"`
}

// TaxpayerInfo is the registry's record of a fiscal subject.
type TaxpayerInfo struct {
	IDNO            string `xml:"IDNO"`
	VATCode         string `xml:"CodTVA"`
	Name            string `xml:"Name"`
	Address         string `xml:"Address"`
	TaxpayerType    string `xml:"TaxpayerType"`
	IsEFacturaActor bool   `xml:"IsEFacturaActor"`
}

// BankAccountInfo is one bank account of a fiscal subject.
type BankAccountInfo struct {
	AccountNumber string `xml:"AccountNumber"`
	BranchTitle   string `xml:"BranchTitle"`
	BranchCode    string `xml:"BranchCode"`
}

// SearchMatch is one invoice row from SearchInvoices or CheckInvoicesStatus.
// InvoiceStatus stays a string until parsed so a malformed code from the
// registry does not poison the whole batch.
type SearchMatch struct {
	Seria         string `xml:"Seria"`
	Number        string `xml:"Number"`
	InvoiceStatus string `xml:"InvoiceStatus"`
}

// SigningInvoice is one document awaiting a signature, as returned by
// GetInvoicesForSigning.
type SigningInvoice struct {
	Seria   string `xml:"Seria"`
	Number  string `xml:"Number"`
	Content string `xml:"Content"` // document XML, base64 on the wire
}

// RemoteLogEntry is one audit row from GetLogs.
type RemoteLogEntry struct {
	Date      string `xml:"Date"`
	Seria     string `xml:"Seria"`
	Number    string `xml:"Number"`
	Operation string `xml:"Operation"`
	Actor     string `xml:"Actor"`
}

// PostResult is the registry's answer to the Post* operations.
type PostResult struct {
	RequestID           string `xml:"RequestId"`
	ErrorMessage        string `xml:"ErrorMessage"`
	TotalInvoices       int    `xml:"TotalInvoices"`
	TotalInvoicesPosted int    `xml:"TotalInvoicesPosted"`
}

/// Err converts a failed post into an error: an explicit registry message, or
// a partial-post count mismatch. A fully posted result returns nil.
func (r *PostResult) Err() error {
	if r.ErrorMessage != "" {
		return fmt.Errorf("registry rejected post: %s", r.ErrorMessage)
	}
	if r.TotalInvoicesPosted == 0 || r.TotalInvoicesPosted != r.TotalInvoices {
		return fmt.Errorf("invoices posted: %d / %d", r.TotalInvoicesPosted, r.TotalInvoices)
	}
	return nil
}

// SearchParameters narrows a SearchInvoices call. Only set fields go on the
// wire; the registry requires at least a status filter.
type SearchParameters struct {
	APIeInvoiceID string `xml:"APIeInvoiceId,omitempty"`
	InvoiceStatus *int   `xml:"InvoiceStatus,omitempty"`
	Seria         string `xml:"Seria,omitempty"`
	Number        string `xml:"Number,omitempty"`
	DateFrom      string `xml:"DateFrom,omitempty"`
	DateTo        string `xml:"DateTo,omitempty"`
}

// ── Request bodies ─────────────────────────────────────────────────────────────

// The service is WCF: every operation wraps its arguments in a single
// <request> element under the operation element, except Test which takes the
// message directly.

type testBody struct {
	XMLName xml.Name `xml:"Test"`
	Xmlns   string   `xml:"xmlns,attr"`
	Message string   `xml:"message"`
}

type taxpayersInfoBody struct {
	XMLName xml.Name `xml:"GetTaxpayersInfo"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		RequestID   string   `xml:"RequestId"`
		FiscalCodes []string `xml:"FiscalCodes>string"`
	} `xml:"request"`
}

type bankAccountInfoBody struct {
	XMLName xml.Name `xml:"GetBankAccountInfo"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		RequestID     string `xml:"RequestId"`
		IDNO          string `xml:"IDNO,omitempty"`
		AccountNumber string `xml:"AccountNumber,omitempty"`
	} `xml:"request"`
}

type seriaAndNumbersBody struct {
	XMLName xml.Name `xml:"GetSeriaAndNumbers"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		RequestID   string `xml:"RequestId"`
		Count       int    `xml:"Count"`
		StartNumber *int   `xml:"StartNumber,omitempty"`
		Seria       string `xml:"Seria,omitempty"`
		InvoiceType *int   `xml:"InvoiceType,omitempty"`
	} `xml:"request"`
}

// identifiersRequest is shared by every operation whose only argument is a
// list of registry identities.
type identifiersRequest struct {
	RequestID   string              `xml:"RequestId"`
	Identifiers []InvoiceIdentifier `xml:"SeriaAndNumbers>InvoiceIndentificator"`
}

type qrCodesBody struct {
	XMLName xml.Name           `xml:"GetInvoicesQRcodes"`
	Xmlns   string             `xml:"xmlns,attr"`
	Request identifiersRequest `xml:"request"`
}

type contentForPrintBody struct {
	XMLName xml.Name `xml:"GetInvoicesContentForPrint"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		identifiersRequest
		ActorRole   int `xml:"ActorRole"`
		Orientation int `xml:"Orientation"`
	} `xml:"request"`
}

type bySeriaNumberBody struct {
	XMLName xml.Name           `xml:"GetInvoicesBySeriaNumber"`
	Xmlns   string             `xml:"xmlns,attr"`
	Request identifiersRequest `xml:"request"`
}

type checkStatusBody struct {
	XMLName xml.Name           `xml:"CheckInvoicesStatus"`
	Xmlns   string             `xml:"xmlns,attr"`
	Request identifiersRequest `xml:"request"`
}

type forSigningBody struct {
	XMLName xml.Name `xml:"GetInvoicesForSigning"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		RequestID string `xml:"RequestId"`
		ActorRole int    `xml:"ActorRole"`
		Order     int    `xml:"Order"`
	} `xml:"request"`
}

// actorRoleRequest serves GetAcceptedInvoices and GetRejectedInvoices.
type actorRoleRequest struct {
	RequestID string `xml:"RequestId"`
	ActorRole int    `xml:"ActorRole"`
}

type acceptedInvoicesBody struct {
	XMLName xml.Name         `xml:"GetAcceptedInvoices"`
	Xmlns   string           `xml:"xmlns,attr"`
	Request actorRoleRequest `xml:"request"`
}

type rejectedInvoicesBody struct {
	XMLName xml.Name         `xml:"GetRejectedInvoices"`
	Xmlns   string           `xml:"xmlns,attr"`
	Request actorRoleRequest `xml:"request"`
}

type postAcceptedBody struct {
	XMLName xml.Name           `xml:"PostAcceptedInvoices"`
	Xmlns   string             `xml:"xmlns,attr"`
	Request identifiersRequest `xml:"request"`
}

// commentsRequest serves PostRejectedInvoices and PostCanceledInvoices.
type commentsRequest struct {
	RequestID string           `xml:"RequestId"`
	Comments  []InvoiceComment `xml:"InvoicesComments>InvoiceComment"`
}

type postRejectedBody struct {
	XMLName xml.Name        `xml:"PostRejectedInvoices"`
	Xmlns   string          `xml:"xmlns,attr"`
	Request commentsRequest `xml:"request"`
}

type postCanceledBody struct {
	XMLName xml.Name        `xml:"PostCanceledInvoices"`
	Xmlns   string          `xml:"xmlns,attr"`
	Request commentsRequest `xml:"request"`
}

// postInvoicesRequest serves PostInvoices and PostInvoicesWithAttachment.
type postInvoicesRequest struct {
	RequestID         string      `xml:"RequestId"`
	ActorRole         int         `xml:"ActorRole"`
	InvoicesXML       string      `xml:"InvoicesXml"`
	InvoicesXMLStatus int         `xml:"InvoicesXmlStatus"`
	Attachment        *Attachment `xml:"Attachment,omitempty"`
}

type postInvoicesBody struct {
	XMLName xml.Name            `xml:"PostInvoices"`
	Xmlns   string              `xml:"xmlns,attr"`
	Request postInvoicesRequest `xml:"request"`
}

type postInvoicesWithAttachmentBody struct {
	XMLName xml.Name            `xml:"PostInvoicesWithAttachment"`
	Xmlns   string              `xml:"xmlns,attr"`
	Request postInvoicesRequest `xml:"request"`
}

type searchInvoicesBody struct {
	XMLName xml.Name `xml:"SearchInvoices"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		RequestID  string           `xml:"RequestId"`
		ActorRole  int              `xml:"ActorRole"`
		Parameters SearchParameters `xml:"Parameters"`
	} `xml:"request"`
}

type getLogsBody struct {
	XMLName xml.Name `xml:"GetLogs"`
	Xmlns   string   `xml:"xmlns,attr"`
	Request struct {
		RequestID string `xml:"RequestId"`
		From      string `xml:"From"`
		To        string `xml:"To"`
	} `xml:"request"`
}

// ── Response bodies ────────────────────────────────────────────────────────────

// encoding/xml path tags are namespace-agnostic, so one struct per operation
// with the full Body>...Response>...Result path is enough.

type testResponse struct {
	Result string `xml:"Body>TestResponse>TestResult"`
}

type taxpayersInfoResponse struct {
	Result struct {
		RequestID string         `xml:"RequestId"`
		Taxpayers []TaxpayerInfo `xml:"Results>Taxpayer"`
	} `xml:"Body>GetTaxpayersInfoResponse>GetTaxpayersInfoResult"`
}

type bankAccountInfoResponse struct {
	Result struct {
		RequestID string            `xml:"RequestId"`
		Accounts  []BankAccountInfo `xml:"Results>BankAccount"`
	} `xml:"Body>GetBankAccountInfoResponse>GetBankAccountInfoResult"`
}

type seriaAndNumbersResponse struct {
	Result struct {
		RequestID   string              `xml:"RequestId"`
		Identifiers []InvoiceIdentifier `xml:"Results>SeriaAndNumber"`
	} `xml:"Body>GetSeriaAndNumbersResponse>GetSeriaAndNumbersResult"`
}

type qrCodesResponse struct {
	Result struct {
		RequestID string `xml:"RequestId"`
		QRCodes   []struct {
			Seria   string `xml:"Seria"`
			Number  string `xml:"Number"`
			Content string `xml:"Content"` // base64
		} `xml:"Results>InvoiceQRcode"`
	} `xml:"Body>GetInvoicesQRcodesResponse>GetInvoicesQRcodesResult"`
}

type contentForPrintResponse struct {
	Result struct {
		RequestID string `xml:"RequestId"`
		Content   string `xml:"Content"` // base64
	} `xml:"Body>GetInvoicesContentForPrintResponse>GetInvoicesContentForPrintResult"`
}

type bySeriaNumberResponse struct {
	Result struct {
		RequestID string `xml:"RequestId"`
		Invoices  []struct {
			Seria   string `xml:"Seria"`
			Number  string `xml:"Number"`
			Content string `xml:"Content"`
		} `xml:"Results>Invoice"`
	} `xml:"Body>GetInvoicesBySeriaNumberResponse>GetInvoicesBySeriaNumberResult"`
}

type checkStatusResponse struct {
	Result struct {
		RequestID string        `xml:"RequestId"`
		Invoices  []SearchMatch `xml:"Results>Invoice"`
	} `xml:"Body>CheckInvoicesStatusResponse>CheckInvoicesStatusResult"`
}

type forSigningResponse struct {
	Result struct {
		RequestID string           `xml:"RequestId"`
		Invoices  []SigningInvoice `xml:"Results>Invoice"`
	} `xml:"Body>GetInvoicesForSigningResponse>GetInvoicesForSigningResult"`
}

type acceptedInvoicesResponse struct {
	Result struct {
		RequestID   string              `xml:"RequestId"`
		Identifiers []InvoiceIdentifier `xml:"Results>InvoiceIndentificator"`
	} `xml:"Body>GetAcceptedInvoicesResponse>GetAcceptedInvoicesResult"`
}

type rejectedInvoicesResponse struct {
	Result struct {
		RequestID   string              `xml:"RequestId"`
		Identifiers []InvoiceIdentifier `xml:"Results>InvoiceIndentificator"`
	} `xml:"Body>GetRejectedInvoicesResponse>GetRejectedInvoicesResult"`
}

type postAcceptedResponse struct {
	Result PostResult `xml:"Body>PostAcceptedInvoicesResponse>PostAcceptedInvoicesResult"`
}

type postRejectedResponse struct {
	Result PostResult `xml:"Body>PostRejectedInvoicesResponse>PostRejectedInvoicesResult"`
}

type postCanceledResponse struct {
	Result PostResult `xml:"Body>PostCanceledInvoicesResponse>PostCanceledInvoicesResult"`
}

type postInvoicesResponse struct {
	Result PostResult `xml:"Body>PostInvoicesResponse>PostInvoicesResult"`
}

type postInvoicesWithAttachmentResponse struct {
	Result PostResult `xml:"Body>PostInvoicesWithAttachmentResponse>PostInvoicesWithAttachmentResult"`
}

type searchInvoicesResponse struct {
	Result struct {
		RequestID string        `xml:"RequestId"`
		Invoices  []SearchMatch `xml:"Results>Invoice"`
	} `xml:"Body>SearchInvoicesResponse>SearchInvoicesResult"`
}

type getLogsResponse struct {
	Result struct {
		RequestID string           `xml:"RequestId"`
		Logs      []RemoteLogEntry `xml:"Results>LogEntry"`
	} `xml:"Body>GetLogsResponse>GetLogsResult"`
}
