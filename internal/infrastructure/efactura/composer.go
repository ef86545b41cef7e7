package efactura

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/ucarion/c14n"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
)

// ── Composer ───────────────────────────────────────────────────────────────────

// Composer renders the registry's document XML from a local e-Factura record.
// Output is deterministic for a given record: element order is fixed and
// amounts are always formatted with two decimals.
type Composer struct {
	uoms *UOMTranslator
}

// NewComposer builds a composer that localizes units of measure into the
// configured registry language.
func NewComposer(language string) *Composer {
	return &Composer{uoms: NewUOMTranslator(language)}
}

// ComposeOptions control the envelope. Upload wants the full Documents
// wrapper with the correlation id; the signing flow wants the bare
// SupplierInfo with no declaration, since that is the canonicalized region.
type ComposeOptions struct {
	Envelope    bool
	Declaration bool
}

// Compose renders the record. Missing required fields and zero quantities
// surface as validation errors naming the offending field.
func (c *Composer) Compose(ef *entity.EFactura, opts ComposeOptions) ([]byte, error) {
	if err := validateForXML(ef); err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if opts.Declaration {
		doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	}

	var supplierInfo *etree.Element
	if opts.Envelope {
		documents := doc.CreateElement("Documents")
		document := documents.CreateElement("Document")
		supplierInfo = document.CreateElement("SupplierInfo")
		additional := document.CreateElement("AdditionalInformation")
		// The registry echoes this id back in search results; it is the only
		// way to find a document that has no series and number yet.
		additional.CreateElement("id").SetText(ef.Name)
	} else {
		supplierInfo = doc.CreateElement("SupplierInfo")
	}

	if ef.Registered() {
		supplierInfo.CreateElement("Seria").SetText(ef.RemoteSeries)
		supplierInfo.CreateElement("Number").SetText(ef.RemoteNumber)
	}

	supplierInfo.CreateElement("IssuedDate").SetText(midnightISO(ef.IssueDate))
	supplierInfo.CreateElement("DeliveryDate").SetText(midnightISO(ef.DeliveryDate))

	c.addParty(supplierInfo, "Supplier", ef.Supplier, true)
	c.addParty(supplierInfo, "Buyer", ef.Customer, true)
	if !ef.Transporter.Empty() {
		c.addParty(supplierInfo, "Transporter", ef.Transporter, true)
	}

	supplierInfo.CreateElement("Total").SetText(amount(ef.Total))
	supplierInfo.CreateElement("TotalTVA").SetText(amount(ef.VATTotal))

	merchandises := supplierInfo.CreateElement("Merchandises")
	for _, item := range ef.Items {
		row := merchandises.CreateElement("Row")
		row.CreateAttr("Code", item.ItemCode)
		row.CreateAttr("Name", item.ItemName)
		row.CreateAttr("UnitOfMeasure", c.uoms.Translate(item.UOM))
		row.CreateAttr("Quantity", item.Qty.String())
		row.CreateAttr("UnitPriceWithoutTVA", amount(item.NetRate))
		row.CreateAttr("TotalPriceWithoutTVA", amount(item.NetAmount))
		row.CreateAttr("TVA", item.VATRate.Round(0).String())
		row.CreateAttr("TotalTVA", amount(item.VATAmount))
		row.CreateAttr("TotalPrice", amount(item.Amount))
	}

	supplierInfo.CreateElement("IsFarma").SetText("false")
	supplierInfo.CreateElement("CreationMotiv").SetText(creationMotive(ef.Type))

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("efactura: serialize document xml: %w", err)
	}
	return out, nil
}

// SigningPayload is what a browser-side signing plugin needs: the exact XML
// region to sign and the SHA-1 digest of its canonical form, both base64.
type SigningPayload struct {
	XMLBase64  string
	HashBase64 string
}

// ComposeForSigning renders the bare SupplierInfo region and digests its
// inclusive C14N canonicalization. The registry verifies the signature
// against exactly this form, so envelope and declaration must stay off.
func (c *Composer) ComposeForSigning(ef *entity.EFactura) (*SigningPayload, error) {
	raw, err := c.Compose(ef, ComposeOptions{Envelope: false, Declaration: false})
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Entity = map[string]string{}
	canonical, err := c14n.Canonicalize(dec)
	if err != nil {
		return nil, fmt.Errorf("efactura: canonicalize document xml: %w", err)
	}

	digest := sha1.Sum(canonical)
	return &SigningPayload{
		XMLBase64:  base64.StdEncoding.EncodeToString(raw),
		HashBase64: base64.StdEncoding.EncodeToString(digest[:]),
	}, nil
}

// ── helpers ────────────────────────────────────────────────────────────────────

func (c *Composer) addParty(parent *etree.Element, tag string, p entity.Party, withBank bool) {
	el := parent.CreateElement(tag)
	el.CreateAttr("IDNO", p.IDNO)
	el.CreateAttr("CodTVA", p.VATID)
	el.CreateAttr("TaxpayerType", p.TaxpayerType)
	el.CreateAttr("Title", p.Name)
	el.CreateAttr("Address", p.Address)
	if withBank {
		bank := el.CreateElement("BankAccount")
		bank.CreateAttr("Account", p.BankAccount)
		bank.CreateAttr("BranchTitle", p.BankName)
		bank.CreateAttr("BranchCode", p.BankCode)
	}
}

// midnightISO renders a date as its midnight timestamp, the form the
// registry's date parser expects.
func midnightISO(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).
		Format("2006-01-02T15:04:05")
}

// amount formats a monetary value with exactly two decimals; zero renders as
// "0.00", never empty.
func amount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func creationMotive(docType string) string {
	if docType == entity.EFacturaTypeTransfer {
		return "4"
	}
	return "5"
}

func validateForXML(ef *entity.EFactura) error {
	required := []struct {
		field string
		value string
	}{
		{"supplier_idno", ef.Supplier.IDNO},
		{"supplier_name", ef.Supplier.Name},
		{"supplier_address", ef.Supplier.Address},
		{"supplier_taxpayer_type", ef.Supplier.TaxpayerType},
		{"supplier_bank_account", ef.Supplier.BankAccount},
		{"supplier_bank_name", ef.Supplier.BankName},
		{"supplier_bank_code", ef.Supplier.BankCode},
		{"customer_idno", ef.Customer.IDNO},
		{"customer_name", ef.Customer.Name},
		{"customer_address", ef.Customer.Address},
		{"customer_taxpayer_type", ef.Customer.TaxpayerType},
	}
	for _, r := range required {
		if r.value == "" {
			return apperrors.Validation(r.field, "must not be empty")
		}
	}
	if ef.IssueDate.IsZero() {
		return apperrors.Validation("issue_date", "must be set")
	}
	if ef.DeliveryDate.IsZero() {
		return apperrors.Validation("delivery_date", "must be set")
	}
	for _, item := range ef.Items {
		if item.Qty.IsZero() {
			return apperrors.Validation("qty",
				fmt.Sprintf("row %d: quantity must not be 0", item.Idx))
		}
	}
	return nil
}
