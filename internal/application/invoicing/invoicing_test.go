package invoicing

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/entity"
	"github.com/evghenin/erpnext-moldova-efactura/internal/domain/fiscal"
	"github.com/evghenin/erpnext-moldova-efactura/internal/infrastructure/efactura"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// ── fakes ──────────────────────────────────────────────────────────────────────

type fakeInvoiceRepo struct {
	invoices map[string]*entity.SalesInvoice
	statuses map[string]string
}

func (f *fakeInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.SalesInvoice, error) {
	if inv, ok := f.invoices[id]; ok {
		return inv, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeInvoiceRepo) GetByName(ctx context.Context, name string) (*entity.SalesInvoice, error) {
	for _, inv := range f.invoices {
		if inv.Name == name {
			return inv, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeInvoiceRepo) SetFiscalStatus(ctx context.Context, id string, status string) error {
	if f.statuses == nil {
		f.statuses = map[string]string{}
	}
	f.statuses[id] = status
	return nil
}

type fakeCustomerRepo struct {
	customers   map[string]*entity.Customer
	territories map[string]*entity.Territory
}

func (f *fakeCustomerRepo) GetByID(ctx context.Context, id string) (*entity.Customer, error) {
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeCustomerRepo) Get(ctx context.Context, name string) (*entity.Territory, error) {
	if t, ok := f.territories[name]; ok {
		return t, nil
	}
	return nil, apperrors.ErrNotFound
}

type fakeEFacturaRepo struct {
	records map[string]*entity.EFactura // by name

	cleared    map[string]int
	statusSet  map[string]int
	adopted    map[string]efactura.InvoiceIdentifier
	cancelled  map[string]bool
	partySet   map[string]entity.Party // key role
	datesSet   bool
	touched    map[string]bool
}

func newFakeEFacturaRepo(records ...*entity.EFactura) *fakeEFacturaRepo {
	byName := map[string]*entity.EFactura{}
	for _, r := range records {
		byName[r.Name] = r
	}
	return &fakeEFacturaRepo{
		records:   byName,
		cleared:   map[string]int{},
		statusSet: map[string]int{},
		adopted:   map[string]efactura.InvoiceIdentifier{},
		cancelled: map[string]bool{},
		partySet:  map[string]entity.Party{},
		touched:   map[string]bool{},
	}
}

func (f *fakeEFacturaRepo) GetByID(ctx context.Context, id string) (*entity.EFactura, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeEFacturaRepo) GetByName(ctx context.Context, name string) (*entity.EFactura, error) {
	if r, ok := f.records[name]; ok {
		return r, nil
	}
	return nil, apperrors.ErrNotFound
}

func (f *fakeEFacturaRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]*entity.EFactura, error) {
	var out []*entity.EFactura
	for _, r := range f.records {
		if r.InvoiceID == invoiceID && r.DocStatus != entity.DocStatusCancelled {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeEFacturaRepo) ListCheckable(ctx context.Context, statuses []int, limit int) ([]*entity.EFactura, error) {
	return nil, nil
}

func (f *fakeEFacturaRepo) ListUnregisteredDrafts(ctx context.Context) ([]*entity.EFactura, error) {
	return nil, nil
}

func (f *fakeEFacturaRepo) FindBySeriesNumber(ctx context.Context, series, number string) (*entity.EFactura, error) {
	return nil, apperrors.ErrNotFound
}

func (f *fakeEFacturaRepo) SetRemoteStatus(ctx context.Context, id string, status int, checkedAt time.Time) error {
	f.statusSet[id] = status
	return nil
}

func (f *fakeEFacturaRepo) TouchChecked(ctx context.Context, id string, checkedAt time.Time) error {
	f.touched[id] = true
	return nil
}

func (f *fakeEFacturaRepo) AdoptRegistration(ctx context.Context, id, series, number string, status int) error {
	f.adopted[id] = efactura.InvoiceIdentifier{Seria: series, Number: number}
	f.statusSet[id] = status
	return nil
}

func (f *fakeEFacturaRepo) ClearRegistration(ctx context.Context, id string, status int) error {
	f.cleared[id] = status
	return nil
}

func (f *fakeEFacturaRepo) SetParty(ctx context.Context, id, role string, p entity.Party) error {
	f.partySet[role] = p
	return nil
}

func (f *fakeEFacturaRepo) SetDates(ctx context.Context, id string, issue, delivery time.Time) error {
	f.datesSet = true
	return nil
}

func (f *fakeEFacturaRepo) Cancel(ctx context.Context, id string) error {
	f.cancelled[id] = true
	return nil
}

type fakeGateway struct {
	postedXML     []string
	postedIDs     []string
	postedStatus  []int
	postResult    *efactura.PostResult

	checkStatuses map[efactura.InvoiceIdentifier]int
	match         *efactura.SearchMatch
	reserved      []efactura.InvoiceIdentifier
	pdf           []byte

	taxpayers []efactura.TaxpayerInfo
	accounts  []efactura.BankAccountInfo
}

func (g *fakeGateway) PostInvoices(ctx context.Context, correlationID string, actorRole int, invoicesXML string, xmlStatus int) (*efactura.PostResult, error) {
	g.postedIDs = append(g.postedIDs, correlationID)
	g.postedXML = append(g.postedXML, invoicesXML)
	g.postedStatus = append(g.postedStatus, xmlStatus)
	if g.postResult != nil {
		return g.postResult, nil
	}
	return &efactura.PostResult{TotalInvoices: 1, TotalInvoicesPosted: 1}, nil
}

func (g *fakeGateway) CheckStatus(ctx context.Context, ids []efactura.InvoiceIdentifier) (map[efactura.InvoiceIdentifier]int, error) {
	return g.checkStatuses, nil
}

func (g *fakeGateway) SearchByCorrelationID(ctx context.Context, correlationID string) (*efactura.SearchMatch, error) {
	return g.match, nil
}

func (g *fakeGateway) ReserveSeriaAndNumbers(ctx context.Context, count int) ([]efactura.InvoiceIdentifier, error) {
	return g.reserved, nil
}

func (g *fakeGateway) GetPrintContent(ctx context.Context, id efactura.InvoiceIdentifier, orientation int) ([]byte, error) {
	return g.pdf, nil
}

func (g *fakeGateway) GetTaxpayersInfo(ctx context.Context, fiscalCodes []string) ([]efactura.TaxpayerInfo, error) {
	return g.taxpayers, nil
}

func (g *fakeGateway) GetBankAccountInfo(ctx context.Context, idno, accountNumber string) ([]efactura.BankAccountInfo, error) {
	return g.accounts, nil
}

func testLog() *logger.Logger {
	return logger.New(logger.Config{Env: "test", Level: "error"})
}

func testRecord() *entity.EFactura {
	return &entity.EFactura{
		ID:        "ef-1",
		Name:      "EF-2024-00042",
		InvoiceID: "inv-1",
		DocStatus: entity.DocStatusSubmitted,

		RemoteStatus: entity.RemoteStatusPending,
		IssueDate:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		DeliveryDate: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Type:         entity.EFacturaTypeInvoice,
		Currency:     "MDL",
		Supplier: entity.Party{
			IDNO: "1003600012345", Name: "Ferma SRL", Address: "Chisinau",
			TaxpayerType: "1", BankAccount: "MD24AG000000022511",
			BankName: "MAIB", BankCode: "AGRNMD2X",
		},
		Customer: entity.Party{
			IDNO: "1002600098765", Name: "Magazin SRL", Address: "Balti", TaxpayerType: "1",
		},
		Items: []entity.EFacturaItem{{
			Idx: 1, ItemCode: "A", ItemName: "Mere", UOM: "kg",
			Qty: decimal.NewFromInt(1),
			Rate: decimal.NewFromInt(100), NetRate: decimal.NewFromInt(100),
			NetAmount: decimal.NewFromInt(100), VATRate: decimal.NewFromInt(20),
			VATAmount: decimal.NewFromInt(20), Amount: decimal.NewFromInt(120),
		}},
		Total:    decimal.NewFromInt(120),
		VATTotal: decimal.NewFromInt(20),
	}
}

func newFiscalService(invoices *fakeInvoiceRepo, customers *fakeCustomerRepo, efacturas *fakeEFacturaRepo, scope string) *FiscalStatusService {
	return NewFiscalStatusService(invoices, customers, customers, efacturas, scope, testLog())
}

func newRecordService(efacturas *fakeEFacturaRepo, gw *fakeGateway, fiscalSvc *FiscalStatusService) *RecordService {
	return NewRecordService(efacturas, gw, efactura.NewComposer("ro"), fiscalSvc, false, testLog())
}

// minimal wiring where the record's invoice resolves cleanly
func fiscalFixture(record *entity.EFactura) (*fakeInvoiceRepo, *fakeCustomerRepo, *fakeEFacturaRepo) {
	invoices := &fakeInvoiceRepo{invoices: map[string]*entity.SalesInvoice{
		"inv-1": {
			ID: "inv-1", Name: "SINV-001", CustomerID: "cust-1",
			DocStatus: entity.DocStatusSubmitted, GrandTotal: decimal.NewFromInt(120),
		},
	}}
	customers := &fakeCustomerRepo{
		customers: map[string]*entity.Customer{
			"cust-1": {ID: "cust-1", Type: entity.CustomerTypeCompany, Territory: "Chisinau"},
		},
		territories: map[string]*entity.Territory{
			"Moldova":  {Name: "Moldova", Left: 1, Right: 100},
			"Chisinau": {Name: "Chisinau", Left: 10, Right: 20},
		},
	}
	efacturas := newFakeEFacturaRepo(record)
	return invoices, customers, efacturas
}

// ── FiscalStatusService ────────────────────────────────────────────────────────

func TestFiscalStatusRefreshPersistsResolvedStatus(t *testing.T) {
	record := testRecord()
	record.RemoteStatus = entity.RemoteStatusAccepted
	invoices, customers, efacturas := fiscalFixture(record)

	svc := newFiscalService(invoices, customers, efacturas, "Moldova")
	require.NoError(t, svc.RefreshInvoice(context.Background(), "inv-1"))

	assert.Equal(t, string(fiscal.StatusCompleted), invoices.statuses["inv-1"])
}

func TestFiscalStatusMissingScopeSurfacesConfigurationError(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)

	svc := newFiscalService(invoices, customers, efacturas, "")
	err := svc.RefreshInvoice(context.Background(), "inv-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConfiguration)
	assert.Empty(t, invoices.statuses, "nothing is persisted on configuration errors")
}

// ── RecordService ──────────────────────────────────────────────────────────────

func TestSendUnsignedPostsAndClearsIdentity(t *testing.T) {
	record := testRecord()
	record.RemoteSeries = "ST" // stale identity from an earlier attempt
	record.RemoteNumber = "1"
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	posted, err := svc.SendUnsigned(context.Background(), record.Name)
	require.NoError(t, err)
	assert.Equal(t, 1, posted)

	require.Len(t, gw.postedIDs, 1)
	assert.Equal(t, record.Name, gw.postedIDs[0], "correlation id is the document name")
	assert.Equal(t, efactura.XMLStatusUnsigned, gw.postedStatus[0])
	assert.Contains(t, gw.postedXML[0], "<Documents>")
	assert.Contains(t, gw.postedXML[0], "<id>EF-2024-00042</id>")

	assert.Equal(t, entity.RemoteStatusDraft, efacturas.cleared["ef-1"],
		"identity cleared; the registry reassigns it at signing")
}

func TestSendUnsignedSurfacesRegistryRejection(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{postResult: &efactura.PostResult{ErrorMessage: "invalid IDNO"}}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	_, err := svc.SendUnsigned(context.Background(), record.Name)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemoteProtocol)
	assert.Contains(t, err.Error(), "invalid IDNO")
	assert.Empty(t, efacturas.cleared, "nothing is mutated on rejection")
}

func TestSendUnsignedSurfacesPartialPost(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{postResult: &efactura.PostResult{TotalInvoices: 1, TotalInvoicesPosted: 0}}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	_, err := svc.SendUnsigned(context.Background(), record.Name)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0 / 1")
}

func TestGetForSignReservesIdentityWhenMissing(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{reserved: []efactura.InvoiceIdentifier{{Seria: "AB", Number: "2024001"}}}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	payload, err := svc.GetForSign(context.Background(), record.Name)
	require.NoError(t, err)

	assert.Equal(t, efactura.InvoiceIdentifier{Seria: "AB", Number: "2024001"}, efacturas.adopted["ef-1"])

	raw, err := base64.StdEncoding.DecodeString(payload.XMLBase64)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<Seria>AB</Seria>", "reserved identity is inside the signed region")
	assert.NotEmpty(t, payload.HashBase64)
}

func TestGetForSignKeepsExistingIdentity(t *testing.T) {
	record := testRecord()
	record.RemoteSeries = "AB"
	record.RemoteNumber = "2024001"
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	_, err := svc.GetForSign(context.Background(), record.Name)
	require.NoError(t, err)
	assert.Empty(t, efacturas.adopted, "no reservation when identity exists")
}

func TestProcessSignedXMLAssemblesEnvelope(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{}

	content := base64.StdEncoding.EncodeToString([]byte(
		"\xef\xbb\xbf<?xml version=\"1.0\"?>\n<SupplierInfo><Total>120.00</Total></SupplierInfo>"))
	signature := base64.StdEncoding.EncodeToString([]byte(
		`<Signature xmlns="http://www.w3.org/2000/09/xmldsig#">sig</Signature>`))

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	posted, err := svc.ProcessSignedXML(context.Background(), record.Name, content, signature)
	require.NoError(t, err)
	assert.Equal(t, 1, posted)

	require.Len(t, gw.postedXML, 1)
	sent := gw.postedXML[0]
	assert.Equal(t, efactura.XMLStatusSigned, gw.postedStatus[0])
	assert.Equal(t, 1, strings.Count(sent, "<?xml"), "inner declarations are stripped")
	assert.Contains(t, sent, "<SupplierInfo><Total>120.00</Total></SupplierInfo>")
	assert.Contains(t, sent, "<Signatures>")
	assert.Contains(t, sent, `<hash Id="_`)
	assert.NotContains(t, sent, "\xef\xbb\xbf", "BOM is stripped")

	assert.Equal(t, entity.RemoteStatusSignedBySupplier, efacturas.statusSet["ef-1"])
}

func TestProcessSignedXMLValidatesInputs(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)

	svc := newRecordService(efacturas, &fakeGateway{}, newFiscalService(invoices, customers, efacturas, "Moldova"))

	_, err := svc.ProcessSignedXML(context.Background(), record.Name, "", "sig")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = svc.ProcessSignedXML(context.Background(), record.Name, "not-base64!!!", base64.StdEncoding.EncodeToString([]byte("x")))
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRefreshStatusRegisteredRecord(t *testing.T) {
	record := testRecord()
	record.RemoteSeries = "AA"
	record.RemoteNumber = "100"
	record.RemoteStatus = entity.RemoteStatusSent
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{checkStatuses: map[efactura.InvoiceIdentifier]int{
		{Seria: "AA", Number: "100"}: entity.RemoteStatusAccepted,
	}}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	updated, err := svc.RefreshStatus(context.Background(), record.Name)
	require.NoError(t, err)
	assert.Equal(t, entity.RemoteStatusAccepted, updated.RemoteStatus)
	assert.Equal(t, entity.RemoteStatusAccepted, efacturas.statusSet["ef-1"])
}

func TestRefreshStatusUnregisteredAdoptsSearchMatch(t *testing.T) {
	record := testRecord()
	invoices, customers, efacturas := fiscalFixture(record)
	gw := &fakeGateway{match: &efactura.SearchMatch{Seria: "AB", Number: "2024001", InvoiceStatus: "1"}}

	svc := newRecordService(efacturas, gw, newFiscalService(invoices, customers, efacturas, "Moldova"))
	updated, err := svc.RefreshStatus(context.Background(), record.Name)
	require.NoError(t, err)
	assert.Equal(t, "AB", updated.RemoteSeries)
	assert.Equal(t, entity.RemoteStatusSignedBySupplier, updated.RemoteStatus)
}

func TestCancelGuard(t *testing.T) {
	invoices := &fakeInvoiceRepo{invoices: map[string]*entity.SalesInvoice{
		"inv-1": {ID: "inv-1", DocStatus: entity.DocStatusDraft},
	}}
	customers := &fakeCustomerRepo{}

	t.Run("pending registration cancels locally", func(t *testing.T) {
		record := testRecord()
		efacturas := newFakeEFacturaRepo(record)
		svc := newRecordService(efacturas, &fakeGateway{}, newFiscalService(invoices, customers, efacturas, "Moldova"))
		require.NoError(t, svc.Cancel(context.Background(), record.Name))
		assert.True(t, efacturas.cancelled["ef-1"])
	})

	t.Run("sent document must be cancelled on the portal", func(t *testing.T) {
		record := testRecord()
		record.RemoteStatus = entity.RemoteStatusSent
		efacturas := newFakeEFacturaRepo(record)
		svc := newRecordService(efacturas, &fakeGateway{}, newFiscalService(invoices, customers, efacturas, "Moldova"))
		err := svc.Cancel(context.Background(), record.Name)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
		assert.False(t, efacturas.cancelled["ef-1"])
	})
}

func TestUpdateDatesGuards(t *testing.T) {
	record := testRecord()
	record.RemoteStatus = entity.RemoteStatusDraft // already registered remotely
	efacturas := newFakeEFacturaRepo(record)
	svc := newRecordService(efacturas, &fakeGateway{}, nil)

	err := svc.UpdateDates(context.Background(), record.Name,
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.False(t, efacturas.datesSet)

	record.RemoteStatus = entity.RemoteStatusPending
	require.NoError(t, svc.UpdateDates(context.Background(), record.Name,
		time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)))
	assert.True(t, efacturas.datesSet)
}

func TestAutofillParties(t *testing.T) {
	record := testRecord()
	efacturas := newFakeEFacturaRepo(record)
	gw := &fakeGateway{
		taxpayers: []efactura.TaxpayerInfo{{
			IDNO: "1003600012345", VATCode: "0303030", Name: "FERMA S.R.L.",
			Address: "mun. Chisinau, str. Stefan cel Mare 1", TaxpayerType: "1",
		}},
		accounts: []efactura.BankAccountInfo{{
			AccountNumber: "MD24AG000000022511", BranchTitle: "MAIB Centru", BranchCode: "AGRNMD2X723",
		}},
	}
	svc := newRecordService(efacturas, gw, nil)

	require.NoError(t, svc.AutofillParties(context.Background(), record.Name))

	supplier := efacturas.partySet["supplier"]
	assert.Equal(t, "FERMA S.R.L.", supplier.Name, "registry data wins over local edits")
	assert.Equal(t, "MAIB Centru", supplier.BankName)
	assert.Equal(t, "AGRNMD2X723", supplier.BankCode)

	_, transporterTouched := efacturas.partySet["transporter"]
	assert.False(t, transporterTouched, "blocks without an IDNO stay untouched")
}

func TestDownloadPDFRequiresIdentity(t *testing.T) {
	record := testRecord()
	efacturas := newFakeEFacturaRepo(record)
	svc := newRecordService(efacturas, &fakeGateway{pdf: []byte("%PDF-1.7")}, nil)

	_, _, err := svc.DownloadPDF(context.Background(), record.Name)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	record.RemoteSeries = "AB"
	record.RemoteNumber = "2024001"
	name, data, err := svc.DownloadPDF(context.Background(), record.Name)
	require.NoError(t, err)
	assert.Equal(t, "AB2024001.pdf", name)
	assert.Equal(t, []byte("%PDF-1.7"), data)
}

// ── Bulk job and progress hub ──────────────────────────────────────────────────

func TestBulkFiscalStatusReportsProgress(t *testing.T) {
	record := testRecord()
	record.RemoteStatus = entity.RemoteStatusAccepted
	invoices, customers, efacturas := fiscalFixture(record)
	hub := NewProgressHub()

	bulk := NewBulkFiscalStatus(newFiscalService(invoices, customers, efacturas, "Moldova"), hub, testLog())
	jobID := bulk.Start(context.Background(), []string{"inv-1", "missing-invoice"})

	sub := hub.Subscribe(jobID)
	var final Progress
	for p := range sub {
		final = p
	}

	assert.True(t, final.Done)
	assert.Equal(t, 2, final.Total)
	assert.Equal(t, 1, final.Updated)
	assert.Equal(t, 1, final.Failed, "a missing invoice fails that item only")

	snap, ok := hub.Snapshot(jobID)
	require.True(t, ok)
	assert.True(t, snap.Done)
}

func TestProgressHubUnknownJob(t *testing.T) {
	hub := NewProgressHub()

	_, ok := hub.Snapshot("nope")
	assert.False(t, ok)

	sub := hub.Subscribe("nope")
	_, open := <-sub
	assert.False(t, open, "unknown jobs get a closed channel")
}
