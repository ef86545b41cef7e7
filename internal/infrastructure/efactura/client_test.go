package efactura

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/config"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.EFacturaConfig{
		APIURL:         srv.URL,
		Username:       "ferma-srl",
		Password:       "parola",
		TimeoutSeconds: 5,
		VerifyTLS:      true,
	}, logger.New(logger.Config{Env: "test", Level: "error"}))
	return c, srv
}

func soapOK(inner string) string {
	return `<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body>` +
		inner + `</s:Body></s:Envelope>`
}

func TestClientSendsAuthOnEveryCall(t *testing.T) {
	var captured struct {
		body       string
		soapAction string
		basicUser  string
		basicOK    bool
	}
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		captured.body = string(raw)
		captured.soapAction = r.Header.Get("SOAPAction")
		captured.basicUser, _, captured.basicOK = r.BasicAuth()
		io.WriteString(w, soapOK(`<TestResponse><TestResult>pong</TestResult></TestResponse>`))
	})

	got, err := c.Ping(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", got)

	assert.Equal(t, "http://tempuri.org/IEFacturaService/Test", captured.soapAction)
	assert.True(t, captured.basicOK)
	assert.Equal(t, "ferma-srl", captured.basicUser)
	assert.Contains(t, captured.body, "<wsse:Username>ferma-srl</wsse:Username>")
	assert.Contains(t, captured.body, "<wsse:Password")
	assert.Contains(t, captured.body, "PasswordText")
}

func TestClientFreshRequestIDPerCall(t *testing.T) {
	var ids []string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			ID string `xml:"Body>CheckInvoicesStatus>request>RequestId"`
		}
		require.NoError(t, xml.Unmarshal(raw, &req))
		ids = append(ids, req.ID)
		io.WriteString(w, soapOK(`<CheckInvoicesStatusResponse><CheckInvoicesStatusResult><Results/></CheckInvoicesStatusResult></CheckInvoicesStatusResponse>`))
	})

	pair := []InvoiceIdentifier{{Seria: "AA", Number: "100"}}
	_, err := c.CheckStatus(context.Background(), pair)
	require.NoError(t, err)
	_, err = c.CheckStatus(context.Background(), pair)
	require.NoError(t, err)

	require.Len(t, ids, 2)
	assert.NotEmpty(t, ids[0])
	assert.NotEqual(t, ids[0], ids[1])
}

func TestCheckStatusParsesMapAndSkipsMalformed(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, soapOK(`<CheckInvoicesStatusResponse><CheckInvoicesStatusResult>
			<RequestId>abc</RequestId>
			<Results>
				<Invoice><Seria>AA</Seria><Number>100</Number><InvoiceStatus>3</InvoiceStatus></Invoice>
				<Invoice><Seria>AA</Seria><Number>101</Number><InvoiceStatus>garbage</InvoiceStatus></Invoice>
				<Invoice><Seria></Seria><Number>102</Number><InvoiceStatus>1</InvoiceStatus></Invoice>
				<Invoice><Seria>BB</Seria><Number>7</Number><InvoiceStatus> 7 </InvoiceStatus></Invoice>
			</Results>
		</CheckInvoicesStatusResult></CheckInvoicesStatusResponse>`))
	})

	got, err := c.CheckStatus(context.Background(), []InvoiceIdentifier{
		{Seria: "AA", Number: "100"},
		{Seria: "AA", Number: "101"},
		{Seria: "BB", Number: "7"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[InvoiceIdentifier]int{
		{Seria: "AA", Number: "100"}: 3,
		{Seria: "BB", Number: "7"}:   7,
	}, got)
}

func TestClientWrapsSOAPFault(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, soapOK(`<s:Fault><faultcode>a:InternalServiceFault</faultcode><faultstring>bad credentials</faultstring></s:Fault>`))
	})

	_, err := c.Ping(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemoteProtocol)
	assert.Contains(t, err.Error(), "bad credentials")
}

func TestClientWrapsHTTPError(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "upstream down")
	})

	_, err := c.Ping(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemoteProtocol)

	var rerr *apperrors.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "Test", rerr.Op)
}

func TestGetPrintContentRejectsNonPDF(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, soapOK(`<GetInvoicesContentForPrintResponse><GetInvoicesContentForPrintResult>
			<Content>PGh0bWw+ZXJyb3I8L2h0bWw+</Content>
		</GetInvoicesContentForPrintResult></GetInvoicesContentForPrintResponse>`))
	})

	_, err := c.GetPrintContent(context.Background(), InvoiceIdentifier{Seria: "AA", Number: "1"}, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRemoteProtocol)
	assert.Contains(t, err.Error(), "non-PDF")
}

func TestSearchByCorrelationIDWalksStatusOrder(t *testing.T) {
	var statusesSeen []string
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			Status string `xml:"Body>SearchInvoices>request>Parameters>InvoiceStatus"`
		}
		require.NoError(t, xml.Unmarshal(raw, &req))
		statusesSeen = append(statusesSeen, req.Status)

		// Hit on the third probe (status 7).
		if req.Status == "7" {
			io.WriteString(w, soapOK(`<SearchInvoicesResponse><SearchInvoicesResult>
				<Results><Invoice><Seria> AB </Seria><Number> 2024001 </Number><InvoiceStatus>7</InvoiceStatus></Invoice></Results>
			</SearchInvoicesResult></SearchInvoicesResponse>`))
			return
		}
		io.WriteString(w, soapOK(`<SearchInvoicesResponse><SearchInvoicesResult><Results/></SearchInvoicesResult></SearchInvoicesResponse>`))
	})

	match, err := c.SearchByCorrelationID(context.Background(), "EF-2024-00042")
	require.NoError(t, err)
	require.NotNil(t, match)

	assert.Equal(t, []string{"0", "1", "7"}, statusesSeen)
	assert.Equal(t, "AB", match.Seria, "identifiers are trimmed")
	assert.Equal(t, "2024001", match.Number)
	code, ok := match.StatusCode()
	require.True(t, ok)
	assert.Equal(t, 7, code)
}

func TestSearchByCorrelationIDNoMatchReturnsNil(t *testing.T) {
	calls := 0
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, soapOK(`<SearchInvoicesResponse><SearchInvoicesResult><Results/></SearchInvoicesResult></SearchInvoicesResponse>`))
	})

	match, err := c.SearchByCorrelationID(context.Background(), "EF-NONE")
	require.NoError(t, err)
	assert.Nil(t, match)
	assert.Equal(t, 11, calls, "probes every status once")
}

func TestSearchByCorrelationIDAmbiguous(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, soapOK(`<SearchInvoicesResponse><SearchInvoicesResult>
			<Results>
				<Invoice><Seria>AA</Seria><Number>1</Number><InvoiceStatus>0</InvoiceStatus></Invoice>
				<Invoice><Seria>AA</Seria><Number>2</Number><InvoiceStatus>0</InvoiceStatus></Invoice>
			</Results>
		</SearchInvoicesResult></SearchInvoicesResponse>`))
	})

	_, err := c.SearchByCorrelationID(context.Background(), "EF-DUP")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAmbiguousResult)
}

func TestReserveSeriaAndNumbers(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(raw), "<Count>1</Count>"))
		io.WriteString(w, soapOK(`<GetSeriaAndNumbersResponse><GetSeriaAndNumbersResult>
			<Results><SeriaAndNumber><Seria>AB</Seria><Number>2024002</Number></SeriaAndNumber></Results>
		</GetSeriaAndNumbersResult></GetSeriaAndNumbersResponse>`))
	})

	ids, err := c.ReserveSeriaAndNumbers(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.Equal(t, InvoiceIdentifier{Seria: "AB", Number: "2024002"}, ids[0])
}
