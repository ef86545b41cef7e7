package efactura

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/evghenin/erpnext-moldova-efactura/internal/apperrors"
	"github.com/evghenin/erpnext-moldova-efactura/pkg/logger"
)

// ── Wire constants ─────────────────────────────────────────────────────────────

const (
	soapNS        = "http://schemas.xmlsoap.org/soap/envelope/"
	soapNSService = "http://tempuri.org/"
	// The registry is a WCF service; actions follow the contract name.
	soapActionBase = "http://tempuri.org/IEFacturaService/"

	wsseNS           = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-wssecurity-secext-1.0.xsd"
	wssePasswordText = "http://docs.oasis-open.org/wss/2004/01/oasis-200401-wss-username-token-profile-1.0#PasswordText"

	userAgent       = "erpnext-moldova-efactura/1.0"
	maxResponseSize = 16 << 20 // print content can run into megabytes
)

// ── Transport ──────────────────────────────────────────────────────────────────

// transport posts SOAP envelopes to the registry endpoint. Authentication is
// belt and braces, matching what the portal accepts: a WS-Security
// UsernameToken in the header plus HTTP Basic Auth on the request.
type transport struct {
	url        string
	username   string
	password   string
	httpClient *http.Client
	log        *logger.Logger
}

func newTransport(url, username, password string, timeout time.Duration, verifyTLS bool, log *logger.Logger) *transport {
	httpTransport := &http.Transport{}
	if !verifyTLS {
		httpTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &transport{
		url:      url,
		username: username,
		password: password,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: httpTransport,
		},
		log: log,
	}
}

// ── Envelope structures ────────────────────────────────────────────────────────

type soapEnvelope struct {
	XMLName xml.Name   `xml:"s:Envelope"`
	XmlnsS  string     `xml:"xmlns:s,attr"`
	Header  soapHeader `xml:"s:Header"`
	Body    soapBody   `xml:"s:Body"`
}

type soapHeader struct {
	Security *wsseSecurity `xml:"wsse:Security,omitempty"`
}

type wsseSecurity struct {
	XmlnsWsse      string        `xml:"xmlns:wsse,attr"`
	MustUnderstand string        `xml:"s:mustUnderstand,attr"`
	Token          usernameToken `xml:"wsse:UsernameToken"`
}

type usernameToken struct {
	Username string       `xml:"wsse:Username"`
	Password wssePassword `xml:"wsse:Password"`
}

type wssePassword struct {
	Type  string `xml:"Type,attr"`
	Value string `xml:",chardata"`
}

type soapBody struct {
	Content interface{}
}

func (b soapBody) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	start.Name.Local = "s:Body"
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if err := e.Encode(b.Content); err != nil {
		return err
	}
	return e.EncodeToken(start.End())
}

type soapFaultEnvelope struct {
	Fault *soapFault `xml:"Body>Fault"`
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
}

// ── call ───────────────────────────────────────────────────────────────────────

// call posts one operation and decodes the response body into out. Protocol
// failures (HTTP errors, faults, unparseable XML) come back wrapped in
// apperrors.RemoteError so callers can match apperrors.ErrRemoteProtocol.
func (t *transport) call(ctx context.Context, op string, body, out interface{}) error {
	envelope := soapEnvelope{
		XmlnsS: soapNS,
		Header: soapHeader{
			Security: &wsseSecurity{
				XmlnsWsse:      wsseNS,
				MustUnderstand: "1",
				Token: usernameToken{
					Username: t.username,
					Password: wssePassword{Type: wssePasswordText, Value: t.password},
				},
			},
		},
		Body: soapBody{Content: body},
	}

	payload, err := xml.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return apperrors.Remote(op, fmt.Errorf("marshal envelope: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url,
		bytes.NewReader(append([]byte(xml.Header), payload...)))
	if err != nil {
		return apperrors.Remote(op, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", soapActionBase+op)
	req.Header.Set("User-Agent", userAgent)
	req.SetBasicAuth(t.username, t.password)

	started := time.Now()
	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.Remote(op, ctx.Err())
		}
		return apperrors.Remote(op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return apperrors.Remote(op, fmt.Errorf("read response: %w", err))
	}

	t.log.Debug().
		Str("operation", op).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(started)).
		Msg("efactura call")

	// A fault may arrive with a 500, so inspect the body before the status.
	var faultEnv soapFaultEnvelope
	if err := xml.Unmarshal(raw, &faultEnv); err == nil && faultEnv.Fault != nil {
		return apperrors.Remote(op, fmt.Errorf("soap fault [%s]: %s",
			faultEnv.Fault.FaultCode, faultEnv.Fault.FaultString))
	}

	if resp.StatusCode != http.StatusOK {
		return apperrors.Remote(op, fmt.Errorf("http status %d: %s",
			resp.StatusCode, truncate(raw, 512)))
	}

	if out == nil {
		return nil
	}
	if err := xml.Unmarshal(raw, out); err != nil {
		return apperrors.Remote(op, fmt.Errorf("parse response: %w", err))
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
