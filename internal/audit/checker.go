package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hasanmaki/rekaprgu-3duta/internal/models"
)

// CheckerConfig carries the provider endpoint and parsing identifiers.
type CheckerConfig struct {
	Endpoint          string
	Username          string
	CardIdentifier    string
	PackageIdentifier string
	Timeout           time.Duration

	// Precheck probes the endpoint with a sentinel subscriber before
	// every real request. Off by default: it doubles request volume.
	Precheck        bool
	PrecheckNumber  string
	PrecheckTimeout time.Duration
}

// Checker issues single status-check requests against the provider API.
// Expected operational failures (bad HTTP status, bad JSON, timeouts,
// connection errors) become skipped outcomes; anything unexpected is an
// error outcome. Neither is fatal to a run.
type Checker struct {
	cfg    CheckerConfig
	client *http.Client
}

// NewChecker builds a checker with a bounded request timeout (30s default).
func NewChecker(cfg CheckerConfig) *Checker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PrecheckTimeout == 0 {
		cfg.PrecheckTimeout = 5 * time.Second
	}
	if cfg.PrecheckNumber == "" {
		cfg.PrecheckNumber = "0"
	}
	return &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// providerResponse is the JSON body returned by the status endpoint.
// Balance arrives as either a string or a number depending on provider
// version, so it is captured loosely and stringified.
type providerResponse struct {
	MSISDN   string            `json:"msisdn"`
	Balance  any               `json:"custbalanceinfo"`
	Services []providerService `json:"Services"`
}

type providerService struct {
	PackageName    string `json:"packagename"`
	ActivationDate string `json:"activationdate"`
	EndDate        string `json:"enddate"`
}

// Check performs one bounded-timeout request for the given number and
// classifies the result. It never returns an error: failures are data.
func (c *Checker) Check(number string) models.AuditOutcome {
	if c.cfg.Precheck {
		if detail, ok := c.probe(); !ok {
			return skipped(number, detail)
		}
	}

	req, err := http.NewRequest(http.MethodGet, c.requestURL(number), nil)
	if err != nil {
		// A request that cannot even be built is a configuration bug,
		// not an operational hiccup.
		return models.AuditOutcome{
			Number:      number,
			Status:      models.AuditError,
			ErrorDetail: "build request: " + err.Error(),
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return skipped(number, describeTransportError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return skipped(number, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var body providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return skipped(number, "invalid JSON response")
	}

	outcome := parseResponse(body, c.cfg.CardIdentifier, c.cfg.PackageIdentifier)
	if outcome.Number == "" {
		outcome.Number = number
	}
	outcome.Status = models.AuditSuccess
	return outcome
}

// probe pings the endpoint with the sentinel number. Only reachability
// matters; the response body is discarded.
func (c *Checker) probe() (string, bool) {
	client := &http.Client{Timeout: c.cfg.PrecheckTimeout}
	resp, err := client.Get(c.requestURL(c.cfg.PrecheckNumber))
	if err != nil {
		return "endpoint unreachable: " + describeTransportError(err), false
	}
	resp.Body.Close()
	return "", true
}

func (c *Checker) requestURL(number string) string {
	params := url.Values{}
	params.Set("username", c.cfg.Username)
	params.Set("to", number)
	return c.cfg.Endpoint + "?" + params.Encode()
}

// describeTransportError distinguishes timeout from connection failure
// in the detail text; both land in the skipped bucket.
func describeTransportError(err error) string {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "request timeout"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return "connection error: " + urlErr.Err.Error()
	}
	return "connection error: " + err.Error()
}

// parseResponse extracts the normalized subscriber number, balance, and
// the card/package services matched by identifier substring. A missing
// match leaves those fields empty; the last match wins when several
// services share an identifier.
func parseResponse(body providerResponse, cardIdentifier, packageIdentifier string) models.AuditOutcome {
	outcome := models.AuditOutcome{
		Number:  normalizeMSISDN(body.MSISDN),
		Balance: stringifyBalance(body.Balance),
	}
	for _, svc := range body.Services {
		name := strings.ToLower(svc.PackageName)
		if cardIdentifier != "" && strings.Contains(name, strings.ToLower(cardIdentifier)) {
			outcome.CardName = svc.PackageName
			outcome.CardActivation = svc.ActivationDate
			outcome.CardExpiry = svc.EndDate
		}
		if packageIdentifier != "" && strings.Contains(name, strings.ToLower(packageIdentifier)) {
			outcome.PackageName = svc.PackageName
			outcome.PackageActivation = svc.ActivationDate
			outcome.PackageExpiry = svc.EndDate
		}
	}
	return outcome
}

// normalizeMSISDN rewrites a leading country code 62 to the local 0 form.
func normalizeMSISDN(msisdn string) string {
	if strings.HasPrefix(msisdn, "62") {
		return "0" + msisdn[2:]
	}
	return msisdn
}

func stringifyBalance(v any) string {
	switch b := v.(type) {
	case nil:
		return "0"
	case string:
		return b
	case float64:
		if b == float64(int64(b)) {
			return fmt.Sprintf("%d", int64(b))
		}
		return fmt.Sprintf("%v", b)
	default:
		return fmt.Sprintf("%v", b)
	}
}

func skipped(number, detail string) models.AuditOutcome {
	return models.AuditOutcome{
		Number:      number,
		Status:      models.AuditSkipped,
		ErrorDetail: detail,
	}
}
