package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	SandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	ProductionBaseURL = "https://api.safaricom.co.ke"

	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"

	transactionType   = "CustomerPayBillOnline"
	maxReferenceLen   = 12
	maxDescriptionLen = 13
	timestampLayout   = "20060102150405"
)

// Daraja timestamps are East Africa Time.
var eat = time.FixedZone("EAT", 3*60*60)

// BaseURLForEnv maps MPESA_ENV to a Daraja host.
func BaseURLForEnv(env string) string {
	if strings.EqualFold(env, "production") {
		return ProductionBaseURL
	}
	return SandboxBaseURL
}

// TokenSource supplies bearer tokens for Daraja calls.
type TokenSource interface {
	GetToken(ctx context.Context) (string, error)
}

// DarajaConfig holds the paybill settings used to sign STK requests.
type DarajaConfig struct {
	BaseURL     string
	ShortCode   string
	Passkey     string
	CallbackURL string
}

// DarajaProvider implements PaymentProvider against Safaricom's Daraja API.
type DarajaProvider struct {
	cfg        DarajaConfig
	tokens     TokenSource
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewDarajaProvider creates a new DarajaProvider.
func NewDarajaProvider(cfg DarajaConfig, tokens TokenSource, httpClient *http.Client, logger *zap.Logger) *DarajaProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &DarajaProvider{
		cfg:        cfg,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source used for request timestamps.
func (p *DarajaProvider) WithClock(now func() time.Time) *DarajaProvider {
	p.now = now
	return p
}

// ---- Daraja request/response structs ----

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string          `json:"MerchantRequestID"`
	CheckoutRequestID   string          `json:"CheckoutRequestID"`
	ResponseCode        json.RawMessage `json:"ResponseCode"`
	ResponseDescription string          `json:"ResponseDescription"`
	CustomerMessage     string          `json:"CustomerMessage"`
	ErrorCode           string          `json:"errorCode"`
	ErrorMessage        string          `json:"errorMessage"`
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        json.RawMessage `json:"ResponseCode"`
	ResponseDescription string          `json:"ResponseDescription"`
	ResultCode          json.RawMessage `json:"ResultCode"`
	ResultDesc          string          `json:"ResultDesc"`
	ErrorCode           string          `json:"errorCode"`
	ErrorMessage        string          `json:"errorMessage"`
}

// ---- PaymentProvider implementation ----

// InitiateSTKPush sends an STK push. Any response other than ResponseCode "0"
// is returned as an *InitiationError carrying the provider's description.
func (p *DarajaProvider) InitiateSTKPush(ctx context.Context, req STKPushRequest) (*STKPushResult, error) {
	timestamp, password := p.credentials()
	payload := stkPushPayload{
		BusinessShortCode: p.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		TransactionType:   transactionType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            p.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       p.cfg.CallbackURL,
		AccountReference:  truncate(req.Reference, maxReferenceLen),
		TransactionDesc:   truncate(req.Description, maxDescriptionLen),
	}

	var resp stkPushResponse
	if err := p.doRequest(ctx, stkPushPath, payload, &resp); err != nil {
		if isAuthErr(err) {
			return nil, err
		}
		p.logger.Error("STK push request failed", zap.Error(err))
		return nil, &InitiationError{Detail: "request to M-Pesa failed", Err: err}
	}

	if codeString(resp.ResponseCode) != "0" {
		detail := firstNonEmpty(resp.ResponseDescription, resp.ErrorMessage, "Unknown error")
		p.logger.Warn("STK push rejected",
			zap.String("response_code", codeString(resp.ResponseCode)),
			zap.String("error_code", resp.ErrorCode),
			zap.String("detail", detail),
		)
		return nil, &InitiationError{Detail: detail}
	}
	if resp.CheckoutRequestID == "" {
		return nil, &InitiationError{Detail: "response missing CheckoutRequestID"}
	}

	p.logger.Info("STK push accepted",
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("phone", MaskPhone(req.Phone)),
		zap.Int64("amount_kes", req.Amount),
	)

	return &STKPushResult{
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		CustomerMessage:   firstNonEmpty(resp.CustomerMessage, resp.ResponseDescription),
	}, nil
}

// QuerySTKStatus asks Daraja for the outcome of an STK push.
func (p *DarajaProvider) QuerySTKStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResult, error) {
	timestamp, password := p.credentials()
	payload := stkQueryPayload{
		BusinessShortCode: p.cfg.ShortCode,
		Password:          password,
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}

	var resp stkQueryResponse
	if err := p.doRequest(ctx, stkQueryPath, payload, &resp); err != nil {
		return nil, fmt.Errorf("stk query: %w", err)
	}

	result := &STKQueryResult{
		ResultCode: codeString(resp.ResultCode),
		ResultDesc: firstNonEmpty(resp.ResultDesc, resp.ErrorMessage, resp.ResponseDescription),
	}
	switch result.ResultCode {
	case "":
		// Daraja answers with an errorCode while the prompt is still open.
		result.State = QueryPending
	case "0":
		result.State = QuerySucceeded
	case "4999":
		result.State = QueryPending
	default:
		result.State = QueryFailed
	}
	return result, nil
}

// ---- HTTP helper ----

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("mpesa API error (status %d): %s", e.status, e.body)
}

// doRequest posts a JSON body with a bearer token. Daraja returns JSON error
// bodies on 4xx/5xx, so out is decoded whenever possible and an error is only
// returned when the body is not usable.
func (p *DarajaProvider) doRequest(ctx context.Context, path string, body interface{}, out interface{}) error {
	token, err := p.tokens.GetToken(ctx)
	if err != nil {
		return err
	}

	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		if inv, ok := p.tokens.(interface{ Invalidate() }); ok {
			inv.Invalidate()
		}
	}

	if err := json.Unmarshal(respBytes, out); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &httpStatusError{status: resp.StatusCode, body: string(respBytes)}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// credentials returns the request timestamp and base64(shortcode+passkey+timestamp).
func (p *DarajaProvider) credentials() (string, string) {
	timestamp := p.now().In(eat).Format(timestampLayout)
	raw := p.cfg.ShortCode + p.cfg.Passkey + timestamp
	return timestamp, base64.StdEncoding.EncodeToString([]byte(raw))
}

func isAuthErr(err error) bool {
	return errors.Is(err, ErrProviderAuth)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// codeString normalizes Daraja codes sent either as "0" or 0.
func codeString(raw json.RawMessage) string {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "null" {
		return ""
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
