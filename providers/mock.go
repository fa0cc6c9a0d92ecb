package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallbackSink receives raw STK callback bodies, as the HTTP callback route would.
type CallbackSink func(ctx context.Context, raw []byte)

// MockProvider accepts every STK push without contacting Safaricom. When a
// sink is attached it delivers a successful callback after the configured delay.
type MockProvider struct {
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	sink      CallbackSink
	delivered map[string]bool
	wg        sync.WaitGroup
}

// NewMockProvider creates a MockProvider.
func NewMockProvider(delay time.Duration, logger *zap.Logger) *MockProvider {
	return &MockProvider{
		delay:     delay,
		logger:    logger,
		now:       time.Now,
		delivered: make(map[string]bool),
	}
}

// SetCallbackSink attaches the receiver for simulated callbacks.
func (m *MockProvider) SetCallbackSink(sink CallbackSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// InitiateSTKPush returns generated correlation ids and schedules a simulated callback.
func (m *MockProvider) InitiateSTKPush(_ context.Context, req STKPushRequest) (*STKPushResult, error) {
	unix := m.now().Unix()
	res := &STKPushResult{
		CheckoutRequestID: fmt.Sprintf("ws_CO_%d_%s", unix, uniqueSuffix()),
		MerchantRequestID: fmt.Sprintf("GR_%d_%s", unix, uniqueSuffix()),
		CustomerMessage:   "Success. Request accepted for processing",
	}

	m.logger.Info("Mock STK push accepted",
		zap.String("checkout_request_id", res.CheckoutRequestID),
		zap.Duration("callback_in", m.delay),
	)

	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	if sink != nil {
		m.wg.Add(1)
		time.AfterFunc(m.delay, func() {
			defer m.wg.Done()
			m.deliver(sink, res.CheckoutRequestID, res.MerchantRequestID, req)
		})
	}
	return res, nil
}

// QuerySTKStatus reports success once the simulated callback has been delivered.
func (m *MockProvider) QuerySTKStatus(_ context.Context, checkoutRequestID string) (*STKQueryResult, error) {
	m.mu.Lock()
	done := m.delivered[checkoutRequestID]
	m.mu.Unlock()

	if done {
		return &STKQueryResult{State: QuerySucceeded, ResultCode: "0", ResultDesc: "The service request is processed successfully."}, nil
	}
	return &STKQueryResult{State: QueryPending, ResultDesc: "The transaction is being processed"}, nil
}

// Wait blocks until every scheduled callback has been delivered.
func (m *MockProvider) Wait() { m.wg.Wait() }

func (m *MockProvider) deliver(sink CallbackSink, checkoutID, merchantID string, req STKPushRequest) {
	stamp := m.now().In(eat).Format(timestampLayout)
	payload := map[string]interface{}{
		"Body": map[string]interface{}{
			"stkCallback": map[string]interface{}{
				"MerchantRequestID": merchantID,
				"CheckoutRequestID": checkoutID,
				"ResultCode":        0,
				"ResultDesc":        "The service request is processed successfully.",
				"CallbackMetadata": map[string]interface{}{
					"Item": []map[string]interface{}{
						{"Name": "Amount", "Value": req.Amount},
						{"Name": "MpesaReceiptNumber", "Value": "QGK" + strings.ToUpper(uniqueSuffix()[:7])},
						{"Name": "TransactionDate", "Value": json.Number(stamp)},
						{"Name": "PhoneNumber", "Value": json.Number(req.Phone)},
					},
				},
			},
		},
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("Mock callback marshal failed", zap.Error(err))
		return
	}

	m.mu.Lock()
	m.delivered[checkoutID] = true
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sink(ctx, raw)
}

// uniqueSuffix is a random UUID without dashes.
func uniqueSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
