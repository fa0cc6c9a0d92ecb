package providers_test

import (
	"testing"
	"time"

	"github.com/AymanAbdiMohamed/Donation-Platform-backend/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const successCallback = `{
  "Body": {
    "stkCallback": {
      "MerchantRequestID": "29115-34620561-1",
      "CheckoutRequestID": "ws_CO_191220191020363925",
      "ResultCode": 0,
      "ResultDesc": "The service request is processed successfully.",
      "CallbackMetadata": {
        "Item": [
          {"Name": "Amount", "Value": 500.00},
          {"Name": "MpesaReceiptNumber", "Value": "NLJ7RT61SV"},
          {"Name": "Balance"},
          {"Name": "TransactionDate", "Value": 20191219102115},
          {"Name": "PhoneNumber", "Value": 254708374149}
        ]
      }
    }
  }
}`

func TestParseSTKCallback_Success(t *testing.T) {
	res := providers.ParseSTKCallback([]byte(successCallback))

	success, ok := res.(providers.CallbackSuccess)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "ws_CO_191220191020363925", success.CheckoutID())
	assert.Equal(t, "29115-34620561-1", success.MerchantRequestID)
	assert.Equal(t, "NLJ7RT61SV", success.ReceiptNumber)
	assert.Equal(t, int64(50000), success.AmountMinor)
	assert.Equal(t, "254708374149", success.Phone)
	require.NotNil(t, success.TransactionDate)
	assert.Equal(t, time.Date(2019, 12, 19, 7, 21, 15, 0, time.UTC), success.TransactionDate.UTC())
}

func TestParseSTKCallback_Failure(t *testing.T) {
	res := providers.ParseSTKCallback([]byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"m-1","CheckoutRequestID":"ws_CO_2",
		"ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`))

	failure, ok := res.(providers.CallbackFailure)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, "ws_CO_2", failure.CheckoutID())
	assert.Equal(t, 1032, failure.ResultCode)
	assert.Equal(t, "Request cancelled by user", failure.Description)
}

func TestParseSTKCallback_FailureDefaultReason(t *testing.T) {
	res := providers.ParseSTKCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_3","ResultCode":"1","ResultDesc":"  "}}}`))

	failure, ok := res.(providers.CallbackFailure)
	require.True(t, ok, "got %T", res)
	assert.Equal(t, providers.DefaultFailureReason, failure.Description)
}

func TestParseSTKCallback_Malformed(t *testing.T) {
	cases := map[string]string{
		"not json":           `not json`,
		"empty object":       `{}`,
		"no stkCallback":     `{"Body":{}}`,
		"body is array":      `{"Body":[]}`,
		"no checkout id":     `{"Body":{"stkCallback":{"ResultCode":0}}}`,
		"no result code":     `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_4"}}}`,
		"bad result code":    `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_4","ResultCode":"abc"}}}`,
		"success no receipt": `{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_4","ResultCode":0,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":10}]}}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := providers.ParseSTKCallback([]byte(body))
			malformed, ok := res.(providers.CallbackMalformed)
			require.True(t, ok, "got %T", res)
			assert.NotEmpty(t, malformed.Reason)
		})
	}
}

func TestParseSTKCallback_MalformedKeepsCheckoutID(t *testing.T) {
	res := providers.ParseSTKCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_5","ResultCode":0}}}`))
	assert.Equal(t, "ws_CO_5", res.CheckoutID())
}
