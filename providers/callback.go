package providers

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultFailureReason is used when a failed callback carries no description.
const DefaultFailureReason = "Payment was not completed"

// CallbackResult is one of CallbackSuccess, CallbackFailure or CallbackMalformed.
type CallbackResult interface {
	CheckoutID() string
	callbackResult()
}

// CallbackSuccess is a ResultCode 0 notification with its payment metadata.
type CallbackSuccess struct {
	CheckoutRequestID string
	MerchantRequestID string
	ReceiptNumber     string
	// AmountMinor is the paid amount converted from whole KES to cents.
	AmountMinor     int64
	Phone           string
	TransactionDate *time.Time
}

// CallbackFailure is a notification with a non-zero ResultCode.
type CallbackFailure struct {
	CheckoutRequestID string
	MerchantRequestID string
	ResultCode        int
	Description       string
}

// CallbackMalformed is a payload that could not be interpreted.
type CallbackMalformed struct {
	CheckoutRequestID string
	Reason            string
}

func (r CallbackSuccess) CheckoutID() string   { return r.CheckoutRequestID }
func (r CallbackFailure) CheckoutID() string   { return r.CheckoutRequestID }
func (r CallbackMalformed) CheckoutID() string { return r.CheckoutRequestID }

func (CallbackSuccess) callbackResult()   {}
func (CallbackFailure) callbackResult()   {}
func (CallbackMalformed) callbackResult() {}

type callbackEnvelope struct {
	Body *struct {
		STKCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string          `json:"MerchantRequestID"`
	CheckoutRequestID string          `json:"CheckoutRequestID"`
	ResultCode        json.RawMessage `json:"ResultCode"`
	ResultDesc        string          `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// ParseSTKCallback turns a raw Daraja STK callback body into a CallbackResult.
// It never fails; unusable input yields CallbackMalformed.
func ParseSTKCallback(raw []byte) CallbackResult {
	var env callbackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return CallbackMalformed{Reason: "invalid JSON: " + err.Error()}
	}
	if env.Body == nil || env.Body.STKCallback == nil {
		return CallbackMalformed{Reason: "missing Body.stkCallback"}
	}

	cb := env.Body.STKCallback
	checkoutID := strings.TrimSpace(cb.CheckoutRequestID)
	if checkoutID == "" {
		return CallbackMalformed{Reason: "missing CheckoutRequestID"}
	}

	code, err := strconv.Atoi(codeString(cb.ResultCode))
	if err != nil {
		return CallbackMalformed{CheckoutRequestID: checkoutID, Reason: "missing or invalid ResultCode"}
	}

	if code != 0 {
		desc := strings.TrimSpace(cb.ResultDesc)
		if desc == "" {
			desc = DefaultFailureReason
		}
		return CallbackFailure{
			CheckoutRequestID: checkoutID,
			MerchantRequestID: cb.MerchantRequestID,
			ResultCode:        code,
			Description:       desc,
		}
	}

	meta := map[string]string{}
	if cb.CallbackMetadata != nil {
		for _, item := range cb.CallbackMetadata.Item {
			if item.Name == "" {
				continue
			}
			if v := codeString(item.Value); v != "" {
				meta[item.Name] = v
			}
		}
	}

	receipt := meta["MpesaReceiptNumber"]
	if receipt == "" {
		return CallbackMalformed{CheckoutRequestID: checkoutID, Reason: "successful callback without MpesaReceiptNumber"}
	}

	success := CallbackSuccess{
		CheckoutRequestID: checkoutID,
		MerchantRequestID: cb.MerchantRequestID,
		ReceiptNumber:     receipt,
		Phone:             meta["PhoneNumber"],
	}
	if amount, err := strconv.ParseFloat(meta["Amount"], 64); err == nil {
		success.AmountMinor = int64(math.Round(amount * 100))
	}
	if ts, err := time.ParseInLocation(timestampLayout, meta["TransactionDate"], eat); err == nil {
		success.TransactionDate = &ts
	}
	return success
}
