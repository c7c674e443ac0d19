package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Outcome is what a provider reported about a payment.
type Outcome int

const (
	Ignored Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "ignored"
	}
}

// Notice is a provider callback reduced to what the club needs.
type Notice struct {
	Outcome    Outcome
	ExternalID string
	// PaymentID is the club payment id when the provider echoed it back.
	PaymentID  string
	TelegramID int64
	// Amount is in whole currency units.
	Amount   int64
	Currency string
	Event    string
}

// Provider verifies and decodes the callbacks of one payment provider.
type Provider interface {
	Name() string
	Verify(body []byte, header func(string) string) error
	Parse(body []byte) (Notice, error)
}

var telegramTag = regexp.MustCompile(`(?:TG|User):(\d+)`)

func telegramFromText(s string) int64 {
	m := telegramTag.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	id, _ := strconv.ParseInt(m[1], 10, 64)
	return id
}

func telegramFromMetadata(md map[string]any) int64 {
	for _, key := range []string{"telegram_id", "user_id"} {
		switch v := md[key].(type) {
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id
			}
		case float64:
			return int64(v)
		}
	}
	return 0
}

func metadataString(md map[string]any, key string) string {
	s, _ := md[key].(string)
	return s
}

func parseDecimal(v string) int64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f))
}

func hexHMAC(secret string, parts ...[]byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	for _, p := range parts {
		mac.Write(p)
	}
	return hex.EncodeToString(mac.Sum(nil))
}

func equalHex(got, want string) bool {
	return hmac.Equal([]byte(strings.ToLower(strings.TrimSpace(got))), []byte(want))
}

// Stripe signs "t.payload" and sends "t=...,v1=..." in Stripe-Signature.
type Stripe struct {
	Secret string
}

func (Stripe) Name() string { return "stripe" }

func (s Stripe) Verify(body []byte, header func(string) string) error {
	var ts string
	var sigs []string
	for _, part := range strings.Split(header("Stripe-Signature"), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return ErrSignature
	}
	want := hexHMAC(s.Secret, []byte(ts), []byte("."), body)
	for _, sig := range sigs {
		if equalHex(sig, want) {
			return nil
		}
	}
	return ErrSignature
}

func (Stripe) Parse(body []byte) (Notice, error) {
	var evt struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID       string         `json:"id"`
				Amount   int64          `json:"amount"`
				Currency string         `json:"currency"`
				Metadata map[string]any `json:"metadata"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	obj := evt.Data.Object
	n := Notice{
		Event:      evt.Type,
		ExternalID: obj.ID,
		PaymentID:  metadataString(obj.Metadata, "payment_id"),
		TelegramID: telegramFromMetadata(obj.Metadata),
		Amount:     obj.Amount / 100,
		Currency:   strings.ToUpper(obj.Currency),
	}
	switch evt.Type {
	case "payment_intent.succeeded":
		n.Outcome = Succeeded
	case "payment_intent.payment_failed":
		n.Outcome = Failed
	}
	return n, nil
}

// SignedBody covers providers sending a hex HMAC-SHA256 of the raw body in
// X-Api-Signature-SHA256.
type SignedBody struct {
	Secret string
}

func (s SignedBody) Verify(body []byte, header func(string) string) error {
	sig := header("X-Api-Signature-SHA256")
	if sig == "" || !equalHex(sig, hexHMAC(s.Secret, body)) {
		return ErrSignature
	}
	return nil
}

type YooKassa struct {
	SignedBody
}

func (YooKassa) Name() string { return "yookassa" }

func (YooKassa) Parse(body []byte) (Notice, error) {
	var evt struct {
		Event  string `json:"event"`
		Object struct {
			ID     string `json:"id"`
			Amount struct {
				Value    string `json:"value"`
				Currency string `json:"currency"`
			} `json:"amount"`
			Metadata map[string]any `json:"metadata"`
		} `json:"object"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	obj := evt.Object
	n := Notice{
		Event:      evt.Event,
		ExternalID: obj.ID,
		PaymentID:  metadataString(obj.Metadata, "payment_id"),
		TelegramID: telegramFromMetadata(obj.Metadata),
		Amount:     parseDecimal(obj.Amount.Value),
		Currency:   obj.Amount.Currency,
	}
	switch evt.Event {
	case "payment.succeeded":
		n.Outcome = Succeeded
	case "payment.canceled":
		n.Outcome = Failed
	}
	return n, nil
}

type Qiwi struct {
	SignedBody
}

func (Qiwi) Name() string { return "qiwi" }

func (Qiwi) Parse(body []byte) (Notice, error) {
	var evt struct {
		Payment struct {
			PaymentID string `json:"paymentId"`
			Comment   string `json:"comment"`
			Amount    struct {
				Value    string `json:"value"`
				Currency string `json:"currency"`
			} `json:"amount"`
			Status struct {
				Value string `json:"value"`
			} `json:"status"`
			CustomFields map[string]any `json:"customFields"`
		} `json:"payment"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	p := evt.Payment
	n := Notice{
		Event:      p.Status.Value,
		ExternalID: p.PaymentID,
		PaymentID:  metadataString(p.CustomFields, "payment_id"),
		TelegramID: telegramFromText(p.Comment),
		Amount:     parseDecimal(p.Amount.Value),
		Currency:   p.Amount.Currency,
	}
	switch p.Status.Value {
	case "SUCCESS":
		n.Outcome = Succeeded
	case "DECLINED", "REJECTED":
		n.Outcome = Failed
	}
	return n, nil
}

// Tinkoff puts a Token in the body: the SHA-256 of the root scalar values
// plus Password, ordered by key.
type Tinkoff struct {
	Password string
}

func (Tinkoff) Name() string { return "tinkoff" }

func (t Tinkoff) Verify(body []byte, _ func(string) string) error {
	fields, err := decodeNumbers(body)
	if err != nil {
		return ErrSignature
	}
	token, _ := fields["Token"].(string)
	if token == "" {
		return ErrSignature
	}
	if !equalHex(token, TinkoffToken(fields, t.Password)) {
		return ErrSignature
	}
	return nil
}

// TinkoffToken computes the Token for fields. Nested values and Token itself
// are skipped.
func TinkoffToken(fields map[string]any, password string) string {
	values := map[string]string{"Password": password}
	for k, v := range fields {
		if k == "Token" {
			continue
		}
		switch v := v.(type) {
		case string:
			values[k] = v
		case json.Number:
			values[k] = v.String()
		case bool:
			values[k] = strconv.FormatBool(v)
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(values[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func decodeNumbers(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func (Tinkoff) Parse(body []byte) (Notice, error) {
	var evt struct {
		Status      string      `json:"Status"`
		PaymentID   json.Number `json:"PaymentId"`
		OrderID     string      `json:"OrderId"`
		Amount      int64       `json:"Amount"`
		Description string      `json:"Description"`
	}
	if err := json.Unmarshal(body, &evt); err != nil {
		return Notice{}, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	n := Notice{
		Event:      evt.Status,
		ExternalID: evt.PaymentID.String(),
		PaymentID:  evt.OrderID,
		TelegramID: telegramFromText(evt.Description),
		Amount:     evt.Amount / 100,
		Currency:   "RUB",
	}
	switch evt.Status {
	case "CONFIRMED":
		n.Outcome = Succeeded
	case "REJECTED", "CANCELED":
		n.Outcome = Failed
	}
	return n, nil
}
