package gateway

import "strconv"

// MetadataItem is one name/value pair from the callback's flat metadata list.
type MetadataItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// Metadata item names the gateway uses.
const (
	MetaAmount        = "Amount"
	MetaReceiptNumber = "ReceiptNumber"
	MetaPayerNumber   = "PayerNumber"
)

// CallbackBody is the inner confirmation object.
type CallbackBody struct {
	ResultCode    int            `json:"ResultCode"`
	ResultDesc    string         `json:"ResultDesc"`
	CorrelationID string         `json:"CorrelationID"`
	Metadata      []MetadataItem `json:"CallbackMetadata"`
}

// CallbackEnvelope is the outer shape the gateway posts to the callback URL.
type CallbackEnvelope struct {
	Body CallbackBody `json:"Body"`
}

func (b CallbackBody) item(name string) (interface{}, bool) {
	for _, it := range b.Metadata {
		if it.Name == name {
			return it.Value, true
		}
	}
	return nil, false
}

// Amount pulls the confirmed amount out of the metadata items. The gateway
// sends it as a JSON number but some relays stringify it.
func (b CallbackBody) Amount() (int64, bool) {
	v, ok := b.item(MetaAmount)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// ReceiptNumber returns the gateway's receipt for a successful payment.
func (b CallbackBody) ReceiptNumber() string {
	if v, ok := b.item(MetaReceiptNumber); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// PayerNumber returns the payer's mobile number as reported by the gateway.
func (b CallbackBody) PayerNumber() string {
	if v, ok := b.item(MetaPayerNumber); ok {
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatInt(int64(s), 10)
		}
	}
	return ""
}
