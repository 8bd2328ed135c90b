package expensify

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Response is the decoded backend envelope.
type Response struct {
	ResponseCode    int                 `json:"responseCode"`
	ResponseMessage string              `json:"responseMessage"`
	TransactionList []TransactionRecord `json:"transactionList,omitempty"`
}

// TransactionRecord is one entry of a create response.
type TransactionRecord struct {
	TransactionID ID `json:"transactionID"`
}

// ID accepts both string and numeric JSON ids.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// TransactionID returns the id of the first created transaction, or "".
func (r Response) TransactionID() string {
	if len(r.TransactionList) == 0 {
		return ""
	}
	return string(r.TransactionList[0].TransactionID)
}

// SubmitResult binds the create and receipt steps of one submission.
type SubmitResult struct {
	TransactionID string
	Create        Response
	Receipt       *Response // nil when no upload happened
}

// decodeResponse parses a JSON envelope. Anything that is not a JSON object is
// treated as a plain-text success message.
func decodeResponse(raw []byte) Response {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var r Response
		if err := json.Unmarshal(trimmed, &r); err == nil {
			if r.ResponseCode == 0 {
				r.ResponseCode = 200
			}
			return r
		}
		var loose map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &loose); err == nil {
			return looseResponse(loose)
		}
	}
	return Response{ResponseCode: 200, ResponseMessage: string(trimmed)}
}

// looseResponse recovers code and message when other fields fail strict decoding.
func looseResponse(m map[string]json.RawMessage) Response {
	r := Response{ResponseCode: 200}
	if raw, ok := m["responseCode"]; ok {
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			if v, err := strconv.Atoi(n.String()); err == nil {
				r.ResponseCode = v
			}
		} else {
			var s string
			if json.Unmarshal(raw, &s) == nil {
				if v, err := strconv.Atoi(s); err == nil {
					r.ResponseCode = v
				}
			}
		}
	}
	if raw, ok := m["responseMessage"]; ok {
		_ = json.Unmarshal(raw, &r.ResponseMessage)
	}
	return r
}
