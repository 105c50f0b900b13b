package client

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RetCode is the vendor's ret field, sent as either "0" or 0.
type RetCode struct {
	Value   string
	Present bool
}

func (r *RetCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = RetCode{}
		return nil
	}
	r.Present = true
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Value)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	r.Value = n.String()
	return nil
}

// OK reports whether ret signals success.
func (r RetCode) OK() bool {
	return strings.TrimSpace(r.Value) == "0"
}

// Response is the decoded vendor envelope.
type Response struct {
	Ret    RetCode         `json:"ret"`
	ErrMsg string          `json:"errmsg"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

func (r *Response) message() string {
	switch {
	case r.ErrMsg != "":
		return r.ErrMsg
	case r.Msg != "":
		return r.Msg
	default:
		return "unknown error"
	}
}

// DecodeData unmarshals the data member into v. A missing data member leaves
// v untouched.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 || bytes.Equal(bytes.TrimSpace(r.Data), []byte("null")) {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
