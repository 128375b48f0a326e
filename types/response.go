package types

import (
	"github.com/goccy/go-json"
)

// Response is the envelope returned for every statement.
type Response struct {
	Status       uint16  `json:"status"`
	Message      string  `json:"message"`
	Table        *string `json:"table"`
	Results      []Row   `json:"results"`
	AffectedRows int     `json:"affected_rows"`
}

// OK builds a 200 response carrying only a message.
func OK(message string) *Response {
	return &Response{Status: 200, Message: message}
}

// ResultSet builds a 200 response with rows for table.
func ResultSet(table string, rows []Row) *Response {
	if rows == nil {
		rows = []Row{}
	}
	return &Response{Status: 200, Message: "OK", Table: &table, Results: rows, AffectedRows: len(rows)}
}

// Affected builds a 200 response for a write on table.
func Affected(table, message string, n int) *Response {
	return &Response{Status: 200, Message: message, Table: &table, AffectedRows: n}
}

// Failure builds an error envelope.
func Failure(status uint16, message string) *Response {
	return &Response{Status: status, Message: message}
}

// Encode serializes the envelope.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResponse parses an envelope.
func DecodeResponse(data []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
