package sheets

import (
	"bytes"
	"encoding/json"
	"strings"
)

type gvizError struct {
	Reason          string `json:"reason"`
	Message         string `json:"message"`
	DetailedMessage string `json:"detailed_message"`
}

type gvizPayload struct {
	Status string      `json:"status"`
	Errors []gvizError `json:"errors"`
	Table  *struct {
		Cols []Column       `json:"cols"`
		Rows json.RawMessage `json:"rows"`
	} `json:"table"`
}

// ExtractJSON returns the text between the first '{' and the last '}', inclusive.
// The export endpoint wraps its payload in a call like
// "/*O_o*/\ngoogle.visualization.Query.setResponse({...});".
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < 0 || end < start {
		return "", invalidFormat("no JSON object in response")
	}
	return text[start : end+1], nil
}

// ParseEnvelope strips the envelope around a gviz response and decodes its table.
func ParseEnvelope(text string) (*Table, error) {
	body, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	var p gvizPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, invalidFormat("decode payload: %v", err)
	}
	if p.Status == "error" {
		msg := "unknown error"
		if len(p.Errors) > 0 {
			msg = p.Errors[0].DetailedMessage
			if msg == "" {
				msg = p.Errors[0].Message
			}
		}
		return nil, invalidFormat("export endpoint reported error: %s", msg)
	}
	if p.Table == nil {
		return nil, invalidFormat("payload has no table")
	}
	rows := bytes.TrimSpace(p.Table.Rows)
	if len(rows) == 0 || rows[0] != '[' {
		return nil, invalidFormat("table has no rows array")
	}

	t := &Table{Columns: p.Table.Cols}
	if err := json.Unmarshal(rows, &t.Rows); err != nil {
		return nil, invalidFormat("decode rows: %v", err)
	}
	return t, nil
}
