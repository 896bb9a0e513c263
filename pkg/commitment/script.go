package commitment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"misdash/pkg/sheets"
)

// ErrSubmissionFailed means the write round trip failed or the server reported failure.
var ErrSubmissionFailed = errors.New("submission failed")

type SubmissionError struct {
	Status  int
	Message string
}

func (e *SubmissionError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("submission failed: HTTP %d: %s", e.Status, e.Message)
	}
	return "submission failed: " + e.Message
}

func (e *SubmissionError) Unwrap() error { return ErrSubmissionFailed }

// Person is one record of the saved-values listing.
type Person struct {
	Name   string
	Fields map[string]string
}

// Store is the remote side of the overlay: it lists saved values and accepts batches.
type Store interface {
	List(ctx context.Context) ([]Person, error)
	Submit(ctx context.Context, records []Record) error
}

type ScriptConfig struct {
	URL         string
	Sheet       string
	ReadAction  string
	WriteAction string
}

// ScriptClient talks to the Apps Script web endpoint.
type ScriptClient struct {
	client *http.Client
	cfg    ScriptConfig
}

func NewScriptClient(client *http.Client, cfg ScriptConfig) *ScriptClient {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.ReadAction == "" {
		cfg.ReadAction = "getUsers"
	}
	if cfg.WriteAction == "" {
		cfg.WriteAction = "saveCommitments"
	}
	return &ScriptClient{client: client, cfg: cfg}
}

type scriptResponse struct {
	Status  string          `json:"status"`
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
	Users   json.RawMessage `json:"users"`
}

func (r *scriptResponse) ok() bool {
	if r.Success != nil {
		return *r.Success
	}
	switch strings.ToLower(r.Status) {
	case "success", "ok":
		return true
	}
	return false
}

func (r *scriptResponse) reason() string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	case r.Status != "":
		return "status " + r.Status
	}
	return "no success flag in response"
}

func (r *scriptResponse) payload() json.RawMessage {
	if len(bytes.TrimSpace(r.Data)) > 0 {
		return r.Data
	}
	return r.Users
}

// List fetches the saved values for every person.
func (c *ScriptClient) List(ctx context.Context) ([]Person, error) {
	q := url.Values{}
	q.Set("action", c.cfg.ReadAction)
	q.Set("sheet", c.cfg.Sheet)
	u := c.cfg.URL
	if strings.Contains(u, "?") {
		u += "&" + q.Encode()
	} else {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &sheets.FetchError{Err: errors.Wrap(err, "build request")}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &sheets.FetchError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sheets.FetchError{Status: resp.StatusCode, Err: errors.Wrap(err, "read body")}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &sheets.FetchError{Status: resp.StatusCode, Err: errors.Errorf("unexpected status %s", resp.Status)}
	}

	var sr scriptResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, errors.Wrapf(sheets.ErrInvalidFormat, "decode script response: %v", err)
	}
	if !sr.ok() {
		return nil, &sheets.FetchError{Status: resp.StatusCode, Err: errors.New(sr.reason())}
	}
	return decodePeople(sr.payload())
}

func decodePeople(raw json.RawMessage) ([]Person, error) {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		return nil, nil
	}
	var items []map[string]any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, errors.Wrapf(sheets.ErrInvalidFormat, "decode people: %v", err)
	}
	people := make([]Person, 0, len(items))
	for _, it := range items {
		p := Person{Fields: map[string]string{}}
		for k, v := range it {
			if strings.EqualFold(k, "name") {
				p.Name = strings.TrimSpace(sheets.Stringify(v))
				continue
			}
			p.Fields[k] = sheets.Stringify(v)
		}
		if p.Name != "" {
			people = append(people, p)
		}
	}
	return people, nil
}

// Submit posts the batch as a form with a JSON "data" field.
func (c *ScriptClient) Submit(ctx context.Context, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return errors.Wrap(err, "encode batch")
	}
	form := url.Values{}
	form.Set("action", c.cfg.WriteAction)
	form.Set("sheet", c.cfg.Sheet)
	form.Set("data", string(data))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return &SubmissionError{Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return &SubmissionError{Message: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &SubmissionError{Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SubmissionError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var sr scriptResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return &SubmissionError{Status: resp.StatusCode, Message: "undecodable response"}
	}
	if !sr.ok() {
		return &SubmissionError{Status: resp.StatusCode, Message: sr.reason()}
	}
	return nil
}
