// Package dispatch sends mutations and list fetches to the portal API over
// HTTP.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"madrasah/internal/optimistic"
)

// Envelope is the body of POST /v1/<entity>/actions.
type Envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
	Token  string          `json:"token,omitempty"`
}

// Reply is the body every API endpoint answers with.
type Reply struct {
	Success bool                 `json:"success"`
	Error   string               `json:"error,omitempty"`
	Kind    optimistic.ErrorKind `json:"kind,omitempty"`
	Data    json.RawMessage      `json:"data,omitempty"`
}

// Client calls the portal API with a bearer token.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client with a request timeout.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 15 * time.Second},
	}
}

// For returns the dispatcher of one entity's action endpoint.
func (c *Client) For(entity string) optimistic.Dispatcher {
	return optimistic.DispatcherFunc(func(ctx context.Context, req optimistic.Request) error {
		return c.Send(ctx, entity, req, nil)
	})
}

// Send posts req to the entity's action endpoint and decodes the reply data
// into out when out is not nil.
func (c *Client) Send(ctx context.Context, entity string, req optimistic.Request, out any) error {
	data, err := json.Marshal(req.Data)
	if err != nil {
		return optimistic.Wrap(optimistic.KindInternal, fmt.Errorf("encode %s data: %w", req.Action, err))
	}
	body, err := json.Marshal(Envelope{Action: req.Action, Data: data, Token: req.Token})
	if err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/"+entity+"/actions", bytes.NewReader(body))
	if err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, out)
}

// Fetch GETs path and decodes the reply data into out.
func (c *Client) Fetch(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}
	return c.do(req, out)
}

// Upload posts a file with extra form fields as multipart/form-data.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, filename string, data []byte, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = w.WriteField(k, v)
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}
	if _, err := part.Write(data); err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}
	if err := w.Close(); err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, &buf)
	if err != nil {
		return optimistic.Wrap(optimistic.KindInternal, err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return optimistic.Wrap(optimistic.KindTransport, fmt.Errorf("portal request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return optimistic.Wrap(optimistic.KindTransport, fmt.Errorf("read portal response: %w", err))
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		if resp.StatusCode >= 300 {
			return optimistic.Errorf(KindForStatus(resp.StatusCode), "portal error %s: %s", resp.Status, strings.TrimSpace(string(raw)))
		}
		return optimistic.Wrap(optimistic.KindInternal, fmt.Errorf("decode portal response: %w", err))
	}
	if resp.StatusCode >= 300 || !reply.Success {
		kind := reply.Kind
		if kind == "" {
			kind = KindForStatus(resp.StatusCode)
		}
		msg := reply.Error
		if msg == "" {
			msg = resp.Status
		}
		return optimistic.NewError(kind, msg)
	}
	if out != nil && len(reply.Data) > 0 {
		if err := json.Unmarshal(reply.Data, out); err != nil {
			return optimistic.Wrap(optimistic.KindInternal, fmt.Errorf("decode portal data: %w", err))
		}
	}
	return nil
}

// KindForStatus maps an HTTP status to the error kind it stands for.
func KindForStatus(code int) optimistic.ErrorKind {
	switch {
	case code == http.StatusBadRequest:
		return optimistic.KindValidation
	case code == http.StatusUnprocessableEntity:
		return optimistic.KindBusiness
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return optimistic.KindForbidden
	case code == http.StatusNotFound:
		return optimistic.KindNotFound
	case code == http.StatusConflict:
		return optimistic.KindConflict
	case code == http.StatusTooManyRequests, code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable, code == http.StatusGatewayTimeout:
		return optimistic.KindTransport
	case code < 300:
		return ""
	}
	return optimistic.KindInternal
}

// StatusForKind maps an error kind to the HTTP status the API answers with.
func StatusForKind(kind optimistic.ErrorKind) int {
	switch kind {
	case "":
		return http.StatusOK
	case optimistic.KindValidation:
		return http.StatusBadRequest
	case optimistic.KindBusiness:
		return http.StatusUnprocessableEntity
	case optimistic.KindForbidden:
		return http.StatusForbidden
	case optimistic.KindNotFound:
		return http.StatusNotFound
	case optimistic.KindConflict:
		return http.StatusConflict
	case optimistic.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
