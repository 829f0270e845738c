package ync

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ControlPath is the fixed POST target on the receiver.
const ControlPath = "/YamahaRemoteControl/ctrl"

// Client performs YNC exchanges against a single receiver. All requests go
// through one keep-alive http.Client so rapid polling reuses the connection.
type Client struct {
	httpClient *http.Client
	url        string
	logger     *log.Logger
	recorder   Recorder
}

// NewClient creates a client for the receiver at host (host or host:port).
func NewClient(host string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		url:    "http://" + host + ControlPath,
		logger: logger,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:         (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConns:        1,
				MaxIdleConnsPerHost: 1,
				MaxConnsPerHost:     1,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// SetRecorder installs a hook that observes every exchange.
func (c *Client) SetRecorder(recorder Recorder) {
	c.recorder = recorder
}

// URL returns the control endpoint.
func (c *Client) URL() string {
	return c.url
}

// Response is a parsed YAMAHA_AV response envelope.
type Response struct {
	RC      ResultCode
	Warning *DeviceWarning
	Body    []byte
}

// Decode unmarshals the full response document into v.
func (r *Response) Decode(v any) error {
	return xml.Unmarshal(r.Body, v)
}

type envelope struct {
	XMLName xml.Name `xml:"YAMAHA_AV"`
	RC      string   `xml:"RC,attr"`
}

// BuildRequest renders the request document for a command.
func BuildRequest(cmd Command, fragment, zonePath string) string {
	var buf strings.Builder
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString(`<YAMAHA_AV cmd="`)
	buf.WriteString(string(cmd))
	buf.WriteString(`">`)
	buf.WriteString(strings.ReplaceAll(fragment, ZonePlaceholder, zonePath))
	buf.WriteString(`</YAMAHA_AV>`)
	return buf.String()
}

// Execute sends one command and returns the parsed response. Non-zero result
// codes are logged and attached to the response; only transport and
// protocol failures are returned as errors.
func (c *Client) Execute(ctx context.Context, cmd Command, fragment, zonePath string) (*Response, error) {
	start := time.Now()
	resp, err := c.execute(ctx, cmd, fragment, zonePath)

	if c.recorder != nil {
		exchange := Exchange{
			Command:  cmd,
			Fragment: fragment,
			ZonePath: zonePath,
			Duration: time.Since(start).Milliseconds(),
			Err:      err,
		}
		if resp != nil {
			rc := resp.RC
			exchange.RC = &rc
		}
		c.recorder.RecordExchange(ctx, exchange)
	}

	return resp, err
}

func (c *Client) execute(ctx context.Context, cmd Command, fragment, zonePath string) (*Response, error) {
	body := BuildRequest(cmd, fragment, zonePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Command: cmd, Err: err}
		}
		return nil, &UnreachableError{Command: cmd, Err: err}
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, &TimeoutError{Command: cmd, Err: err}
		}
		return nil, &UnreachableError{Command: cmd, Err: err}
	}

	if httpResp.StatusCode >= 400 {
		return nil, c.protocolError(body, payload, fmt.Sprintf("http %d", httpResp.StatusCode), nil)
	}

	var env envelope
	if err := xml.NewDecoder(bytes.NewReader(payload)).Decode(&env); err != nil {
		return nil, c.protocolError(body, payload, "malformed response", err)
	}
	if err := wellFormed(payload); err != nil {
		return nil, c.protocolError(body, payload, "malformed response", err)
	}

	code, err := strconv.Atoi(strings.TrimSpace(env.RC))
	if err != nil {
		return nil, c.protocolError(body, payload, "missing or invalid RC attribute", err)
	}

	resp := &Response{RC: ResultCode(code), Body: payload}
	if resp.RC != RCOK {
		resp.Warning = &DeviceWarning{Code: resp.RC}
		c.logger.Printf("YNC: Warning: %s (request: %s)", resp.RC.Description(), body)
	}
	return resp, nil
}

func (c *Client) protocolError(request string, payload []byte, reason string, err error) *ProtocolError {
	c.logger.Printf("YNC: %s for request %s", reason, request)
	c.logger.Printf("YNC: raw response: %q", payload)
	return &ProtocolError{Request: request, Payload: payload, Reason: reason, Err: err}
}

// wellFormed walks every token so truncated or garbled documents are
// rejected even after the root element has been read.
func wellFormed(payload []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(payload))
	for {
		_, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
