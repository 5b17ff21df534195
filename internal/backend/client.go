package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/agenthands/pearlyx/internal/analysis"
	"github.com/agenthands/pearlyx/internal/audio"
	"github.com/agenthands/pearlyx/internal/config"
	"github.com/agenthands/pearlyx/internal/telemetry"
)

// UploadResult is what the service returns for a stored upload.
type UploadResult struct {
	Message  string `json:"message,omitempty"`
	Filepath string `json:"filepath"`
	Filename string `json:"filename"`
}

type analyzeRequest struct {
	Filename            string `json:"filename"`
	NeedsClassification bool   `json:"needs_classification"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Client talks to the remote analysis service.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     *zap.Logger
}

func NewClient(cfg config.BackendConfig, bcfg config.BreakerConfig, log *zap.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		// zero timeout: calls wait as long as the service takes
		http: &http.Client{Timeout: cfg.Timeout.Duration},
		log:  log,
	}
	if bcfg.Enabled {
		c.breaker = newBreaker(bcfg, log)
	}
	return c
}

func newBreaker(cfg config.BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "analysis-service",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval.Duration,
		Timeout:     cfg.Timeout.Duration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests || counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureRate
		},
		// a caller that went away says nothing about the service
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

type rawResponse struct {
	status int
	body   []byte
}

var (
	errServerStatus = errors.New("server error status")
	errCallerGone   = errors.New("caller context done")
)

// do runs one exchange. Transport failures and 5xx answers count against
// the breaker; 4xx answers and callers that gave up do not.
func (c *Client) do(req *http.Request) (*rawResponse, error) {
	exchange := func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerGone, err)
			}
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, fmt.Errorf("%w: read body: %w", errCallerGone, err)
			}
			return nil, fmt.Errorf("read body: %w", err)
		}
		raw := &rawResponse{status: resp.StatusCode, body: body}
		if resp.StatusCode >= 500 {
			return raw, errServerStatus
		}
		return raw, nil
	}

	var (
		result interface{}
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.Execute(exchange)
	} else {
		result, err = exchange()
	}

	if err != nil && !errors.Is(err, errServerStatus) {
		return nil, err
	}
	return result.(*rawResponse), nil
}

// call sends req and decodes a 2xx JSON body into out (when non-nil).
func (c *Client) call(op string, req *http.Request, out interface{}) error {
	start := time.Now()
	err := c.exchange(op, req, out)
	telemetry.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		telemetry.BackendRequestsTotal.WithLabelValues(op, telemetry.OutcomeOK).Inc()
	case IsTransport(err):
		telemetry.BackendRequestsTotal.WithLabelValues(op, telemetry.OutcomeTransport).Inc()
		c.log.Warn("Analysis service unreachable", zap.String("op", op), zap.Error(err))
	default:
		telemetry.BackendRequestsTotal.WithLabelValues(op, telemetry.OutcomeAPIError).Inc()
		c.log.Info("Analysis service rejected request", zap.String("op", op), zap.Error(err))
	}
	return err
}

func (c *Client) exchange(op string, req *http.Request, out interface{}) error {
	raw, err := c.do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if len(bytes.TrimSpace(raw.body)) == 0 {
		raw.body = []byte("{}")
	}

	var envelope struct {
		Error string `json:"error"`
	}
	decodeErr := json.Unmarshal(raw.body, &envelope)

	if raw.status < 200 || raw.status >= 300 {
		msg := envelope.Error
		if decodeErr != nil || msg == "" {
			msg = fmt.Sprintf("%s failed with status %d", op, raw.status)
		}
		return &APIError{Op: op, StatusCode: raw.status, Message: msg}
	}
	if decodeErr != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}
	if envelope.Error != "" {
		return &APIError{Op: op, StatusCode: raw.status, Message: envelope.Error}
	}

	if out == nil {
		return nil
	}
	if b, ok := out.(*[]byte); ok {
		*b = raw.body
		return nil
	}
	if err := json.Unmarshal(raw.body, out); err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Upload posts src as multipart field "file".
func (c *Client) Upload(ctx context.Context, src *audio.Source) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(src.Name)))
	h.Set("Content-Type", src.MIMEType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(src.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	if err := c.call("upload", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a previously uploaded file from the service.
func (c *Client) Delete(ctx context.Context, filename string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/delete/"+url.PathEscape(filename), nil)
	if err != nil {
		return err
	}
	return c.call("delete", req, nil)
}

// Analyze implements analysis.Analyzer against POST /analyze.
func (c *Client) Analyze(ctx context.Context, filename string, needsClassification bool) (analysis.Result, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/analyze", analyzeRequest{
		Filename:            filename,
		NeedsClassification: needsClassification,
	})
	if err != nil {
		return analysis.Result{}, err
	}

	var raw []byte
	if err := c.call("analyze", req, &raw); err != nil {
		return analysis.Result{}, err
	}
	res, err := analysis.Parse(raw)
	if err != nil {
		return analysis.Result{}, &TransportError{Op: "analyze", Err: err}
	}
	return res, nil
}

// Chat relays one message to POST /chat.
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	req, err := c.newJSONRequest(ctx, http.MethodPost, "/chat", chatRequest{Message: message})
	if err != nil {
		return "", err
	}

	var out chatResponse
	if err := c.call("chat", req, &out); err != nil {
		return "", err
	}
	return out.Response, nil
}

// Ping checks that the service answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
