package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-crm-sync/core"
)

const defaultClientTimeout = 30 * time.Second
const defaultResponseBodyLimit int64 = 10 << 20 // 10 MiB

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request is a provider-agnostic HTTP call description. Providers build
// these; the client owns timeouts, body limits, and error classification.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

func (r Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// RESTClient executes provider API calls. Non-2xx responses are returned to
// the caller for provider-specific interpretation; only transport-level
// failures (bad input, network, oversized bodies) become errors here.
type RESTClient struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTClient(client HTTPDoer) *RESTClient {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	return &RESTClient{
		Client:               client,
		DefaultHeaders:       map[string]string{},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
	}
}

func (c *RESTClient) Do(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.Client == nil {
		return Response{}, goerrors.New("transport: rest client requires an http client", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.SyncErrorInternal)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	parsedURL, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || parsedURL.String() == "" {
		return Response{}, goerrors.New("transport: invalid request url", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.SyncErrorBadInput)
	}

	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), value)
	}
	parsedURL.RawQuery = query.Encode()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "transport: create http request").
			WithCode(http.StatusBadRequest).
			WithTextCode(core.SyncErrorBadInput)
	}
	for key, value := range c.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	httpRes, err := c.Client.Do(httpReq)
	if err != nil {
		return Response{}, core.NewTransientNetworkError("transport: execute http request", err)
	}
	defer httpRes.Body.Close()

	maxBodyBytes := c.MaxResponseBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultResponseBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return Response{}, core.NewTransientNetworkError("transport: read response body", err)
	}
	if int64(len(body)) > maxBodyBytes {
		return Response{}, goerrors.New(
			fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes),
			goerrors.CategoryExternal,
		).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.SyncErrorTransientNetwork).
			WithMetadata(map[string]any{"status_code": httpRes.StatusCode, "response_limit_b": maxBodyBytes})
	}

	return Response{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
	}, nil
}

// DoJSON sends the request with a JSON body (when provided) and decodes a
// successful response into out. Non-2xx responses are returned without
// decoding so callers can classify them.
func (c *RESTClient) DoJSON(ctx context.Context, req Request, payload any, out any) (Response, error) {
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Response{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "transport: encode request payload").
				WithTextCode(core.SyncErrorBadInput)
		}
		req.Body = body
		if req.Headers == nil {
			req.Headers = map[string]string{}
		}
		if _, ok := req.Headers["Content-Type"]; !ok {
			req.Headers["Content-Type"] = "application/json"
		}
	}
	if req.Headers == nil {
		req.Headers = map[string]string{}
	}
	if _, ok := req.Headers["Accept"]; !ok {
		req.Headers["Accept"] = "application/json"
	}

	res, err := c.Do(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if !res.Success() || out == nil {
		return res, nil
	}
	if len(res.Body) == 0 {
		return res, nil
	}
	if err := json.Unmarshal(res.Body, out); err != nil {
		return res, goerrors.Wrap(err, goerrors.CategoryExternal, "transport: decode response payload").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.SyncErrorProviderAPI).
			WithMetadata(map[string]any{"status_code": res.StatusCode})
	}
	return res, nil
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}
