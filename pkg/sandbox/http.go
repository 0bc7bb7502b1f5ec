package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"
)

// Defaults for the script HTTP client.
const (
	DefaultHTTPTimeout  = 10 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

// HTTPConfig controls what scripts may reach.
type HTTPConfig struct {
	Timeout      time.Duration
	MaxBodyBytes int64

	// AllowedHosts restricts outbound calls to these hostnames. Empty allows any host.
	AllowedHosts []string
}

// HTTPClient performs the outbound requests issued by scripts.
type HTTPClient struct {
	client *resty.Client
	cfg    HTTPConfig
}

// Request is one outbound call as described by a script.
type Request struct {
	Method  string            `mapstructure:"method"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	Params  map[string]string `mapstructure:"params"`
	Body    any               `mapstructure:"data"`
}

// Response is handed back to the script as {status, headers, data}.
type Response struct {
	Status  int
	Headers map[string]string
	Data    any
}

// NewHTTPClient creates a client with cfg, filling unset limits with defaults.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "chatflow-sandbox")
	if len(cfg.AllowedHosts) > 0 {
		client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(cfg.AllowedHosts...))
	} else {
		client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(5))
	}
	return &HTTPClient{client: client, cfg: cfg}
}

// Do performs req. Responses with a status of 400 or above are returned as errors,
// mirroring what scripts written against axios expect.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	if err := c.checkURL(req.URL); err != nil {
		return nil, err
	}

	r := c.client.R().
		SetContext(ctx).
		SetHeaders(req.Headers).
		SetQueryParams(req.Params).
		SetDoNotParseResponse(true)
	if req.Body != nil {
		r.SetBody(req.Body)
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(raw)) > c.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.cfg.MaxBodyBytes)
	}

	out := &Response{
		Status:  resp.StatusCode(),
		Headers: make(map[string]string, len(resp.Header())),
		Data:    decodeBody(resp.Header().Get("Content-Type"), raw),
	}
	for k := range resp.Header() {
		out.Headers[strings.ToLower(k)] = resp.Header().Get(k)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return out, fmt.Errorf("Request failed with status code %d", resp.StatusCode())
	}
	return out, nil
}

func (c *HTTPClient) checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not allowed", u.Scheme)
	}
	if len(c.cfg.AllowedHosts) > 0 && !slices.Contains(c.cfg.AllowedHosts, u.Hostname()) {
		return fmt.Errorf("host %q is not allowed", u.Hostname())
	}
	return nil
}

func decodeBody(contentType string, raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "json") || json.Valid(raw) {
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}

func (r *Response) toScript() map[string]any {
	return map[string]any{
		"status":  r.Status,
		"headers": r.Headers,
		"data":    r.Data,
	}
}

// newHTTPBinding exposes client to the runtime. Methods follow the axios
// signatures: get(url, config), post(url, data, config), request(config).
func newHTTPBinding(ctx context.Context, vm *goja.Runtime, loop *eventLoop, client *HTTPClient) *goja.Object {
	obj := vm.NewObject()

	call := func(req Request) goja.Value {
		return loop.async(func() (any, error) {
			resp, err := client.Do(ctx, req)
			if err != nil {
				return nil, err
			}
			return resp.toScript(), nil
		})
	}

	withoutBody := func(method string) func(goja.FunctionCall) goja.Value {
		return func(fc goja.FunctionCall) goja.Value {
			req := decodeRequest(vm, fc.Argument(1))
			req.Method = method
			req.URL = fc.Argument(0).String()
			return call(req)
		}
	}
	withBody := func(method string) func(goja.FunctionCall) goja.Value {
		return func(fc goja.FunctionCall) goja.Value {
			req := decodeRequest(vm, fc.Argument(2))
			req.Method = method
			req.URL = fc.Argument(0).String()
			req.Body = export(fc.Argument(1))
			return call(req)
		}
	}

	_ = obj.Set("get", withoutBody(http.MethodGet))
	_ = obj.Set("delete", withoutBody(http.MethodDelete))
	_ = obj.Set("post", withBody(http.MethodPost))
	_ = obj.Set("put", withBody(http.MethodPut))
	_ = obj.Set("patch", withBody(http.MethodPatch))
	_ = obj.Set("request", func(fc goja.FunctionCall) goja.Value {
		return call(decodeRequest(vm, fc.Argument(0)))
	})
	return obj
}

func decodeRequest(vm *goja.Runtime, v goja.Value) Request {
	var req Request
	raw, ok := export(v).(map[string]any)
	if !ok {
		return req
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &req,
	})
	if err == nil {
		err = decoder.Decode(raw)
	}
	if err != nil {
		panic(vm.NewTypeError("invalid request options: " + err.Error()))
	}
	return req
}
