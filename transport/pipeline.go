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
)

const defaultMaxBodyBytes = 4 << 20

// Doer sends an HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Dispatcher sends a [Request] through the full hook stack.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) (*Response, error)
}

// RequestHook transforms a request before it is sent. Hooks must not fail;
// a hook with nothing to add returns req unchanged.
type RequestHook func(ctx context.Context, req Request) Request

// ResponseHook inspects the outcome of a dispatch. It receives the pipeline
// so it can re-dispatch, and returns the response/error pair handed to the
// next hook (and finally to the caller).
type ResponseHook func(ctx context.Context, d Dispatcher, req Request, resp *Response, err error) (*Response, error)

// Observation describes one wire round trip.
type Observation struct {
	Method   string
	Path     string
	Status   int
	Attempt  int
	Duration time.Duration
	Err      error
}

// Observer receives an [Observation] after every round trip.
type Observer func(Observation)

// Response is a fully read HTTP response.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Request Request
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if r == nil || len(bytes.TrimSpace(r.Body)) == 0 || v == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", r.Request.String(), err)
	}
	return nil
}

// Pipeline dispatches requests through ordered request and response hooks.
//
// Hooks are registered during construction or through Use/OnResponse before
// the first Dispatch; registration is not synchronized with dispatching.
type Pipeline struct {
	base          *url.URL
	doer          Doer
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	observer      Observer
	maxBodyBytes  int64
	userAgent     string
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithRequestHook appends a request hook.
func WithRequestHook(h RequestHook) Option {
	return func(p *Pipeline) { p.Use(h) }
}

// WithResponseHook appends a response hook.
func WithResponseHook(h ResponseHook) Option {
	return func(p *Pipeline) { p.OnResponse(h) }
}

// WithObserver sets the round-trip observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithMaxBodyBytes caps how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxBodyBytes = n
		}
	}
}

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option {
	return func(p *Pipeline) { p.userAgent = strings.TrimSpace(ua) }
}

// NewPipeline builds a pipeline rooted at baseURL.
func NewPipeline(baseURL string, doer Doer, opts ...Option) (*Pipeline, error) {
	if doer == nil {
		return nil, ErrNilDoer
	}
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	p := &Pipeline{
		base:         base,
		doer:         doer,
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// BaseURL returns a copy of the pipeline's base URL.
func (p *Pipeline) BaseURL() *url.URL {
	u := *p.base
	return &u
}

// Use appends a request hook.
func (p *Pipeline) Use(h RequestHook) {
	if h != nil {
		p.requestHooks = append(p.requestHooks, h)
	}
}

// OnResponse appends a response hook.
func (p *Pipeline) OnResponse(h ResponseHook) {
	if h != nil {
		p.responseHooks = append(p.responseHooks, h)
	}
}

// Dispatch runs req through every request hook, sends it, and runs the
// outcome through every response hook.
func (p *Pipeline) Dispatch(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req = req.Clone()
	for _, h := range p.requestHooks {
		req = h(ctx, req)
	}

	resp, err := p.send(ctx, req)

	for _, h := range p.responseHooks {
		resp, err = h(ctx, p, req, resp, err)
	}
	return resp, err
}

func (p *Pipeline) send(ctx context.Context, req Request) (*Response, error) {
	target, err := req.resolve(p.base)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.Path, Err: err}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, &TransportError{Method: req.Method, URL: req.Path, Err: err}
	}
	for k, v := range req.Header {
		httpReq.Header[k] = append([]string(nil), v...)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if p.userAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", p.userAgent)
	}

	start := time.Now()
	httpResp, err := p.doer.Do(httpReq)
	if err != nil {
		terr := &TransportError{Method: req.Method, URL: req.Path, Err: err}
		p.observe(req, 0, start, terr)
		return nil, terr
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, p.maxBodyBytes+1))
	if err != nil {
		terr := &TransportError{Method: req.Method, URL: req.Path, Err: fmt.Errorf("read body: %w", err)}
		p.observe(req, httpResp.StatusCode, start, terr)
		return nil, terr
	}
	ok := httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299
	if int64(len(data)) > p.maxBodyBytes {
		if ok {
			terr := &TransportError{Method: req.Method, URL: req.Path, Err: fmt.Errorf("%w: exceeds %d bytes", ErrBodyTooLarge, p.maxBodyBytes)}
			p.observe(req, httpResp.StatusCode, start, terr)
			return nil, terr
		}
		// Error bodies only feed the detail message; the status still counts.
		data = data[:p.maxBodyBytes]
	}

	resp := &Response{
		Status:  httpResp.StatusCode,
		Header:  httpResp.Header.Clone(),
		Body:    data,
		Request: req,
	}
	if !ok {
		herr := newHTTPError(req, req.Path, httpResp.StatusCode, data)
		p.observe(req, httpResp.StatusCode, start, herr)
		return resp, herr
	}
	p.observe(req, httpResp.StatusCode, start, nil)
	return resp, nil
}

func (p *Pipeline) observe(req Request, status int, start time.Time, err error) {
	if p.observer == nil {
		return
	}
	p.observer(Observation{
		Method:   req.Method,
		Path:     req.Path,
		Status:   status,
		Attempt:  req.Attempt,
		Duration: time.Since(start),
		Err:      err,
	})
}
