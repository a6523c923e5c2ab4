package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request is an immutable description of an outgoing call.
//
// Attempt counts how many times the request has been re-dispatched after an
// authorization recovery. It starts at zero and only grows through [Request.Retried].
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Header  http.Header
	Body    []byte
	Attempt int
}

// NewRequest returns a request for method and path with an empty header set.
func NewRequest(method, path string) Request {
	return Request{
		Method: strings.ToUpper(strings.TrimSpace(method)),
		Path:   path,
		Header: http.Header{},
	}
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	out := r
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	if r.Query != nil {
		out.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	if r.Body != nil {
		out.Body = append([]byte(nil), r.Body...)
	}
	return out
}

// WithHeader returns a copy of r with header key set to value.
func (r Request) WithHeader(key, value string) Request {
	out := r.Clone()
	out.Header.Set(key, value)
	return out
}

// WithoutHeader returns a copy of r with header key removed.
func (r Request) WithoutHeader(key string) Request {
	out := r.Clone()
	out.Header.Del(key)
	return out
}

// WithQuery returns a copy of r carrying q as its query string.
func (r Request) WithQuery(q url.Values) Request {
	out := r.Clone()
	out.Query = nil
	if len(q) > 0 {
		out.Query = make(url.Values, len(q))
		for k, v := range q {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return out
}

// WithJSON returns a copy of r whose body is the JSON encoding of v.
func (r Request) WithJSON(v any) (Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return r, fmt.Errorf("encode request body: %w", err)
	}
	out := r.Clone()
	out.Body = data
	out.Header.Set("Content-Type", "application/json")
	return out, nil
}

// Retried returns a copy of r marked as re-dispatched once more.
func (r Request) Retried() Request {
	out := r.Clone()
	out.Attempt = r.Attempt + 1
	return out
}

// IsReadOnly reports whether the method is GET, HEAD or OPTIONS.
func (r Request) IsReadOnly() bool {
	return IsReadOnlyMethod(r.Method)
}

// IsReadOnlyMethod reports whether method never changes server state.
func IsReadOnlyMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// String renders "METHOD path" for logs. Query values are omitted.
func (r Request) String() string {
	return r.Method + " " + r.Path
}

func (r Request) resolve(base *url.URL) (*url.URL, error) {
	ref, err := url.Parse(r.Path)
	if err != nil {
		return nil, fmt.Errorf("parse request path %q: %w", r.Path, err)
	}
	var target *url.URL
	if ref.IsAbs() || base == nil {
		target = ref
	} else {
		target = base.ResolveReference(&url.URL{
			Path:     strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/"),
			RawQuery: ref.RawQuery,
		})
	}
	if len(r.Query) > 0 {
		q := target.Query()
		for k, v := range r.Query {
			for _, item := range v {
				q.Add(k, item)
			}
		}
		target.RawQuery = q.Encode()
	}
	return target, nil
}
