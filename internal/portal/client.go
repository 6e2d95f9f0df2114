package portal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/LumeWeb/portal-legacy/internal/xerrors"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 4 << 20
	defaultUserAgent    = "skynet-health-check"
)

// Request describes a single call. Cookie is sent verbatim as the Cookie header.
type Request struct {
	Method      string
	URL         string
	Header      http.Header
	Cookie      string
	Body        io.Reader
	ContentType string
}

// Response is the buffered result of a call.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// RemoteAddr is the IP of the peer the request was sent over, without port.
	RemoteAddr string
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return xerrors.Wrap(err, "decode response body")
	}
	return nil
}

// ResponseError is returned for non-2xx responses.
type ResponseError struct {
	Method   string
	URL      string
	Response *Response
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("Response code %d (%s)", e.Response.StatusCode, http.StatusText(e.Response.StatusCode))
}

func (e *ResponseError) ResponseStatus() int  { return e.Response.StatusCode }
func (e *ResponseError) ResponseBody() []byte { return e.Response.Body }

type Options struct {
	Timeout      time.Duration
	Transport    http.RoundTripper
	UserAgent    string
	MaxBodyBytes int64
	// InsecureSkipVerify disables certificate checks; only for direct
	// server access where the cert is issued for the portal domain.
	InsecureSkipVerify bool
}

// Client is the HTTP transport used by probes.
type Client struct {
	hc        *http.Client
	userAgent string
	maxBody   int64
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	base := opts.Transport
	if base == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if opts.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		// one connection per probe call so RemoteAddr always reflects a fresh dial
		t.DisableKeepAlives = true
		base = t
	}
	return &Client{
		hc: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		userAgent: opts.UserAgent,
		maxBody:   opts.MaxBodyBytes,
	}
}

// Fetch performs the request and buffers the body. The returned Response is
// non-nil whenever a connection was established, including alongside a
// *ResponseError for non-2xx statuses.
func (c *Client) Fetch(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, r.Body)
	if err != nil {
		return nil, xerrors.Wrapf(err, "build request %s %s", method, r.URL)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if r.Cookie != "" {
		req.Header.Set("Cookie", r.Cookie)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}

	var (
		mu     sync.Mutex
		remote string
	)
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Conn == nil {
				return
			}
			mu.Lock()
			remote = hostOnly(info.Conn.RemoteAddr())
			mu.Unlock()
		},
	}
	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))

	resp, err := c.hc.Do(req)
	remoteAddr := func() string {
		mu.Lock()
		defer mu.Unlock()
		return remote
	}
	if err != nil {
		if ip := remoteAddr(); ip != "" {
			return &Response{RemoteAddr: ip}, err
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		RemoteAddr: remoteAddr(),
	}
	if err != nil {
		return out, xerrors.Wrapf(err, "read body %s %s", method, r.URL)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &ResponseError{Method: method, URL: r.URL, Response: out}
	}
	return out, nil
}

func hostOnly(a net.Addr) string {
	if a == nil {
		return ""
	}
	if tcp, ok := a.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(a.String())
	if err != nil {
		return a.String()
	}
	return host
}

// GetJSON fetches url and decodes a 2xx JSON body into v.
func (c *Client) GetJSON(ctx context.Context, r Request, v any) (*Response, error) {
	r.Header = r.Header.Clone()
	if r.Header == nil {
		r.Header = http.Header{}
	}
	r.Header.Set("Accept", "application/json")
	resp, err := c.Fetch(ctx, r)
	if err != nil {
		return resp, err
	}
	if err := resp.JSON(v); err != nil {
		return resp, err
	}
	return resp, nil
}

// PostJSON marshals body and posts it.
func (c *Client) PostJSON(ctx context.Context, url, cookie string, body any) (*Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, xerrors.Wrap(err, "encode request body")
	}
	return c.Fetch(ctx, Request{
		Method:      http.MethodPost,
		URL:         url,
		Cookie:      cookie,
		Body:        bytes.NewReader(b),
		ContentType: "application/json",
	})
}
