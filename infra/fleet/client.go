package fleet

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"iter"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tnqbao/gau-site-director/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const maxErrorBody = 512

var tracer = otel.Tracer("github.com/tnqbao/gau-site-director/infra/fleet")

type Options struct {
	TLSConfig    *tls.Config
	SharedSecret string
	Transport    http.RoundTripper
	Rand         *rand.Rand
}

type RequestOptions struct {
	Method      string
	Params      url.Values
	Form        url.Values
	Body        []byte
	ContentType string
	Timeout     time.Duration
}

// Client talks to one pool of interchangeable nodes. The address list is
// fixed at construction.
type Client struct {
	pool   string
	addrs  []string
	scheme string
	secret string
	http   *http.Client

	mu  sync.Mutex
	rng *rand.Rand
}

func NewClient(pool string, addrs []string, opts Options) *Client {
	scheme := "http"
	if opts.TLSConfig != nil {
		scheme = "https"
	}

	transport := opts.Transport
	if transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = opts.TLSConfig
		transport = t
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))
	}

	return &Client{
		pool:   pool,
		addrs:  slices.Clone(addrs),
		scheme: scheme,
		secret: opts.SharedSecret,
		http:   &http.Client{Transport: transport},
		rng:    rng,
	}
}

func (c *Client) Pool() string { return c.pool }

func (c *Client) Len() int { return len(c.addrs) }

func (c *Client) Addrs() []string { return slices.Clone(c.addrs) }

// Resolve turns a NodeRef into an address. Random picks a pool member and is
// only accepted when allowRandom is set.
func (c *Client) Resolve(ref NodeRef, allowRandom bool) (string, error) {
	if ref.addr != "" {
		return ref.addr, nil
	}

	idx := ref.index
	if idx < 0 {
		if !allowRandom {
			return "", fmt.Errorf("%w: %s requires a concrete node", ErrInvalidSelection, c.pool)
		}
		if len(c.addrs) == 0 {
			return "", fmt.Errorf("%w: %s pool is empty", ErrInvalidSelection, c.pool)
		}
		idx = c.intn(len(c.addrs))
	}
	if idx >= len(c.addrs) {
		return "", fmt.Errorf("%w: %s index %d out of range (%d nodes)", ErrInvalidSelection, c.pool, idx, len(c.addrs))
	}
	return c.addrs[idx], nil
}

func (c *Client) Request(ctx context.Context, ref NodeRef, path string, opts RequestOptions) (*Response, error) {
	addr, err := c.Resolve(ref, true)
	if err != nil {
		return nil, err
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var body []byte
	contentType := opts.ContentType
	switch {
	case opts.Form != nil:
		body = []byte(opts.Form.Encode())
		contentType = "application/x-www-form-urlencoded"
	case opts.Body != nil:
		body = opts.Body
	}

	target := url.URL{Scheme: c.scheme, Host: addr, Path: path}
	if len(opts.Params) > 0 {
		target.RawQuery = opts.Params.Encode()
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "fleet.request", trace.WithAttributes(
		attribute.String("fleet.pool", c.pool),
		attribute.String("fleet.node", addr),
		attribute.String("http.method", method),
		attribute.String("http.path", path),
	))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &ProtocolError{Pool: c.pool, Addr: addr, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.secret != "" {
		for k, v := range utils.SignRequest(c.secret, method, path, time.Now().Unix(), body) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		err = c.classify(addr, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		err = c.classify(addr, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "body read failure")
		return nil, err
	}

	out := &Response{StatusCode: resp.StatusCode, Header: resp.Header, Raw: raw}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := truncateRunes(out.Text(), maxErrorBody)
		span.SetStatus(codes.Error, "non-2xx response")
		return nil, &ProtocolError{Pool: c.pool, Addr: addr, StatusCode: resp.StatusCode, Body: strings.TrimSpace(text)}
	}

	return out, nil
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Ping reports whether the node echoes a ping token. Every failure is false.
func (c *Client) Ping(ctx context.Context, ref NodeRef, timeout time.Duration) bool {
	token := uuid.NewString()
	resp, err := c.Request(ctx, ref, "/ping", RequestOptions{
		Method:  http.MethodGet,
		Params:  url.Values{"message": {token}},
		Timeout: timeout,
	})
	if err != nil {
		return false
	}
	return strings.TrimSpace(resp.Text()) == token
}

// Reachable yields the indices of nodes that answer a ping, probing one node
// per step. Each iteration starts probing from scratch.
func (c *Client) Reachable(ctx context.Context, timeout time.Duration) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := range c.addrs {
			if c.Ping(ctx, Index(i), timeout) && !yield(i) {
				return
			}
		}
	}
}

// ReachableRandom is Reachable over a fresh random permutation of the pool.
func (c *Client) ReachableRandom(ctx context.Context, timeout time.Duration) iter.Seq[int] {
	return func(yield func(int) bool) {
		for _, i := range c.perm(len(c.addrs)) {
			if c.Ping(ctx, Index(i), timeout) && !yield(i) {
				return
			}
		}
	}
}

// PingAll pings every node concurrently and returns the reachable indices
// in pool order.
func (c *Client) PingAll(ctx context.Context, timeout time.Duration) []int {
	up := make([]bool, len(c.addrs))
	g, gctx := errgroup.WithContext(ctx)
	for i := range c.addrs {
		g.Go(func() error {
			up[i] = c.Ping(gctx, Index(i), timeout)
			return nil
		})
	}
	_ = g.Wait()

	var out []int
	for i, ok := range up {
		if ok {
			out = append(out, i)
		}
	}
	return out
}

func (c *Client) classify(addr string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &TimeoutError{Pool: c.pool, Addr: addr, Err: err}
	}
	return &ConnectionError{Pool: c.pool, Addr: addr, Err: err}
}

func (c *Client) intn(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.IntN(n)
}

func (c *Client) perm(n int) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rng.Perm(n)
}
