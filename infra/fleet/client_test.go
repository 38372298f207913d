package fleet

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-site-director/utils"
)

// node is a fake fleet member that echoes pings and records hits.
type node struct {
	name  string
	up    bool
	pings atomic.Int32
	hits  atomic.Int32
	srv   *httptest.Server
}

func newNode(t *testing.T, name string, up bool) *node {
	t.Helper()
	n := &node{name: name, up: up}
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		n.pings.Add(1)
		if !n.up {
			http.Error(w, "maintenance", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, r.URL.Query().Get("message"))
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		n.hits.Add(1)
		fmt.Fprint(w, n.name)
	})
	n.srv = httptest.NewServer(mux)
	t.Cleanup(n.srv.Close)
	return n
}

func (n *node) addr() string {
	return strings.TrimPrefix(n.srv.URL, "http://")
}

func seeded() Options {
	return Options{Rand: rand.New(rand.NewPCG(1, 2))}
}

func TestUnreachablePool(t *testing.T) {
	// Nothing listens on these privileged ports.
	client := NewClient(PoolAppservers, []string{"127.0.0.1:1", "127.0.0.1:2"}, seeded())
	ctx := context.Background()

	var reachable []int
	for i := range client.Reachable(ctx, time.Second) {
		reachable = append(reachable, i)
	}
	assert.Empty(t, reachable)
	assert.False(t, client.Ping(ctx, Index(0), time.Second))
	assert.False(t, client.Ping(ctx, Index(1), time.Second))
}

func TestReachableIsLazyAndRestartable(t *testing.T) {
	a := newNode(t, "a", true)
	b := newNode(t, "b", true)
	client := NewClient(PoolAppservers, []string{a.addr(), b.addr()}, seeded())
	ctx := context.Background()

	for i := range client.Reachable(ctx, time.Second) {
		assert.Equal(t, 0, i)
		break
	}
	assert.EqualValues(t, 1, a.pings.Load())
	assert.EqualValues(t, 0, b.pings.Load(), "second node must not be pinged before it is needed")

	var all []int
	for i := range client.Reachable(ctx, time.Second) {
		all = append(all, i)
	}
	assert.Equal(t, []int{0, 1}, all)
	assert.EqualValues(t, 2, a.pings.Load())
}

func TestReachableSkipsDownNodes(t *testing.T) {
	a := newNode(t, "a", false)
	b := newNode(t, "b", true)
	c := newNode(t, "c", true)
	client := NewClient(PoolBalancers, []string{a.addr(), b.addr(), c.addr()}, seeded())

	var got []int
	for i := range client.ReachableRandom(context.Background(), time.Second) {
		got = append(got, i)
	}
	assert.ElementsMatch(t, []int{1, 2}, got)
	assert.Equal(t, []int{1, 2}, client.PingAll(context.Background(), time.Second))
}

func TestPingRejectsWrongEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "pong")
	}))
	defer srv.Close()

	client := NewClient(PoolAppservers, []string{strings.TrimPrefix(srv.URL, "http://")}, seeded())
	assert.False(t, client.Ping(context.Background(), Index(0), time.Second))
}

func TestResolve(t *testing.T) {
	client := NewClient(PoolAppservers, []string{"a:1", "b:2"}, seeded())

	addr, err := client.Resolve(Index(1), false)
	require.NoError(t, err)
	assert.Equal(t, "b:2", addr)

	addr, err = client.Resolve(Addr("c:3"), false)
	require.NoError(t, err)
	assert.Equal(t, "c:3", addr)

	_, err = client.Resolve(Random, false)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	_, err = client.Resolve(Index(2), true)
	assert.ErrorIs(t, err, ErrInvalidSelection)

	addr, err = client.Resolve(Random, true)
	require.NoError(t, err)
	assert.Contains(t, []string{"a:1", "b:2"}, addr)

	empty := NewClient(PoolBalancers, nil, seeded())
	_, err = empty.Resolve(Random, true)
	assert.ErrorIs(t, err, ErrInvalidSelection)
}

func TestResolveThenRequestReachesSameNode(t *testing.T) {
	a := newNode(t, "a", true)
	b := newNode(t, "b", true)
	client := NewClient(PoolAppservers, []string{a.addr(), b.addr()}, seeded())
	ctx := context.Background()

	for i, want := range []string{"a", "b"} {
		addr, err := client.Resolve(Index(i), false)
		require.NoError(t, err)

		byIndex, err := client.Request(ctx, Index(i), "/whoami", RequestOptions{Timeout: time.Second})
		require.NoError(t, err)
		byAddr, err := client.Request(ctx, Addr(addr), "/whoami", RequestOptions{Timeout: time.Second})
		require.NoError(t, err)

		assert.Equal(t, want, byIndex.Text())
		assert.Equal(t, byIndex.Text(), byAddr.Text())
	}
	assert.EqualValues(t, 2, a.hits.Load())
	assert.EqualValues(t, 2, b.hits.Load())
}

func TestRequestErrorClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/fail":
			http.Error(w, "nginx -t failed", http.StatusInternalServerError)
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}
	}))
	defer srv.Close()

	client := NewClient(PoolAppservers, []string{strings.TrimPrefix(srv.URL, "http://"), "127.0.0.1:1"}, seeded())
	ctx := context.Background()

	_, err := client.Request(ctx, Index(0), "/fail", RequestOptions{Method: http.MethodPost})
	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, http.StatusInternalServerError, protoErr.StatusCode)
	assert.Contains(t, protoErr.Body, "nginx -t failed")
	assert.False(t, IsTransient(err))

	_, err = client.Request(ctx, Index(0), "/slow", RequestOptions{Timeout: 50 * time.Millisecond})
	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "got %v", err)
	assert.True(t, IsTransient(err))

	_, err = client.Request(ctx, Index(1), "/anything", RequestOptions{Timeout: time.Second})
	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.Equal(t, "127.0.0.1:1", connErr.Addr)
	assert.True(t, IsTransient(err))
}

func TestRequestSendsFormAndSignature(t *testing.T) {
	var gotData string
	var gotHeaders, wantHeaders map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotData = r.PostForm.Get("data")
		gotHeaders = map[string]string{
			utils.SignatureHeader:          r.Header.Get(utils.SignatureHeader),
			utils.SignatureTimestampHeader: r.Header.Get(utils.SignatureTimestampHeader),
		}
		ts, _ := strconv.ParseInt(gotHeaders[utils.SignatureTimestampHeader], 10, 64)
		wantHeaders = utils.SignRequest("shh", r.Method, r.URL.Path, ts, []byte(r.PostForm.Encode()))
		fmt.Fprint(w, "Success")
	}))
	defer srv.Close()

	opts := seeded()
	opts.SharedSecret = "shh"
	client := NewClient(PoolAppservers, []string{strings.TrimPrefix(srv.URL, "http://")}, opts)

	before := time.Now().Unix()
	resp, err := client.Request(context.Background(), Index(0), "/sites/3/update-nginx", RequestOptions{
		Method: http.MethodPost,
		Form:   map[string][]string{"data": {`{"pk":3}`}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Success", resp.Text())
	assert.Equal(t, `{"pk":3}`, gotData)
	assert.NotEmpty(t, gotHeaders[utils.SignatureHeader])
	assert.Equal(t, wantHeaders, gotHeaders)

	ts, err := strconv.ParseInt(gotHeaders[utils.SignatureTimestampHeader], 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ts, before)
}

func TestProtocolErrorBodyKeepsRunesWhole(t *testing.T) {
	long := "x" + strings.Repeat("é", maxErrorBody)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, long, http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(PoolAppservers, []string{strings.TrimPrefix(srv.URL, "http://")}, seeded())
	_, err := client.Request(context.Background(), Index(0), "/sites/3/update-nginx", RequestOptions{Method: http.MethodPost})

	var protoErr *ProtocolError
	require.True(t, errors.As(err, &protoErr), "got %v", err)
	assert.True(t, utf8.ValidString(protoErr.Body))
	assert.LessOrEqual(t, len(protoErr.Body), maxErrorBody)
	assert.True(t, strings.HasPrefix(long, protoErr.Body))

	assert.Equal(t, "ab", truncateRunes("abé", 3))
	assert.Equal(t, "abé", truncateRunes("abé", 4))
	assert.Equal(t, "short", truncateRunes("short", 10))
}

func TestResponseTextAndJSON(t *testing.T) {
	latin1 := &Response{
		Header: http.Header{"Content-Type": {"text/plain; charset=iso-8859-1"}},
		Raw:    []byte{'c', 'a', 'f', 0xE9},
	}
	assert.Equal(t, "café", latin1.Text())

	plain := &Response{Header: http.Header{}, Raw: []byte(`{"reachable":[0,2]}`)}
	var body struct {
		Reachable []int `json:"reachable"`
	}
	require.NoError(t, plain.JSON(&body))
	assert.Equal(t, []int{0, 2}, body.Reachable)
}
