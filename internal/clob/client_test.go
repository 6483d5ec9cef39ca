package clob

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c := New(zap.NewNop())
	c.baseURL = baseURL
	c.httpClient = http.DefaultClient
	return c
}

func TestFetchMidpointParsesValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"mid":"0.63"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	v, ok := c.FetchMidpoint(context.Background(), "tok1")
	if !ok || v != 0.63 {
		t.Fatalf("got %v, %v", v, ok)
	}
}

func TestFetchBookTotalSizeSumsBidsAndAsks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[{"size":"10.0"},{"size":"5.0"}],"asks":[{"size":"3.0"}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	total, ok := c.FetchBookTotalSize(context.Background(), "tok1")
	if !ok || total != 18.0 {
		t.Fatalf("got %v, %v", total, ok)
	}
}

func TestFetchBookTotalSizeSkipsUnparsableSizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"bids":[{"size":"garbage"},{"size":"2.0"}],"asks":[]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	total, ok := c.FetchBookTotalSize(context.Background(), "tok1")
	if !ok || total != 2.0 {
		t.Fatalf("got %v, %v", total, ok)
	}
}

func TestFetchMidpointNotFoundYieldsFalse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	_, ok := c.FetchMidpoint(context.Background(), "missing")
	if ok {
		t.Fatalf("expected ok=false for 404")
	}
}

func TestFetchPriceParsesValue(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"price":"0.645"}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	v, ok := c.FetchPrice(context.Background(), "tok1")
	if !ok || v != 0.645 {
		t.Fatalf("got %v, %v", v, ok)
	}
}

func TestFetchAllYieldsPartialResultOnOneSidedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/midpoint":
			w.Write([]byte(`{"mid":"0.5"}`))
		case r.URL.Path == "/book":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL)
	out := c.FetchAll(context.Background(), []string{"tok1"})
	obs, ok := out["tok1"]
	if !ok {
		t.Fatalf("expected entry for tok1")
	}
	if !obs.PriceOK || obs.TotalBookSizeOK {
		t.Fatalf("expected price present, book size absent: %+v", obs)
	}
}
