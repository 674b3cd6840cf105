package aggregator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banasa44/fxsignal/internal/httpclient"
	"github.com/banasa44/fxsignal/internal/ingest"
)

func testClient() *httpclient.Client {
	return httpclient.New(httpclient.Options{
		Timeout: 2 * time.Second, MaxRetries: 0,
		BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, MaxRetryAfter: time.Second,
		Logger: zerolog.Nop(),
	})
}

func TestProvider_PaginatesUntilHasMoreFalse(t *testing.T) {
	var pages int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pages++
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("page") {
		case "1":
			w.Write([]byte(`{"has_more": true, "jobs": [
				{"id": "1", "title": "FX Trader", "company_name": "Acme", "company_url": "https://acme.com",
				 "url": "https://board.example/1", "description": "USD desk", "location": "NYC", "published_at": "2026-01-01T00:00:00Z"}
			]}`))
		case "2":
			w.Write([]byte(`{"has_more": false, "jobs": [
				{"id": "2", "title": "Ops Analyst", "company_name": "Acme", "company_url": "https://acme.com",
				 "url": "https://board.example/2", "description": "manage EUR settlements"}
			]}`))
		default:
			w.Write([]byte(`{"has_more": false, "jobs": []}`))
		}
	}))
	defer srv.Close()

	p := New(srv.URL, testClient(), []string{"fx"})

	ids, err := p.ListOffers(context.Background(), ingest.Unit{TenantKey: "fx"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.Equal(t, 2, pages)

	offers, err := p.HydrateDetails(context.Background(), ingest.Unit{TenantKey: "fx"}, ids)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "Acme", offers[0].CompanyRawName)
}

func TestProvider_StopsWhenPageEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"has_more": true, "jobs": []}`))
	}))
	defer srv.Close()

	p := New(srv.URL, testClient(), []string{"fx"})
	ids, err := p.ListOffers(context.Background(), ingest.Unit{TenantKey: "fx"})
	require.NoError(t, err)
	assert.Len(t, ids, 0)
}
