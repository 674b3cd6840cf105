package greenhouse

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

const boardJSON = `{
  "jobs": [
    {
      "id": 20,
      "title": "Treasury Controller",
      "absolute_url": "https://boards.greenhouse.io/acme/jobs/20",
      "updated_at": "2026-01-02T00:00:00Z",
      "location": {"name": "Remote"},
      "content": "hedge USD and GBP cashflows",
      "metadata": [
        {"name": "Department", "value": "Finance"},
        {"name": "Employment Type", "value": "Full-time"}
      ]
    },
    {
      "id": 10,
      "title": "Support Engineer",
      "absolute_url": "https://boards.greenhouse.io/acme/jobs/10",
      "updated_at": "2026-01-01T00:00:00Z",
      "location": {"name": "Berlin"},
      "content": "support customers"
    }
  ]
}`

func TestProvider_ListThenHydrate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/boards/acme/jobs", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("content"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(boardJSON))
	}))
	defer srv.Close()

	p := New(srv.URL, testClient(), []ingest.Unit{{TenantKey: "acme"}})

	ids, err := p.ListOffers(context.Background(), ingest.Unit{TenantKey: "acme"})
	require.NoError(t, err)
	require.Equal(t, []string{"10", "20"}, ids) // ascending-id sort

	offers, err := p.HydrateDetails(context.Background(), ingest.Unit{TenantKey: "acme"}, ids)
	require.NoError(t, err)
	require.Len(t, offers, 2)

	var treasury ingest.CanonicalOffer
	for _, o := range offers {
		if o.ProviderOfferID == "20" {
			treasury = o
		}
	}
	assert.Equal(t, "Treasury Controller", treasury.Title)
	assert.Contains(t, treasury.Description, "USD and GBP")
	require.NotNil(t, treasury.Location)
	assert.Equal(t, "Remote", *treasury.Location)
	require.NotNil(t, treasury.Metadata.Category)
	assert.Equal(t, "Finance", *treasury.Metadata.Category)
	require.NotNil(t, treasury.Metadata.ContractType)
	assert.Equal(t, "Full-time", *treasury.Metadata.ContractType)
	require.NotNil(t, treasury.UpdatedAt)
}

func TestProvider_SkipsJobsMissingRequiredFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"jobs": [{"id": 1}]}`))
	}))
	defer srv.Close()

	p := New(srv.URL, testClient(), nil)
	ids, err := p.ListOffers(context.Background(), ingest.Unit{TenantKey: "acme"})
	require.NoError(t, err)

	offers, err := p.HydrateDetails(context.Background(), ingest.Unit{TenantKey: "acme"}, ids)
	require.NoError(t, err)
	assert.Len(t, offers, 0)
}
