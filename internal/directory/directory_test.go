package directory

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f fakeFetcher) FetchHTML(ctx context.Context, rawURL string) (string, error) {
	html, ok := f.pages[rawURL]
	if !ok {
		return "", fetchErr(rawURL)
	}
	return html, nil
}

type fetchErr string

func (e fetchErr) Error() string { return "no fixture for " + string(e) }

func TestSinglePageSource_ExtractsExternalLinks(t *testing.T) {
	listing := `<html><body>
		<a href="https://acme.com/careers">Acme</a>
		<a href="https://directory.example/about">About us</a>
		<a href="https://linkedin.com/company/acme">LinkedIn</a>
		<a href="https://other.com/logo.png">logo</a>
	</body></html>`

	f := fakeFetcher{pages: map[string]string{"https://directory.example/companies": listing}}
	src := &SinglePageSource{Name: "test-directory", ListingURL: "https://directory.example/companies"}

	companies, err := src.FetchCompanies(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "https://acme.com/careers", companies[0].WebsiteURL)
}

func TestSinglePageSource_DedupesByDomain(t *testing.T) {
	listing := `<html><body>
		<a href="https://acme.com/careers">Acme</a>
		<a href="https://acme.com/about">Acme again</a>
	</body></html>`

	f := fakeFetcher{pages: map[string]string{"https://directory.example/companies": listing}}
	src := &SinglePageSource{ListingURL: "https://directory.example/companies"}

	companies, err := src.FetchCompanies(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, companies, 1)
}

func TestListingDetailSource_FollowsDetailPagesForWebsites(t *testing.T) {
	listing := `<html><body>
		<a href="/company/acme">Acme</a>
		<a href="/blog/post">Not a detail page</a>
	</body></html>`
	detail := `<html><head><title>Acme — Directory</title></head><body>
		<h1>Acme Corp</h1>
		<a href="https://acme.com">Visit website</a>
		<a href="https://twitter.com/acme">Twitter</a>
	</body></html>`

	f := fakeFetcher{pages: map[string]string{
		"https://directory.example/companies":    listing,
		"https://directory.example/company/acme": detail,
	}}
	src := &ListingDetailSource{ListingURL: "https://directory.example/companies", DetailPathPrefix: "/company/"}

	companies, err := src.FetchCompanies(context.Background(), f)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "Acme Corp", companies[0].RawName)
	assert.Equal(t, "https://acme.com", companies[0].WebsiteURL)
}

func TestListingDetailSource_CapsWebsitesPerDetailPage(t *testing.T) {
	listing := `<a href="/company/acme">Acme</a>`
	var detail strings.Builder
	detail.WriteString("<body>")
	for i := 0; i < MaxWebsitesPerDetailPage+3; i++ {
		detail.WriteString(`<a href="https://site` + strconv.Itoa(i) + `.com">site</a>`)
	}
	detail.WriteString("</body>")

	f := fakeFetcher{pages: map[string]string{
		"https://directory.example/companies":    listing,
		"https://directory.example/company/acme": detail.String(),
	}}
	src := &ListingDetailSource{ListingURL: "https://directory.example/companies", DetailPathPrefix: "/company/"}

	companies, err := src.FetchCompanies(context.Background(), f)
	require.NoError(t, err)
	assert.Len(t, companies, MaxWebsitesPerDetailPage)
}
