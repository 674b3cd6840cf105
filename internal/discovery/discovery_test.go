package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchHTML(_ context.Context, u string) (string, error) {
	html, ok := f.pages[u]
	if !ok {
		return "", assertNotFoundErr
	}
	return html, nil
}

var assertNotFoundErr = fetchErr("not found")

type fetchErr string

func (e fetchErr) Error() string { return string(e) }

// S1: Lever tenant URL found on a primary candidate page.
func TestDiscover_FoundOnPrimarySweep(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://www.rackspace.com/careers": `<a href="https://jobs.lever.co/rackspace">Jobs</a>`,
	}}
	res := Discover(context.Background(), f, "https://www.rackspace.com")
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "rackspace", res.TenantKey)
	assert.Equal(t, "https://www.rackspace.com/careers", res.EvidenceURL)
}

func TestDiscover_UnparseableURL(t *testing.T) {
	res := Discover(context.Background(), &fakeFetcher{}, "not a url at all::::")
	assert.Equal(t, StatusError, res.Status)
}

func TestDiscover_HostWithoutDot(t *testing.T) {
	res := Discover(context.Background(), &fakeFetcher{}, "http://localhost")
	assert.Equal(t, StatusError, res.Status)
}

func TestDiscover_NotFoundWhenNoCandidateMatches(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.com/careers": `<html><body>no ats here</body></html>`,
	}}
	res := Discover(context.Background(), f, "https://acme.com")
	assert.Equal(t, StatusNotFound, res.Status)
}

// 1-hop follow: primary pages don't match, but a qualifying anchor
// leads to a page that does.
func TestDiscover_FollowsQualifyingLink(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.com/careers": `<a href="/open-positions">See openings</a>`,
		"https://acme.com/open-positions": `<a href="https://boards.greenhouse.io/acme">Apply</a>`,
	}}
	res := Discover(context.Background(), f, "https://acme.com")
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "acme", res.TenantKey)
}

func TestDiscover_IgnoresNonQualifyingLinks(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.com/careers": `
			<a href="mailto:hr@acme.com">Email HR</a>
			<a href="https://acme.com/logo.png">logo</a>
			<a href="https://unrelated-vendor.example.com/careers">external</a>
		`,
	}}
	res := Discover(context.Background(), f, "https://acme.com")
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestDiscover_AllowsATSVendorExternalHost(t *testing.T) {
	f := &fakeFetcher{pages: map[string]string{
		"https://acme.com/careers": `<a href="https://jobs.lever.co/acme/careers-portal">Careers</a>`,
	}}
	res := Discover(context.Background(), f, "https://acme.com")
	require.Equal(t, StatusFound, res.Status)
	assert.Equal(t, "acme", res.TenantKey)
}
