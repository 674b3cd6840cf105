package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S1 fixture: Lever tenant URL embedded in a career page.
func TestDetectLever(t *testing.T) {
	html := `<html><body><a href="https://jobs.lever.co/rackspace">Careers</a></body></html>`
	m, ok := DetectLever(html)
	assert.True(t, ok)
	assert.Equal(t, ProviderLever, m.Provider)
	assert.Equal(t, "rackspace", m.TenantKey)
	assert.Equal(t, "https://jobs.lever.co/rackspace", m.EvidenceURL)
}

func TestDetectLever_APISubdomain(t *testing.T) {
	html := `see https://jobs-api.lever.co/acme/listings for data`
	m, ok := DetectLever(html)
	assert.True(t, ok)
	assert.Equal(t, "acme", m.TenantKey)
}

func TestDetectGreenhouse(t *testing.T) {
	html := `<a href="https://boards.greenhouse.io/stripe">Open roles</a>`
	m, ok := DetectGreenhouse(html)
	assert.True(t, ok)
	assert.Equal(t, ProviderGreenhouse, m.Provider)
	assert.Equal(t, "stripe", m.TenantKey)
}

func TestDetectGreenhouse_EmbedForm(t *testing.T) {
	html := `<iframe src="https://boards.greenhouse.io/embed/job_board?for=figma"></iframe>`
	m, ok := DetectGreenhouse(html)
	assert.True(t, ok)
	assert.Equal(t, "figma", m.TenantKey)
}

func TestDetectAny_NoMatch(t *testing.T) {
	_, ok := DetectAny(`<html><body>nothing here</body></html>`)
	assert.False(t, ok)
}

func TestDetectAny_PrefersLeverOverGreenhouseOnFirstMatch(t *testing.T) {
	html := `https://jobs.lever.co/acme and https://boards.greenhouse.io/acme`
	m, ok := DetectAny(html)
	assert.True(t, ok)
	assert.Equal(t, ProviderLever, m.Provider)
}
