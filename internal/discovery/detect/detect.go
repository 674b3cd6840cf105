// Package detect implements the Lever and Greenhouse tenant detectors
// (§6 "Provider detectors"): given an HTML string, find the first
// unambiguous tenant URL and extract its slug.
package detect

import "regexp"

// Provider names a supported ATS kind.
type Provider string

const (
	ProviderLever      Provider = "lever"
	ProviderGreenhouse Provider = "greenhouse"
)

// Match is the result of a successful detection.
type Match struct {
	Provider    Provider
	TenantKey   string
	EvidenceURL string
}

var (
	leverPattern = regexp.MustCompile(`https?://(?:jobs|jobs-api)\.lever\.co/([a-zA-Z0-9][a-zA-Z0-9-]*)`)

	greenhousePattern = regexp.MustCompile(`https?://(?:boards|boards-api)\.greenhouse\.io/(?:embed/job_board\?for=)?([a-zA-Z0-9][a-zA-Z0-9-]*)`)
)

// DetectLever scans html for the first jobs(-api).lever.co/<tenant> URL.
func DetectLever(html string) (Match, bool) {
	m := leverPattern.FindStringSubmatch(html)
	if m == nil {
		return Match{}, false
	}
	return Match{Provider: ProviderLever, TenantKey: m[1], EvidenceURL: m[0]}, true
}

// DetectGreenhouse scans html for the first boards(-api).greenhouse.io/<token> URL.
func DetectGreenhouse(html string) (Match, bool) {
	m := greenhousePattern.FindStringSubmatch(html)
	if m == nil {
		return Match{}, false
	}
	return Match{Provider: ProviderGreenhouse, TenantKey: m[1], EvidenceURL: m[0]}, true
}

// DetectAny runs both detectors in a fixed order (Lever then Greenhouse)
// and returns the first match, per §4.9 step 3/5.
func DetectAny(html string) (Match, bool) {
	if m, ok := DetectLever(html); ok {
		return m, true
	}
	if m, ok := DetectGreenhouse(html); ok {
		return m, true
	}
	return Match{}, false
}
