package intercept

import (
	_ "embed"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
)

// reportPrefix is where the instrumentation posts, relative to the report base
const reportPrefix = "/v1/sessions/"

//go:embed instrument.js
var instrumentSource string

// InstrumentationScript renders the page instrumentation for one session.
// Reports are posted to reportBase, which must be reachable from the browser.
func InstrumentationScript(reportBase, token string) (string, error) {
	base, err := sonic.MarshalString(strings.TrimRight(reportBase, "/"))
	if err != nil {
		return "", err
	}
	tok, err := sonic.MarshalString(token)
	if err != nil {
		return "", err
	}
	return strings.NewReplacer(
		"__REPORT_BASE__", base,
		"__SESSION_TOKEN__", tok,
	).Replace(instrumentSource), nil
}

// IsReportURL reports whether rawURL is one of the instrumentation's own report
// requests to reportBase. An empty reportBase matches nothing.
func IsReportURL(rawURL, reportBase string) bool {
	if reportBase == "" {
		return false
	}
	base, err := url.Parse(reportBase)
	if err != nil || base.Host == "" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if !strings.EqualFold(u.Scheme, base.Scheme) || !strings.EqualFold(u.Hostname(), base.Hostname()) {
		return false
	}
	if effectivePort(u) != effectivePort(base) {
		return false
	}
	return strings.HasPrefix(u.Path, strings.TrimRight(base.Path, "/")+reportPrefix)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	}
	return ""
}
