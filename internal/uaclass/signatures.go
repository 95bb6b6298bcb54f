package uaclass

import "regexp"

// Signature maps a user-agent pattern to a family name.
type Signature struct {
	Pattern *regexp.Regexp
	Family  string
}

// SignatureTable resolves families by the first matching signature. It is a
// lightweight alternative to Parser for callers that only care about a
// handful of agents.
type SignatureTable []Signature

// Family implements FamilyClassifier.
func (t SignatureTable) Family(ua string) string {
	for _, sig := range t {
		if sig.Pattern.MatchString(ua) {
			return sig.Family
		}
	}
	return ""
}

func sig(pattern, family string) Signature {
	return Signature{Pattern: regexp.MustCompile(pattern), Family: family}
}

// DefaultSignatures covers the crawlers, tools and browsers that dominate
// typical access logs. Order matters: crawlers before browsers, and browsers
// that embed another engine's token (Edge, Opera) before the engine itself.
var DefaultSignatures = SignatureTable{
	sig(`Googlebot`, "Googlebot"),
	sig(`(?i)bingbot|msnbot`, "Bingbot"),
	sig(`Yandex(Bot|Images|Mobile)`, "YandexBot"),
	sig(`(?i)baiduspider`, "Baiduspider"),
	sig(`DuckDuckBot`, "DuckDuckBot"),
	sig(`Applebot`, "Applebot"),
	sig(`Yahoo! Slurp`, "Yahoo! Slurp"),
	sig(`facebookexternalhit`, "FacebookBot"),
	sig(`Twitterbot`, "Twitterbot"),
	sig(`AhrefsBot`, "AhrefsBot"),
	sig(`SemrushBot`, "SemrushBot"),
	sig(`Bytespider`, "Bytespider"),
	sig(`GPTBot`, "GPTBot"),
	sig(`ClaudeBot`, "ClaudeBot"),
	sig(`^curl/`, "curl"),
	sig(`^Wget/`, "Wget"),
	sig(`^python-requests/`, "Python Requests"),
	sig(`^Go-http-client/`, "Go-http-client"),
	sig(`^okhttp/`, "okhttp"),
	sig(`Edg(e|A|iOS)?/`, "Edge"),
	sig(`OPR/|Opera`, "Opera"),
	sig(`SamsungBrowser/`, "Samsung Internet"),
	sig(`Firefox/`, "Firefox"),
	sig(`CriOS/`, "Chrome Mobile iOS"),
	sig(`Chrome/`, "Chrome"),
	sig(`Version/[\d.]+.*Safari/`, "Safari"),
	sig(`MSIE |Trident/`, "IE"),
}
