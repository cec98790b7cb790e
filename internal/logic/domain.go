package logic

import "strings"

// knownMultiLabelSuffixes are public suffixes spanning two labels. A
// hostname ending in one of them keeps three labels in its registrable
// domain. The list is deliberately small and is not a public-suffix list.
var knownMultiLabelSuffixes = map[string]struct{}{
	"co.uk":             {},
	"org.uk":            {},
	"ac.uk":             {},
	"gov.uk":            {},
	"me.uk":             {},
	"ltd.uk":            {},
	"com.au":            {},
	"net.au":            {},
	"org.au":            {},
	"edu.au":            {},
	"co.nz":             {},
	"org.nz":            {},
	"co.jp":             {},
	"ne.jp":             {},
	"or.jp":             {},
	"co.kr":             {},
	"co.in":             {},
	"co.il":             {},
	"co.za":             {},
	"com.br":            {},
	"com.cn":            {},
	"com.mx":            {},
	"com.sg":            {},
	"com.tr":            {},
	"com.ar":            {},
	"com.hk":            {},
	"com.tw":            {},
	"github.io":         {},
	"gitlab.io":         {},
	"herokuapp.com":     {},
	"netlify.app":       {},
	"vercel.app":        {},
	"pages.dev":         {},
	"web.app":           {},
	"firebaseapp.com":   {},
	"appspot.com":       {},
	"blogspot.com":      {},
	"azurewebsites.net": {},
	"cloudfront.net":    {},
}

// RegistrableDomain returns the portion of hostname a site owner can
// register: the last two labels, or the last three when the hostname sits
// under a known multi-label suffix. A fully qualified name's trailing dot is
// ignored. Single-label hostnames such as
// "localhost" are returned unchanged.
func RegistrableDomain(hostname string) string {
	hostname = strings.TrimSuffix(strings.ToLower(hostname), ".")
	parts := strings.Split(hostname, ".")
	n := len(parts)
	if n < 2 {
		return hostname
	}
	suffix := parts[n-2] + "." + parts[n-1]
	if n >= 3 {
		if _, ok := knownMultiLabelSuffixes[suffix]; ok && strings.HasSuffix(hostname, "."+suffix) {
			return parts[n-3] + "." + suffix
		}
	}
	return suffix
}

// IsSameDomain reports whether both hostnames belong to the same site.
func IsSameDomain(a, b string) bool {
	if a == b {
		return true
	}
	return RegistrableDomain(a) == RegistrableDomain(b)
}
