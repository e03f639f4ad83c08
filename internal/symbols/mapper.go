package symbols

import (
	"path"
	"strings"
)

// Normalize converts a free-form issuer symbol to the canonical ticker form:
// surrounding whitespace removed and upper-cased.
//
//	" aapl " -> "AAPL"
func Normalize(sym string) string {
	return strings.ToUpper(strings.TrimSpace(sym))
}

// FromMember extracts the ticker from an archive member name. Only members
// whose base name ends with suffix qualify and the ticker keeps its case.
//
//	"2020/AAPL_full_1hour_adjsplitdiv.txt" -> "AAPL", true
//	"README.txt"                           -> "", false
func FromMember(name, suffix string) (string, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if suffix == "" || !strings.HasSuffix(base, suffix) {
		return "", false
	}
	ticker := strings.TrimSuffix(base, suffix)
	if ticker == "" {
		return "", false
	}
	return ticker, true
}

// FromFileName extracts the ticker from a per-ticker file such as a market
// cap CSV: "MSFT.csv" -> "MSFT". ext must include the leading dot.
func FromFileName(name, ext string) (string, bool) {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if !strings.EqualFold(path.Ext(base), ext) {
		return "", false
	}
	ticker := base[:len(base)-len(ext)]
	if ticker == "" {
		return "", false
	}
	return ticker, true
}
