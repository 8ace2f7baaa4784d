package benchmark

import "strings"

// severityMap collapses the spellings that show up in benchmark XML and
// checklist files onto the three canonical tiers. DISA category codes
// (CAT I/II/III) and the lowercase words are equivalent.
var severityMap = map[string]string{
	"high":    "high",
	"cat i":   "high",
	"cat1":    "high",
	"medium":  "medium",
	"cat ii":  "medium",
	"cat2":    "medium",
	"low":     "low",
	"cat iii": "low",
	"cat3":    "low",
}

// NormalizeSeverity maps a raw severity spelling onto {high, medium, low}.
// Anything unrecognized is treated as medium.
func NormalizeSeverity(raw string) string {
	if s, ok := severityMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return "medium"
}

// platformKeywords is checked in order against the benchmark title; the
// first match wins.
var platformKeywords = []struct {
	keyword  string
	platform string
}{
	{"windows", "windows"},
	{"red hat", "rhel"},
	{"rhel", "rhel"},
	{"ubuntu", "ubuntu"},
	{"debian", "debian"},
	{"suse", "suse"},
	{"oracle linux", "oracle_linux"},
	{"amazon linux", "amazon_linux"},
	{"linux", "linux"},
	{"macos", "macos"},
	{"mac os", "macos"},
	{"solaris", "solaris"},
	{"aix", "aix"},
	{"cisco", "cisco"},
	{"juniper", "juniper"},
	{"vmware", "vmware"},
	{"esxi", "vmware"},
	{"docker", "container"},
	{"kubernetes", "container"},
	{"postgres", "database"},
	{"sql server", "database"},
	{"oracle database", "database"},
	{"apache", "web_server"},
	{"nginx", "web_server"},
	{"iis", "web_server"},
	{"router", "network"},
	{"switch", "network"},
	{"firewall", "network"},
}

// DetectPlatform classifies a benchmark by substring-matching its title,
// case-insensitively. No match yields "unknown".
func DetectPlatform(title string) string {
	lower := strings.ToLower(title)
	for _, pk := range platformKeywords {
		if strings.Contains(lower, pk.keyword) {
			return pk.platform
		}
	}
	return "unknown"
}
