// Package device turns raw User-Agent strings into short display names for
// audit events ("Chrome on Mac OS X", "Safari on iPhone"). Verification
// attempts are audited with the device summary, never the raw UA.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// ParseUserAgent returns a human-readable device description.
func ParseUserAgent(rawUA string) string {
	if rawUA == "" {
		return "Unknown Device"
	}

	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	os := ua.OS()

	switch {
	case browser != "" && os != "":
		return browser + " on " + prettifyOS(os)
	case browser != "":
		return browser
	case os != "":
		return prettifyOS(os)
	default:
		return "Unknown Device"
	}
}

func prettifyOS(os string) string {
	// useragent reports versioned platforms like "Intel Mac OS X 10_15_7";
	// strip the version noise for display.
	os = strings.ReplaceAll(os, "_", ".")
	for _, known := range []string{"Mac OS X", "iPhone OS", "Android", "Windows", "Linux", "CPU iPhone"} {
		if idx := strings.Index(os, known); idx >= 0 {
			if known == "CPU iPhone" {
				return "iPhone"
			}
			return known
		}
	}
	return os
}
