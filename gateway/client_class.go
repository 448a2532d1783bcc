package gateway

import (
	"strings"

	"github.com/jrsteele09/go-session-gateway/sessions"
)

var mobileMarkers = []string{
	"mobile",
	"android",
	"iphone",
	"ipod",
	"ipad",
	"windows phone",
	"blackberry",
	"opera mini",
	"iemobile",
	"webos",
}

// IsMobileUserAgent reports whether ua carries a common mobile device marker.
func IsMobileUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, marker := range mobileMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// ClientClassFromUserAgent buckets a user agent into PC, Mobile or, for the
// WeChat in-app browser on mobile, MicroMessenger.
func ClientClassFromUserAgent(ua string) sessions.ClientClass {
	if !IsMobileUserAgent(ua) {
		return sessions.ClientPC
	}
	if strings.Contains(strings.ToLower(ua), "micromessenger") {
		return sessions.ClientMicroMessenger
	}
	return sessions.ClientMobile
}
