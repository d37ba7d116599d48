// Package bypass classifies fetch responses that were rejected or challenged
// by anti-automation vendors. A positive classification short-circuits any
// remaining retries: hammering an active block only raises detection risk.
package bypass

import (
	"net/http"
	"strings"
)

// Detector examines one HTTP response to decide whether a bot protection
// mechanism blocked or challenged the request.
type Detector func(status int, header http.Header, body []byte) (detected bool, vendor string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectChallengeMarkers,
	}
}

// Detect runs the response through all provided detectors and returns the
// first vendor that triggers.
func Detect(status int, header http.Header, body []byte, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if detected, vendor := d(status, header, body); detected {
			return true, vendor
		}
	}
	return false, ""
}

func bodyContains(body []byte, needle string) bool {
	return strings.Contains(strings.ToLower(string(body)), strings.ToLower(needle))
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden && status != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	for _, sig := range []string{"cf-browser-verification", "cf-turnstile", "challenge-platform", "Attention Required! | Cloudflare"} {
		if bodyContains(body, sig) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(header.Get("Server")), "akamai") {
		return true, "Akamai"
	}
	if bodyContains(body, "Reference #") && bodyContains(body, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

// detectDataDome looks for DataDome signatures. G2 and Capterra both front
// their review listings with DataDome, so this fires on most blocked scrapes.
func detectDataDome(status int, header http.Header, body []byte) (bool, string) {
	if header.Get("X-DataDome") != "" || header.Get("X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if status == http.StatusForbidden &&
		(strings.Contains(strings.ToLower(header.Get("Server")), "datadome") ||
			bodyContains(body, "geo.captcha-delivery.com") ||
			bodyContains(body, "datadome")) {
		return true, "DataDome"
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(status int, header http.Header, body []byte) (bool, string) {
	if status != http.StatusForbidden {
		return false, ""
	}
	if header.Get("X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	for _, sig := range []string{"client.perimeterx.net", "px-captcha", "_pxBlock"} {
		if bodyContains(body, sig) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}

// detectChallengeMarkers catches interstitial challenge pages served with a
// 200, which the vendor-specific detectors above miss. A rendered page that
// still shows a CAPTCHA after the settle wait lands here.
func detectChallengeMarkers(status int, header http.Header, body []byte) (bool, string) {
	if status >= 300 && status != http.StatusForbidden {
		return false, ""
	}
	for _, sig := range []string{"captcha-delivery", "g-recaptcha", "h-captcha", "cf-chl-widget", "verify you are human"} {
		if bodyContains(body, sig) {
			return true, "Challenge"
		}
	}
	return false, ""
}
