package services

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"go-meeting-transcriber/internal/core/domain"
)

const callPathMarker = "/j/"

var telemostDomains = map[string]bool{
	"yandex.ru":     true,
	"yandex.com":    true,
	"yandex.kz":     true,
	"yandex.by":     true,
	"yandex.uz":     true,
	"yandex.com.tr": true,
}

// ValidateMeetingURL accepts http(s) links to a Telemost call, e.g.
// https://telemost.yandex.ru/j/12345678.
func ValidateMeetingURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMeetingURL, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidMeetingURL, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", domain.ErrInvalidMeetingURL)
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil || !telemostDomains[registrable] || !strings.Contains(host, "telemost") {
		return fmt.Errorf("%w: %s is not a Telemost host", domain.ErrInvalidMeetingURL, host)
	}
	if !strings.Contains(u.Path, callPathMarker) {
		return fmt.Errorf("%w: expected a %s call link", domain.ErrInvalidMeetingURL, callPathMarker)
	}
	return nil
}

// LeftCall reports whether the page moved off the call path while staying on the host.
func LeftCall(current string) bool {
	return !strings.Contains(current, callPathMarker) && strings.Contains(current, "telemost")
}
