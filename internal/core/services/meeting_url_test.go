package services

import (
	"errors"
	"testing"

	"go-meeting-transcriber/internal/core/domain"
)

func TestValidateMeetingURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url   string
		valid bool
	}{
		{"https://telemost.yandex.ru/j/12345678901234", true},
		{"https://telemost.yandex.com/j/123", true},
		{"http://telemost.yandex.kz/j/123?from=calendar", true},
		{"  https://telemost.yandex.ru/j/123  ", true},
		{"https://telemost.yandex.ru/", false},
		{"https://yandex.ru/j/123", false},
		{"https://telemost.example.com/j/123", false},
		{"https://telemost.yandex.ru.evil.com/j/123", false},
		{"ftp://telemost.yandex.ru/j/123", false},
		{"telemost.yandex.ru/j/123", false},
		{"", false},
		{"://broken", false},
	}

	for _, tt := range tests {
		err := ValidateMeetingURL(tt.url)
		if tt.valid && err != nil {
			t.Fatalf("%q: unexpected error %v", tt.url, err)
		}
		if !tt.valid && !errors.Is(err, domain.ErrInvalidMeetingURL) {
			t.Fatalf("%q: expected invalid url error, got %v", tt.url, err)
		}
	}
}

func TestLeftCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want bool
	}{
		{"https://telemost.yandex.ru/j/123", false},
		{"https://telemost.yandex.ru/", true},
		{"https://telemost.yandex.ru/feedback", true},
		{"about:blank", false},
		{"https://passport.yandex.ru/auth", false},
	}
	for _, tt := range tests {
		if got := LeftCall(tt.url); got != tt.want {
			t.Fatalf("LeftCall(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
