package netutil

import (
	"net/http"
	"net/netip"
	"strings"
	"unicode/utf8"
)

const MaxUserAgentLength = 256

// NormalizeIP returns the canonical address of raw, which may be a bare IP or
// host:port. The zone is dropped. ok is false when no address could be parsed.
func NormalizeIP(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().WithZone("").Unmap().String(), true
	}
	host := raw
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end > 0 {
			host = host[1:end]
		}
	} else if strings.Count(host, ":") == 1 {
		host = host[:strings.Index(host, ":")]
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.WithZone("").Unmap().String(), true
	}
	return raw, false
}

// ClientIP resolves the caller address. Forwarding headers are honored only
// when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip, ok := NormalizeIP(first); ok {
				return ip
			}
		}
		if ip, ok := NormalizeIP(r.Header.Get("X-Real-IP")); ok {
			return ip
		}
	}
	if ip, ok := NormalizeIP(r.RemoteAddr); ok {
		return ip
	}
	return r.RemoteAddr
}

// TruncateUserAgent caps ua at MaxUserAgentLength runes.
func TruncateUserAgent(ua string) string {
	if utf8.RuneCountInString(ua) <= MaxUserAgentLength {
		return ua
	}
	n := 0
	for i := range ua {
		if n == MaxUserAgentLength {
			return ua[:i]
		}
		n++
	}
	return ua
}
