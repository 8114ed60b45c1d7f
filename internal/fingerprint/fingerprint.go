// Package fingerprint derives a heuristic visitor identity from request metadata.
//
// The identity is a device/network fingerprint, not an authenticated identity: it
// changes when a visitor switches networks or browser profiles and collides for
// visitors behind the same NAT with identical user agents.
package fingerprint

import (
	"encoding/hex"
	"net"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"
)

const (
	identityPrefix = "fp_"
	// identityBytes 控制 identity 的长度，32 个十六进制字符足够区分个人站点的访客。
	identityBytes = 16
)

// Header names read from the request in addition to User-Agent.
const (
	HeaderForwardedFor     = "X-Forwarded-For"
	HeaderRealIP           = "X-Real-IP"
	HeaderScreenResolution = "X-Screen-Resolution"
	HeaderTimezone         = "X-Timezone"
	HeaderPlatform         = "X-Platform"
	HeaderClientPlatform   = "Sec-CH-UA-Platform"
	HeaderFingerprint      = "X-Fingerprint"
)

// Headers is the normalized request metadata an identity is derived from.
type Headers struct {
	UserAgent        string
	IP               string
	ScreenResolution string
	Timezone         string
	Platform         string
}

// FromRequest normalizes the identity-relevant headers of r.
func FromRequest(r *http.Request) Headers {
	platform := r.Header.Get(HeaderPlatform)
	if strings.TrimSpace(platform) == "" {
		platform = strings.Trim(r.Header.Get(HeaderClientPlatform), `" `)
	}

	return Headers{
		UserAgent:        normalize(r.Header.Get("User-Agent")),
		IP:               ClientIP(r),
		ScreenResolution: normalize(r.Header.Get(HeaderScreenResolution)),
		Timezone:         normalize(r.Header.Get(HeaderTimezone)),
		Platform:         normalize(platform),
	}
}

// ClientIP returns the first forwarded address, then X-Real-IP, then the peer address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get(HeaderForwardedFor); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return stripPort(ip)
		}
	}

	if ip := strings.TrimSpace(r.Header.Get(HeaderRealIP)); ip != "" {
		return stripPort(ip)
	}

	return stripPort(r.RemoteAddr)
}

// Derive returns a deterministic opaque identity for h.
func Derive(h Headers) string {
	canonical := strings.Join([]string{
		"ua=" + h.UserAgent,
		"ip=" + h.IP,
		"screen=" + h.ScreenResolution,
		"tz=" + h.Timezone,
		"platform=" + h.Platform,
	}, "\n")

	sum := blake2b.Sum256([]byte(canonical))
	return identityPrefix + hex.EncodeToString(sum[:identityBytes])
}

// HashIP returns a keyed hash of ip so that raw addresses never need to be stored.
func HashIP(ip, salt string) string {
	var key []byte
	if salt != "" {
		key = []byte(salt)
		if len(key) > blake2b.Size {
			sum := blake2b.Sum256(key)
			key = sum[:]
		}
	}

	h, err := blake2b.New256(key)
	if err != nil {
		// 只有 key 超过 64 字节才会失败，上面已经截断。
		sum := blake2b.Sum256([]byte(salt + ip))
		return hex.EncodeToString(sum[:])
	}
	h.Write([]byte(strings.TrimSpace(ip)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func stripPort(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}
