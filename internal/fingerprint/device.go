package fingerprint

import (
	"net/http"
	"net/url"
	"strings"
)

// Device types reported by ParseDevice.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Device describes the client software parsed from a user agent.
type Device struct {
	Type    string
	Browser string
	OS      string
}

// Geo is the coarse location reported by the CDN in front of the site.
type Geo struct {
	Country string
	Region  string
	City    string
}

var botMarkers = []string{"bot", "crawler", "spider", "slurp", "curl/", "wget/", "headless"}

// ParseDevice classifies ua. Unknown fields are reported as DeviceUnknown.
func ParseDevice(ua string) Device {
	lower := strings.ToLower(ua)
	if strings.TrimSpace(lower) == "" {
		return Device{Type: DeviceUnknown, Browser: DeviceUnknown, OS: DeviceUnknown}
	}

	return Device{
		Type:    deviceType(lower),
		Browser: browser(lower),
		OS:      operatingSystem(lower),
	}
}

func deviceType(ua string) string {
	for _, marker := range botMarkers {
		if strings.Contains(ua, marker) {
			return DeviceBot
		}
	}
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet"):
		return DeviceTablet
	case strings.Contains(ua, "android") && !strings.Contains(ua, "mobile"):
		return DeviceTablet
	case strings.Contains(ua, "mobile") || strings.Contains(ua, "iphone"):
		return DeviceMobile
	case strings.Contains(ua, "windows") || strings.Contains(ua, "macintosh") || strings.Contains(ua, "linux") || strings.Contains(ua, "cros"):
		return DeviceDesktop
	default:
		return DeviceUnknown
	}
}

// 顺序很重要：Edge 与 Opera 的 UA 同时包含 chrome，Chrome 的 UA 同时包含 safari。
func browser(ua string) string {
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		return "Edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		return "Opera"
	case strings.Contains(ua, "firefox/") || strings.Contains(ua, "fxios/"):
		return "Firefox"
	case strings.Contains(ua, "chrome/") || strings.Contains(ua, "crios/"):
		return "Chrome"
	case strings.Contains(ua, "safari/"):
		return "Safari"
	default:
		return DeviceUnknown
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "iphone") || strings.Contains(ua, "ipad") || strings.Contains(ua, "ios"):
		return "iOS"
	case strings.Contains(ua, "android"):
		return "Android"
	case strings.Contains(ua, "mac os") || strings.Contains(ua, "macintosh"):
		return "macOS"
	case strings.Contains(ua, "cros"):
		return "ChromeOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	default:
		return DeviceUnknown
	}
}

// GeoFromHeaders reads Vercel and Cloudflare geolocation headers.
func GeoFromHeaders(h http.Header) Geo {
	country := h.Get("X-Vercel-IP-Country")
	if country == "" {
		country = h.Get("CF-IPCountry")
	}
	if strings.EqualFold(country, "XX") || strings.EqualFold(country, "T1") {
		country = ""
	}

	return Geo{
		Country: unescape(country),
		Region:  unescape(h.Get("X-Vercel-IP-Country-Region")),
		City:    unescape(h.Get("X-Vercel-IP-City")),
	}
}

func unescape(value string) string {
	value = strings.TrimSpace(value)
	if decoded, err := url.QueryUnescape(value); err == nil {
		return decoded
	}
	return value
}
