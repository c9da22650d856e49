package analytics

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// clientSDKPrefix identifies first-party SDK user agents, e.g. "tally-python/1.2.0"
const clientSDKPrefix = "tally-"

// GetClientIP extracts client IP address from request
func GetClientIP(r *http.Request) string {
	// Try X-Forwarded-For header first (proxy/load balancer)
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		ips := strings.Split(forwarded, ",")
		return strings.TrimSpace(ips[0])
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	// RemoteAddr includes port, strip it
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}

// GetClientSDK extracts the SDK name from a first-party User-Agent
func GetClientSDK(r *http.Request) string {
	name, _ := parseSDKAgent(r.UserAgent())
	return name
}

// GetClientVersion extracts the SDK version from a first-party User-Agent
func GetClientVersion(r *http.Request) string {
	_, version := parseSDKAgent(r.UserAgent())
	return version
}

func parseSDKAgent(ua string) (string, string) {
	if !strings.HasPrefix(ua, clientSDKPrefix) {
		return "", ""
	}
	// Only the first product token counts: "tally-go/1.0.0 (linux)"
	token := strings.Fields(ua)[0]
	name, version, _ := strings.Cut(token, "/")
	return name, version
}

// RequestMetadata fills the request-derived fields of a LogUsageInput
func RequestMetadata(r *http.Request, in *LogUsageInput) {
	in.IPAddress = GetClientIP(r)
	in.UserAgent = r.UserAgent()
	in.ClientSDK = GetClientSDK(r)
	in.ClientVersion = GetClientVersion(r)
}

// round rounds half to even at the given number of decimal places
func round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

// percent returns part/whole on a 0-100 scale, or zero when whole is zero
func percent(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole * 100
}

// mean returns sum/n, or zero when n is zero
func mean(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
