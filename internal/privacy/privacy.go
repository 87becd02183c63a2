// Package privacy scrubs broker addresses, credentials and local paths from
// text that leaves the process.
package privacy

import (
	"crypto/sha256"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`\b(?:https?|tcp|ssl|tls|mqtts?|wss?)://\S+`)

// ScrubMessage replaces URLs with stable anonymized tokens and the user's
// home directory with "~".
func ScrubMessage(message string) string {
	message = urlPattern.ReplaceAllStringFunc(message, AnonymizeURL)
	return ScrubPath(message)
}

// AnonymizeURL converts a URL into a hash that keeps the scheme, host class
// and port, so identical brokers still group together in reports.
func AnonymizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		hash := sha256.Sum256([]byte(rawURL))
		return fmt.Sprintf("url-hash-%x", hash[:8])
	}

	parts := []string{u.Scheme, categorizeHost(u.Hostname())}
	if port := u.Port(); port != "" {
		parts = append(parts, "port-"+port)
	}
	normalized := strings.Join(parts, ":")
	hash := sha256.Sum256([]byte(normalized + u.Hostname()))

	return fmt.Sprintf("%s-url-%x", normalized, hash[:6])
}

// ScrubPath replaces the current user's home directory with "~".
func ScrubPath(message string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" || home == "/" {
		return message
	}
	return strings.ReplaceAll(message, home, "~")
}

// categorizeHost reduces a host to a coarse class.
func categorizeHost(host string) string {
	if host == "localhost" {
		return "localhost"
	}
	if ip := net.ParseIP(host); ip != nil {
		switch {
		case ip.IsLoopback():
			return "localhost"
		case ip.IsPrivate(), ip.IsLinkLocalUnicast():
			return "private-ip"
		default:
			return "public-ip"
		}
	}
	if i := strings.LastIndexByte(host, '.'); i >= 0 && i < len(host)-1 {
		return "domain-" + host[i+1:]
	}
	return "unknown-host"
}

// SanitizedError keeps the original error for errors.Is while Error returns
// the scrubbed message.
type SanitizedError struct {
	original     error
	sanitizedMsg string
}

func (e *SanitizedError) Error() string { return e.sanitizedMsg }

func (e *SanitizedError) Unwrap() error { return e.original }

// WrapError scrubs err's message. It returns nil for a nil err.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &SanitizedError{original: err, sanitizedMsg: ScrubMessage(err.Error())}
}
