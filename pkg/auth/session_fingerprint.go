package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tendant/simple-idm-profile/pkg/domain"
)

// Fingerprint identifies the client a session was issued to.
type Fingerprint struct {
	IP        string
	UserAgent string
}

// FingerprintOf returns the fingerprint of the client in opts.
func FingerprintOf(opts IssueSessionOpts) Fingerprint {
	return Fingerprint{IP: opts.IP, UserAgent: opts.UserAgent}
}

// Hash is the value stored in session metadata.
func (f Fingerprint) Hash() string {
	sum := sha256.Sum256([]byte(f.IP + "|" + f.UserAgent))
	return hex.EncodeToString(sum[:])
}

// Diff describes how other differs from f. It is empty when both match.
func (f Fingerprint) Diff(other Fingerprint) string {
	var changes []string
	if f.IP != other.IP {
		changes = append(changes, fmt.Sprintf("ip %s -> %s", f.IP, other.IP))
	}
	if f.UserAgent != other.UserAgent {
		changes = append(changes, "user agent changed")
	}
	return strings.Join(changes, ", ")
}

// checkFingerprint compares the client refreshing a session with the one it
// was issued to. Sessions stored without a fingerprint always pass.
func checkFingerprint(m domain.SessionMetadata, opts IssueSessionOpts) error {
	if m.FingerprintHash == "" {
		return nil
	}
	current := FingerprintOf(opts)
	if current.Hash() == m.FingerprintHash {
		return nil
	}
	issued := Fingerprint{IP: m.IP, UserAgent: m.UserAgent}
	if diff := issued.Diff(current); diff != "" {
		return fmt.Errorf("%w: %s", domain.ErrSessionFingerprint, diff)
	}
	return domain.ErrSessionFingerprint
}

// ClientIP returns the caller's address: the first X-Forwarded-For hop,
// then X-Real-IP, then RemoteAddr without its port.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
