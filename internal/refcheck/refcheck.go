// Package refcheck gates externally supplied image references before any
// network fetch. It runs twice per job: once at request acceptance and again
// immediately before each fetch, so a reference cannot slip past via DNS
// rebinding between the two checks.
package refcheck

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"server/internal/domain"
)

const (
	MinReferences = 1
	MaxReferences = 30
)

var (
	ErrReferenceCount = fmt.Errorf("%w: reference count out of range", domain.ErrValidation)
	ErrMalformed      = fmt.Errorf("%w: malformed reference", domain.ErrValidation)
	ErrUnsafeScheme   = fmt.Errorf("%w: unsafe scheme", domain.ErrValidation)
	ErrPrivateNetwork = fmt.Errorf("%w: private network blocked", domain.ErrValidation)
)

// CheckAll validates the reference array shape, then every element. It
// returns on the first violation.
func CheckAll(refs []string) error {
	if len(refs) < MinReferences || len(refs) > MaxReferences {
		return fmt.Errorf("%w: want %d..%d references, got %d", ErrReferenceCount, MinReferences, MaxReferences, len(refs))
	}
	for _, ref := range refs {
		if err := Check(ref); err != nil {
			return err
		}
	}
	return nil
}

// Check validates a single reference: absolute URL, https only, and no
// loopback, private-range, link-local, or cloud-metadata hosts. Private
// ranges are matched against literal IP hosts only; a hostname that merely
// resembles a private address textually is treated as public.
func Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrMalformed, raw)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: %q is not an absolute URL", ErrMalformed, raw)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: %q must use https", ErrUnsafeScheme, raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return fmt.Errorf("%w: %q resolves to loopback", ErrPrivateNetwork, raw)
	}
	if ip := net.ParseIP(host); ip != nil && blockedIP(ip) {
		return fmt.Errorf("%w: %q targets a blocked address", ErrPrivateNetwork, raw)
	}
	return nil
}

// blockedIP covers loopback (127.0.0.0/8, ::1), the unspecified address,
// RFC1918 private ranges, and link-local 169.254.0.0/16, which includes the
// well-known cloud metadata endpoint 169.254.169.254.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsUnspecified() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast()
}
