package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
)

// Category is a stable label for probe outcomes, used in results and as a
// metric label (linkProbesTotal).
type Category string

const (
	CategoryOK              Category = "ok"
	CategoryRedirected      Category = "redirected"
	CategoryForbidden       Category = "forbidden"
	CategoryRateLimited     Category = "rate_limited"
	CategoryHTTP4xx         Category = "http_4xx"
	CategoryHTTP5xx         Category = "http_5xx"
	CategoryTimeout         Category = "timeout"
	CategoryDNS             Category = "dns_error"
	CategoryTLS             Category = "tls_error"
	CategoryConnection      Category = "connection"
	CategoryRedirectLoop    Category = "redirect_loop"
	CategoryCircuitOpen     Category = "skipped_open_circuit"
	CategoryUnsupported     Category = "unsupported_scheme"
	CategoryFragmentMissing Category = "fragment_missing"
	CategoryUnknown         Category = "unknown"
)

// Retryable reports whether another attempt could change the outcome.
// Transient transport failures and server-side errors qualify; a 404 or a
// bad certificate will not fix itself between attempts.
func (c Category) Retryable() bool {
	switch c {
	case CategoryTimeout, CategoryConnection, CategoryHTTP5xx, CategoryRateLimited:
		return true
	}
	return false
}

// Broken reports whether the category marks the link as broken for readers.
// Forbidden and rate-limited responses usually mean bot protection, not a
// dead link, so they stay warnings.
func (c Category) Broken() bool {
	switch c {
	case CategoryHTTP4xx, CategoryHTTP5xx, CategoryTimeout, CategoryDNS,
		CategoryTLS, CategoryConnection, CategoryRedirectLoop, CategoryFragmentMissing:
		return true
	}
	return false
}

// CategorizeStatus maps a final HTTP status to a category. Redirects are
// followed before this is called, so 3xx only appears on redirect loops.
func CategorizeStatus(code int) Category {
	switch {
	case code >= 200 && code < 300:
		return CategoryOK
	case code == 403:
		return CategoryForbidden
	case code == 429:
		return CategoryRateLimited
	case code >= 400 && code < 500:
		return CategoryHTTP4xx
	case code >= 500 && code < 600:
		return CategoryHTTP5xx
	case code >= 300 && code < 400:
		return CategoryRedirectLoop
	default:
		return CategoryUnknown
	}
}

// CategorizeErr maps a transport error to a category. Typed errors are
// preferred; string matching stays as a fallback because net wraps much of
// its failure detail in plain text.
func CategorizeErr(err error) Category {
	if err == nil {
		return CategoryOK
	}

	if errors.Is(err, ErrOpenCircuit) {
		return CategoryCircuitOpen
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNS
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return CategoryTLS
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return CategoryTLS
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return CategoryTLS
	}
	var authErr x509.UnknownAuthorityError
	if errors.As(err, &authErr) {
		return CategoryTLS
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return CategoryTimeout
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "stopped after"):
		return CategoryRedirectLoop
	case strings.Contains(errStr, "certificate"), strings.Contains(errStr, "tls:"):
		return CategoryTLS
	case strings.Contains(errStr, "no such host"):
		return CategoryDNS
	case strings.Contains(errStr, "connection refused"),
		strings.Contains(errStr, "connection reset"),
		strings.Contains(errStr, "broken pipe"),
		strings.Contains(errStr, "EOF"):
		return CategoryConnection
	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return CategoryTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return CategoryConnection
	}

	return CategoryUnknown
}
