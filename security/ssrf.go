// Package security guards outbound HTTP calls the core makes to
// operator-configured external URLs (market-data vendors, sentiment
// providers, external data sources referenced from a strategy spec) against
// server-side request forgery: a malicious or mistaken URL pointing at
// loopback, link-local, or other private address space is rejected before
// any request is attempted.
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ValidateURL rejects URLs that are not plain http/https, or that resolve
// to a private, loopback, link-local, or multicast address.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no host")
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("refusing to contact localhost")
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// A literal IP (no DNS lookup needed) still parses via ParseIP below;
		// an unresolvable hostname is allowed through here and will simply
		// fail at dial time — this guard's job is blocking *known* private
		// targets, not acting as a DNS resolver stand-in.
		if ip := net.ParseIP(host); ip != nil {
			ips = []net.IP{ip}
		} else {
			return nil
		}
	}

	for _, ip := range ips {
		if isDisallowed(ip) {
			return fmt.Errorf("refusing to contact private/reserved address %s", ip)
		}
	}
	return nil
}

func isDisallowed(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() ||
		ip.IsPrivate() ||
		ip.IsUnspecified()
}

// SafeHTTPClient returns an http.Client with the given timeout that runs
// ValidateURL on every redirect target and stops after 5 redirects. It uses
// the default transport: the address actually dialed is not re-checked, so
// a DNS answer that changes between ValidateURL and the connection is not
// caught.
func SafeHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if err := ValidateURL(req.URL.String()); err != nil {
				return err
			}
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}
}

// SafeGet validates the URL and performs a GET with the given timeout.
func SafeGet(rawURL string, timeout time.Duration) (*http.Response, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	client := SafeHTTPClient(timeout)
	return client.Get(rawURL)
}
