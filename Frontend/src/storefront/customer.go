package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/hlog"
)

const (
	customerCookie    = "customerId"
	fingerprintHeader = "X-Client-Fingerprint"
	customerCookieAge = 10 * 365 * 24 * time.Hour
)

// customerNamespace scopes the name-based ids minted from fingerprints and addresses.
var customerNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://bookstore.local/customers"))

type customerKey struct{}

type customer struct {
	id     string
	source string
}

// CustomerID returns the id resolved by the Customers middleware.
func CustomerID(ctx context.Context) string {
	c, _ := ctx.Value(customerKey{}).(customer)
	return c.id
}

// customerSource tells where the id came from: cookie, fingerprint, ip or random.
func customerSource(ctx context.Context) string {
	c, _ := ctx.Value(customerKey{}).(customer)
	return c.source
}

func withCustomerID(ctx context.Context, id string) context.Context {
	return withCustomer(ctx, id, "cookie")
}

func withCustomer(ctx context.Context, id, source string) context.Context {
	return context.WithValue(ctx, customerKey{}, customer{id: id, source: source})
}

// deriveCustomerID picks fingerprint, then public address, then a random id.
func deriveCustomerID(r *http.Request) (id, source string) {
	if fp := strings.TrimSpace(r.Header.Get(fingerprintHeader)); fp != "" {
		return uuid.NewSHA1(customerNamespace, []byte("fp:"+fp)).String(), "fingerprint"
	}
	if ip := publicIP(r); ip != nil {
		return uuid.NewSHA1(customerNamespace, []byte("ip:"+ip.String())).String(), "ip"
	}
	return uuid.NewString(), "random"
}

// publicIP returns the first routable client address from the proxy headers or the peer.
func publicIP(r *http.Request) net.IP {
	var candidates []string
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		candidates = append(candidates, strings.Split(xff, ",")...)
	}
	candidates = append(candidates, r.Header.Get("X-Real-IP"))
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		candidates = append(candidates, host)
	} else {
		candidates = append(candidates, r.RemoteAddr)
	}

	for _, c := range candidates {
		ip := net.ParseIP(strings.TrimSpace(c))
		if ip == nil || ip.IsPrivate() || ip.IsLoopback() || ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}
		return ip
	}
	return nil
}

// Customers resolves the visitor's CustomerId and persists new ones in a long-lived cookie.
func Customers(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(customerCookie); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					next.ServeHTTP(w, r.WithContext(withCustomerID(r.Context(), c.Value)))
					return
				}
			}

			id, source := deriveCustomerID(r)
			http.SetCookie(w, &http.Cookie{
				Name:     customerCookie,
				Value:    id,
				Path:     "/",
				MaxAge:   int(customerCookieAge / time.Second),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})
			hlog.FromRequest(r).Info().Str("customer", id).Str("source", source).Msg("customer id issued")
			next.ServeHTTP(w, r.WithContext(withCustomer(r.Context(), id, source)))
		})
	}
}
