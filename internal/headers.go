package internal

import (
	"log/slog"
	"net"
	"net/http"

	"github.com/sebest/xff"
)

// RemoteXRealIP sets the X-Real-Ip header from the request's socket address.
// Providers that support a remoteip parameter get this value, so it has to
// reflect the submitting client, not a reverse proxy in front of formshield.
func RemoteXRealIP(useRemoteAddress bool, bindNetwork string, next http.Handler) http.Handler {
	if !useRemoteAddress {
		// X-Real-Ip is set by a trusted upstream proxy.
		return next
	}

	if bindNetwork == "unix" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Header.Set("X-Real-Ip", "0.0.0.0")
			next.ServeHTTP(w, r)
		})
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			slog.Debug("can't split host/port", "remoteAddr", r.RemoteAddr, "err", err)
			host = r.RemoteAddr
		}
		r.Header.Set("X-Real-Ip", host)
		next.ServeHTTP(w, r)
	})
}

// XForwardedForUpdate rewrites r.RemoteAddr from X-Forwarded-For so that the
// rest of the stack sees the submitting client's address.
func XForwardedForUpdate(next http.Handler) http.Handler {
	xffmw, err := xff.Default()
	if err != nil {
		slog.Error("can't construct X-Forwarded-For middleware, passing requests through", "err", err)
		return next
	}

	return xffmw.Handler(next)
}

// XForwardedForToXRealIP fills in X-Real-Ip from the (already validated)
// RemoteAddr when the upstream proxy only sets X-Forwarded-For.
func XForwardedForToXRealIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if realIP := r.Header.Get("X-Real-Ip"); realIP == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			r.Header.Set("X-Real-Ip", host)
		}
		next.ServeHTTP(w, r)
	})
}
