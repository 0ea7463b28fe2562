package server

import (
	"net"
	"net/http"
	"strconv"
)

// RedirectHandler permanently redirects every request to the same host and
// URI over HTTPS on httpsPort. Port 443 (or 0) is left out of the target.
func RedirectHandler(httpsPort int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		if host == "" {
			http.Error(w, "missing host", http.StatusBadRequest)
			return
		}
		if httpsPort != 0 && httpsPort != 443 {
			host = net.JoinHostPort(host, strconv.Itoa(httpsPort))
		}

		http.Redirect(w, r, "https://"+host+r.URL.RequestURI(), http.StatusPermanentRedirect)
	})
}
