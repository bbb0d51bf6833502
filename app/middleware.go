package app

import (
	"context"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/attunefm/attune/auth"
	"github.com/attunefm/attune/constants"
	"github.com/attunefm/attune/peer"
	"github.com/attunefm/attune/requests"
	"github.com/attunefm/attune/session"
	"github.com/attunefm/attune/util"
)

type middleware func(next http.Handler) http.Handler

func (a *App) withMiddleware(handler http.Handler) http.Handler {
	allMiddleware := []middleware{
		a.authMW,
		contentMW,
		timeoutMW,
		logMW,
		corsMW,
	}
	for _, mw := range allMiddleware {
		handler = mw(handler)
	}

	return handler
}

// authMW accepts rejoin tokens as bearer credentials. The admin surface is
// open to loopback callers without one; everything else under /admin needs
// a token minted by the hosted room.
func (a *App) authMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqToken := r.Header.Get("Authorization")
		splitToken := strings.Split(reqToken, "Bearer ")
		if len(splitToken) < 2 {
			if strings.HasPrefix(r.URL.Path, "/admin") && !isLoopback(r.RemoteAddr) {
				requests.RespondWithError(w, http.StatusForbidden, constants.ErrorForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		reqToken = splitToken[1]

		host := a.Controller.Host
		if host == nil {
			requests.RespondAuthError(w)
			return
		}
		peerID, _, err := peer.ParseRejoinToken(reqToken, host.Room.ID, host.Room.SigningSecret())
		if err != nil {
			requests.RespondAuthError(w)
			return
		}

		if r.Method != "GET" {
			util.EnqueueRequestLog(util.LogEntry{
				Timestamp: time.Now(),
				PeerID:    peerID,
				Endpoint:  r.RequestURI,
			})
		}
		ctx := context.WithValue(r.Context(), auth.PeerContextKey, peerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isLoopback(remoteAddr string) bool {
	hostPart, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(hostPart)
	return ip != nil && ip.IsLoopback()
}

func contentMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		// the socket upgrade negotiates its own headers
		if r.URL.Path != session.SocketPath {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

func corsMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, *")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
		} else {
			next.ServeHTTP(w, r)
		}
	})
}

func logMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			log.Printf("%s - %s (%s)", r.Method, r.URL.Path, r.RemoteAddr)
		}

		next.ServeHTTP(w, r)
	})
}

// timeoutMW bounds request handling, except the session socket which lives
// for the whole membership.
func timeoutMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == session.SocketPath {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), time.Second*30)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
