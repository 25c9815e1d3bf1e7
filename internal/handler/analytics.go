package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/portfolio/backend/internal/metrics"
	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/internal/repository"
)

const (
	visitorCookieName   = "pv_visitor"
	visitorCookieMaxAge = 365 * 24 * 60 * 60
	pageViewTimeout     = 2 * time.Second

	maxBeaconBodyBytes    = 4 << 10
	maxPageViewPathLength = 500
	maxReferrerLength     = 2048
)

var untrackedPrefixes = []string{"/admin", "/static/", "/media/", "/metrics", "/api/"}

// Analytics records anonymised page views reported by the frontend.
// Storage failures are logged and counted; they never change the response.
type Analytics struct {
	repo         repository.PageViewRepository
	ips          *ClientIPResolver
	secureCookie bool
}

// NewAnalytics creates the page-view beacon handler. secureCookie marks the
// visitor cookie Secure.
func NewAnalytics(repo repository.PageViewRepository, ips *ClientIPResolver, secureCookie bool) *Analytics {
	if ips == nil {
		ips = NewClientIPResolver(0)
	}
	return &Analytics{repo: repo, ips: ips, secureCookie: secureCookie}
}

type pageViewBeacon struct {
	Path     string `json:"path"`
	Referrer string `json:"referrer"`
}

// RecordPageView handles POST /api/pageviews. The body is
// {"path": "/about", "referrer": "https://..."}; the Content-Type is not
// checked so navigator.sendBeacon with a text/plain body works. Views that
// are not tracked (Do Not Track, excluded paths) still answer 204.
func (a *Analytics) RecordPageView(w http.ResponseWriter, r *http.Request) {
	var beacon pageViewBeacon
	body := http.MaxBytesReader(w, r.Body, maxBeaconBodyBytes)
	if err := json.NewDecoder(body).Decode(&beacon); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": messageInvalidJSON})
		return
	}
	path, ok := normalizePagePath(beacon.Path)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid path"})
		return
	}

	if r.Header.Get("DNT") == "1" || !isTrackedPath(path) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	a.record(r.Context(), &model.PageView{
		Path:       path,
		VisitorKey: a.visitorKey(w, r),
		IPAddress:  AnonymizeIP(a.ips.fromRequest(r)),
		UserAgent:  r.UserAgent(),
		Referrer:   cleanReferrer(beacon.Referrer),
	})
	w.WriteHeader(http.StatusNoContent)
}

// normalizePagePath reduces p to a URL path. Full URLs are accepted and
// stripped to their path; query strings and fragments are dropped.
func normalizePagePath(p string) (string, bool) {
	p = strings.TrimSpace(p)
	if p == "" || strings.ContainsRune(p, 0) {
		return "", false
	}
	u, err := url.Parse(p)
	if err != nil {
		return "", false
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") || len(path) > maxPageViewPathLength {
		return "", false
	}
	return path, true
}

func isTrackedPath(path string) bool {
	for _, prefix := range untrackedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

func cleanReferrer(ref string) string {
	ref = strings.ToValidUTF8(strings.ReplaceAll(strings.TrimSpace(ref), "\x00", ""), "")
	if len(ref) > maxReferrerLength {
		ref = strings.ToValidUTF8(ref[:maxReferrerLength], "")
	}
	return ref
}

func (a *Analytics) visitorKey(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(visitorCookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	key := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   visitorCookieMaxAge,
		HttpOnly: true,
		Secure:   a.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return key
}

func (a *Analytics) record(ctx context.Context, pv *model.PageView) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pageViewTimeout)
	defer cancel()
	if err := a.repo.Record(ctx, pv); err != nil {
		metrics.PageViewErrors.Inc()
		slog.WarnContext(ctx, "failed to record page view", "error", err, "path", pv.Path)
		return
	}
	metrics.PageViewsRecorded.Inc()
}

// AnonymizeIP zeroes the last octet of an IPv4 address and keeps only the /48
// prefix of an IPv6 address. Unparseable input yields "".
func AnonymizeIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.WithZone("").Prefix(bits)
	if err != nil {
		return ""
	}
	return prefix.Addr().String()
}
