package main

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/portfolio/backend/internal/handler"
	"github.com/portfolio/backend/internal/quota"
	"github.com/portfolio/backend/internal/repository"
	"github.com/portfolio/backend/internal/repository/testutil"
	"github.com/portfolio/backend/internal/service"
	"github.com/portfolio/backend/internal/validation"
)

func newTestServer(t *testing.T, analyticsEnabled bool) (http.Handler, *sql.DB) {
	t.Helper()
	database := testutil.NewTestDB(t)

	store := quota.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	tracker := quota.NewTracker(store, quota.Config{Limit: 5, Window: time.Hour})
	svc := service.NewContactService(tracker, validation.New(nil),
		repository.NewSqliteContactRepository(database), nil, service.ContactServiceConfig{})

	ips := handler.NewClientIPResolver(0)
	var analytics *handler.Analytics
	if analyticsEnabled {
		analytics = handler.NewAnalytics(repository.NewSqlitePageViewRepository(database), ips, false)
	}
	router := newRouter(handler.New(repository.NewSQLPinger(database)), handler.NewContactHandler(svc, ips), analytics)
	return ips.Middleware(router), database
}

func countPageViews(t *testing.T, database *sql.DB) int {
	t.Helper()
	var n int
	if err := database.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM page_views").Scan(&n); err != nil {
		t.Fatalf("count page views: %v", err)
	}
	return n
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "198.51.100.7:51000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_PageViewBeaconIsStored(t *testing.T) {
	h, database := newTestServer(t, true)

	for _, path := range []string{"/", "/about", "/projects", "/blog/post-1"} {
		rec := serve(h, http.MethodPost, "/api/pageviews", `{"path":"`+path+`","referrer":"https://search.example/"}`)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("%s: expected 204, got %d", path, rec.Code)
		}
	}
	if got := countPageViews(t, database); got != 4 {
		t.Errorf("expected 4 stored page views, got %d", got)
	}

	var ip string
	if err := database.QueryRow("SELECT ip_address FROM page_views LIMIT 1").Scan(&ip); err != nil {
		t.Fatalf("read page view: %v", err)
	}
	if ip != "198.51.100.0" {
		t.Errorf("expected anonymised address, got %q", ip)
	}
}

func TestRouter_OtherRoutesDoNotRecordPageViews(t *testing.T) {
	h, database := newTestServer(t, true)

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/api/health", "", http.StatusOK},
		{http.MethodGet, "/metrics", "", http.StatusOK},
		{http.MethodGet, "/api/contact", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/pageviews", "", http.StatusMethodNotAllowed},
		{http.MethodGet, "/about", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := serve(h, tc.method, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Errorf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, rec.Code)
		}
		for _, c := range rec.Result().Cookies() {
			if c.Name == "pv_visitor" {
				t.Errorf("%s %s: unexpected visitor cookie", tc.method, tc.path)
			}
		}
	}
	if got := countPageViews(t, database); got != 0 {
		t.Errorf("expected no page views, got %d", got)
	}
}

func TestRouter_AnalyticsDisabled(t *testing.T) {
	h, database := newTestServer(t, false)

	if rec := serve(h, http.MethodPost, "/api/pageviews", `{"path":"/"}`); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with analytics disabled, got %d", rec.Code)
	}
	if got := countPageViews(t, database); got != 0 {
		t.Errorf("expected no page views, got %d", got)
	}
}

func TestRouter_ContactSubmissionStored(t *testing.T) {
	h, database := newTestServer(t, true)

	body := `{"name":"Jane Doe","email":"jane@example.com","message":"I would like to discuss a freelance project with you, thanks!"}`
	if rec := serve(h, http.MethodPost, "/api/contact", body); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	count, err := repository.NewSqliteContactRepository(database).Count(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 stored submission, got %d", count)
	}
}
