package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	m := New()
	m.LoginAttempt("member", "success")
	m.LoginAttempt("member", "success")
	m.LoginAttempt("admin", "failure")
	m.QRCodes(5, 1)
	m.RosterChange("bulk_update", 3)

	if got := testutil.ToFloat64(m.loginAttempts.WithLabelValues("member", "success")); got != 2 {
		t.Errorf("member success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.loginAttempts.WithLabelValues("admin", "failure")); got != 1 {
		t.Errorf("admin failure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.qrCodes.WithLabelValues("skipped")); got != 1 {
		t.Errorf("qr skipped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rosterChanges.WithLabelValues("bulk_update")); got != 3 {
		t.Errorf("bulk_update = %v, want 3", got)
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.RosterChange("create", 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `memberqr_roster_changes_total{action="create"} 1`) {
		t.Errorf("metrics output missing roster counter:\n%s", body)
	}
}
