package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBookingCountsByOutcome(t *testing.T) {
	c := NewCollector("clinic")
	c.ObserveBooking("OK", 20*time.Millisecond)
	c.ObserveBooking("OK", 30*time.Millisecond)
	c.ObserveBooking("NO_AVAILABLE_DOCTOR", time.Millisecond)

	if got := testutil.ToFloat64(c.BookingsTotal.WithLabelValues("OK")); got != 2 {
		t.Fatalf("expected 2 OK bookings, got %v", got)
	}
	if got := testutil.ToFloat64(c.BookingsTotal.WithLabelValues("NO_AVAILABLE_DOCTOR")); got != 1 {
		t.Fatalf("expected 1 failed booking, got %v", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveBooking("OK", time.Second)
	c.ObserveRetry("doctor")
	c.ObservePatientCreated()
	c.ObserveNotification("email", errors.New("smtp down"))
}

func TestNotificationResultLabel(t *testing.T) {
	c := NewCollector("clinic")
	c.ObserveNotification("email", errors.New("smtp down"))
	c.ObserveNotification("email", nil)

	if got := testutil.ToFloat64(c.NotificationsSent.WithLabelValues("email", "error")); got != 1 {
		t.Fatalf("expected 1 failed email, got %v", got)
	}
}

func TestHandlerExposesBookingMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewCollector("clinic")
	c.ObserveRetry("room")

	r := gin.New()
	r.Use(c.GinMiddleware())
	r.GET("/ping", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()

	for _, want := range []string{
		`clinic_booking_lock_retries_total{kind="room"} 1`,
		`clinic_http_requests_total{method="GET",route="/ping",status="200"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q", want)
		}
	}
}
