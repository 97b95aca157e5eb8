package utils

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusTeapot, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	entries := logs.FilterMessage("request").All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["path"] != "/ping" || fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("fields = %v", fields)
	}
}

func TestCronSnapshotter(t *testing.T) {
	var calls int32
	c, err := CronSnapshotter("@every 1s", func() error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("CronSnapshotter() error = %v", err)
	}
	defer c.Stop()

	deadline := time.Now().Add(3 * time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("snapshot job never ran")
		}
		time.Sleep(50 * time.Millisecond)
	}

	if _, err := CronSnapshotter("every now and then", func() error { return nil }, zap.NewNop()); err == nil {
		t.Fatalf("invalid schedule accepted")
	}
}
