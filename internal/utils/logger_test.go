package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestContextLogger_AddsRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := NewSlogLogger(NewJSONLogger(&buf, slog.LevelInfo))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-42")
		c.Next()
	})
	router.Use(ContextLogger(logger))
	router.Use(LoggerMiddleware(logger))
	router.GET("/ping", func(c *gin.Context) {
		GetLogger(c, logger).Info("handling ping")
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	for _, line := range lines {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid json log line %q: %v", line, err)
		}
		if entry["request_id"] != "req-42" {
			t.Errorf("request_id = %v in %s", entry["request_id"], line)
		}
		if entry["service"] != "mocktest-service" {
			t.Errorf("service = %v", entry["service"])
		}
	}
}

func TestGetLogger_Fallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	fallback := NewSlogLogger(slog.Default())
	if GetLogger(c, fallback) != fallback {
		t.Error("expected fallback logger")
	}
}
