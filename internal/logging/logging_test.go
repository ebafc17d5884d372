package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func TestNew_Level(t *testing.T) {
	if got := New("debug", "json").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}
	if got := New("nonsense", "text").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %s", got)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	log := New("info", "json")
	log.SetOutput(&buf)

	r := gin.New()
	r.Use(Middleware(log))
	r.GET("/api/v1/medicines/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/medicines/7", nil))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if line["route"] != "/api/v1/medicines/:id" || line["level"] != "warning" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if line["status"].(float64) != http.StatusNotFound {
		t.Fatalf("unexpected status: %v", line["status"])
	}
}
