package app

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pharmabot/internal/config"
	"pharmabot/internal/domain"
)

func memoryConfig() config.Config {
	return config.Config{
		HTTPAddr:             "127.0.0.1:0",
		Storage:              config.StorageMemory,
		RefillHorizonDays:    3,
		DefaultSupplyDays:    30,
		ActiveMedicationDays: 90,
		LowStockThreshold:    5,
		SupportedLanguages:   []string{"en", "hi", "mr"},
		DefaultLanguage:      "en",
		NotifyChannels:       []string{"log"},
		SessionTTL:           time.Minute,
	}
}

func newApp(t *testing.T) *App {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	a, err := New(context.Background(), memoryConfig(), log)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func TestApp_SeedAndServeChat(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()

	res, err := a.Seed(ctx)
	require.NoError(t, err)
	assert.Positive(t, res.Medicines)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"patient_id":"PAT003","message":"I have a headache"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.Server.Engine().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var reply struct {
		Intent          domain.Intent     `json:"intent"`
		Recommendations []domain.Medicine `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, domain.IntentSymptomQuery, reply.Intent)
	require.NotEmpty(t, reply.Recommendations)
	for _, m := range reply.Recommendations {
		_, err := a.Medicines.GetByName(ctx, m.Name)
		assert.NoError(t, err, "recommended %q is not in the catalog", m.Name)
	}
}

func TestApp_SeededHistoryRaisesRefills(t *testing.T) {
	a := newApp(t)
	ctx := context.Background()
	_, err := a.Seed(ctx)
	require.NoError(t, err)

	first, err := a.Refills.Scan(ctx, a.Config.RefillHorizonDays)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := a.Refills.Scan(ctx, a.Config.RefillHorizonDays)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	all, err := a.Refills.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, len(first))
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	a := newApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestNew_RejectsBadInteractionsFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.InteractionsFile = "/does/not/exist.json"
	log := logrus.New()
	log.SetOutput(io.Discard)
	_, err := New(context.Background(), cfg, log)
	assert.Error(t, err)
}
