package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kitbuilder587/bank-notify-bot/internal/metrics"
)

func TestBankName(t *testing.T) {
	assert.Equal(t, "Nordea", bankName("Nordea Personal"))
	assert.Equal(t, "Swedbank", bankName("Swedbank"))
	assert.Equal(t, "", bankName(""))
}

func TestMetricsMux(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.RecordPollCycle("notified")

	srv := httptest.NewServer(metricsMux(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "poll_cycles_total")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRootCommand(t *testing.T) {
	cmd := newRootCommand()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["migrate"])
	assert.NotNil(t, cmd.PersistentFlags().Lookup("env-file"))
}
