package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type readyBody struct {
	Ready    bool `json:"ready"`
	Degraded bool `json:"degraded"`
	Tools    []struct {
		Role    string `json:"role"`
		Present bool   `json:"present"`
	} `json:"tools"`
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"converter"}`, rec.Body.String())
}

func TestReady_DegradedWithoutNode(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.True(t, body.Degraded, "node is not registered with the fake runner")
	require.Len(t, body.Tools, 3)
}

func TestReady_ConverterMissing(t *testing.T) {
	s := newTestServer(t, nil)
	s.runner.Remove("python3")

	rec := s.do(httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body readyBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
}
