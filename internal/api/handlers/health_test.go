package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/unifiedui/chat-relay/internal/api/dto"
	"github.com/unifiedui/chat-relay/internal/api/handlers"
	"github.com/unifiedui/chat-relay/internal/testutil"
	"github.com/unifiedui/chat-relay/internal/testutil/mocks"
)

func TestHealthHandler_Health_AllHealthy(t *testing.T) {
	// Setup
	mockCache := mocks.NewMockCacheClient()
	mockDocDB := mocks.NewMockDocDBClient()

	mockCache.On("Ping", mock.Anything).Return(nil)
	mockDocDB.On("Ping", mock.Anything).Return(nil)

	handler := handlers.NewHealthHandler(mockCache, mockDocDB)

	router := testutil.SetupTestRouter()
	router.GET("/health", handler.Health)

	// Execute
	w := testutil.PerformRequest(router, "GET", "/health", nil, nil)

	// Assert
	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.HealthResponse
	testutil.ParseJSONResponse(t, w, &response)

	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "healthy", response.Components["cache"])
	assert.Equal(t, "healthy", response.Components["docdb"])

	mockCache.AssertExpectations(t)
	mockDocDB.AssertExpectations(t)
}

func TestHealthHandler_Health_CacheUnhealthy(t *testing.T) {
	mockCache := mocks.NewMockCacheClient()
	mockDocDB := mocks.NewMockDocDBClient()

	mockCache.On("Ping", mock.Anything).Return(assert.AnError)
	mockDocDB.On("Ping", mock.Anything).Return(nil)

	handler := handlers.NewHealthHandler(mockCache, mockDocDB)

	router := testutil.SetupTestRouter()
	router.GET("/health", handler.Health)

	w := testutil.PerformRequest(router, "GET", "/health", nil, nil)

	testutil.AssertStatusCode(t, http.StatusServiceUnavailable, w)

	var response dto.HealthResponse
	testutil.ParseJSONResponse(t, w, &response)

	assert.Equal(t, "unhealthy", response.Status)
	assert.Equal(t, "unhealthy", response.Components["cache"])
	assert.Equal(t, "healthy", response.Components["docdb"])
}

func TestHealthHandler_Health_ArchiveDisabled(t *testing.T) {
	mockCache := mocks.NewMockCacheClient()
	mockCache.On("Ping", mock.Anything).Return(nil)

	handler := handlers.NewHealthHandler(mockCache, nil)

	router := testutil.SetupTestRouter()
	router.GET("/health", handler.Health)

	w := testutil.PerformRequest(router, "GET", "/health", nil, nil)

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response dto.HealthResponse
	testutil.ParseJSONResponse(t, w, &response)

	assert.Equal(t, "healthy", response.Status)
	assert.NotContains(t, response.Components, "docdb")
}

func TestHealthHandler_Ready(t *testing.T) {
	tests := []struct {
		name       string
		cacheErr   error
		docDBErr   error
		wantStatus int
		wantReason string
	}{
		{"all ready", nil, nil, http.StatusOK, ""},
		{"cache down", assert.AnError, nil, http.StatusServiceUnavailable, "cache unavailable"},
		{"docdb down", nil, assert.AnError, http.StatusServiceUnavailable, "docdb unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockCache := mocks.NewMockCacheClient()
			mockDocDB := mocks.NewMockDocDBClient()
			mockCache.On("Ping", mock.Anything).Return(tt.cacheErr)
			mockDocDB.On("Ping", mock.Anything).Return(tt.docDBErr).Maybe()

			handler := handlers.NewHealthHandler(mockCache, mockDocDB)

			router := testutil.SetupTestRouter()
			router.GET("/ready", handler.Ready)

			w := testutil.PerformRequest(router, "GET", "/ready", nil, nil)

			testutil.AssertStatusCode(t, tt.wantStatus, w)

			var response map[string]string
			testutil.ParseJSONResponse(t, w, &response)
			assert.Equal(t, tt.wantReason, response["reason"])
		})
	}
}

func TestHealthHandler_Ready_ArchiveDisabled(t *testing.T) {
	mockCache := mocks.NewMockCacheClient()
	mockCache.On("Ping", mock.Anything).Return(nil)

	handler := handlers.NewHealthHandler(mockCache, nil)

	router := testutil.SetupTestRouter()
	router.GET("/ready", handler.Ready)

	w := testutil.PerformRequest(router, "GET", "/ready", nil, nil)

	testutil.AssertStatusCode(t, http.StatusOK, w)
}

func TestHealthHandler_Live(t *testing.T) {
	handler := handlers.NewHealthHandler(mocks.NewMockCacheClient(), nil)

	router := testutil.SetupTestRouter()
	router.GET("/live", handler.Live)

	w := testutil.PerformRequest(router, "GET", "/live", nil, nil)

	testutil.AssertStatusCode(t, http.StatusOK, w)

	var response map[string]string
	testutil.ParseJSONResponse(t, w, &response)
	assert.Equal(t, "alive", response["status"])
}
