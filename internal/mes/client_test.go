package mes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pinggolf/aps-scheduler/internal/model"
	"github.com/pinggolf/aps-scheduler/internal/throttle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	limiter := throttle.New(nil, throttle.Limits{RequestsPerSecond: 1000, Burst: 1000})
	client := NewClient(Config{BaseURL: srv.URL, MaxAttempts: 3}, limiter)
	return client, srv
}

func TestDispatchSucceedsOnAccepted(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var rec Record
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
		assert.Equal(t, "HJB202411100001", rec.PlanID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{Result: ResultAccepted})
	})
	defer srv.Close()

	resp, err := client.Dispatch(context.Background(), Record{PlanID: "HJB202411100001"})
	require.NoError(t, err)
	assert.Equal(t, ResultAccepted, resp.Result)
}

func TestDispatchRetriesOnResult2ThenSucceeds(t *testing.T) {
	attempts := 0
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Header().Set("Content-Type", "application/json")
		if attempts < 2 {
			json.NewEncoder(w).Encode(Response{Result: ResultRetry, Reason: "busy"})
			return
		}
		json.NewEncoder(w).Encode(Response{Result: ResultAccepted})
	})
	defer srv.Close()

	resp, err := client.Dispatch(context.Background(), Record{PlanID: "HJB202411100002"})
	require.NoError(t, err)
	assert.Equal(t, ResultAccepted, resp.Result)
	assert.Equal(t, 2, attempts)
}

func TestDispatchExhaustsRetriesAndReturnsDispatchError(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Response{Result: ResultRetry, Reason: "still busy"})
	})
	defer srv.Close()

	_, err := client.Dispatch(context.Background(), Record{PlanID: "HJB202411100003"})
	require.Error(t, err)

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, 3, dispatchErr.Attempts)
}

func TestDispatchReturnsErrorOnHTTPFailure(t *testing.T) {
	client, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer srv.Close()

	_, err := client.Dispatch(context.Background(), Record{PlanID: "HJB202411100004"})
	require.Error(t, err)
}

func TestMakerRecordFieldMapping(t *testing.T) {
	start := time.Date(2024, 11, 10, 6, 40, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)
	order := model.MakerOrder{
		Maker:             "M1",
		Article:           "ART-A",
		Unit:              "KG",
		PlanDate:          time.Date(2024, 11, 10, 0, 0, 0, 0, time.UTC),
		FinalQuantity:     525,
		Start:             start,
		End:               end,
		SequenceWithinDay: 1,
	}

	rec := MakerRecord(order, "HJB202411100001")
	assert.Equal(t, "M1", rec.ProductionLine)
	assert.Equal(t, "ART-A", rec.MaterialCode)
	assert.Equal(t, 525, rec.Quantity)
	assert.Equal(t, "2024/11/10 06:40:00", rec.PlanStartTime)
	assert.Equal(t, "2024/11/10 14:40:00", rec.PlanEndTime)
	assert.Equal(t, "2024/11/10", rec.PlanDate)
}
