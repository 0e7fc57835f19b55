package apify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prospectpipe/internal/pipeerr"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		Token:        "tok",
		ActorID:      "jljBwyyQakqrL1wae",
		BaseURL:      srv.URL,
		PollInterval: 10 * time.Millisecond,
		RunTimeout:   time.Second,
	})
}

func writeData(w http.ResponseWriter, v interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{"data": v})
}

func TestStartRun(t *testing.T) {
	var gotInput RunInput
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/acts/jljBwyyQakqrL1wae/runs", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotInput))
		writeData(w, Run{ID: "run1", Status: StatusReady})
	}))

	run, err := c.StartRun(context.Background(), RunInput{
		URL:          "https://app.apollo.io/#/people?qOrganizationSearchListId=65a1b2c3d4e5f6a7b8c9d0e1",
		TotalRecords: 200,
		FileName:     "Apollo Prospects",
	})
	require.NoError(t, err)
	assert.Equal(t, "run1", run.ID)
	assert.Equal(t, 200, gotInput.TotalRecords)
	assert.Equal(t, "Apollo Prospects", gotInput.FileName)
}

func TestStartRun_NoToken(t *testing.T) {
	c := NewClient(Config{ActorID: "a"})
	_, err := c.StartRun(context.Background(), RunInput{})
	require.Error(t, err)
}

func TestWaitForRun_Succeeds(t *testing.T) {
	polls := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/actor-runs/run1", r.URL.Path)
		polls++
		status := StatusRunning
		if polls >= 3 {
			status = StatusSucceeded
		}
		writeData(w, Run{ID: "run1", Status: status, DefaultDatasetID: "ds1"})
	}))

	run, err := c.WaitForRun(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, run.Status)
	assert.Equal(t, "ds1", run.DefaultDatasetID)
	assert.GreaterOrEqual(t, polls, 3)
}

func TestWaitForRun_Failed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(w, Run{ID: "run1", Status: StatusFailed})
	}))

	_, err := c.WaitForRun(context.Background(), "run1")
	require.Error(t, err)

	pe, ok := pipeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, pipeerr.CodeApifyScraping, pe.Code)
	assert.Equal(t, StatusFailed, pe.Context["status"])
}

func TestDatasetItems_Paging(t *testing.T) {
	total := datasetPageSize + 5
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/datasets/ds1/items", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("clean"))

		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		var page []map[string]interface{}
		for i := offset; i < total && i < offset+limit; i++ {
			page = append(page, map[string]interface{}{"email": fmt.Sprintf("p%d@x.com", i)})
		}
		json.NewEncoder(w).Encode(page)
	}))

	items, err := c.DatasetItems(context.Background(), "ds1")
	require.NoError(t, err)
	assert.Len(t, items, total)
}

func TestDoJSON_RetriesOn500(t *testing.T) {
	attempts := 0
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeData(w, Run{ID: "run1", Status: StatusReady})
	}))

	run, err := c.GetRun(context.Background(), "run1")
	require.NoError(t, err)
	assert.Equal(t, "run1", run.ID)
	assert.Equal(t, 3, attempts)
}

func TestDoJSON_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "record-not-found", "message": "no such run"},
		})
	}))

	_, err := c.GetRun(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record-not-found")
}

func TestRunFinished(t *testing.T) {
	for _, s := range []string{StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted} {
		assert.True(t, (&Run{Status: s}).Finished(), s)
	}
	for _, s := range []string{StatusReady, StatusRunning} {
		assert.False(t, (&Run{Status: s}).Finished(), s)
	}
}
