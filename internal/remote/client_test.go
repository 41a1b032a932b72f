package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(Config{
		BaseURL:  server.URL + "/",
		APIKey:   "test-key",
		PageSize: 2,
	}, 5*time.Second)
}

func TestNewClient(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.example.com/v3.2/", APIKey: "k"}, time.Second)

	assert.Equal(t, "https://api.example.com/v3.2", client.baseURL)
	assert.Equal(t, 1000, client.pageSize, "page size defaults to the API maximum")
}

func TestFetchMembers_Paginates(t *testing.T) {
	pages := map[int][]string{
		1: {"A@Example.com ", "b@example.com"},
		2: {"c@example.com"},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "basic auth missing")
		assert.Equal(t, "test-key", user)
		assert.Equal(t, "x", pass)
		assert.Equal(t, "/lists/list-1/active.json", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("pagesize"))

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		var results []map[string]string
		for _, e := range pages[page] {
			results = append(results, map[string]string{"EmailAddress": e})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"Results":       results,
			"PageNumber":    page,
			"NumberOfPages": 2,
		})
	})

	members, err := client.FetchMembers(context.Background(), "list-1", StatusActive)
	require.NoError(t, err)

	assert.Len(t, members, 3)
	assert.Contains(t, members, "a@example.com")
	assert.Contains(t, members, "b@example.com")
	assert.Contains(t, members, "c@example.com")
}

func TestFetchMembers_EmptyList(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, `{"Results":[],"PageNumber":1,"NumberOfPages":0}`)
	})

	members, err := client.FetchMembers(context.Background(), "list-1", StatusUnsubscribed)
	require.NoError(t, err)
	assert.Empty(t, members)
	assert.Equal(t, 1, calls)
}

func TestFetchMembers_PageFailureAborts(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "malformed page",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Query().Get("page") == "2" {
					fmt.Fprint(w, `{"Results": [`)
					return
				}
				fmt.Fprint(w, `{"Results":[{"EmailAddress":"a@example.com"}],"NumberOfPages":3}`)
			},
			wantErr: "page 2: failed to parse response",
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantErr: "page 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)

			members, err := client.FetchMembers(context.Background(), "list-1", StatusActive)
			require.Error(t, err)
			assert.Nil(t, members)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestImportBatch_RequestBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/subscribers/list-1/import.json", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req importRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Resubscribe)
		require.Len(t, req.Subscribers, 1)
		assert.Equal(t, "a@example.com", req.Subscribers[0].EmailAddress)
		assert.Equal(t, "Yes", req.Subscribers[0].ConsentToTrack)
		assert.Equal(t, []CustomField{{Key: "City", Value: "Paris"}}, req.Subscribers[0].CustomFields)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"TotalNewSubscribers":1}`)
	})

	result, err := client.ImportBatch(context.Background(), "list-1", []Subscriber{{
		EmailAddress:   "a@example.com",
		CustomFields:   []CustomField{{Key: "City", Value: "Paris"}},
		ConsentToTrack: "Yes",
	}}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, result.New)
}

func TestImportBatch_ResponseShapes(t *testing.T) {
	counts := `"TotalNewSubscribers":3,"TotalExistingSubscribers":2,` +
		`"DuplicateEmailsInSubmission":["d@example.com"],` +
		`"FailureDetails":[{"EmailAddress":"bad","Code":1,"Message":"Invalid Email Address"}]`

	bodies := map[int]string{
		http.StatusCreated:    `{` + counts + `}`,
		http.StatusBadRequest: `{"Code":210,"Message":"Subscriber Import - Some subscribers failed","ResultData":{` + counts + `}}`,
	}

	var results []*ImportResult
	for status, body := range bodies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			fmt.Fprint(w, body)
		})

		result, err := client.ImportBatch(context.Background(), "list-1", []Subscriber{{EmailAddress: "a@example.com"}}, false)
		require.NoError(t, err, "status %d", status)
		results = append(results, result)
	}

	for _, r := range results {
		assert.Equal(t, 3, r.New)
		assert.Equal(t, 2, r.Existing)
		assert.Equal(t, 1, r.Duplicates)
		assert.Equal(t, []FailureDetail{{EmailAddress: "bad", Code: 1, Message: "Invalid Email Address"}}, r.Failures)
	}
}

func TestImportBatch_BadRequestWithoutResultData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"Code":101,"Message":"Invalid ListID"}`)
	})

	result, err := client.ImportBatch(context.Background(), "list-1", []Subscriber{{EmailAddress: "a@example.com"}}, false)
	require.NoError(t, err)
	assert.Zero(t, result.New)
	assert.Empty(t, result.Failures)
	assert.Equal(t, "Invalid ListID", result.Message)
}

func TestImportBatch_UnexpectedStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"Code":50,"Message":"Must supply a valid HTTP Basic Authorization header"}`)
	})

	result, err := client.ImportBatch(context.Background(), "list-1", []Subscriber{{EmailAddress: "a@example.com"}}, false)
	assert.Nil(t, result)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "valid HTTP Basic")
}

func TestImportBatch_TooLarge(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.ImportBatch(context.Background(), "list-1", make([]Subscriber, MaxBatchSize+1), false)
	assert.Error(t, err)
}

func TestUnsubscribe(t *testing.T) {
	var got unsubscribeRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/subscribers/list-1/unsubscribe.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		if got.EmailAddress == "missing@example.com" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"Code":203,"Message":"Subscriber not in list"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.Unsubscribe(context.Background(), "list-1", "a@example.com"))
	assert.Equal(t, "a@example.com", got.EmailAddress)

	err := client.Unsubscribe(context.Background(), "list-1", "missing@example.com")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
}

func TestListDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lists/list-1.json", r.URL.Path)
		fmt.Fprint(w, `{"ListID":"list-1","Title":"Newsletter","ConfirmedOptIn":false}`)
	})

	details, err := client.ListDetails(context.Background(), "list-1")
	require.NoError(t, err)
	assert.Equal(t, "Newsletter", details.Title)
}
