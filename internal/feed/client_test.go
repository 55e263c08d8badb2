// Castellan - Threat Intelligence Synchronization and Security Case Management
// Copyright 2026 Castellan Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/castellan-io/castellan

package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key-123"

func newTestClient(serverURL string) *Client {
	c := NewClient(Config{
		BaseURL:           serverURL,
		APIKey:            testAPIKey,
		VerifySSL:         false,
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
	})
	c.retryBaseDelay = time.Millisecond
	return c
}

func TestSearchEvents(t *testing.T) {
	var gotBody searchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/events/restSearch", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"response": [
				{"Event": {
					"id": "17",
					"uuid": "5f0c8a9e-1234-4e6a-9c1d-0123456789ab",
					"info": "Credential phishing wave",
					"date": "2026-08-20",
					"threat_level_id": "1",
					"published": true,
					"timestamp": "1755686400",
					"Org": {"name": "CIRCL"},
					"Tag": [{"name": "tlp:amber"}],
					"Attribute": [
						{"id": "201", "uuid": "aaaaaaaa-0000-0000-0000-000000000001", "type": "ip-src", "value": "198.51.100.5", "to_ids": true, "timestamp": "1755686400"}
					]
				}}
			]
		}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	events, err := client.SearchEvents(context.Background(), since, 500)
	require.NoError(t, err)

	assert.Equal(t, "json", gotBody.ReturnFormat)
	assert.Equal(t, "2026-08-01", gotBody.From)
	assert.Equal(t, 500, gotBody.Limit)
	assert.True(t, gotBody.Published)

	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "17", event.ID)
	assert.Equal(t, "Credential phishing wave", event.Info)
	assert.Equal(t, "1", event.ThreatLevelID)
	require.NotNil(t, event.Org)
	assert.Equal(t, "CIRCL", event.Org.Name)
	assert.Equal(t, []string{"tlp:amber"}, TagNames(event.Tags))
	require.Len(t, event.Attributes, 1)
	assert.Equal(t, "ip-src", event.Attributes[0].Type)
}

func TestSearchEventsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"response": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	events, err := client.SearchEvents(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSearchEventsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchEvents(context.Background(), time.Now(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSearchEventsRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"response": []}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchEvents(context.Background(), time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load(), "two 429 responses then success")
}

func TestSearchEventsGivesUpAfterMaxRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.SearchEvents(context.Background(), time.Now(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestRetrySettingsFromConfig(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(Config{
		BaseURL:           server.URL,
		APIKey:            testAPIKey,
		RequestsPerSecond: 1000,
		MaxRetries:        2,
		RetryDelay:        time.Millisecond,
	})
	_, err := client.SearchEvents(context.Background(), time.Now(), 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, int32(3), calls.Load(), "initial attempt plus two retries")
}

func TestRetrySettingsDefaults(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://feed.example.com"})
	assert.Equal(t, 5, client.maxRetries)
	assert.Equal(t, time.Second, client.retryBaseDelay)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/servers/getVersion", r.URL.Path)
		assert.Equal(t, testAPIKey, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"version": "2.4.190"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	require.NoError(t, client.Ping(context.Background()))
}

func TestPingUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	err := client.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestParseID(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"17", 17, true},
		{"0", 0, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12.5", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseID(tt.in)
		assert.Equal(t, tt.wantOK, ok, "input %q", tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
	}
}

func TestParseIntField(t *testing.T) {
	assert.Equal(t, 3, ParseIntField("3", 2))
	assert.Equal(t, 2, ParseIntField("", 2))
	assert.Equal(t, 2, ParseIntField("junk", 2))
}

func TestParseEpoch(t *testing.T) {
	ts := ParseEpoch("1755686400")
	assert.Equal(t, time.Date(2025, 8, 20, 10, 40, 0, 0, time.UTC), ts)
	assert.True(t, ParseEpoch("").IsZero())
	assert.True(t, ParseEpoch("not-a-number").IsZero())
}

func TestTagNames(t *testing.T) {
	assert.Nil(t, TagNames(nil))
	assert.Equal(t, []string{"tlp:red", "apt"}, TagNames([]RawTag{{Name: "tlp:red"}, {Name: ""}, {Name: "apt"}}))
}
