package mailinglist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", "key-1", zap.NewNop().Sugar())
}

func TestFindOrCreateMember_Existing(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/members", r.URL.Path)
		assert.Equal(t, "Sato Taro", r.URL.Query().Get("name"))
		assert.Equal(t, "taro@eis.hokudai.ac.jp", r.URL.Query().Get("email"))
		assert.Equal(t, "taro@example.com", r.URL.Query().Get("email_sub"))
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		_, _ = w.Write([]byte(`{"members":[{"id":41,"name":"Sato Taro"}]}`))
	})

	id, err := c.FindOrCreateMember(context.Background(), "Sato Taro", "taro@eis.hokudai.ac.jp", "taro@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(41), id)
}

func TestFindOrCreateMember_Creates(t *testing.T) {
	var posted Member
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"members":[]}`))
		case http.MethodPost:
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&posted))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":42}`))
		}
	})

	id, err := c.FindOrCreateMember(context.Background(), "Sato Taro", "taro@eis.hokudai.ac.jp", "")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, Member{Name: "Sato Taro", Email: "taro@eis.hokudai.ac.jp"}, posted)
}

func TestFindOrCreateMember_CreateWithoutID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(`{"members":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := c.FindOrCreateMember(context.Background(), "n", "e", "")
	assert.Error(t, err)
}

func TestAddMember(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/lists/7/add_member", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("member_id"))
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.AddMember(context.Background(), 7, 42))
}

func TestAddMember_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "list not found", http.StatusNotFound)
	})

	err := c.AddMember(context.Background(), 7, 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, apiErr.Error(), "list not found")
}

func TestClient_ContextCancelled(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.AddMember(ctx, 1, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
