package directus

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListItems(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/items/de_dwd_data", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "-1", r.URL.Query().Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [{"id": 1, "station": "5705"}, {"id": 2, "station": "105"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	params := url.Values{"limit": []string{"-1"}}
	items, err := client.ListItems(context.Background(), "de_dwd_data", params)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "5705", items[0]["station"])
}

func TestFindByKey_Found(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5705:2024-01-01", r.URL.Query().Get("filter[external_key][_eq]"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Write([]byte(`{"data": [{"id": 42, "external_key": "5705:2024-01-01"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	item, err := client.FindByKey(context.Background(), "de_dwd_data", "external_key", "5705:2024-01-01")

	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, float64(42), item["id"])
}

func TestFindByKey_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	item, err := client.FindByKey(context.Background(), "de_dwd_data", "external_key", "missing")

	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestCreateItem(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/items/energy", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "2024-08-01", payload["date"])

		w.Write([]byte(`{"data": {"id": 7, "date": "2024-08-01"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	item, err := client.CreateItem(context.Background(), "energy", Item{"date": "2024-08-01"})

	require.NoError(t, err)
	assert.Equal(t, float64(7), item["id"])
}

func TestCreateItems_Batch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Len(t, payload, 3)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	err := client.CreateItems(context.Background(), "energy", []Item{
		{"v": 1}, {"v": 2}, {"v": 3},
	})
	require.NoError(t, err)
}

func TestCreateItems_Empty(t *testing.T) {
	t.Parallel()

	client := NewClient("http://unused", "test-token")
	require.NoError(t, client.CreateItems(context.Background(), "energy", nil))
}

func TestUpdateItem(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/items/energy/42", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, 3.14, payload["value"])

		w.Write([]byte(`{"data": {"id": 42, "value": 3.14}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	item, err := client.UpdateItem(context.Background(), "energy", 42, Item{"value": 3.14})

	require.NoError(t, err)
	assert.Equal(t, float64(42), item["id"])
}

func TestUpdateSingleton(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/items/org_donation", r.URL.Path)

		var fields Item
		require.NoError(t, json.NewDecoder(r.Body).Decode(&fields))
		assert.Equal(t, float64(1234), fields["donationStatus"])

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	err := client.UpdateSingleton(context.Background(), "org_donation", Item{"donationStatus": 1234})

	require.NoError(t, err)
}

func TestFindUserByEmail(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "jane@klimadashboard.org", r.URL.Query().Get("filter[email][_eq]"))
		w.Write([]byte(`{"data": [{"id": "af3c", "email": "jane@klimadashboard.org"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	user, err := client.FindUserByEmail(context.Background(), "jane@klimadashboard.org")

	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, "af3c", user["id"])
}

func TestFindUserByEmail_NotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	user, err := client.FindUserByEmail(context.Background(), "nobody@example.com")

	require.NoError(t, err)
	assert.Nil(t, user)
}

func TestRetryOnServerError(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"data": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	_, err := client.ListItems(context.Background(), "energy", nil)

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestRetryRewindsRequestBody(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "x", payload["k"])

		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	_, err := client.CreateItem(context.Background(), "energy", Item{"k": "x"})

	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestUnexpectedStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"errors": [{"message": "no permission"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "test-token")
	_, err := client.ListItems(context.Background(), "energy", nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 403")
}

func TestEq(t *testing.T) {
	t.Parallel()

	params := Eq("external_key", "AT:2024-05")
	assert.Equal(t, "AT:2024-05", params.Get("filter[external_key][_eq]"))
}
