package sabnzbd

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fetcharr/fetcharr/internal/downloader"
)

const testAPIKey = "test-api-key"

func clientFor(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	host, portStr, err := net.SplitHostPort(server.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return New(downloader.ClientConfig{
		Host:   host,
		Port:   port,
		APIKey: testAPIKey,
	})
}

func TestClient_Protocol(t *testing.T) {
	client := New(downloader.ClientConfig{})
	assert.Equal(t, downloader.ProtocolUsenet, client.Protocol())
}

func TestClient_Test(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "version", r.URL.Query().Get("mode"))
		assert.Equal(t, testAPIKey, r.URL.Query().Get("apikey"))
		json.NewEncoder(w).Encode(map[string]interface{}{"version": "4.3.0", "status": true})
	}))
	defer server.Close()

	err := clientFor(t, server).Test(context.Background())
	require.NoError(t, err)
}

func TestClient_Test_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	err := clientFor(t, server).Test(context.Background())
	assert.ErrorIs(t, err, downloader.ErrAuthFailed)
}

func TestClient_Add(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "addurl", q.Get("mode"))
		assert.Equal(t, "http://example.org/release.nzb", q.Get("name"))
		assert.Equal(t, "Some.Show.S01E01.720p.HDTV-GRP", q.Get("nzbname"))
		assert.Equal(t, "json", q.Get("output"))
		json.NewEncoder(w).Encode(sabResponse{Status: true, NzoIDs: []string{"SABnzbd_nzo_1"}})
	}))
	defer server.Close()

	id, err := clientFor(t, server).Add(context.Background(),
		"http://example.org/release.nzb", "Some.Show.S01E01.720p.HDTV-GRP")
	require.NoError(t, err)
	assert.Equal(t, "SABnzbd_nzo_1", id)
}

func TestClient_Add_Category(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tv", r.URL.Query().Get("cat"))
		json.NewEncoder(w).Encode(sabResponse{Status: true, NzoIDs: []string{"SABnzbd_nzo_2"}})
	}))
	defer server.Close()

	client := clientFor(t, server)
	client.config.Category = "tv"

	_, err := client.Add(context.Background(), "http://example.org/release.nzb", "")
	require.NoError(t, err)
}

func TestClient_Add_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(sabResponse{Status: false, Error: "no free disk space"})
	}))
	defer server.Close()

	_, err := clientFor(t, server).Add(context.Background(), "http://example.org/release.nzb", "")
	assert.ErrorIs(t, err, downloader.ErrAddFailed)
	assert.Contains(t, err.Error(), "no free disk space")
}

func TestClient_NotConnected(t *testing.T) {
	server := httptest.NewServer(nil)
	server.Close()

	err := clientFor(t, server).Test(context.Background())
	assert.ErrorIs(t, err, downloader.ErrNotConnected)
}
