package video

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvision-server/internal/models"
)

func TestDailyCreateRoom(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rooms", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var body createRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "consulta-1", body.Name)
		assert.Equal(t, "private", body.Privacy)
		assert.True(t, body.Properties.EnablePrejoinUI)

		_ = json.NewEncoder(w).Encode(map[string]string{"name": body.Name, "url": "https://clinic.daily.co/" + body.Name})
	}))
	defer srv.Close()

	room, err := NewDailyClient(srv.URL, "secret", time.Second).CreateRoom(context.Background(), "consulta-1")
	require.NoError(t, err)
	assert.Equal(t, "consulta-1", room.Name)
	assert.Equal(t, "https://clinic.daily.co/consulta-1", room.URL)
}

func TestDailyCreateRoomFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid-request-error"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewDailyClient(srv.URL, "secret", time.Second).CreateRoom(context.Background(), "consulta-1")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestDailyCreateRoomTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewDailyClient(srv.URL, "secret", 50*time.Millisecond).CreateRoom(context.Background(), "slow")
	assert.Error(t, err)
}

func TestDailyDeleteRoom(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/rooms/gone" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.URL.Path == "/rooms/broken" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"deleted":true}`))
	}))
	defer srv.Close()

	client := NewDailyClient(srv.URL, "secret", time.Second)
	assert.NoError(t, client.DeleteRoom(context.Background(), "consulta-1"))
	assert.NoError(t, client.DeleteRoom(context.Background(), "gone"))
	assert.Error(t, client.DeleteRoom(context.Background(), "broken"))
	assert.Equal(t, []string{"/rooms/consulta-1", "/rooms/gone", "/rooms/broken"}, paths)
}

func TestDailyAccessToken(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC)
	var got tokenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meeting-tokens", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"token":"tok-123"}`))
	}))
	defer srv.Close()

	client := NewDailyClient(srv.URL, "secret", time.Second)
	client.now = func() time.Time { return now }

	token, err := client.AccessToken(context.Background(), "consulta-1", "pat-1", models.RolePatient, TokenOptions{UserName: "Maria"})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
	assert.Equal(t, "consulta-1", got.Properties.RoomName)
	assert.Equal(t, "Maria", got.Properties.UserName)
	assert.Equal(t, "pat-1", got.Properties.UserID)
	assert.False(t, got.Properties.IsOwner)
	assert.Equal(t, now.Add(DefaultTokenTTL).Unix(), got.Properties.Exp)

	_, err = client.AccessToken(context.Background(), "consulta-1", "doc-1", models.RoleDoctor, TokenOptions{})
	require.NoError(t, err)
	assert.True(t, got.Properties.IsOwner)
	assert.Equal(t, "Usuário", got.Properties.UserName)
}

func TestLocalProvisioner(t *testing.T) {
	p := NewLocalProvisioner("https://meet.medvision.local/")
	room, err := p.CreateRoom(context.Background(), "consulta-1")
	require.NoError(t, err)
	assert.Equal(t, "https://meet.medvision.local/consulta-1", room.URL)
	assert.NoError(t, p.DeleteRoom(context.Background(), "consulta-1"))

	token, err := p.AccessToken(context.Background(), "consulta-1", "pat-1", models.RolePatient, TokenOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, token)
}
