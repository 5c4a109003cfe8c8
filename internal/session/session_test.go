package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolconsole/internal/apiclient"
)

// flakyStore fails the next Load once.
type flakyStore struct {
	*MemoryStore
	failNext bool
}

func (s *flakyStore) Load(ctx context.Context, id string) (Credentials, error) {
	if s.failNext {
		s.failNext = false
		return Credentials{}, errors.New("redis: i/o timeout")
	}
	return s.MemoryStore.Load(ctx, id)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Date(2025, 10, 21, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.Error(t, s.Save(ctx, "a", Credentials{}))
	require.NoError(t, s.Save(ctx, "a", Credentials{Token: "t", UserInfo: json.RawMessage(`{"name":"Kim"}`)}))

	c, err := s.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "t", c.Token)
	assert.JSONEq(t, `{"name":"Kim"}`, string(c.UserInfo))

	now = now.Add(2 * time.Minute)
	_, err = s.Load(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthLogoutClearsStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Hour)
	require.NoError(t, s.Save(ctx, "sid", Credentials{Token: "tok"}))

	var loggedOut string
	a := NewAuth(s, "sid", nil, func(id string) { loggedOut = id })

	tok, err := a.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)

	a.OnUnauthorized(ctx)
	assert.Equal(t, "sid", loggedOut)
	_, err = a.Token(ctx)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreErrorDoesNotLogOut(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"IsSuccess":true}`))
	}))
	defer srv.Close()

	store := &flakyStore{MemoryStore: NewMemoryStore(time.Hour), failNext: true}
	require.NoError(t, store.Save(ctx, "sid", Credentials{Token: "tok"}))
	loggedOut := false
	client := apiclient.New(srv.URL, NewAuth(store, "sid", nil, func(string) { loggedOut = true }), time.Second, nil)

	err := client.UnenrollFromAll(ctx, 7)
	assert.ErrorIs(t, err, apiclient.ErrTransport)
	assert.False(t, loggedOut)

	c, err := store.Load(ctx, "sid")
	require.NoError(t, err, "credentials survive the failed read")
	assert.Equal(t, "tok", c.Token)

	require.NoError(t, client.UnenrollFromAll(ctx, 7))
}

func TestMissingSessionLogsOut(t *testing.T) {
	assert.ErrorIs(t, ErrNotFound, apiclient.ErrNoCredentials)

	store := NewMemoryStore(time.Hour)
	loggedOut := ""
	client := apiclient.New("http://127.0.0.1:1", NewAuth(store, "gone", nil, func(id string) { loggedOut = id }), time.Second, nil)
	err := client.UnenrollFromAll(context.Background(), 7)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
	assert.Equal(t, "gone", loggedOut)
}
