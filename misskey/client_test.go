package misskey

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T, handler func(w http.ResponseWriter, endpoint string, body map[string]any)) (*Client, *httptest.Server) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"Credential required.","code":"CREDENTIAL_REQUIRED","id":"1384574d-a912-4b81-8601-c7b1c4085df1"}}`))
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r.URL.Path[len("/api/"):], body)
	}))
	t.Cleanup(srv.Close)
	c := &Client{
		Client: srv.Client(),
		Host:   srv.URL,
		Token:  "secret-token",
	}
	return c, srv
}

func TestClientUsersShow(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	c, _ := testServer(t, func(w http.ResponseWriter, endpoint string, body map[string]any) {
		assert.Equal("users/show", endpoint)
		assert.Equal("user123", body["userId"])
		_, _ = w.Write([]byte(`{
			"id": "user123",
			"name": "Spammy",
			"username": "spammy",
			"host": "bad.example",
			"description": "cheap followers",
			"followersCount": 2,
			"followingCount": 900,
			"isFollowing": false,
			"isFollowed": true,
			"isSuspended": false
		}`))
	})

	u, err := c.UsersShow(ctx, "user123")
	require.NoError(err)
	assert.Equal("spammy", u.Username)
	require.NotNil(u.Host)
	assert.Equal("bad.example", *u.Host)
	assert.Equal(int64(2), u.FollowersCount)
	assert.Equal(int64(900), u.FollowingCount)
	assert.True(u.IsFollowed)
	assert.False(u.IsFollowing)
	require.NotNil(u.Description)
}

func TestClientNotesMentions(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	c, _ := testServer(t, func(w http.ResponseWriter, endpoint string, body map[string]any) {
		assert.Equal("notes/mentions", endpoint)
		assert.Equal(float64(10), body["limit"])
		_, _ = w.Write([]byte(`[
			{"id": "n1", "userId": "u1", "user": {"id": "u1", "username": "a", "host": null, "name": null}, "text": "@bot hi", "files": []},
			{"id": "n2", "userId": "u2", "user": {"id": "u2", "username": "b", "host": "remote.example", "name": "B"}, "text": null,
			 "files": [{"id": "f1", "name": "x.png", "type": "image/png", "url": "https://remote.example/files/x.png"}]}
		]`))
	})

	notes, err := c.NotesMentions(ctx, 10)
	require.NoError(err)
	require.Len(notes, 2)
	assert.Equal("n1", notes[0].ID)
	assert.Nil(notes[0].User.Host)
	assert.Nil(notes[1].Text)
	require.Len(notes[1].Files, 1)
	assert.Equal("image/png", notes[1].Files[0].Type)
}

func TestClientNotesMentionsPaged(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	ctx := context.Background()

	notesJSON := func(from, n int) string {
		var parts []string
		for i := from; i < from+n; i++ {
			parts = append(parts, fmt.Sprintf(`{"id": "n%d", "userId": "u1", "user": {"id": "u1", "username": "a"}, "files": []}`, i))
		}
		return "[" + strings.Join(parts, ",") + "]"
	}

	var mu sync.Mutex
	var bodies []map[string]any
	c, _ := testServer(t, func(w http.ResponseWriter, endpoint string, body map[string]any) {
		assert.Equal("notes/mentions", endpoint)
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		limit := int(body["limit"].(float64))
		if limit > MentionsPageLimit {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Invalid param.","code":"INVALID_PARAM","id":"3d81ceae-475f-4600-b2a8-2bc116157532"}}`))
			return
		}
		switch body["untilId"] {
		case nil:
			_, _ = w.Write([]byte(notesJSON(0, limit)))
		case "n99":
			// only 30 older mentions exist
			_, _ = w.Write([]byte(notesJSON(100, min(limit, 30))))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	})

	notes, err := c.NotesMentions(ctx, 150)
	require.NoError(err)
	require.Len(notes, 130)
	assert.Equal("n0", notes[0].ID)
	assert.Equal("n129", notes[129].ID)

	mu.Lock()
	require.Len(bodies, 2)
	assert.Equal(float64(100), bodies[0]["limit"])
	assert.Nil(bodies[0]["untilId"])
	assert.Equal(float64(50), bodies[1]["limit"])
	assert.Equal("n99", bodies[1]["untilId"])

	// exact multiple of the page size stops without an extra request
	bodies = nil
	mu.Unlock()
	notes, err = c.NotesMentions(ctx, 100)
	require.NoError(err)
	assert.Len(notes, 100)
	mu.Lock()
	assert.Len(bodies, 1)
	mu.Unlock()

	_, err = c.NotesMentions(ctx, 0)
	assert.Error(err)
}

func TestClientNoContent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	var seen []string
	c, _ := testServer(t, func(w http.ResponseWriter, endpoint string, body map[string]any) {
		seen = append(seen, endpoint)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(c.NotesDelete(ctx, "n1"))
	assert.NoError(c.AdminSuspendUser(ctx, "u1"))
	assert.Equal([]string{"notes/delete", "admin/suspend-user"}, seen)
}

func TestClientErrors(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	c, _ := testServer(t, func(w http.ResponseWriter, endpoint string, body map[string]any) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"message":"Your app does not have the necessary permissions to use this endpoint.","code":"PERMISSION_DENIED","id":"1370e5b7-d4eb-4566-bb1d-7748ee6a1838"}}`))
	})

	err := c.AdminSuspendUser(ctx, "u1")
	assert.Error(err)
	assert.True(IsPermissionDenied(err))

	var e *Error
	assert.ErrorAs(err, &e)
	assert.Equal(http.StatusForbidden, e.StatusCode)

	var ae *APIError
	assert.ErrorAs(err, &ae)
	assert.Equal("PERMISSION_DENIED", ae.Code)

	// bad token
	c.Token = "wrong"
	_, err = c.I(ctx)
	assert.Error(err)
	assert.False(IsPermissionDenied(err))
	assert.ErrorAs(err, &e)
	assert.Equal(http.StatusUnauthorized, e.StatusCode)
}

func TestStreamURL(t *testing.T) {
	assert := assert.New(t)

	c := Client{Host: "https://misskey.example.com", Token: "abc"}
	u, err := c.StreamURL()
	assert.NoError(err)
	assert.Equal("wss://misskey.example.com/streaming?i=abc", u)

	c.Host = "http://localhost:3000/"
	u, err = c.StreamURL()
	assert.NoError(err)
	assert.Equal("ws://localhost:3000/streaming?i=abc", u)

	c.Host = "ftp://nope"
	_, err = c.StreamURL()
	assert.Error(err)
}
