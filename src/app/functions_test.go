package app_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "memcap/src/app"
)

func TestFunctionClientInvoke(t *testing.T) {
	var (
		gotPath, gotAuth string
		gotBody          map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"payload":{"video":"U/1.mp4"}}`)
	}))
	defer srv.Close()

	client := app.NewFunctionClient(srv.URL+"/functions/v1/", time.Second)
	env, err := client.Invoke(context.Background(), "animate-photo", "tok", map[string]string{"photo_id": "p1"})
	require.NoError(t, err)

	assert.Equal(t, "/functions/v1/animate-photo", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "p1", gotBody["photo_id"])
	assert.True(t, env.Success)
	assert.JSONEq(t, `{"video":"U/1.mp4"}`, string(env.Payload))
}

func TestFunctionClientFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		msg    string
	}{
		"UnsuccessfulEnvelope": {http.StatusOK, `{"success":false,"error":"face not found"}`, "face not found"},
		"ServerError":          {http.StatusInternalServerError, `upstream crashed`, "Function failed with HTTP 500"},
		"ErrorWithEnvelope":    {http.StatusBadRequest, `{"success":true}`, "Function failed with HTTP 400"},
		"MalformedJSON":        {http.StatusOK, `{"success":`, "Function returned malformed JSON"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			_, err := app.NewFunctionClient(srv.URL, time.Second).Invoke(context.Background(), "animate-photo", "", nil)
			assert.ErrorIs(t, err, app.ErrRemoteFunction)
			assert.Equal(t, tc.msg, app.Message(err))
		})
	}
}

func TestFunctionClientMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		file, header, err := r.FormFile("image")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)

		assert.Equal(t, "a.jpg", header.Filename)
		assert.Equal(t, "bytes", string(content))
		assert.Equal(t, "p1", r.FormValue("photo_id"))
		_, _ = io.WriteString(w, `{"success":true}`)
	}))
	defer srv.Close()

	env, err := app.NewFunctionClient(srv.URL, time.Second).InvokeMultipart(context.Background(), "animate-photo", "tok",
		map[string]string{"photo_id": "p1"}, app.FormFile{Field: "image", Filename: "a.jpg", Content: []byte("bytes")})
	require.NoError(t, err)
	assert.True(t, env.Success)
}

func TestFunctionClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	_, err := app.NewFunctionClient(srv.URL, 200*time.Millisecond).Invoke(context.Background(), "animate-photo", "", nil)
	assert.ErrorIs(t, err, app.ErrRemoteFunction)
}
