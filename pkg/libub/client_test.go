package libub_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mdouchement/unionboard/pkg/cms"
	"github.com/mdouchement/unionboard/pkg/libub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	_, err := libub.NewDefaultClient("ftp://union.test")
	assert.Error(t, err)

	_, err = libub.NewDefaultClient("https://union.test/api/")
	assert.NoError(t, err)
}

func TestClient_Select(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/rest/v1/notices", r.URL.Path)
		assert.Equal(t, "date.desc", r.URL.Query().Get("order"))
		assert.Empty(t, r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"1","title":"Exam Reschedule"},{"id":"2","title":"Library Hours"}]`)
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL+"/api")
	require.NoError(t, err)

	records, err := client.Select(context.Background(), "notices", "date", false)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"id":"1","title":"Exam Reschedule"}`, string(records[0]))
}

func TestClient_Login(t *testing.T) {
	var authorization string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			var credentials map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&credentials))

			if credentials["password"] != "password42" {
				w.WriteHeader(http.StatusUnauthorized)
				io.WriteString(w, `{"error":{"tag":"invalid_credentials","message":"Invalid email or password."}}`)
				return
			}
			io.WriteString(w, `{"access_token":"token42","token_type":"bearer","expires_in":3600}`)
		case "/rest/v1/notices/n1":
			authorization = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)

	err = client.Login(context.Background(), "admin@union.test", "wrong")
	assert.EqualError(t, err, "Invalid email or password.")
	assert.True(t, libub.IsStatus(err, http.StatusUnauthorized))
	assert.Empty(t, client.BearerToken())

	require.NoError(t, client.Login(context.Background(), "admin@union.test", "password42"))
	assert.Equal(t, "token42", client.BearerToken())

	require.NoError(t, client.Update(context.Background(), "notices", "n1", json.RawMessage(`{"title":"x"}`)))
	assert.Equal(t, "Bearer token42", authorization)
}

func TestClient_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusForbidden)
			io.WriteString(w, `{"error":{"tag":"forbidden","message":"new row violates row-level security policy"}}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusBadGateway)
			io.WriteString(w, "upstream unavailable\n")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)

	_, err = client.Insert(context.Background(), "notices", json.RawMessage(`{}`))
	var apierr *libub.APIError
	require.ErrorAs(t, err, &apierr)
	assert.Equal(t, http.StatusForbidden, apierr.StatusCode)
	assert.Equal(t, "forbidden", apierr.Err.Tag)
	assert.Equal(t, "new row violates row-level security policy", err.Error())

	err = client.Delete(context.Background(), "notices", "n1")
	assert.EqualError(t, err, "upstream unavailable")

	_, err = client.Select(context.Background(), "notices", "", false)
	assert.EqualError(t, err, "Not Found")

	// The message reaches the cms layer verbatim.
	_, err = cms.NewRemoteCollection[cms.Base](client, "notices").Insert(context.Background(), cms.Base{})
	assert.Equal(t, "new row violates row-level security policy", err.Error())
	assert.True(t, libub.IsStatus(err, http.StatusForbidden))
}

func TestClient_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/documents/minutes.pdf", r.URL.Path)
		assert.Equal(t, "application/pdf", r.Header.Get("Content-Type"))
		assert.EqualValues(t, 8, r.ContentLength)

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.7", string(data))

		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"key":"documents/minutes.pdf"}`)
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)

	err = client.Upload(context.Background(), "documents", "minutes.pdf", "application/pdf", strings.NewReader("%PDF-1.7"), 8)
	assert.NoError(t, err)
}

func TestClient_Remove(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/storage/v1/object/images", r.URL.Path)

		var body struct {
			Prefixes []string `json:"prefixes"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []string{"a.png", "b.png"}, body.Prefixes)

		io.WriteString(w, `[]`)
	}))
	defer srv.Close()

	client, err := libub.NewClient(srv.Client(), srv.URL)
	require.NoError(t, err)

	assert.NoError(t, client.Remove(context.Background(), "images", []string{"a.png", "b.png"}))
}

func TestClient_PublicURL(t *testing.T) {
	client, err := libub.NewDefaultClient("https://union.test/api")
	require.NoError(t, err)

	u := client.PublicURL("documents", "01HQ3Z5C8Y6V0A7M9P2T4K1XWB.pdf")
	assert.Equal(t, "https://union.test/api/storage/v1/object/public/documents/01HQ3Z5C8Y6V0A7M9P2T4K1XWB.pdf", u)

	bucket, path, err := client.Locate(u)
	require.NoError(t, err)
	assert.Equal(t, "documents", bucket)
	assert.Equal(t, "01HQ3Z5C8Y6V0A7M9P2T4K1XWB.pdf", path)

	_, _, err = client.Locate("https://elsewhere.test/api/storage/v1/object/public/documents/a.pdf")
	assert.Error(t, err)

	_, _, err = client.Locate("https://union.test/api/storage/v1/object/public/documents")
	assert.Error(t, err)
}
