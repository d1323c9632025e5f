package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/socialsync/internal/common"
)

func TestDownload(t *testing.T) {
	t.Run("success 200 OK", func(t *testing.T) {
		var gotMethod string
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			_, _ = w.Write([]byte("hello, s3"))
		}))
		defer ts.Close()

		body, err := Download(context.Background(), ts.URL+"/bag/u1/x?X-Amz-Signature=abc")
		require.NoError(t, err)
		assert.Equal(t, http.MethodGet, gotMethod)
		assert.Equal(t, "hello, s3", string(body))
	})

	statuses := []struct {
		code int
		want error
	}{
		{http.StatusNotFound, common.ErrNotFound},
		{http.StatusForbidden, common.ErrForbidden},
		{http.StatusBadGateway, common.ErrUnavailable},
	}
	for _, tt := range statuses {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer ts.Close()

			_, err := Download(context.Background(), ts.URL)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("other 4xx carries the body", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("SignatureDoesNotMatch"))
		}))
		defer ts.Close()

		_, err := Download(context.Background(), ts.URL)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "SignatureDoesNotMatch"))
	})

	t.Run("transport error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		url := ts.URL
		ts.Close()

		_, err := Download(context.Background(), url)
		require.ErrorIs(t, err, common.ErrUnavailable)
	})

	t.Run("bad url", func(t *testing.T) {
		_, err := Download(context.Background(), "://bad")
		require.Error(t, err)
	})
}
