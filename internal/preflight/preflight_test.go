package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cardshot/internal/capture"
)

func TestCheckOK(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		_, _ = w.Write([]byte("<html><body>card</body></html>"))
	}))
	defer srv.Close()

	c := New(Config{UserAgent: "cardshot-test", Timeout: time.Second})
	status, err := c.Check(context.Background(), srv.URL+"/card?tokenID=0")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cardshot-test", gotUA)

	// The same URL may be checked again.
	_, err = c.Check(context.Background(), srv.URL+"/card?tokenID=0")
	require.NoError(t, err)
}

func TestCheckErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	status, err := New(Config{}).Check(context.Background(), srv.URL)
	require.ErrorIs(t, err, capture.ErrSourceUnreachable)
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestCheckConnectionRefused(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{Timeout: time.Second}).Check(context.Background(), url)
	require.ErrorIs(t, err, capture.ErrSourceUnreachable)
}
