package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func recordingServer(t *testing.T) (*httptest.Server, *[]string) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = w.Write([]byte(`<html><body><a href="next">next</a></body></html>`))
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestGetResolvesAbsolutePathAgainstOrigin(t *testing.T) {
	srv, paths := recordingServer(t)

	// a base url carrying a path must not be prefixed onto absolute paths
	s, err := NewSession(Options{BaseUrl: srv.URL + "/enterprise/account/login"})
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "/enterprise/account/login")
	require.NoError(t, err)
	require.Equal(t, []string{"/enterprise/account/login"}, *paths)
}

func TestGetResolvesRelativeHrefAgainstCurrentPage(t *testing.T) {
	srv, paths := recordingServer(t)

	s, err := NewSession(Options{BaseUrl: srv.URL + "/sportscentre/badminton-hire/"})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Get(ctx, srv.URL+"/sportscentre/badminton-hire/")
	require.NoError(t, err)

	// a page-relative href, the way the booking grids link their days
	_, err = s.Get(ctx, "next")
	require.NoError(t, err)
	require.Equal(t, []string{
		"/sportscentre/badminton-hire/",
		"/sportscentre/badminton-hire/next",
	}, *paths)
}

func TestPostFormResolvesFormAction(t *testing.T) {
	srv, paths := recordingServer(t)

	s, err := NewSession(Options{BaseUrl: srv.URL})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Get(ctx, "/enterprise/account/login")
	require.NoError(t, err)
	_, err = s.PostForm(ctx, "/enterprise/account/login", map[string]string{"Login.Email": "a@b.c"})
	require.NoError(t, err)
	require.Equal(t, []string{
		"/enterprise/account/login",
		"/enterprise/account/login",
	}, *paths)
}
