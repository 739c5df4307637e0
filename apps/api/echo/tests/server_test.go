package tests

import (
	"net/http"
	"testing"
)

func Test_home(t *testing.T) {
	setup(t)

	req, rec := newRequest(http.MethodGet, "/")
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %v; wantCode %v", rec.Code, http.StatusOK)
	}
	if got, want := rec.Body.String(), "Welcome to the Innopoints API!"; got != want {
		t.Errorf("body = %q; want %q", got, want)
	}
}
