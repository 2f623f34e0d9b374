package shared

import (
	"net/http"
	"net/http/httptest"
)

type cookieRecorder struct {
	*httptest.ResponseRecorder
}

func newRecorder() *cookieRecorder {
	return &cookieRecorder{ResponseRecorder: httptest.NewRecorder()}
}

func (r *cookieRecorder) requestWithCookies() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range r.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}
