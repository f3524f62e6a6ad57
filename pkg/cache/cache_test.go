package cache

import (
	"net/http"
	"testing"
)

func TestSignature(t *testing.T) {
	s1 := Signature(http.MethodGet, "/api/nutrition/apple", nil, nil)
	s2 := Signature("get", "/api/nutrition/apple", nil, nil)
	s3 := Signature(http.MethodGet, "/api/nutrition/pear", nil, nil)

	if s1 != s2 {
		t.Error("method case should not change the signature")
	}
	if s1 == s3 {
		t.Error("different URL should produce different signature")
	}
}

func TestSignatureVaryHeaders(t *testing.T) {
	json := http.Header{"Accept": []string{"application/json"}}
	html := http.Header{"Accept": []string{"text/html"}}

	if Signature(http.MethodGet, "/", json, nil) != Signature(http.MethodGet, "/", html, nil) {
		t.Error("headers outside the vary list must not affect the signature")
	}
	if Signature(http.MethodGet, "/", json, []string{"accept"}) == Signature(http.MethodGet, "/", html, []string{"accept"}) {
		t.Error("vary headers must affect the signature")
	}
}
