package fingerprint

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestTransport_GoProfile(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	rt, err := Transport(ProfileGo, nil)
	if err != nil {
		t.Fatalf("Transport: %v", err)
	}
	tr, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", rt)
	}

	// httptest uses a self-signed cert.
	tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	client := &http.Client{Transport: tr}
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestTransport_BrowserProfilesBuild(t *testing.T) {
	for _, p := range []Profile{ProfileChrome, ProfileFirefox, ProfileSafari, ProfileRandom} {
		rt, err := Transport(p, nil)
		if err != nil {
			t.Errorf("Transport(%s): %v", p, err)
			continue
		}
		tr, ok := rt.(*http.Transport)
		if !ok {
			t.Errorf("Transport(%s) returned %T", p, rt)
			continue
		}
		if tr.DialTLSContext == nil {
			t.Errorf("Transport(%s) did not install a uTLS dialer", p)
		}
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("netscape"), nil)
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "unknown fingerprint profile") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestTransport_ProxyFunc(t *testing.T) {
	called := false
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		called = true
		return nil, nil
	}

	rt, err := Transport(ProfileGo, proxyFunc)
	if err != nil {
		t.Fatalf("Transport: %v", err)
	}
	tr := rt.(*http.Transport)
	if tr.Proxy == nil {
		t.Fatal("proxy func not installed")
	}
	req, _ := http.NewRequest(http.MethodGet, "https://example.com", nil)
	if _, err := tr.Proxy(req); err != nil {
		t.Fatalf("proxy func: %v", err)
	}
	if !called {
		t.Errorf("installed proxy func was not the one provided")
	}
}
