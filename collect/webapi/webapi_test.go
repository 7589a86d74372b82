package webapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	col "github.com/ThalesMMS/BTC-20M-Countdown/collect"
	"github.com/ThalesMMS/BTC-20M-Countdown/testutil"
)

func testGetters(t *testing.T, primary, fallback http.HandlerFunc) (col.SampleBatchGetter, col.HeightGetter) {
	t.Helper()
	psrv := httptest.NewServer(primary)
	fsrv := httptest.NewServer(fallback)
	t.Cleanup(psrv.Close)
	t.Cleanup(fsrv.Close)
	return Getters(Config{
		PrimaryURL:  psrv.URL,
		FallbackURL: fsrv.URL,
		Timeout:     5,
	})
}

func TestGetSamples(t *testing.T) {
	const payload = `[
		{"id":"00000000a","height":900003,"timestamp":1700001800,"tx_count":2000},
		{"id":"00000000b","height":900002,"timestamp":1700001200,"tx_count":1500},
		{"id":"00000000c","height":900001,"timestamp":1700000600,"tx_count":1800}
	]`
	getSamples, _ := testGetters(t,
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(payload))
		},
		nil,
	)

	samples, err := getSamples()
	if err != nil {
		t.Fatal(err)
	}
	want := []col.Sample{
		{Height: 900003, Time: 1700001800},
		{Height: 900002, Time: 1700001200},
		{Height: 900001, Time: 1700000600},
	}
	if err := testutil.CheckEqual(samples, want); err != nil {
		t.Error(err)
	}
}

func TestGetSamplesErrors(t *testing.T) {
	payloads := map[string]http.HandlerFunc{
		"empty list": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[]`))
		},
		"malformed json": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"height":`))
		},
		"wrong shape": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"height": 900003}`))
		},
		"negative height": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`[{"height":-1,"timestamp":1700000000}]`))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "oops", http.StatusBadGateway)
		},
	}
	for name, handler := range payloads {
		getSamples, _ := testGetters(t, handler, nil)
		if _, err := getSamples(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestGetHeight(t *testing.T) {
	_, getHeight := testGetters(t, nil,
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("900123\n"))
		},
	)
	height, err := getHeight()
	if err != nil {
		t.Fatal(err)
	}
	if err := testutil.CheckEqual(height, int64(900123)); err != nil {
		t.Error(err)
	}
}

func TestGetHeightErrors(t *testing.T) {
	bodies := map[string]http.HandlerFunc{
		"empty body": func(w http.ResponseWriter, r *http.Request) {},
		"non-numeric": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not a number"))
		},
		"non-finite": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("Inf"))
		},
		"negative": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("-5"))
		},
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "oops", http.StatusServiceUnavailable)
		},
	}
	for name, handler := range bodies {
		_, getHeight := testGetters(t, nil, handler)
		if _, err := getHeight(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
