package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalPathUsesRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = CanonicalPath(req)
		})
	})
	r.Get("/townHalls/{name}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := r

	cases := map[string]string{
		"/townHalls/Riva":   "/townHalls/{name}",
		"/townHalls/Trento": "/townHalls/{name}",
		"/nope/at/all":      "unmatched",
		"/":                 "/",
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, got, path)
	}
}

func TestInstrumentKeepsStatus(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestLogRequestWritesJSON(t *testing.T) {
	l := Logger()
	orig := l.Out
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	LogRequest(logrus.Fields{"method": "GET", "path": "/healthz", "status": 200})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "/healthz", entry["path"])
}

func TestSetLogLevel(t *testing.T) {
	l := logrus.New()
	SetLogLevel(l, "debug")
	assert.Equal(t, logrus.DebugLevel, l.Level)
	SetLogLevel(l, "WARN")
	assert.Equal(t, logrus.WarnLevel, l.Level)
	SetLogLevel(l, "other")
	assert.Equal(t, logrus.InfoLevel, l.Level)
}
