package httpserver

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	srv := New(":8080", http.NotFoundHandler())
	assert.Equal(t, ":8080", srv.Addr)
	assert.Equal(t, WriteTimeout, srv.WriteTimeout)
	assert.Nil(t, srv.ErrorLog)

	srv = New(":8080", http.NotFoundHandler(), WithWriteTimeout(time.Minute), WithWriteTimeout(0))
	assert.Equal(t, time.Minute, srv.WriteTimeout)
}

func TestWithErrorLog(t *testing.T) {
	var buf bytes.Buffer
	srv := New(":0", http.NotFoundHandler(), WithErrorLog(slog.New(slog.NewJSONHandler(&buf, nil))))
	require.NotNil(t, srv.ErrorLog)

	srv.ErrorLog.Print("http: TLS handshake error")
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), "TLS handshake error")
}
