package server_test

import (
	"testing"

	"github.com/rs/zerolog"

	"cohosrv/internal/log"
)

func zlog(t *testing.T) zerolog.Logger {
	t.Helper()
	return log.New(log.Options{Level: "error"})
}
