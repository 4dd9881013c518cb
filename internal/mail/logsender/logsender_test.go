package logsender

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeFoRMaLiK-pixel/upcontacts/internal/mail"
)

func TestSender_LogsMessage(t *testing.T) {
	var buf bytes.Buffer
	s := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	require.NoError(t, s.Send(context.Background(), mail.Message{
		To:      "ann@example.com",
		Subject: "Confirm your email",
		Text:    "Confirm: http://x?token=abc",
	}))

	out := buf.String()
	assert.Equal(t, "log", s.Name())
	assert.Contains(t, out, `"to":"ann@example.com"`)
	assert.Contains(t, out, "token=abc")
}
