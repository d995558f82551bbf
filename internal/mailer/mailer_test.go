package mailer

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopnest-backend/internal/config"
	"shopnest-backend/internal/logging"
)

func TestBuild(t *testing.T) {
	msg, err := build("ShopNest <no-reply@shopnest.test>", Message{
		To:      "buyer@example.com",
		Subject: "Password reset",
		Body:    "Follow the link",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Subject: Password reset")
	assert.Contains(t, out, "<buyer@example.com>")
	assert.Contains(t, out, "Follow the link")
}

func TestBuildRejectsBadAddress(t *testing.T) {
	_, err := build("no-reply@shopnest.test", Message{To: "not an address"})
	assert.Error(t, err)
}

func TestNewFallsBackToLog(t *testing.T) {
	var buf bytes.Buffer
	s := New(config.SMTPConfig{}, logging.NewWithWriter(&buf, "mailer", "info"))
	require.IsType(t, &Log{}, s)
	require.NoError(t, s.Send(context.Background(), Message{To: "a@b.c", Subject: "hi"}))
	assert.Contains(t, buf.String(), `"to":"a@b.c"`)

	assert.IsType(t, &SMTP{}, New(config.SMTPConfig{Host: "smtp.example.com", Port: 587}, logging.Nop{}))
}
