package email

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyamb/lesson-notifier/internal/notify"
)

func TestNewSender(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "missing host",
			config:  Config{FromAddress: "noreply@example.com"},
			wantErr: "SMTP host is required",
		},
		{
			name:    "missing from address",
			config:  Config{SMTPHost: "smtp.example.com"},
			wantErr: "from address is required",
		},
		{
			name:   "minimal valid config",
			config: Config{SMTPHost: "smtp.example.com", FromAddress: "noreply@example.com"},
		},
		{
			name: "full config",
			config: Config{
				SMTPHost:     "smtp.example.com",
				SMTPPort:     2525,
				SMTPUser:     "user",
				SMTPPassword: "secret",
				FromAddress:  "Admin <noreply@example.com>",
				RateLimit:    1,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, sender)
		})
	}
}

func TestNewSender_Defaults(t *testing.T) {
	sender, err := NewSender(Config{SMTPHost: "smtp.example.com", FromAddress: "noreply@example.com"})
	require.NoError(t, err)

	assert.Equal(t, 587, sender.config.SMTPPort)
	assert.Nil(t, sender.auth)
	assert.Nil(t, sender.limiter)
}

func TestNewSender_AuthRequiresBothCredentials(t *testing.T) {
	sender, err := NewSender(Config{
		SMTPHost:    "smtp.example.com",
		FromAddress: "noreply@example.com",
		SMTPUser:    "user",
	})
	require.NoError(t, err)
	assert.Nil(t, sender.auth)

	sender, err = NewSender(Config{
		SMTPHost:     "smtp.example.com",
		FromAddress:  "noreply@example.com",
		SMTPUser:     "user",
		SMTPPassword: "secret",
	})
	require.NoError(t, err)
	assert.NotNil(t, sender.auth)
}

func TestBuildMessage(t *testing.T) {
	sender, err := NewSender(Config{
		SMTPHost:    "smtp.example.com",
		FromAddress: "Admin <noreply@example.com>",
	})
	require.NoError(t, err)

	raw := string(sender.buildMessage(notify.Message{
		To:       "student@example.com",
		CC:       []string{"admin@example.com", "tutor@example.com"},
		Subject:  "Class Reminder",
		Body:     "See you soon.",
		HTMLBody: "<html><body>See you soon.</body></html>",
	}))

	headers, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found)

	assert.Contains(t, headers, "From: Admin <noreply@example.com>\r\n")
	assert.Contains(t, headers, "To: student@example.com\r\n")
	assert.Contains(t, headers, "Cc: admin@example.com, tutor@example.com\r\n")
	assert.Contains(t, headers, "Subject: Class Reminder\r\n")
	assert.Contains(t, headers, "MIME-Version: 1.0\r\n")
	assert.Contains(t, headers, `multipart/alternative; boundary="=_lesson-notifier-alt"`)

	assert.Contains(t, body, "Content-Type: text/plain; charset=\"utf-8\"")
	assert.Contains(t, body, "Content-Type: text/html; charset=\"utf-8\"")
	assert.Contains(t, body, "Content-Transfer-Encoding: quoted-printable")
	assert.Contains(t, body, "See you soon.")
	assert.Contains(t, body, "<html><body>See you soon.</body></html>")
	assert.True(t, strings.HasSuffix(raw, "--=_lesson-notifier-alt--\r\n"))
}

func TestBuildMessage_OmitsEmptyCcHeader(t *testing.T) {
	sender, err := NewSender(Config{
		SMTPHost:    "smtp.example.com",
		FromAddress: "noreply@example.com",
	})
	require.NoError(t, err)

	raw := string(sender.buildMessage(notify.Message{
		To:      "student@example.com",
		Subject: "Hi",
		Body:    "Plain only.",
	}))

	assert.NotContains(t, raw, "Cc:")
	// Without a dedicated HTML part the plain body fills both alternatives.
	assert.Equal(t, 2, strings.Count(raw, "Plain only."))
}

func TestExtractEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"noreply@example.com", "noreply@example.com"},
		{"Admin <noreply@example.com>", "noreply@example.com"},
		{"<noreply@example.com>", "noreply@example.com"},
		{"Broken <noreply@example.com", "Broken <noreply@example.com"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, extractEmail(tt.in))
	}
}
