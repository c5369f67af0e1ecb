/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package mail

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/dbops/toolkit/pkg/config"
)

func testMailConfig() config.Mail {
	return config.Mail{
		Host:          "smtp.example.com",
		Port:          465,
		Username:      "notifier@example.com",
		Password:      "secret",
		UseSSL:        true,
		SenderAddress: "notifier@example.com",
		SenderName:    "DB Ops",
		SiteName:      "DB Ops Toolkit",
		AdminURL:      "https://dbops.example.com",
		ThemeColor:    "#8ec5ff",
		FooterText:    "automated notification",
	}
}

// captureTransport swaps the dial function for one that records the message.
func captureTransport(t *testing.T) (*SMTPTransport, *[]*gomail.Message) {
	t.Helper()
	tr, err := NewSMTPTransport(testMailConfig(), zap.NewNop())
	require.NoError(t, err)
	var sent []*gomail.Message
	tr.send = func(m *gomail.Message) error {
		sent = append(sent, m)
		return nil
	}
	return tr, &sent
}

func messageBody(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestSMTPTransport_Direct(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(DirectPayload{
		To:      []string{"user@example.com"},
		CC:      []string{"cc@example.com"},
		Subject: "maintenance window",
		Content: "<p>tonight 02:00</p>",
	}))
	require.True(t, res.OK, res.Message)
	require.Len(t, *sent, 1)

	m := (*sent)[0]
	assert.Equal(t, []string{"user@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"cc@example.com"}, m.GetHeader("Cc"))
	assert.Equal(t, []string{"maintenance window"}, m.GetHeader("Subject"))
	assert.Contains(t, messageBody(t, m), "tonight 02:00")
}

func TestSMTPTransport_DirectPlainText(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(DirectPayload{
		To:          []string{"user@example.com"},
		Subject:     "plain",
		Content:     "just text",
		ContentType: "plain",
	}))
	require.True(t, res.OK)
	assert.Contains(t, messageBody(t, (*sent)[0]), "text/plain")
}

func TestSMTPTransport_BackupSubject(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(BackupPayload{
		To:         []string{"ops@example.com"},
		BackupType: "database",
		BackupInfo: map[string]string{"Databases": "app, sessions"},
		FileSize:   "1.2 MB",
		Duration:   "3.4s",
	}))
	require.True(t, res.OK, res.Message)

	m := (*sent)[0]
	assert.Equal(t, []string{"DB Ops Toolkit - database backup finished"}, m.GetHeader("Subject"))
	body := messageBody(t, m)
	assert.Contains(t, body, "1.2 MB")
	assert.Contains(t, body, "3.4s")
}

func TestSMTPTransport_ErrorSubject(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(ErrorPayload{
		To:           []string{"ops@example.com"},
		ErrorType:    "Backup",
		ErrorMessage: "mysqldump exited with status 2",
		Solution:     "check disk space",
	}))
	require.True(t, res.OK, res.Message)
	assert.Equal(t, []string{"DB Ops Toolkit - Backup alert"}, (*sent)[0].GetHeader("Subject"))
}

func TestSMTPTransport_CustomSubjectIsTitle(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(CustomPayload{
		To:       []string{"ops@example.com"},
		Title:    "Disk usage above 90%",
		Message:  "Volume /var/backup is filling up.",
		Priority: "high",
	}))
	require.True(t, res.OK, res.Message)
	assert.Equal(t, []string{"Disk usage above 90%"}, (*sent)[0].GetHeader("Subject"))
}

func TestSMTPTransport_MissingAttachmentSkipped(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(DirectPayload{
		To:      []string{"user@example.com"},
		Subject: "report",
		Content: "see attachment",
		Files: []Attachment{
			{Name: "gone.sql.gz", Path: "/nonexistent/gone.sql.gz"},
		},
	}))
	// a missing file must not fail the delivery
	require.True(t, res.OK, res.Message)
	require.Len(t, *sent, 1)
}

func TestSMTPTransport_Attachments(t *testing.T) {
	tr, sent := captureTransport(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "dump.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE t (id INT);"), 0o600))

	res := tr.Send(NewTask(DirectPayload{
		To:      []string{"user@example.com"},
		Subject: "dumps",
		Content: "attached",
		Files: []Attachment{
			{Name: "dump.sql", Path: path},
			{Name: "inline.txt", Content: []byte("inline bytes")},
		},
	}))
	require.True(t, res.OK, res.Message)

	body := messageBody(t, (*sent)[0])
	assert.Contains(t, body, "dump.sql")
	assert.Contains(t, body, "inline.txt")
}

func TestSMTPTransport_SendFailureNormalized(t *testing.T) {
	tr, err := NewSMTPTransport(testMailConfig(), zap.NewNop())
	require.NoError(t, err)
	tr.send = func(*gomail.Message) error {
		return assert.AnError
	}

	res := tr.Send(NewTask(DirectPayload{To: []string{"user@example.com"}, Subject: "x"}))
	assert.False(t, res.OK)
	assert.False(t, res.Permanent, "dial failures must stay retryable")
	assert.Contains(t, res.Message, "smtp.example.com")
}

func TestSMTPTransport_NoRecipientsPermanentFailure(t *testing.T) {
	tr, sent := captureTransport(t)

	res := tr.Send(NewTask(DirectPayload{Subject: "nowhere"}))
	assert.False(t, res.OK)
	assert.True(t, res.Permanent)
	assert.Contains(t, res.Message, "no recipients")
	assert.Empty(t, *sent, "nothing should be dialed for an unaddressable task")
}

func TestNewSMTPTransportDialerWired(t *testing.T) {
	tr, err := NewSMTPTransport(testMailConfig(), zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, tr.send)
}
