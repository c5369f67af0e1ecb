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
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies which transport operation a queued task invokes.
type Kind string

const (
	KindBackup Kind = "backup"
	KindError  Kind = "error"
	KindCustom Kind = "custom"
	KindDirect Kind = "direct"
)

// Attachment is a file to include with a notification. Either Path points
// at a file on disk or Content carries the bytes inline.
type Attachment struct {
	Name    string
	Path    string
	Content []byte
}

// Payload is the kind-specific argument set of a Task. Exactly one payload
// type exists per Kind; the worker dispatches on the concrete type.
type Payload interface {
	Kind() Kind
	Recipients() []string
	Attachments() []Attachment
}

// BackupPayload carries the arguments of a backup-result notification.
type BackupPayload struct {
	To                   []string
	BackupType           string
	BackupInfo           map[string]string
	FileSize             string
	Duration             string
	UseDefaultRecipients bool
	Files                []Attachment
}

func (p BackupPayload) Kind() Kind                { return KindBackup }
func (p BackupPayload) Recipients() []string      { return p.To }
func (p BackupPayload) Attachments() []Attachment { return p.Files }

// ErrorPayload carries the arguments of an error-alert notification.
type ErrorPayload struct {
	To                   []string
	ErrorType            string
	ErrorMessage         string
	ErrorDetails         string
	Solution             string
	UseDefaultRecipients bool
	Files                []Attachment
}

func (p ErrorPayload) Kind() Kind                { return KindError }
func (p ErrorPayload) Recipients() []string      { return p.To }
func (p ErrorPayload) Attachments() []Attachment { return p.Files }

// CustomPayload carries the arguments of a free-form templated notification.
type CustomPayload struct {
	To                   []string
	NotificationType     string
	Title                string
	Message              string
	Details              string
	Priority             string // "low", "normal" or "high"
	UseDefaultRecipients bool
	Files                []Attachment
}

func (p CustomPayload) Kind() Kind                { return KindCustom }
func (p CustomPayload) Recipients() []string      { return p.To }
func (p CustomPayload) Attachments() []Attachment { return p.Files }

// DirectPayload carries a fully specified email, bypassing the notification
// templates.
type DirectPayload struct {
	To                   []string
	Subject              string
	Content              string
	ContentType          string // "html" or "plain"
	Files                []Attachment
	CC                   []string
	BCC                  []string
	UseDefaultRecipients bool
}

func (p DirectPayload) Kind() Kind                { return KindDirect }
func (p DirectPayload) Recipients() []string      { return p.To }
func (p DirectPayload) Attachments() []Attachment { return p.Files }

// Task is one queued notification-delivery request with its retry count.
type Task struct {
	ID        string
	Kind      Kind
	Payload   Payload
	Retries   int
	CreatedAt time.Time
}

// NewTask wraps a payload into a fresh task with a zero retry count.
func NewTask(p Payload) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      p.Kind(),
		Payload:   p,
		CreatedAt: time.Now(),
	}
}

// withRetries returns a copy of the task with the given retry count. A
// retried task keeps its ID so log lines can be correlated across attempts.
func (t *Task) withRetries(n int) *Task {
	c := *t
	c.Retries = n
	return &c
}

// Describe returns a human-readable task description used in log lines.
func (t *Task) Describe() string {
	if t.Payload == nil {
		return fmt.Sprintf("%s task", t.Kind)
	}
	recipient := "default recipients"
	if to := t.Payload.Recipients(); len(to) > 0 {
		recipient = to[0]
		if len(to) > 1 {
			recipient = fmt.Sprintf("%s (+%d)", to[0], len(to)-1)
		}
	}
	switch p := t.Payload.(type) {
	case BackupPayload:
		return fmt.Sprintf("backup notification -> %s", recipient)
	case ErrorPayload:
		return fmt.Sprintf("error notification -> %s", recipient)
	case CustomPayload:
		return fmt.Sprintf("custom notification -> %s", recipient)
	case DirectPayload:
		return fmt.Sprintf("direct email -> %s - %s [attachments: %d]", recipient, p.Subject, len(p.Files))
	default:
		return fmt.Sprintf("%s task -> %s", t.Kind, recipient)
	}
}

// Result is the single normalized outcome of one delivery attempt. The
// normalization lives at the Transport seam so the retry logic never has to
// interpret transport-specific return shapes. Permanent marks a failure
// that retrying cannot fix, such as a task naming no recipients.
type Result struct {
	OK        bool
	Message   string
	Permanent bool
}
