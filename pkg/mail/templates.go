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
	_ "embed"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/dbops/toolkit/pkg/config"
)

//go:embed templates/backup.html
var backupTemplateRaw string

//go:embed templates/error.html
var errorTemplateRaw string

//go:embed templates/custom.html
var customTemplateRaw string

// Branding is the visual identity applied to every notification body.
type Branding struct {
	SiteName       string
	AdminURL       string
	ThemeColor     string
	SecondaryColor string
	TextColor      string
	AccentColor    string
	FooterText     string
}

type backupTemplateData struct {
	Branding
	BackupType string
	TypeTitle  string
	Info       map[string]string
	FileSize   string
	Duration   string
	Timestamp  string
}

type errorTemplateData struct {
	Branding
	ErrorType    string
	ErrorMessage string
	ErrorDetails string
	Solution     string
	Timestamp    string
}

type customTemplateData struct {
	Branding
	NotificationType string
	Title            string
	Message          string
	Details          string
	Priority         string
	Timestamp        string
}

// Renderer holds the parsed notification body templates.
type Renderer struct {
	backup *template.Template
	errTpl *template.Template
	custom *template.Template
}

// NewRenderer parses the embedded notification templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{}
	var err error
	if r.backup, err = parseTemplate("backup", backupTemplateRaw); err != nil {
		return nil, err
	}
	if r.errTpl, err = parseTemplate("error", errorTemplateRaw); err != nil {
		return nil, err
	}
	if r.custom, err = parseTemplate("custom", customTemplateRaw); err != nil {
		return nil, err
	}
	return r, nil
}

func parseTemplate(name, raw string) (*template.Template, error) {
	return template.New(name).Funcs(sprig.HtmlFuncMap()).Parse(raw)
}

// BrandingFrom derives the branding block from the mail configuration,
// filling the fixed palette entries the config does not expose.
func (r *Renderer) BrandingFrom(cfg config.Mail) Branding {
	return Branding{
		SiteName:       cfg.SiteName,
		AdminURL:       cfg.AdminURL,
		ThemeColor:     cfg.ThemeColor,
		SecondaryColor: "#f4effb",
		TextColor:      "#2c3e50",
		AccentColor:    "#3498db",
		FooterText:     cfg.FooterText,
	}
}

func render(t *template.Template, data any) (string, error) {
	b := bytes.Buffer{}
	err := t.Execute(&b, data)
	return b.String(), err
}

func timestamp() string {
	return time.Now().Format("2006-01-02 15:04:05")
}

// RenderBackup renders the backup-result notification body.
func (r *Renderer) RenderBackup(p BackupPayload, b Branding) (string, error) {
	return render(r.backup, backupTemplateData{
		Branding:   b,
		BackupType: p.BackupType,
		TypeTitle:  backupTitle(p.BackupType),
		Info:       p.BackupInfo,
		FileSize:   p.FileSize,
		Duration:   p.Duration,
		Timestamp:  timestamp(),
	})
}

// RenderError renders the error-alert notification body.
func (r *Renderer) RenderError(p ErrorPayload, b Branding) (string, error) {
	return render(r.errTpl, errorTemplateData{
		Branding:     b,
		ErrorType:    p.ErrorType,
		ErrorMessage: p.ErrorMessage,
		ErrorDetails: p.ErrorDetails,
		Solution:     p.Solution,
		Timestamp:    timestamp(),
	})
}

// RenderCustom renders a free-form notification body.
func (r *Renderer) RenderCustom(p CustomPayload, b Branding) (string, error) {
	return render(r.custom, customTemplateData{
		Branding:         b,
		NotificationType: p.NotificationType,
		Title:            p.Title,
		Message:          p.Message,
		Details:          p.Details,
		Priority:         p.Priority,
		Timestamp:        timestamp(),
	})
}
