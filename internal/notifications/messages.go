package notifications

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"schoolreg/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed messages.yml
var defaultMessages []byte

// Audience selects which account a message is written for.
type Audience string

const (
	AudienceParent  Audience = "parent"
	AudienceStudent Audience = "student"
)

// MessageData feeds the message templates.
type MessageData struct {
	StudentName  string
	FirstName    string
	StudentCode  string
	StudentEmail string
	Program      string
	Session      string
	Tuition      float64
	Reason       string
}

type messageTemplate struct {
	title   *template.Template
	message *template.Template
}

// Catalog holds the rendered templates keyed by type and audience.
type Catalog struct {
	entries map[string]messageTemplate
}

var funcs = template.FuncMap{
	"money": func(v float64) string { return fmt.Sprintf("%.2f $", v) },
}

// LoadCatalog parses a YAML document of type -> audience -> {title, message}.
func LoadCatalog(data []byte) (*Catalog, error) {
	var raw map[string]map[string]struct {
		Title   string `yaml:"title"`
		Message string `yaml:"message"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse message catalog: %w", err)
	}

	c := &Catalog{entries: make(map[string]messageTemplate)}
	for typ, audiences := range raw {
		for aud, m := range audiences {
			key := catalogKey(models.NotificationType(typ), Audience(aud))
			title, err := template.New(key + ".title").Funcs(funcs).Option("missingkey=error").Parse(m.Title)
			if err != nil {
				return nil, fmt.Errorf("parse %s title: %w", key, err)
			}
			body, err := template.New(key + ".message").Funcs(funcs).Option("missingkey=error").Parse(m.Message)
			if err != nil {
				return nil, fmt.Errorf("parse %s message: %w", key, err)
			}
			c.entries[key] = messageTemplate{title: title, message: body}
		}
	}
	return c, nil
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// DefaultCatalog returns the embedded catalog. It panics if the embedded
// file is malformed.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		c, err := LoadCatalog(defaultMessages)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Render produces the title and body for one notification.
func (c *Catalog) Render(typ models.NotificationType, aud Audience, data MessageData) (string, string, error) {
	key := catalogKey(typ, aud)
	t, ok := c.entries[key]
	if !ok {
		return "", "", fmt.Errorf("no message for %s", key)
	}
	var title, body bytes.Buffer
	if err := t.title.Execute(&title, data); err != nil {
		return "", "", fmt.Errorf("render %s title: %w", key, err)
	}
	if err := t.message.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("render %s message: %w", key, err)
	}
	return strings.TrimSpace(title.String()), strings.TrimSpace(body.String()), nil
}

// Build renders and assembles an Event for userID.
func (c *Catalog) Build(typ models.NotificationType, aud Audience, userID, email, applicationID string, data MessageData) (Event, error) {
	title, message, err := c.Render(typ, aud, data)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Notification: models.Notification{
			UserID:  userID,
			Type:    typ,
			Title:   title,
			Message: message,
			Email:   email,
		},
		ApplicationID: applicationID,
	}, nil
}

func catalogKey(typ models.NotificationType, aud Audience) string {
	return string(typ) + "." + string(aud)
}
