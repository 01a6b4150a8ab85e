package push

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Defaults applied when a dispatch request leaves fields empty.
const (
	DefaultTitle   = "SiteSign: Sign Out Reminder"
	DefaultBody    = "It looks like you've left the site. Don't forget to sign out!"
	DefaultSiteURL = "/"
)

// Payload is the JSON document delivered to a visitor's device.
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	VisitID string `json:"visitId"`
	SiteURL string `json:"siteUrl"`
}

// NewPayload builds a payload for visitID, filling empty fields with defaults.
func NewPayload(visitID, title, body, siteURL string) Payload {
	p := Payload{Title: title, Body: body, VisitID: visitID, SiteURL: siteURL}
	p.applyDefaults()
	return p
}

func (p *Payload) applyDefaults() {
	if p.Title == "" {
		p.Title = DefaultTitle
	}
	if p.Body == "" {
		p.Body = DefaultBody
	}
	if p.SiteURL == "" {
		p.SiteURL = DefaultSiteURL
	}
}

// Tag is the notification tag; a newer notification for the same visit
// replaces the older one.
func (p Payload) Tag() string {
	return "geofence-" + p.VisitID
}

func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

const payloadSchema = `{
  "type": "object",
  "required": ["visitId"],
  "properties": {
    "visitId": {"type": "string", "minLength": 1},
    "title":   {"type": ["string", "null"]},
    "body":    {"type": ["string", "null"]},
    "siteUrl": {"type": ["string", "null"]}
  }
}`

var payloadSchemaLoader = gojsonschema.NewStringLoader(payloadSchema)

// ParsePayload validates a delivered document and decodes it. visitId is
// required; title, body and siteUrl fall back to defaults.
func ParsePayload(data []byte) (Payload, error) {
	result, err := gojsonschema.Validate(payloadSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Payload{}, fmt.Errorf("push payload: %w", err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return Payload{}, fmt.Errorf("push payload invalid: %s", strings.Join(errs, "; "))
	}

	var raw struct {
		Title   *string `json:"title"`
		Body    *string `json:"body"`
		VisitID string  `json:"visitId"`
		SiteURL *string `json:"siteUrl"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Payload{}, fmt.Errorf("push payload: %w", err)
	}

	p := Payload{VisitID: raw.VisitID}
	if raw.Title != nil {
		p.Title = *raw.Title
	}
	if raw.Body != nil {
		p.Body = *raw.Body
	}
	if raw.SiteURL != nil {
		p.SiteURL = *raw.SiteURL
	}
	p.applyDefaults()
	return p, nil
}
