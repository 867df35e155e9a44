// ABOUTME: Core FDC3 data types: contexts, channels, directory entries, intents.
// ABOUTME: Context is kept as raw JSON; only its "type" field is interpreted.

package fdc3

import (
	"slices"

	"github.com/tidwall/gjson"
)

// Context is a typed JSON object shared between apps.
type Context []byte

// MarshalJSON emits the raw object, or null when empty.
func (c Context) MarshalJSON() ([]byte, error) {
	if len(c) == 0 {
		return []byte("null"), nil
	}
	return c, nil
}

// UnmarshalJSON stores a copy of the raw object.
func (c *Context) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = nil
		return nil
	}
	*c = append((*c)[:0], data...)
	return nil
}

// Type returns the context's "type" field, or "" if absent.
func (c Context) Type() string {
	if len(c) == 0 {
		return ""
	}
	return gjson.GetBytes(c, "type").String()
}

// Valid reports whether c is a JSON object with a non-empty string type.
func (c Context) Valid() bool {
	if len(c) == 0 || !gjson.ValidBytes(c) {
		return false
	}
	if !gjson.ParseBytes(c).IsObject() {
		return false
	}
	t := gjson.GetBytes(c, "type")
	return t.Type == gjson.String && t.Str != ""
}

// ChannelType distinguishes agent-owned channels from app-created ones.
type ChannelType string

const (
	ChannelTypeSystem ChannelType = "system"
	ChannelTypeApp    ChannelType = "app"
)

// DisplayMetadata describes how a channel is presented to users.
type DisplayMetadata struct {
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
	Glyph string `json:"glyph,omitempty"`
}

// Channel is a named broadcast domain.
type Channel struct {
	ID              string           `json:"id"`
	Type            ChannelType      `json:"type"`
	DisplayMetadata *DisplayMetadata `json:"displayMetadata,omitempty"`
}

// DefaultSystemChannels returns the channel set created at agent start when
// the configuration does not override it.
func DefaultSystemChannels() []Channel {
	mk := func(id, name, color string) Channel {
		return Channel{
			ID:              id,
			Type:            ChannelTypeSystem,
			DisplayMetadata: &DisplayMetadata{Name: name, Color: color},
		}
	}
	return []Channel{
		mk("red", "Red", "#FF0000"),
		mk("orange", "Orange", "#FF8000"),
		mk("yellow", "Yellow", "#FFFF00"),
		mk("green", "Green", "#00FF00"),
		mk("blue", "Blue", "#0000FF"),
		mk("purple", "Purple", "#FF00FF"),
	}
}

// Icon references an app icon.
type Icon struct {
	Icon string `json:"icon"`
}

// IntentDecl is an intent an app declares in the directory.
type IntentDecl struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName,omitempty"`
	Contexts    []string `json:"contexts,omitempty"`
}

// Action is a directory-declared binding between an intent or context type
// and an app endpoint.
type Action struct {
	Name    string `json:"name"`
	Intent  string `json:"intent,omitempty"`
	Context string `json:"context,omitempty"`
	URL     string `json:"url,omitempty"`
}

// AppEntry is an App Directory record.
type AppEntry struct {
	AppID       string       `json:"appId,omitempty"`
	Name        string       `json:"name"`
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Origin      string       `json:"origin,omitempty"`
	StartURL    string       `json:"start_url,omitempty"`
	Icons       []Icon       `json:"icons,omitempty"`
	Intents     []IntentDecl `json:"intents,omitempty"`
	HasActions  bool         `json:"hasActions,omitempty"`
	Actions     []Action     `json:"actions,omitempty"`
}

// Metadata returns the public description of the app.
func (e *AppEntry) Metadata() AppMetadata {
	return AppMetadata{
		Name:        e.Name,
		AppID:       e.AppID,
		Title:       e.Title,
		Description: e.Description,
		Icons:       e.Icons,
	}
}

// Intent returns the declaration for the named intent, or nil.
func (e *AppEntry) Intent(name string) *IntentDecl {
	for i := range e.Intents {
		if e.Intents[i].Name == name {
			return &e.Intents[i]
		}
	}
	return nil
}

// SupportsIntent reports whether the entry declares the intent, optionally
// restricted to a context type. An empty contextType matches any declaration.
func (e *AppEntry) SupportsIntent(intent, contextType string) bool {
	decl := e.Intent(intent)
	if decl == nil {
		return false
	}
	if contextType == "" || len(decl.Contexts) == 0 {
		return true
	}
	return slices.Contains(decl.Contexts, contextType)
}

// AppMetadata identifies an app to other apps.
type AppMetadata struct {
	Name        string `json:"name"`
	AppID       string `json:"appId,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Icons       []Icon `json:"icons,omitempty"`
	// InstanceID is set for running apps; directory-only candidates omit it.
	InstanceID string `json:"instanceId,omitempty"`
}

// IntentMetadata describes an intent.
type IntentMetadata struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

// AppIntent pairs an intent with the apps able to handle it.
type AppIntent struct {
	Intent IntentMetadata `json:"intent"`
	Apps   []AppMetadata  `json:"apps"`
}

// IntentResolution is returned to the app that raised an intent.
type IntentResolution struct {
	Source  AppMetadata `json:"source"`
	Intent  string      `json:"intent"`
	Version string      `json:"version"`
}
