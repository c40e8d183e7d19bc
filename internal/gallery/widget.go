package gallery

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	filesFieldClassName = "gallery-widget-files"
	defaultPreviewSize  = 138
)

var (
	helpMarkdown  = goldmark.New(goldmark.WithExtensions(extension.Linkify))
	helpSanitizer = bluemonday.UGCPolicy()
)

var widgetTemplate = template.Must(template.New("gallery-widget").Parse(
	`<div class="gallery-widget" id="{{.ID}}-container" data-config="{{.Config}}">` +
		`<input type="hidden" name="{{.Name}}_0" id="{{.ID}}_0" value="{{.Files}}"{{range $k, $v := .Attrs}} {{$k}}="{{$v}}"{{end}}>` +
		`<input type="hidden" name="{{.Name}}_1" id="{{.ID}}_1" value="{{.Deleted}}">` +
		`{{if .Help}}<div class="gallery-widget-help">{{.Help}}</div>{{end}}` +
		`</div>`))

// Widget renders the hidden inputs and configuration the gallery front-end
// script attaches to. Upload and fetch URLs are route names (or literal paths)
// resolved at render time.
type Widget struct {
	UploadHandlerURL  string
	FetchRequestURL   string
	DisableFetch      bool
	MaxNumberOfImages int
	PreviewSize       int
	HelpText          string
	Attrs             map[string]string

	// Set by the owning form field.
	ImageModel string
	Servicing  string
	Required   bool
}

// NewWidget returns a widget with default settings.
func NewWidget() *Widget {
	return &Widget{PreviewSize: defaultPreviewSize, Attrs: map[string]string{}}
}

// Check rejects a widget that points at the built-in image views while its
// field serves another image model.
func (w *Widget) Check(defaultModel string) error {
	if w.ImageModel == "" || w.ImageModel == defaultModel {
		return nil
	}
	if w.UploadHandlerURL == UploadURLName(defaultModel) {
		return improperlyConfigured("%s: widget upload_handler_url %q is the built-in default while target model is %q",
			w.Servicing, w.UploadHandlerURL, w.ImageModel)
	}
	if !w.DisableFetch && w.FetchRequestURL == FetchURLName(defaultModel) {
		return improperlyConfigured("%s: widget fetch_request_url %q is the built-in default while target model is %q",
			w.Servicing, w.FetchRequestURL, w.ImageModel)
	}
	return nil
}

// Decompress splits a stored value into the widget's two sub-values.
func (w *Widget) Decompress(ids []uint) []string {
	return []string{IDs(ids).String(), ""}
}

// ValueFromForm reads name_0 and name_1. It returns nil when neither was posted.
func (w *Widget) ValueFromForm(form url.Values, name string) []string {
	files, hasFiles := form[name+"_0"]
	deleted, hasDeleted := form[name+"_1"]
	if !hasFiles && !hasDeleted {
		return nil
	}
	return []string{first(files), first(deleted)}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

type widgetConfig struct {
	UploadHandlerURL  string `json:"uploadHandlerUrl"`
	FetchRequestURL   string `json:"fetchRequestUrl,omitempty"`
	MaxNumberOfImages int    `json:"maxNumberOfImages,omitempty"`
	PreviewSize       int    `json:"previewSize"`
	Required          bool   `json:"required"`
	ImageModel        string `json:"imageModel"`
}

// Render produces the widget markup for the field called name holding value.
func (w *Widget) Render(name string, value []string, reverser URLReverser) (template.HTML, error) {
	upload, err := resolveURL(reverser, w.UploadHandlerURL)
	if err != nil {
		return "", improperlyConfigured("%s: upload_handler_url: %v", w.Servicing, err)
	}
	var fetch string
	if !w.DisableFetch {
		if fetch, err = resolveURL(reverser, w.FetchRequestURL); err != nil {
			return "", improperlyConfigured("%s: fetch_request_url: %v", w.Servicing, err)
		}
	}

	previewSize := w.PreviewSize
	if previewSize <= 0 {
		previewSize = defaultPreviewSize
	}
	config, err := json.Marshal(widgetConfig{
		UploadHandlerURL:  upload,
		FetchRequestURL:   fetch,
		MaxNumberOfImages: w.MaxNumberOfImages,
		PreviewSize:       previewSize,
		Required:          w.Required,
		ImageModel:        w.ImageModel,
	})
	if err != nil {
		return "", err
	}

	files, deleted := "[]", ""
	if len(value) > 0 && value[0] != "" {
		files = value[0]
	}
	if len(value) > 1 {
		deleted = value[1]
	}

	help, err := w.renderHelp()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = widgetTemplate.Execute(&buf, map[string]any{
		"ID":      "id_" + name,
		"Name":    name,
		"Config":  string(config),
		"Files":   files,
		"Deleted": deleted,
		"Attrs":   w.Attrs,
		"Help":    help,
	})
	if err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (w *Widget) renderHelp() (template.HTML, error) {
	if strings.TrimSpace(w.HelpText) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := helpMarkdown.Convert([]byte(w.HelpText), &buf); err != nil {
		return "", err
	}
	return template.HTML(helpSanitizer.SanitizeBytes(buf.Bytes())), nil
}

func resolveURL(reverser URLReverser, nameOrURL string) (string, error) {
	if strings.HasPrefix(nameOrURL, "/") || strings.Contains(nameOrURL, "://") {
		return nameOrURL, nil
	}
	if reverser == nil {
		return "", improperlyConfigured("no URL reverser configured to resolve %q", nameOrURL)
	}
	return reverser.Reverse(nameOrURL, nil)
}

// Render renders the field's widget for name with value (the posted sub-values
// or, when nil, the decompressed initial ids).
func (f *FormField) Render(name string, value []string) (template.HTML, error) {
	if value == nil {
		value = f.widget.Decompress(f.Initial)
	}
	return f.widget.Render(name, value, f.manager.reverser)
}
