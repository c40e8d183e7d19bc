package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// Compressed is the single value a gallery submission cleans down to: the ids to
// store plus the ids the user removed in this submission.
type Compressed struct {
	IDs     []uint
	Deleted []uint
}

// JSON returns the stored representation of the ids.
func (c *Compressed) JSON() string {
	return IDs(c.IDs).String()
}

// Validator checks a cleaned value.
type Validator interface {
	Validate(value *Compressed) *ValidationError
}

// MaxNumberOfImagesValidator rejects values holding more than Limit images.
type MaxNumberOfImagesValidator struct {
	Limit int
}

func (v MaxNumberOfImagesValidator) Validate(value *Compressed) *ValidationError {
	if len(value.IDs) <= v.Limit {
		return nil
	}
	return &ValidationError{
		Code:    CodeMaxNumberOfImages,
		Message: fmt.Sprintf("Number of images exceeded, only %d allowed", v.Limit),
		Params:  map[string]any{"limit_value": v.Limit, "show_value": len(value.IDs)},
	}
}

type formFieldConfig struct {
	required   bool
	disabled   bool
	max        int
	widget     *Widget
	initial    []uint
	messages   map[string]string
	validators []Validator
	target     string
	label      string
	helpText   string
}

// FormFieldOption customises a FormField.
type FormFieldOption func(*formFieldConfig)

func WithRequired(required bool) FormFieldOption {
	return func(c *formFieldConfig) { c.required = required }
}

func WithDisabled(disabled bool) FormFieldOption {
	return func(c *formFieldConfig) { c.disabled = disabled }
}

// WithMaxNumberOfImages limits the number of images; 0 means unlimited.
func WithMaxNumberOfImages(n int) FormFieldOption {
	return func(c *formFieldConfig) { c.max = n }
}

func WithWidget(w *Widget) FormFieldOption {
	return func(c *formFieldConfig) { c.widget = w }
}

func WithInitial(ids []uint) FormFieldOption {
	return func(c *formFieldConfig) { c.initial = ids }
}

// WithErrorMessages overrides messages by code.
func WithErrorMessages(messages map[string]string) FormFieldOption {
	return func(c *formFieldConfig) { c.messages = messages }
}

func WithValidators(validators ...Validator) FormFieldOption {
	return func(c *formFieldConfig) { c.validators = append(c.validators, validators...) }
}

// WithTargetModel selects the image model of a form field used outside a model form.
func WithTargetModel(key string) FormFieldOption {
	return func(c *formFieldConfig) { c.target = key }
}

func WithLabel(label string) FormFieldOption {
	return func(c *formFieldConfig) { c.label = label }
}

// WithHelpText sets markdown help rendered below the widget.
func WithHelpText(text string) FormFieldOption {
	return func(c *formFieldConfig) { c.helpText = text }
}

// FormField cleans the two-part submission of a gallery widget.
type FormField struct {
	manager   *Manager
	target    *TargetModel
	servicing string

	Required bool
	Disabled bool
	Label    string
	Initial  []uint

	maxNumberOfImages int
	messages          map[string]string
	validators        []Validator
	widget            *Widget
}

// NewFormField builds a form field outside of a model form. Without a target
// model it falls back to the default one and logs notice gallery_form_field.I001.
func (m *Manager) NewFormField(opts ...FormFieldOption) (*FormField, error) {
	cfg := formFieldConfig{required: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	if strings.TrimSpace(cfg.target) == "" {
		cfg.target = m.defaultModel
		m.notice(checkFormFieldI001, "gallery form field has no target model, using the default", "target_model", m.defaultModel)
	}
	target, err := m.TargetModel(cfg.target)
	if err != nil {
		return nil, err
	}
	return newFormField(m, target, "GalleryFormField", cfg)
}

func newFormField(m *Manager, target *TargetModel, servicing string, cfg formFieldConfig) (*FormField, error) {
	f := &FormField{
		manager:    m,
		target:     target,
		servicing:  servicing,
		Required:   cfg.required,
		Disabled:   cfg.disabled,
		Label:      cfg.label,
		Initial:    cfg.initial,
		messages:   make(map[string]string, len(defaultErrorMessages)),
		validators: append([]Validator(nil), cfg.validators...),
	}
	for code, msg := range defaultErrorMessages {
		f.messages[code] = msg
	}
	for code, msg := range cfg.messages {
		f.messages[code] = msg
	}

	widget := cfg.widget
	if widget == nil {
		widget = NewWidget()
	}
	if cfg.helpText != "" {
		widget.HelpText = cfg.helpText
	}
	if err := f.SetWidget(widget); err != nil {
		return nil, err
	}
	if err := f.SetMaxNumberOfImages(cfg.max); err != nil {
		return nil, err
	}
	return f, nil
}

// Target returns the image model the field validates ids against.
func (f *FormField) Target() *TargetModel { return f.target }

// Widget returns the widget rendering the field.
func (f *FormField) Widget() *Widget { return f.widget }

// MaxNumberOfImages returns the limit, 0 meaning unlimited.
func (f *FormField) MaxNumberOfImages() int { return f.maxNumberOfImages }

// SetWidget installs w and passes it the field's configuration. Upload and fetch
// routes left empty default to "<model>-upload" and "<model>-fetch".
func (f *FormField) SetWidget(w *Widget) error {
	w.MaxNumberOfImages = f.maxNumberOfImages
	w.ImageModel = f.target.Key()
	w.Servicing = f.servicing
	w.Required = f.Required
	if w.Attrs == nil {
		w.Attrs = map[string]string{}
	}
	w.Attrs["class"] = filesFieldClassName + " hiddeninput"

	if w.UploadHandlerURL == "" {
		w.UploadHandlerURL = UploadURLName(f.target.Key())
	}
	if !w.DisableFetch && w.FetchRequestURL == "" {
		w.FetchRequestURL = FetchURLName(f.target.Key())
	}
	if err := w.Check(f.manager.defaultModel); err != nil {
		return err
	}
	f.widget = w
	return nil
}

// SetMaxNumberOfImages changes the limit and installs the matching validator.
func (f *FormField) SetMaxNumberOfImages(n int) error {
	if n < 0 {
		return fmt.Errorf("'max_number_of_images' expects a positive integer, got %d", n)
	}
	f.maxNumberOfImages = n
	f.widget.MaxNumberOfImages = n

	f.validators = slices.DeleteFunc(f.validators, func(v Validator) bool {
		_, ok := v.(MaxNumberOfImagesValidator)
		return ok
	})
	if n > 0 {
		f.validators = append(f.validators, MaxNumberOfImagesValidator{Limit: n})
	}
	return nil
}

// ValueFromForm extracts the two sub-values posted for name.
func (f *FormField) ValueFromForm(form url.Values, name string) []string {
	return f.widget.ValueFromForm(form, name)
}

func (f *FormField) errorFor(code string, params map[string]any) *ValidationError {
	return &ValidationError{Code: code, Message: f.messages[code], Params: params}
}

// Clean turns the posted sub-values (uploads JSON, deletions JSON) into a
// Compressed value. Validation problems come back as ValidationErrors; any other
// error is a database failure.
func (f *FormField) Clean(ctx context.Context, value []string) (*Compressed, error) {
	if f.Disabled && value == nil {
		value = f.widget.Decompress(f.Initial)
	}

	if len(value) == 0 || isEmptyJSON(value[0]) {
		if f.Required {
			return nil, ValidationErrors{f.errorFor(CodeRequired, nil)}
		}
		if len(value) < 2 {
			return f.compress(nil, nil), nil
		}
		// Not required and nothing uploaded, but deletions may still be present.
		deleted, verr := f.parseIDs(value[1])
		if verr != nil {
			return nil, ValidationErrors{verr}
		}
		return f.compress(nil, deleted), nil
	}

	var errs ValidationErrors

	ids, verr, err := f.toPython(ctx, value[0])
	if err != nil {
		return nil, err
	}
	if verr != nil {
		errs = errs.add(verr)
	} else if len(ids) == 0 && f.Required {
		errs = errs.add(f.errorFor(CodeRequired, nil))
	}

	var deleted []uint
	if len(value) > 1 {
		deleted, verr = f.parseIDs(value[1])
		if verr != nil {
			errs = errs.add(verr)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	out := f.compress(ids, deleted)
	for _, v := range f.validators {
		if verr := v.Validate(out); verr != nil {
			errs = errs.add(verr)
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

func (f *FormField) compress(ids, deleted []uint) *Compressed {
	out := &Compressed{IDs: []uint{}, Deleted: deleted}
	for _, id := range ids {
		if !slices.Contains(deleted, id) {
			out.IDs = append(out.IDs, id)
		}
	}
	return out
}

// toPython parses the uploads JSON and drops ids without a target row.
func (f *FormField) toPython(ctx context.Context, raw string) ([]uint, *ValidationError, error) {
	ids, verr := f.parseIDs(raw)
	if verr != nil || len(ids) == 0 {
		return ids, verr, nil
	}

	// Unknown ids are dropped rather than reported.
	existing, err := f.target.Existing(ctx, f.manager.db, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("gallery: check image ids: %w", err)
	}
	if len(existing) == len(unique(ids)) {
		return ids, nil, nil
	}
	kept := make([]uint, 0, len(ids))
	for _, id := range ids {
		if existing[id] {
			kept = append(kept, id)
		}
	}
	return kept, nil, nil
}

// parseIDs decodes a JSON list of ids. Elements may be non-negative integers or
// strings of digits; anything else is invalid.
func (f *FormField) parseIDs(raw string) ([]uint, *ValidationError) {
	if isEmptyJSON(raw) {
		return nil, nil
	}

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		return nil, f.errorFor(CodeInvalid, map[string]any{"value": raw})
	}

	list, ok := decoded.([]any)
	if !ok {
		return nil, f.errorFor(CodeInvalid, map[string]any{"value": decoded})
	}

	ids := make([]uint, 0, len(list))
	for _, item := range list {
		var s string
		switch v := item.(type) {
		case json.Number:
			s = v.String()
		case string:
			s = v
		default:
			return nil, f.errorFor(CodeInvalid, map[string]any{"value": decoded})
		}
		if !isDigits(s) {
			return nil, f.errorFor(CodeInvalid, map[string]any{"value": decoded})
		}
		id, err := strconv.ParseUint(s, 10, 0)
		if err != nil {
			return nil, f.errorFor(CodeInvalid, map[string]any{"value": decoded})
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// isEmptyJSON treats "", null, [], {} and "" as no value.
func isEmptyJSON(raw string) bool {
	trimmed := bytes.TrimSpace([]byte(raw))
	if len(trimmed) == 0 {
		return true
	}
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return true
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	case string:
		return t == ""
	}
	return false
}

func unique(ids []uint) map[uint]bool {
	out := make(map[uint]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
