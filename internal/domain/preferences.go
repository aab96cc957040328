package domain

// FieldVisibility is the operator's form-field display preference.
type FieldVisibility string

const (
	FieldVisibilityAll     FieldVisibility = "all"
	FieldVisibilityMinimal FieldVisibility = "minimal"
)

// Preferences are durable operator display settings.
type Preferences struct {
	FieldVisibility FieldVisibility `json:"field_visibility"`
	ViewsHidden     bool            `json:"views_hidden"`
}
