package models

// Session describes who is looking at or submitting the form
type Session struct {
	// ContactID is the CRM contact of the logged-in user, 0 when anonymous
	ContactID int `json:"contact_id,omitempty"`
}

// LoggedIn reports whether the session belongs to a known CRM contact
func (s Session) LoggedIn() bool { return s.ContactID > 0 }

// Submission is a single form submission or render request
type Submission struct {
	Form *Form `json:"form"`
	// Values holds submitted values keyed by field ID (or slug)
	Values map[string]interface{} `json:"values,omitempty"`
	// Files holds CRM file ids uploaded per field ID
	Files       map[string][]string `json:"files,omitempty"`
	Session     Session             `json:"session"`
	TransientID string              `json:"transient_id,omitempty"`
}

// FieldValue returns the submitted value of a field, looking it up by ID
// first and by slug second.
func (s *Submission) FieldValue(field *Field) interface{} {
	if field == nil || s.Values == nil {
		return nil
	}
	if v, ok := s.Values[field.ID]; ok {
		return v
	}
	return s.Values[field.Slug]
}

// FieldFiles returns the uploaded file ids for a field
func (s *Submission) FieldFiles(field *Field) []string {
	if field == nil || s.Files == nil {
		return nil
	}
	if files, ok := s.Files[field.ID]; ok {
		return files
	}
	return s.Files[field.Slug]
}

// FormValues holds mapped values per entity key, built fresh for every
// processor invocation.
type FormValues map[string]map[string]interface{}
