package contact_test

import (
	"strings"
	"testing"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/models"
)

func TestRenderFillsFromLoggedInContact(t *testing.T) {
	h := newHarness(t)
	seedAda(h.gw)
	h.gw.Seed("Address", crm.Record{
		"contact_id":       42,
		"location_type_id": "1",
		"street_address":   "12 St James's Square",
		"city":             "London",
	})
	form := h.form(t, contactForm)

	outcome := h.render(t, &models.Submission{Form: form, Session: models.Session{ContactID: 42}})

	fields := outcome.Form.Fields
	if got := fields["fld_first"].Default(); got != "Ada" {
		t.Errorf("Expected first name Ada, got %v", got)
	}
	if got := fields["fld_email"].Default(); got != "ada@example.org" {
		t.Errorf("Expected email default, got %v", got)
	}
	if got := fields["fld_city"].Default(); got != "London" {
		t.Errorf("Expected city London, got %v", got)
	}
	if got := fields["fld_lang"].Default(); got != "en_US" {
		t.Errorf("Expected language default en_US, got %v", got)
	}
	if outcome.Contacts["cid_1"] != 42 {
		t.Errorf("Expected cid_1 = 42, got %d", outcome.Contacts["cid_1"])
	}
	// The registered form is untouched
	if form.Fields["fld_first"].HasDefault() {
		t.Error("Expected the input form to keep its defaults")
	}
}

func TestRenderKeepsExistingDefaults(t *testing.T) {
	h := newHarness(t)
	seedAda(h.gw)
	form := h.form(t, contactForm)
	form.Fields["fld_last"].SetDefault("Byron")

	outcome := h.render(t, &models.Submission{Form: form, Session: models.Session{ContactID: 42}})

	if got := outcome.Form.Fields["fld_last"].Default(); got != "Byron" {
		t.Errorf("Expected existing default Byron to be kept, got %v", got)
	}
	if got := outcome.Form.Fields["fld_first"].Default(); got != "Ada" {
		t.Errorf("Expected first name Ada, got %v", got)
	}
}

func TestRenderAnonymousOnlySetsLanguage(t *testing.T) {
	h := newHarness(t)
	seedAda(h.gw)
	form := h.form(t, contactForm)

	outcome := h.render(t, &models.Submission{Form: form})

	if outcome.Form.Fields["fld_first"].HasDefault() {
		t.Error("Expected no contact defaults for an anonymous session")
	}
	if got := outcome.Form.Fields["fld_lang"].Default(); got != "en_US" {
		t.Errorf("Expected language default en_US, got %v", got)
	}
	if len(outcome.Contacts) != 0 {
		t.Errorf("Expected no linked contacts, got %v", outcome.Contacts)
	}
}

func TestRenderFillsFromRelatedContact(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed("Contact", crm.Record{"id": 7, "contact_type": "Individual", "first_name": "Charles"})
	h.gw.Seed("Contact", crm.Record{"id": 9, "contact_type": "Individual", "first_name": "Grace"})
	h.gw.Seed("Relationship", crm.Record{"contact_id_a": 9, "contact_id_b": 7, "relationship_type_id": "5"})

	form := h.form(t, withRelatedProcessor(contactForm))

	outcome := h.render(t, &models.Submission{Form: form, Session: models.Session{ContactID: 7}})

	if got := outcome.Form.Fields["fld_partner"].Default(); got != "Grace" {
		t.Errorf("Expected related contact Grace, got %v", got)
	}
	if got := outcome.Form.Fields["fld_first"].Default(); got != "Charles" {
		t.Errorf("Expected logged-in contact Charles, got %v", got)
	}
	if outcome.Contacts["cid_2"] != 9 {
		t.Errorf("Expected cid_2 = 9, got %d", outcome.Contacts["cid_2"])
	}
}

func TestRenderPrefersContactLanguage(t *testing.T) {
	h := newHarness(t)
	h.gw.Seed("Contact", crm.Record{
		"id":                 42,
		"contact_type":       "Individual",
		"first_name":         "Ada",
		"preferred_language": "fr_FR",
	})
	form := h.form(t, contactForm)

	outcome := h.render(t, &models.Submission{Form: form, Session: models.Session{ContactID: 42}})

	if got := outcome.Form.Fields["fld_lang"].Default(); got != "fr_FR" {
		t.Errorf("Expected the contact's language fr_FR, got %v", got)
	}
}

func TestRenderSkipsProcessorWithoutRuntimes(t *testing.T) {
	h := newHarness(t)
	seedAda(h.gw)
	def := strings.Replace(contactForm, `"runtimes": {"insert": 1},`, "", 1)
	form := h.form(t, def)

	outcome := h.render(t, &models.Submission{Form: form, Session: models.Session{ContactID: 42}})

	if outcome.Form.Fields["fld_first"].HasDefault() {
		t.Errorf("Expected no contact defaults, got %v", outcome.Form.Fields["fld_first"].Default())
	}
	if got := outcome.Form.Fields["fld_lang"].Default(); got != "en_US" {
		t.Errorf("Expected language default en_US, got %v", got)
	}
	if len(outcome.Contacts) != 0 {
		t.Errorf("Expected no linked contacts, got %v", outcome.Contacts)
	}
	if n := len(h.gw.Calls()); n != 0 {
		t.Errorf("Expected no CRM calls, got %d", n)
	}
}
