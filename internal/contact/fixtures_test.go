package contact_test

import (
	"context"
	"strings"
	"testing"

	"cf-civicrm/internal/contact"
	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/dedupe"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"
	"cf-civicrm/internal/transient"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

const contactForm = `{
  "ID": "CF_contact",
  "name": "Contact form",
  "fields": {
    "fld_first":  {"ID": "fld_first", "slug": "first_name"},
    "fld_last":   {"ID": "fld_last", "slug": "last_name"},
    "fld_email":  {"ID": "fld_email", "slug": "email"},
    "fld_street": {"ID": "fld_street", "slug": "street"},
    "fld_city":   {"ID": "fld_city", "slug": "city"},
    "fld_phone":  {"ID": "fld_phone", "slug": "phone"},
    "fld_lang":   {"ID": "fld_lang", "slug": "language"},
    "fld_note":   {"ID": "fld_note", "slug": "note"}
  },
  "processors": [
    {
      "ID": "fp_contact1",
      "type": "civicrm_contact",
      "runtimes": {"insert": 1},
      "config": {
        "contact_link": "1",
        "auto_pop": "1",
        "civicrm_contact": {
          "contact_type": "Individual",
          "contact_sub_type": "",
          "dedupe_rule": "",
          "first_name": "%first_name%",
          "last_name": "%last_name%",
          "email": "%email%",
          "preferred_language": "%language%"
        },
        "civicrm_address": {
          "location_type_id": "1",
          "street_address": "%street%",
          "city": "%city%"
        },
        "civicrm_phone": {
          "location_type_id": "1",
          "phone_type_id": "2",
          "phone": "%phone%"
        },
        "civicrm_note": {
          "note": "%note%",
          "subject": "Web form"
        },
        "enabled_entities": {
          "process_address": "1",
          "process_phone": "1",
          "process_note": "1"
        }
      }
    }
  ]
}`

const relationshipProcessor = `,
    {
      "ID": "fp_contact2",
      "type": "civicrm_contact",
      "runtimes": {"insert": 1},
      "config": {
        "contact_link": "2",
        "auto_pop_by_relationship": "1",
        "auto_populate_relationship_type": "5",
        "civicrm_contact": {
          "contact_type": "Individual",
          "first_name": "%partner_first%"
        }
      }
    }
  ]
}`

// withRelatedProcessor adds a partner field and a second contact processor
// that resolves the contact related to the logged-in user by type 5.
func withRelatedProcessor(def string) string {
	def = strings.Replace(def, `"fld_note":   {"ID": "fld_note", "slug": "note"}`,
		`"fld_note":   {"ID": "fld_note", "slug": "note"},
    "fld_partner": {"ID": "fld_partner", "slug": "partner_first"}`, 1)
	idx := strings.LastIndex(def, "]")
	return def[:strings.LastIndex(def[:idx], "}")+1] + relationshipProcessor
}

type harness struct {
	gw     *crm.MemoryGateway
	store  *transient.MemoryStore
	runner *runner.Runner
	parser *models.FormParser
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newSiteHarness(t, contact.Site{Locale: "en_US", BaseURL: "https://crm.example.org"})
}

func newSiteHarness(t *testing.T, site contact.Site) *harness {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	gw := crm.NewMemoryGateway()
	store := transient.NewMemoryStore()
	parser, err := models.NewFormParser()
	if err != nil {
		t.Fatalf("Failed to create form parser: %v", err)
	}

	r := runner.New(store, log)
	r.Register(models.ProcessorTypeContact, contact.NewProcessor(gw, dedupe.NewResolver(gw, log), site, log))
	return &harness{gw: gw, store: store, runner: r, parser: parser}
}

func (h *harness) form(t *testing.T, def string) *models.Form {
	t.Helper()
	form, err := h.parser.ParseForm([]byte(def))
	if err != nil {
		t.Fatalf("Failed to parse form: %v", err)
	}
	return form
}

func (h *harness) submit(t *testing.T, sub *models.Submission) *runner.Outcome {
	t.Helper()
	outcome, err := h.runner.Submit(context.Background(), sub)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return outcome
}

func (h *harness) render(t *testing.T, sub *models.Submission) *runner.Outcome {
	t.Helper()
	outcome, err := h.runner.Render(context.Background(), sub)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return outcome
}

func seedAda(gw *crm.MemoryGateway) {
	gw.Seed("Contact", crm.Record{
		"id":           42,
		"contact_type": "Individual",
		"first_name":   "Ada",
		"last_name":    "Lovelace",
		"email":        "ada@example.org",
	})
}

func adaValues() map[string]interface{} {
	return map[string]interface{}{
		"fld_first":  "Ada",
		"fld_last":   "Lovelace",
		"fld_email":  "ada@example.org",
		"fld_street": "12 St James's Square",
		"fld_city":   "London",
	}
}
