package mapping

import (
	"errors"
	"strings"
	"testing"

	"cf-civicrm/internal/models"

	logtest "github.com/sirupsen/logrus/hooks/test"
)

type upperTransformer struct{}

func (upperTransformer) Transform(expression string, value interface{}) (interface{}, error) {
	switch expression {
	case "upper":
		return strings.ToUpper(value.(string)), nil
	case "blank":
		return "", nil
	}
	return nil, errors.New("unknown transform " + expression)
}

func testForm() *models.Form {
	return &models.Form{
		ID: "CF1",
		Fields: map[string]*models.Field{
			"fld_first": {ID: "fld_first", Slug: "first_name"},
			"fld_last":  {ID: "fld_last", Slug: "last_name"},
			"fld_city":  {ID: "fld_city", Slug: "city"},
			"fld_zero":  {ID: "fld_zero", Slug: "zero"},
		},
	}
}

func TestMapToProcessor(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	m := New(upperTransformer{}, log)
	form := testForm()
	sub := &models.Submission{
		Form: form,
		Values: map[string]interface{}{
			"fld_first": "ada",
			"last_name": "Lovelace",
			"fld_zero":  "0",
		},
	}

	cfg := models.NewProcessorConfig()
	cfg.Entities[models.EntityContact] = models.EntityConfig{
		"first_name":   "%first_name%",
		"last_name":    "fld_last",
		"city":         "%city%",
		"nick_name":    "%zero%",
		"contact_type": "Individual",
		"source":       "{embed_post:ID}",
		"job_title":    "",
	}
	cfg.Transforms[models.EntityContact] = map[string]string{"first_name": "upper"}

	values, err := m.MapToProcessor(&cfg, sub, nil, models.EntityContact)
	if err != nil {
		t.Fatalf("MapToProcessor failed: %v", err)
	}
	contact := values[models.EntityContact]
	if contact["first_name"] != "ADA" {
		t.Errorf("Expected transformed first name, got %v", contact["first_name"])
	}
	if contact["last_name"] != "Lovelace" {
		t.Errorf("Expected last name by slug fallback, got %v", contact["last_name"])
	}
	for _, skipped := range []string{"city", "nick_name", "contact_type", "source", "job_title"} {
		if _, ok := contact[skipped]; ok {
			t.Errorf("Expected %s to be skipped, got %v", skipped, contact[skipped])
		}
	}
}

func TestMapToProcessorMergesIntoExisting(t *testing.T) {
	m := New(nil, nil)
	sub := &models.Submission{Form: testForm(), Values: map[string]interface{}{"fld_city": "London"}}
	cfg := models.NewProcessorConfig()
	cfg.Entities[models.EntityAddress] = models.EntityConfig{"city": "%city%"}

	values := models.FormValues{models.EntityAddress: {"country_id": 1226}}
	values, err := m.MapToProcessor(&cfg, sub, values, models.EntityAddress)
	if err != nil {
		t.Fatalf("MapToProcessor failed: %v", err)
	}
	if values[models.EntityAddress]["city"] != "London" || values[models.EntityAddress]["country_id"] != 1226 {
		t.Errorf("Expected merged address values, got %v", values[models.EntityAddress])
	}
}

func TestMapEntityTransformErrors(t *testing.T) {
	m := New(upperTransformer{}, nil)
	sub := &models.Submission{Form: testForm(), Values: map[string]interface{}{"fld_first": "ada"}}

	_, err := m.MapEntity(sub, models.EntityConfig{"first_name": "%first_name%"}, map[string]string{"first_name": "nope"})
	if err == nil || !strings.Contains(err.Error(), "first_name") {
		t.Errorf("Expected error naming the field, got %v", err)
	}

	mapped, err := m.MapEntity(sub, models.EntityConfig{"first_name": "%first_name%"}, map[string]string{"first_name": "blank"})
	if err != nil {
		t.Fatalf("MapEntity failed: %v", err)
	}
	if _, ok := mapped["first_name"]; ok {
		t.Error("Expected a value transformed to empty to be dropped")
	}
}

func TestMapToPrerender(t *testing.T) {
	log, _ := logtest.NewNullLogger()
	m := New(nil, log)
	form := testForm()
	form.Fields["fld_last"].SetDefault("Byron")

	cfg := models.NewProcessorConfig()
	cfg.Entities[models.EntityContact] = models.EntityConfig{
		"first_name":   "%first_name%",
		"last_name":    "%last_name%",
		"city":         "%city%",
		"contact_type": "%zero%",
	}
	record := map[string]interface{}{
		"first_name":   "Ada",
		"last_name":    "Lovelace",
		"city":         "",
		"contact_type": "Individual",
		"id":           42,
	}

	m.MapToPrerender(&cfg, form, []string{"contact_type"}, record, models.EntityContact)

	if got := form.Fields["fld_first"].Default(); got != "Ada" {
		t.Errorf("Expected Ada, got %v", got)
	}
	if got := form.Fields["fld_last"].Default(); got != "Byron" {
		t.Errorf("Expected existing default to win, got %v", got)
	}
	if form.Fields["fld_city"].HasDefault() {
		t.Error("Expected empty CRM values to be skipped")
	}
	if form.Fields["fld_zero"].HasDefault() {
		t.Error("Expected ignored fields to be skipped")
	}
}

func TestMapEntityLiterals(t *testing.T) {
	m := New(upperTransformer{}, nil)
	sub := &models.Submission{Form: testForm(), Values: map[string]interface{}{"fld_first": "ada"}}

	mapped, err := m.MapEntity(sub, models.EntityConfig{
		"first_name":       "%first_name%",
		"subject":          "Web form",
		"source":           "newsletter",
		"location_type_id": "2",
		"entity_tag_3":     "3",
		"contact_group":    "5",
		"city":             "%city%",
		"missing":          "%missing%",
	}, map[string]string{"source": "upper"})
	if err != nil {
		t.Fatalf("MapEntity failed: %v", err)
	}

	want := map[string]interface{}{
		"first_name": "ada",
		"subject":    "Web form",
		"source":     "NEWSLETTER",
	}
	if len(mapped) != len(want) {
		t.Errorf("Expected %d values, got %v", len(want), mapped)
	}
	for k, v := range want {
		if mapped[k] != v {
			t.Errorf("Expected %s = %v, got %v", k, v, mapped[k])
		}
	}
}

func TestMapToProcessorDropsLiteralOnlyTables(t *testing.T) {
	m := New(nil, nil)
	sub := &models.Submission{Form: testForm(), Values: map[string]interface{}{"fld_city": "London"}}
	cfg := models.NewProcessorConfig()
	cfg.Entities[models.EntityNote] = models.EntityConfig{"note": "%first_name%", "subject": "Web form"}
	cfg.Entities[models.EntityAddress] = models.EntityConfig{"city": "%city%", "name": "Home"}

	values, err := m.MapToProcessor(&cfg, sub, nil, models.EntityNote)
	if err != nil {
		t.Fatalf("MapToProcessor failed: %v", err)
	}
	if _, ok := values[models.EntityNote]; ok {
		t.Errorf("Expected a literal-only note to be dropped, got %v", values[models.EntityNote])
	}

	values, err = m.MapToProcessor(&cfg, sub, values, models.EntityAddress)
	if err != nil {
		t.Fatalf("MapToProcessor failed: %v", err)
	}
	addr := values[models.EntityAddress]
	if addr["city"] != "London" || addr["name"] != "Home" {
		t.Errorf("Expected submitted city and literal name, got %v", addr)
	}
}
