package contact

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"

	"github.com/sirupsen/logrus"
)

// minPhoneLength is the shortest phone number worth storing, exclusive
const minPhoneLength = 4

// addressFields are blanked on override when the form does not map them
var addressFields = []string{
	"street_address", "supplemental_address_1", "supplemental_address_2",
	"supplemental_address_3", "city", "postal_code", "postal_code_suffix",
	"state_province_id", "country_id", "county_id", "geo_code_1", "geo_code_2",
	"name", "is_primary", "is_billing",
}

// entityRun is the state handed to a sub-processor
type entityRun struct {
	inv    *runner.Invocation
	cfg    *models.ProcessorConfig
	alias  string
	values models.FormValues
}

func (r *entityRun) contactID() int {
	return r.inv.Transient.Contact(r.alias)
}

// subProcessor writes one kind of secondary record for the linked contact
type subProcessor interface {
	process(ctx context.Context, run *entityRun) error
}

// locationEntity handles one-per-sub-key records (address, phone, email, website, im)
type locationEntity struct {
	entity  string   // CRM entity, e.g. "Address"
	key     string   // config key, e.g. "civicrm_address"
	subKeys []string // config fields narrowing which record is targeted
	// alwaysSetSubKeys sends the sub-keys even when updating an existing record
	alwaysSetSubKeys bool
	// accept filters out submissions that must not be written
	accept func(params crm.Params) bool
	gw     crm.Gateway
	log    logrus.FieldLogger
}

// lookupParams builds the filter for the contact's existing record
func (e *locationEntity) lookupParams(cfg *models.ProcessorConfig, contactID int) crm.Params {
	entityCfg := cfg.Entity(e.key)
	params := crm.Params{"contact_id": contactID}
	for _, k := range e.subKeys {
		if v := entityCfg[k]; v != "" {
			params[k] = v
		}
	}
	return params
}

// existing returns the contact's record for the configured sub-key, or nil
func (e *locationEntity) existing(ctx context.Context, cfg *models.ProcessorConfig, contactID int) crm.Record {
	lookup, err := crm.GetSingle(ctx, e.gw, e.entity, e.lookupParams(cfg, contactID))
	if err != nil {
		e.log.WithFields(logrus.Fields{"entity": e.entity, "contact_id": contactID}).
			WithError(err).Warn("lookup failed, creating a new record")
		return nil
	}
	if !lookup.Found() {
		return nil
	}
	return lookup.Record
}

func (e *locationEntity) process(ctx context.Context, run *entityRun) error {
	contactID := run.contactID()
	if contactID == 0 {
		return nil
	}
	current := e.existing(ctx, run.cfg, contactID)

	values, err := run.inv.Mapper.MapToProcessor(run.cfg, run.inv.Submission, run.values, e.key)
	if err != nil {
		return err
	}
	mapped := values[e.key]
	if len(mapped) == 0 {
		return nil
	}

	entityCfg := run.cfg.Entity(e.key)
	params := crm.Params{}
	for k, v := range mapped {
		params[k] = v
	}
	params["contact_id"] = contactID
	if current != nil {
		params["id"] = current.ID()
	}
	if current == nil || e.alwaysSetSubKeys {
		for _, k := range e.subKeys {
			params[k] = entityCfg[k]
		}
	}
	if e.key == models.EntityAddress && !models.IsEmpty(entityCfg["is_override"]) {
		for _, f := range addressFields {
			if _, ok := params[f]; !ok {
				params[f] = ""
			}
		}
	}
	if e.accept != nil && !e.accept(params) {
		e.log.WithFields(logrus.Fields{"entity": e.entity, "contact_id": contactID}).Debug("submission rejected by guard")
		return nil
	}

	res, err := e.gw.Call(ctx, e.entity, "create", params)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"entity":     e.entity,
		"contact_id": contactID,
		"id":         res.ID,
		"updated":    current != nil,
	}).Debug("record saved")
	return nil
}

// phoneLongEnough filters out obviously invalid or placeholder numbers
func phoneLongEnough(params crm.Params) bool {
	phone := strings.TrimSpace(crm.ToString(params["phone"]))
	return utf8.RuneCountInString(phone) > minPhoneLength
}

// noteEntity adds a note to the contact
type noteEntity struct {
	gw crm.Gateway
}

func (e *noteEntity) process(ctx context.Context, run *entityRun) error {
	contactID := run.contactID()
	if contactID == 0 {
		return nil
	}
	values, err := run.inv.Mapper.MapToProcessor(run.cfg, run.inv.Submission, run.values, models.EntityNote)
	if err != nil {
		return err
	}
	mapped := values[models.EntityNote]
	if len(mapped) == 0 {
		return nil
	}
	params := crm.Params{}
	for k, v := range mapped {
		params[k] = v
	}
	params["entity_id"] = contactID
	params["entity_table"] = "civicrm_contact"
	_, err = e.gw.Call(ctx, "Note", "create", params)
	return err
}

// groupEntity adds the contact to the configured group
type groupEntity struct {
	gw crm.Gateway
}

func (e *groupEntity) process(ctx context.Context, run *entityRun) error {
	contactID := run.contactID()
	group := run.cfg.Entity(models.EntityGroup)["contact_group"]
	if contactID == 0 || group == "" {
		return nil
	}
	_, err := e.gw.Call(ctx, "GroupContact", "create", crm.Params{
		"sequential": 1,
		"group_id":   group,
		"contact_id": contactID,
	})
	return err
}

// tagEntity links every configured tag to the contact
type tagEntity struct {
	gw crm.Gateway
}

func (e *tagEntity) process(ctx context.Context, run *entityRun) error {
	contactID := run.contactID()
	if contactID == 0 {
		return nil
	}
	tags := run.cfg.Entity(models.EntityTag)
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		tagID := tags[key]
		if tagID == "" || !strings.Contains(strings.ToLower(key), "entity_tag") {
			continue
		}
		// Tag lookup and link creation in one chained call
		if _, err := e.gw.Call(ctx, "Tag", "getsingle", crm.Params{
			"sequential": 1,
			"id":         tagID,
			"api.EntityTag.create": map[string]interface{}{
				"entity_id":    contactID,
				"entity_table": "civicrm_contact",
				"tag_id":       "$value.id",
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func newSubProcessors(gw crm.Gateway, log logrus.FieldLogger) map[string]subProcessor {
	return map[string]subProcessor{
		models.ProcessAddress: &locationEntity{
			entity: "Address", key: models.EntityAddress,
			subKeys: []string{"location_type_id"}, gw: gw, log: log,
		},
		models.ProcessPhone: &locationEntity{
			entity: "Phone", key: models.EntityPhone,
			subKeys:          []string{"location_type_id", "phone_type_id"},
			alwaysSetSubKeys: true, accept: phoneLongEnough, gw: gw, log: log,
		},
		models.ProcessEmail: &locationEntity{
			entity: "Email", key: models.EntityEmail,
			subKeys: []string{"location_type_id"}, gw: gw, log: log,
		},
		models.ProcessWebsite: &locationEntity{
			entity: "Website", key: models.EntityWebsite,
			subKeys: []string{"website_type_id"}, gw: gw, log: log,
		},
		models.ProcessIm: &locationEntity{
			entity: "Im", key: models.EntityIm,
			subKeys: []string{"location_type_id"}, gw: gw, log: log,
		},
		models.ProcessNote:  &noteEntity{gw: gw},
		models.ProcessGroup: &groupEntity{gw: gw},
		models.ProcessTag:   &tagEntity{gw: gw},
	}
}
