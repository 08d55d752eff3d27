// Package contact implements the CRM contact processor: on submission it
// dedupes and upserts the contact, then its address, phone, email, website,
// im, note, group and tag records; on render it pre-fills the form from the
// logged-in or related contact.
package contact

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/dedupe"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"
	"cf-civicrm/internal/transient"

	"github.com/sirupsen/logrus"
)

// DuplicateContactError is returned when a dedupe match exists and the
// processor is configured not to update existing contacts.
type DuplicateContactError struct {
	ContactID int
}

func (e *DuplicateContactError) Error() string {
	return fmt.Sprintf("contact %d already exists and updates are prevented", e.ContactID)
}

// UserMessage is the note shown to the submitter
func (e *DuplicateContactError) UserMessage() string {
	return "This contact information is duplicated."
}

// Site holds the site-wide settings the processor needs
type Site struct {
	// DomainGroupID is the multisite domain group every contact joins; 0 disables it
	DomainGroupID int
	// Locale is the site's message locale, e.g. en_US
	Locale string
	// BaseURL is the public CRM base URL used to build image links
	BaseURL string
}

// IgnoreFields are never copied from CRM records into form defaults
var IgnoreFields = []string{
	"auto_pop", "contact_type", "contact_sub_type", "contact_link",
	"dedupe_rule", "location_type_id", "website_type_id",
}

// Processor is the civicrm_contact processor
type Processor struct {
	gw       crm.Gateway
	dedupe   *dedupe.Resolver
	site     Site
	entities map[string]subProcessor
	log      logrus.FieldLogger
}

// NewProcessor creates a contact processor
func NewProcessor(gw crm.Gateway, resolver *dedupe.Resolver, site Site, log logrus.FieldLogger) *Processor {
	return &Processor{
		gw:       gw,
		dedupe:   resolver,
		site:     site,
		entities: newSubProcessors(gw, log),
		log:      log,
	}
}

// Process runs the submission path for one contact processor
func (p *Processor) Process(ctx context.Context, inv *runner.Invocation) error {
	cfg := inv.Config()
	sub := inv.Submission
	alias := transient.LinkAlias(cfg.ContactLink())
	contactCfg := cfg.Entity(models.EntityContact)
	log := p.log.WithFields(logrus.Fields{"processor": inv.Processor.ID, "contact_link": alias})

	values, err := inv.Mapper.MapToProcessor(cfg, sub, make(models.FormValues), models.EntityContact)
	if err != nil {
		return err
	}
	contact := values[models.EntityContact]
	if len(contact) == 0 {
		log.Debug("no contact fields submitted")
		return nil
	}

	contact["contact_type"] = contactCfg["contact_type"]
	contact["contact_sub_type"] = contactCfg["contact_sub_type"]

	// Dedupe on the email entity's address when the contact maps no email
	if contactCfg["email"] == "" && cfg.Enabled(models.ProcessEmail) {
		if email := inv.Mapper.Value(sub, cfg.Entity(models.EntityEmail)["email"]); !models.IsEmpty(email) {
			contact["email"] = email
		}
	}

	// Resolve identity
	var acting *Person
	contactID := 0
	if inv.IsFirstContact && cfg.AutoPop() {
		acting = p.currentContact(ctx, sub.Session)
	}
	if acting != nil {
		contactID = acting.ID
	} else {
		contactID, err = p.dedupe.Resolve(ctx, contact, contactCfg["contact_type"], contactCfg["dedupe_rule"])
		if err != nil {
			return err
		}
		if cfg.PreventUpdate() && contactID != 0 {
			return &DuplicateContactError{ContactID: contactID}
		}
	}
	if contactID == 0 && !inv.IsFirstContact && cfg.AutoPopByRelationship() && cfg.RelationshipType() != "" {
		if related := p.relatedContact(ctx, sub.Session, cfg.RelationshipType()); related != nil {
			contactID = related.ID
		}
	}
	if contactID != 0 {
		contact["contact_id"] = contactID
		p.mergeSubTypes(ctx, contactID, contactCfg["contact_sub_type"], contact)
	}

	p.resolveImageURL(ctx, contactCfg, contact)
	if org, ok := contact["current_employer"].(map[string]interface{}); ok {
		contact["current_employer"] = org["organization_name"]
		contact["employer_id"] = org["employer_id"]
	}

	created, err := p.gw.Call(ctx, "Contact", "create", crm.Params(contact))
	if err != nil {
		return err
	}
	savedID := created.ID
	if savedID == 0 {
		savedID = created.First().ID()
	}
	log = log.WithField("contact_id", savedID)
	log.Info("contact saved")

	if err := p.syncPrimaryEmail(ctx, contactCfg, acting, savedID, contact); err != nil {
		return err
	}

	inv.Transient.SetContact(alias, savedID)
	if err := inv.SaveTransient(ctx); err != nil {
		return err
	}

	if p.site.DomainGroupID > 0 {
		if _, err := p.gw.Call(ctx, "GroupContact", "create", crm.Params{
			"sequential": 1,
			"group_id":   p.site.DomainGroupID,
			"contact_id": savedID,
		}); err != nil {
			return err
		}
	}

	if err := p.attachFiles(ctx, inv, contactCfg, savedID); err != nil {
		return err
	}

	for _, name := range cfg.EnabledEntities {
		sp, ok := p.entities[name]
		if !ok {
			log.WithField("entity", name).Debug("no sub-processor for enabled entity")
			continue
		}
		run := &entityRun{inv: inv, cfg: cfg, alias: alias, values: values}
		if err := sp.process(ctx, run); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// mergeSubTypes keeps the existing contact's sub-types and appends the configured one
func (p *Processor) mergeSubTypes(ctx context.Context, contactID int, configured string, contact map[string]interface{}) {
	lookup, err := crm.GetSingle(ctx, p.gw, "Contact", crm.Params{
		"id":     contactID,
		"return": []string{"contact_sub_type"},
	})
	if err != nil {
		p.log.WithField("contact_id", contactID).WithError(err).Warn("sub-type lookup failed")
		return
	}
	if !lookup.Found() {
		return
	}
	existing := lookup.Record.Strings("contact_sub_type")
	if len(existing) == 0 {
		return
	}
	contact["contact_sub_type"] = MergeSubTypes(existing, configured)
}

// resolveImageURL turns an uploaded file id into the CRM's image URL
func (p *Processor) resolveImageURL(ctx context.Context, contactCfg models.EntityConfig, contact map[string]interface{}) {
	if contactCfg["image_URL"] == "" || models.IsEmpty(contact["image_URL"]) {
		return
	}
	lookup, err := crm.GetSingle(ctx, p.gw, "File", crm.Params{"id": contact["image_URL"]})
	if err != nil || !lookup.Found() {
		return
	}
	uri := lookup.Record.String("uri")
	if uri == "" {
		return
	}
	base := strings.TrimRight(p.site.BaseURL, "/")
	contact["image_URL"] = base + "/civicrm/contact/imagefile?" + url.Values{"photo": {uri}}.Encode()
}

// syncPrimaryEmail updates the primary email of the logged-in contact, which
// the contact upsert leaves untouched.
func (p *Processor) syncPrimaryEmail(ctx context.Context, contactCfg models.EntityConfig, acting *Person, savedID int, contact map[string]interface{}) error {
	if contactCfg["email"] == "" || acting == nil || acting.ID != savedID {
		return nil
	}
	email := crm.ToString(contact["email"])
	if email == "" || email == acting.Email {
		return nil
	}
	params := crm.Params{"email": email, "is_primary": 1}
	if acting.EmailID > 0 {
		params["id"] = acting.EmailID
	} else {
		params["contact_id"] = savedID
	}
	_, err := p.gw.Call(ctx, "Email", "create", params)
	return err
}

// attachFiles links uploaded files to the contact's File custom fields
func (p *Processor) attachFiles(ctx context.Context, inv *runner.Invocation, contactCfg models.EntityConfig, contactID int) error {
	keys := make([]string, 0, len(contactCfg))
	for k := range contactCfg {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		mapped := contactCfg[key]
		if mapped == "" || !strings.HasPrefix(key, "custom_") {
			continue
		}
		field := inv.Submission.Form.FieldByTag(mapped)
		files := inv.Submission.FieldFiles(field)
		if len(files) == 0 {
			continue
		}
		customID := digits(key)
		lookup, err := crm.GetSingle(ctx, p.gw, "CustomField", crm.Params{
			"id":     customID,
			"return": []string{"custom_group_id.table_name", "custom_group_id", "data_type"},
		})
		if err != nil {
			return err
		}
		if !lookup.Found() || lookup.Record.String("data_type") != "File" {
			continue
		}
		table := lookup.Record.String("custom_group_id.table_name")
		for _, fileID := range files {
			if _, err := p.gw.Call(ctx, "EntityFile", "create", crm.Params{
				"entity_table": table,
				"entity_id":    contactID,
				"file_id":      fileID,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
