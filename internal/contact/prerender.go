package contact

import (
	"context"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"
	"cf-civicrm/internal/transient"

	"github.com/sirupsen/logrus"
)

// PreRender fills the form's defaults from the logged-in or related contact
// and that contact's location records. Fields that already carry a default
// keep it. Only the language default is set for processors without runtimes.
func (p *Processor) PreRender(ctx context.Context, inv *runner.Invocation) error {
	cfg := inv.Config()
	form := inv.Submission.Form
	alias := transient.LinkAlias(cfg.ContactLink())
	log := p.log.WithFields(logrus.Fields{"processor": inv.Processor.ID, "contact_link": alias})

	if !inv.Processor.HasRuntimes() {
		p.defaultLanguage(cfg, form)
		log.Debug("processor has no runtimes, skipping pre-render")
		return nil
	}

	var person *Person
	if inv.IsFirstContact && cfg.AutoPop() {
		person = p.currentContact(ctx, inv.Submission.Session)
	} else if !inv.IsFirstContact && cfg.AutoPopByRelationship() {
		person = p.relatedContact(ctx, inv.Submission.Session, cfg.RelationshipType())
	}

	if person != nil {
		inv.Transient.SetContact(alias, person.ID)
		if err := inv.SaveTransient(ctx); err != nil {
			return err
		}
		inv.Mapper.MapToPrerender(cfg, form, IgnoreFields, person.Record, models.EntityContact)
		log.WithField("contact_id", person.ID).Debug("prefilled contact")
	}
	// the contact's own language wins over the site locale
	p.defaultLanguage(cfg, form)

	contactID := inv.Transient.Contact(alias)
	if contactID == 0 {
		return nil
	}
	for _, name := range cfg.EnabledEntities {
		loc, ok := p.entities[name].(*locationEntity)
		if !ok {
			continue
		}
		lookup, err := crm.GetSingle(ctx, p.gw, loc.entity, loc.lookupParams(cfg, contactID))
		if err != nil {
			log.WithField("entity", loc.entity).WithError(err).Warn("pre-render lookup failed")
			continue
		}
		if !lookup.Found() {
			continue
		}
		inv.Mapper.MapToPrerender(cfg, form, IgnoreFields, lookup.Record, loc.key)
	}
	return nil
}

// defaultLanguage sets the preferred-language field to the site locale when
// it has no default yet.
func (p *Processor) defaultLanguage(cfg *models.ProcessorConfig, form *models.Form) {
	if p.site.Locale == "" {
		return
	}
	field := form.FieldByTag(cfg.Entity(models.EntityContact)["preferred_language"])
	if field == nil || field.HasDefault() {
		return
	}
	field.SetDefault(p.site.Locale)
}
