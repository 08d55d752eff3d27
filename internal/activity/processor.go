// Package activity implements the civicrm_activity processor, which records
// an activity for a contact created earlier in the same submission.
package activity

import (
	"context"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"
	"cf-civicrm/internal/transient"

	"github.com/sirupsen/logrus"
)

// controlKeys are configuration settings, never form field mappings
var controlKeys = map[string]bool{
	"contact_link":            true,
	"activity_type_id":        true,
	"is_mapped_field":         true,
	"mapped_activity_type_id": true,
	"status_id":               true,
	"campaign_id":             true,
}

// Processor is the civicrm_activity processor
type Processor struct {
	gw  crm.Gateway
	log logrus.FieldLogger
}

// NewProcessor creates an activity processor
func NewProcessor(gw crm.Gateway, log logrus.FieldLogger) *Processor {
	return &Processor{gw: gw, log: log}
}

// Process creates the activity for the linked contact. It does nothing when
// no contact was linked earlier in the submission.
func (p *Processor) Process(ctx context.Context, inv *runner.Invocation) error {
	cfg := inv.Config()
	alias := transient.LinkAlias(cfg.ContactLink())
	contactID := inv.Transient.Contact(alias)
	log := p.log.WithFields(logrus.Fields{"processor": inv.Processor.ID, "contact_link": alias})
	if contactID == 0 {
		log.Debug("no linked contact, skipping activity")
		return nil
	}

	mapping := make(models.EntityConfig)
	for k, v := range cfg.Settings {
		if !controlKeys[k] {
			mapping[k] = v
		}
	}
	mapped, err := inv.Mapper.MapEntity(inv.Submission, mapping, cfg.Transforms[models.EntityActivity])
	if err != nil {
		return err
	}

	params := crm.Params{}
	for k, v := range mapped {
		params[k] = v
	}
	params["activity_type_id"] = p.activityType(inv, cfg)
	if v := cfg.Setting("status_id"); v != "" {
		params["status_id"] = v
	}
	if v := cfg.Setting("campaign_id"); v != "" {
		params["campaign_id"] = v
	}
	params["source_contact_id"] = contactID
	params["target_contact_id"] = contactID

	res, err := p.gw.Call(ctx, "Activity", "create", params)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"contact_id": contactID, "activity_id": res.ID}).Info("activity created")
	return nil
}

// activityType returns the configured type, or the submitted one when the
// type is taken from a form field.
func (p *Processor) activityType(inv *runner.Invocation, cfg *models.ProcessorConfig) interface{} {
	if cfg.Flag("is_mapped_field") {
		if v := inv.Mapper.Value(inv.Submission, cfg.Setting("mapped_activity_type_id")); !models.IsEmpty(v) {
			return v
		}
	}
	return cfg.Setting("activity_type_id")
}
