package main

import (
	"fmt"
	"time"

	"cf-civicrm/internal/activity"
	"cf-civicrm/internal/config"
	"cf-civicrm/internal/contact"
	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/dedupe"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/runner"
	"cf-civicrm/internal/transient"

	"github.com/sirupsen/logrus"
)

// app holds the wired service components
type app struct {
	gateway crm.Gateway
	store   transient.Store
	runner  *runner.Runner
	parser  *models.FormParser
}

func (a *app) Close() error {
	return a.store.Close()
}

func buildApp(cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	loc, err := cfg.Site.Location()
	if err != nil {
		return nil, err
	}
	locale, err := cfg.Site.MessageLocale()
	if err != nil {
		return nil, err
	}

	gw, err := newGateway(cfg.CRM, loc, log)
	if err != nil {
		return nil, err
	}
	store, err := newStore(cfg.Transient)
	if err != nil {
		return nil, err
	}
	parser, err := models.NewFormParser()
	if err != nil {
		store.Close()
		return nil, err
	}

	site := contact.Site{
		DomainGroupID: cfg.Site.DomainGroupID,
		Locale:        locale,
		BaseURL:       cfg.CRM.BaseURL,
	}
	r := runner.New(store, log)
	r.Register(models.ProcessorTypeContact, contact.NewProcessor(gw, dedupe.NewResolver(gw, log), site, log))
	r.Register(models.ProcessorTypeActivity, activity.NewProcessor(gw, log))

	return &app{gateway: gw, store: store, runner: r, parser: parser}, nil
}

func newGateway(c config.CRMConfig, loc *time.Location, log logrus.FieldLogger) (crm.Gateway, error) {
	switch c.Backend {
	case config.BackendMemory:
		log.Warn("using the in-memory CRM; records are lost on exit")
		return crm.NewMemoryGateway(), nil
	case config.BackendREST:
		return crm.NewClient(crm.ClientOptions{
			Endpoint: c.URL,
			APIKey:   c.APIKey,
			SiteKey:  c.SiteKey,
			Location: loc,
		}, log)
	}
	return nil, fmt.Errorf("unknown crm backend %q", c.Backend)
}

func newStore(c config.TransientConfig) (transient.Store, error) {
	switch c.Driver {
	case config.DriverMemory:
		return transient.NewMemoryStore(), nil
	case config.DriverSQLite:
		return transient.NewSQLiteStore(c.Path)
	}
	return nil, fmt.Errorf("unknown transient driver %q", c.Driver)
}
