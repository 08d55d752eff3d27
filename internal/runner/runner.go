// Package runner executes the CRM processors attached to a form, on
// submission and on render.
package runner

import (
	"context"
	"errors"
	"fmt"
	"html"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/expression"
	"cf-civicrm/internal/mapping"
	"cf-civicrm/internal/models"
	"cf-civicrm/internal/transient"

	"github.com/sirupsen/logrus"
)

// ErrNoForm is returned when a submission carries no form definition
var ErrNoForm = errors.New("runner: submission has no form")

// Processor handles a form submission for one processor type
type Processor interface {
	Process(ctx context.Context, inv *Invocation) error
}

// PreRenderer fills form defaults before the form is shown
type PreRenderer interface {
	PreRender(ctx context.Context, inv *Invocation) error
}

// Invocation carries the request-scoped state of one processor run. The
// transient record is shared by every processor of the request.
type Invocation struct {
	Processor      *models.Processor
	Submission     *models.Submission
	Transient      *transient.Record
	Mapper         *mapping.Mapper
	IsFirstContact bool

	store transient.Store
}

// Config returns the processor's configuration
func (inv *Invocation) Config() *models.ProcessorConfig {
	return &inv.Processor.Config
}

// SaveTransient persists the shared contact-link record
func (inv *Invocation) SaveTransient(ctx context.Context) error {
	if inv.store == nil {
		return nil
	}
	if err := inv.store.Save(ctx, inv.Transient); err != nil {
		return fmt.Errorf("failed to save contact links: %w", err)
	}
	return nil
}

// Note is the error surface shown to the submitter
type Note struct {
	Note string `json:"note"`
	Type string `json:"type"`
}

// Outcome is the result of a submission or render
type Outcome struct {
	TransientID string         `json:"transient_id"`
	Contacts    map[string]int `json:"contacts"`
	Note        *Note          `json:"note,omitempty"`
	Form        *models.Form   `json:"form,omitempty"`
}

// Runner dispatches form processors by type
type Runner struct {
	processors map[string]Processor
	store      transient.Store
	log        logrus.FieldLogger
}

// New creates a runner backed by the given transient store
func New(store transient.Store, log logrus.FieldLogger) *Runner {
	return &Runner{
		processors: make(map[string]Processor),
		store:      store,
		log:        log,
	}
}

// Register associates a processor implementation with a processor type
func (r *Runner) Register(typ string, p Processor) {
	r.processors[typ] = p
}

// Registered returns whether a processor type is known
func (r *Runner) Registered(typ string) bool {
	_, ok := r.processors[typ]
	return ok
}

// Submit runs the form's processors in order. The first processor error
// stops the run and is reported as a note; records already written stay.
func (r *Runner) Submit(ctx context.Context, sub *models.Submission) (*Outcome, error) {
	if sub == nil || sub.Form == nil {
		return nil, ErrNoForm
	}
	rec, err := transient.Load(ctx, r.store, sub.TransientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact links: %w", err)
	}

	evaluator := expression.NewEvaluator()
	defer evaluator.Close()
	mapper := mapping.New(evaluator, r.log)
	first := sub.Form.FirstProcessorOfType(models.ProcessorTypeContact)

	outcome := &Outcome{TransientID: rec.ID}
	for _, p := range sub.Form.Processors {
		proc, ok := r.processors[p.Type]
		if !ok {
			r.log.WithField("type", p.Type).Debug("skipping unknown processor type")
			continue
		}
		inv := &Invocation{
			Processor:      p,
			Submission:     sub,
			Transient:      rec,
			Mapper:         mapper,
			IsFirstContact: p.Type == models.ProcessorTypeContact && p.ID == first,
			store:          r.store,
		}
		if err := proc.Process(ctx, inv); err != nil {
			r.log.WithFields(logrus.Fields{
				"form":      sub.Form.ID,
				"processor": p.ID,
				"type":      p.Type,
			}).WithError(err).Warn("processor failed")
			outcome.Note = NoteFromError(err)
			break
		}
	}
	outcome.Contacts = rec.Clone().Contacts
	return outcome, nil
}

// Render runs the pre-render step of every processor that has one and
// returns the form with defaults filled in.
func (r *Runner) Render(ctx context.Context, sub *models.Submission) (*Outcome, error) {
	if sub == nil || sub.Form == nil {
		return nil, ErrNoForm
	}
	if len(sub.Form.Processors) == 0 {
		return &Outcome{TransientID: sub.TransientID, Form: sub.Form}, nil
	}
	rec, err := transient.Load(ctx, r.store, sub.TransientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact links: %w", err)
	}

	form := sub.Form.Clone()
	render := *sub
	render.Form = form

	mapper := mapping.New(nil, r.log)
	first := form.FirstProcessorOfType(models.ProcessorTypeContact)

	for _, p := range form.Processors {
		proc, ok := r.processors[p.Type]
		if !ok {
			continue
		}
		pre, ok := proc.(PreRenderer)
		if !ok {
			continue
		}
		inv := &Invocation{
			Processor:      p,
			Submission:     &render,
			Transient:      rec,
			Mapper:         mapper,
			IsFirstContact: p.Type == models.ProcessorTypeContact && p.ID == first,
			store:          r.store,
		}
		if err := pre.PreRender(ctx, inv); err != nil {
			return nil, fmt.Errorf("pre-render of processor %s failed: %w", p.ID, err)
		}
	}
	return &Outcome{TransientID: rec.ID, Contacts: rec.Clone().Contacts, Form: form}, nil
}

// NoteFromError converts a processor error into the note shown to the user.
// CRM errors carry their diagnostic trace.
func NoteFromError(err error) *Note {
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		msg := html.EscapeString(apiErr.Message)
		if apiErr.Trace != "" {
			msg += "<br><br><pre>" + html.EscapeString(apiErr.Trace) + "</pre>"
		}
		return &Note{Note: msg, Type: "error"}
	}
	var noted interface{ UserMessage() string }
	if errors.As(err, &noted) {
		return &Note{Note: noted.UserMessage(), Type: "error"}
	}
	return &Note{Note: err.Error(), Type: "error"}
}

// NewInvocation builds an invocation outside of a runner, for callers that
// drive a single processor directly.
func NewInvocation(p *models.Processor, sub *models.Submission, rec *transient.Record, mapper *mapping.Mapper, first bool, store transient.Store) *Invocation {
	return &Invocation{
		Processor:      p,
		Submission:     sub,
		Transient:      rec,
		Mapper:         mapper,
		IsFirstContact: first,
		store:          store,
	}
}
