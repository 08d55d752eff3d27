package contact

import (
	"context"

	"cf-civicrm/internal/crm"
	"cf-civicrm/internal/models"

	"github.com/sirupsen/logrus"
)

// Person is a contact resolved from the session or a relationship
type Person struct {
	ID      int
	Email   string
	EmailID int
	Record  crm.Record
}

func personFromRecord(rec crm.Record) *Person {
	return &Person{
		ID:      rec.ContactID(),
		Email:   rec.String("email"),
		EmailID: rec.Int("email_id"),
		Record:  rec,
	}
}

// fetchContact loads a contact by id. Lookup misses and failures yield nil.
func (p *Processor) fetchContact(ctx context.Context, contactID int) *Person {
	if contactID <= 0 {
		return nil
	}
	lookup, err := crm.GetSingle(ctx, p.gw, "Contact", crm.Params{"id": contactID})
	if err != nil {
		p.log.WithField("contact_id", contactID).WithError(err).Warn("contact lookup failed")
		return nil
	}
	if !lookup.Found() {
		return nil
	}
	return personFromRecord(lookup.Record)
}

// currentContact returns the logged-in contact, or nil when anonymous
func (p *Processor) currentContact(ctx context.Context, session models.Session) *Person {
	if !session.LoggedIn() {
		return nil
	}
	return p.fetchContact(ctx, session.ContactID)
}

// relatedContact returns the contact related to the logged-in user by
// relationshipType, whichever side of the relationship the user is on.
func (p *Processor) relatedContact(ctx context.Context, session models.Session, relationshipType string) *Person {
	if !session.LoggedIn() || relationshipType == "" {
		return nil
	}
	self := session.ContactID

	res, err := p.gw.Call(ctx, "Relationship", "get", crm.Params{
		"sequential":           1,
		"contact_id_a":         self,
		"contact_id_b":         self,
		"relationship_type_id": relationshipType,
		"options": map[string]interface{}{
			"or": [][]string{{"contact_id_a", "contact_id_b"}},
		},
	})
	if err != nil {
		p.log.WithFields(logrus.Fields{
			"contact_id":        self,
			"relationship_type": relationshipType,
		}).WithError(err).Warn("relationship lookup failed")
		return nil
	}
	rel := res.First()
	if rel == nil {
		return nil
	}
	other := OtherParty(rel, self)
	if other == 0 {
		return nil
	}
	return p.fetchContact(ctx, other)
}

// OtherParty returns the contact on the other side of a relationship from self
func OtherParty(rel crm.Record, self int) int {
	if rel.Int("contact_id_a") == self {
		return rel.Int("contact_id_b")
	}
	return rel.Int("contact_id_a")
}

// MergeSubTypes returns existing followed by configured when it is not
// already present. Existing order is kept and duplicates are dropped.
func MergeSubTypes(existing []string, configured string) []string {
	seen := make(map[string]bool, len(existing)+1)
	out := make([]string, 0, len(existing)+1)
	for _, s := range existing {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	if configured != "" && !seen[configured] {
		out = append(out, configured)
	}
	return out
}
