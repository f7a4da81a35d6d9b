package lead

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/6t3media/chatbot-backend/chat/contract"
	pipedrivex "github.com/6t3media/chatbot-backend/pkg/pipedrive"
)

const dealTitleSuffix = " - Chatbot Lead"

// Resolver finds-or-creates a CRM person for a lead and attaches a new
// deal. Resolution is idempotent on the person (an existing contact
// with the same email or phone is reused) but every successful call
// creates exactly one deal.
type Resolver struct {
	crm *pipedrivex.Client
}

var _ contractx.LeadResolver = (*Resolver)(nil)

// NewResolver accepts a nil client; Resolve then reports
// ErrCRMNotConfigured without touching the network.
func NewResolver(crm *pipedrivex.Client) *Resolver {
	return &Resolver{crm: crm}
}

// Resolve searches by exact email, then exact phone, then creates the
// person, short-circuiting on the first id obtained; a deal titled
// "<name> - Chatbot Lead" is then created against that id. Error
// strings are part of the contract: they flow back to the model as the
// tool result so it can phrase the user-facing message.
func (r *Resolver) Resolve(ctx context.Context, ld contractx.Lead) (contractx.Resolution, error) {
	if r.crm == nil {
		return contractx.Resolution{}, contractx.ErrCRMNotConfigured
	}

	personID, reused, err := r.findOrCreatePerson(ctx, ld)
	if err != nil {
		return contractx.Resolution{}, err
	}

	dealID, err := r.crm.CreateDeal(ctx, ld.Name+dealTitleSuffix, personID)
	if err != nil {
		return contractx.Resolution{}, fmt.Errorf("deal creation failed: %w", err)
	}

	log.Info().
		Int("person_id", personID).
		Int("deal_id", dealID).
		Bool("person_reused", reused).
		Msg("lead resolved")

	return contractx.Resolution{
		PersonID:     personID,
		DealID:       dealID,
		PersonReused: reused,
	}, nil
}

func (r *Resolver) findOrCreatePerson(ctx context.Context, ld contractx.Lead) (id int, reused bool, err error) {
	id, found, err := r.crm.SearchPerson(ctx, ld.Email, "email")
	if err != nil {
		return 0, false, fmt.Errorf("contact lookup failed: %w", err)
	}
	if found {
		return id, true, nil
	}

	id, found, err = r.crm.SearchPerson(ctx, ld.Phone, "phone")
	if err != nil {
		return 0, false, fmt.Errorf("contact lookup failed: %w", err)
	}
	if found {
		return id, true, nil
	}

	id, err = r.crm.CreatePerson(ctx, ld.Name, ld.Email, ld.Phone)
	if err != nil {
		return 0, false, fmt.Errorf("contact creation failed: %w", err)
	}
	return id, false, nil
}
