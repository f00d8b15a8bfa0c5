package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"caixinha-backend/internal/domain"
	"caixinha-backend/pkg/errors"
)

const ticketsCollection = "tickets"

// TicketRepository is the support-system boundary the escalation path
// writes through. The messaging core only creates tickets and queries
// them for the duplicate-escalation guard; status transitions belong
// to the support module.
type TicketRepository struct {
	client *firestore.Client
}

// NewTicketRepository creates a new TicketRepository
func NewTicketRepository(client *firestore.Client) *TicketRepository {
	return &TicketRepository{client: client}
}

// Create persists a new support ticket and returns its id.
func (r *TicketRepository) Create(ctx context.Context, ticket *domain.SupportTicket) (string, error) {
	ref := r.client.Collection(ticketsCollection).NewDoc()
	if _, err := ref.Create(ctx, ticket); err != nil {
		return "", errors.PersistenceError(err)
	}
	ticket.TicketID = ref.ID
	return ref.ID, nil
}

// FindByConversation returns all tickets that originated from the
// given conversation, for the duplicate-escalation guard.
func (r *TicketRepository) FindByConversation(ctx context.Context, conversationID string) ([]*domain.SupportTicket, error) {
	iter := r.client.Collection(ticketsCollection).
		Where("conversationId", "==", conversationID).
		Documents(ctx)
	defer iter.Stop()

	var tickets []*domain.SupportTicket
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodePersistence, "query tickets by conversation", err)
		}

		var t domain.SupportTicket
		if err := snap.DataTo(&t); err != nil {
			return nil, errors.Wrap(errors.ErrCodePersistence, "decode ticket document", err)
		}
		t.TicketID = snap.Ref.ID
		tickets = append(tickets, &t)
	}
	return tickets, nil
}
