package syncq

import (
	"context"
	"fmt"

	"github.com/jonwraymond/offlinekit/bus"
	"github.com/jonwraymond/offlinekit/records"
)

// ConversationsSyncTag is the tag clients register to receive every stored
// conversation snapshot once the network returns.
const ConversationsSyncTag = "conversations-sync"

// RecordSource lists stored records in timestamp order.
type RecordSource interface {
	All(ctx context.Context) ([]records.Record, error)
}

// Broadcaster fans a message out to every open client. *bus.Hub satisfies it.
type Broadcaster interface {
	Broadcast(msg bus.Message) int
}

// ConversationsSync returns the handler for ConversationsSyncTag: it reads
// every record and broadcasts them in one CONVERSATIONS_SYNCED message.
func ConversationsSync(source RecordSource, out Broadcaster) Handler {
	return func(ctx context.Context) error {
		recs, err := source.All(ctx)
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		out.Broadcast(bus.ConversationsSynced(recs))
		return nil
	}
}
