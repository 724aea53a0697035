package agent

import (
	"time"

	"github.com/ashureev/foundersync/internal/domain"
)

// BuildContext assembles the context for a reply from persisted records.
// Conversations must already be in chronological order.
func BuildContext(sim *domain.Simulation, convs []*domain.Conversation) ConversationContext {
	cc := ConversationContext{
		StartupName: sim.StartupName,
		Description: sim.Description,
		Industry:    sim.Industry,
		History:     make([]HistoryEntry, 0, len(convs)),
	}
	for _, c := range convs {
		cc.History = append(cc.History, HistoryEntry{
			AgentName:    c.AgentName,
			UserMessage:  c.UserMessage,
			AgentMessage: c.AgentResponse.Message,
			Timestamp:    c.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return cc
}

// Recent returns a copy of cc holding only the last n history entries.
func (cc ConversationContext) Recent(n int) ConversationContext {
	if n < 0 {
		n = 0
	}
	if len(cc.History) > n {
		cc.History = append([]HistoryEntry(nil), cc.History[len(cc.History)-n:]...)
	}
	return cc
}
