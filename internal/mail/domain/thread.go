package domain

import "sort"

// ThreadStatus categorizes an open conversation by who owes the next reply.
type ThreadStatus string

const (
	// ThreadNeedsAction - the last message was received and not replied to.
	ThreadNeedsAction ThreadStatus = "needs_action"
	// ThreadAwaitingResponse - the owner sent the last message.
	ThreadAwaitingResponse ThreadStatus = "awaiting_response"
	// ThreadCompleted - the last received message was already replied to.
	ThreadCompleted ThreadStatus = "completed"
)

// SortByDate orders metadata entries oldest first. Entries without a date
// sort to the front.
func SortByDate(metas []MessageMeta) {
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].Date < metas[j].Date
	})
}

// ThreadStatusOf classifies a conversation by its last message. The decision
// looks at who sent the final message rather than at is_replied on sent mail,
// which is never set for the owner's own messages.
func ThreadStatusOf(metas []MessageMeta) ThreadStatus {
	if len(metas) == 0 {
		return ThreadCompleted
	}
	sorted := make([]MessageMeta, len(metas))
	copy(sorted, metas)
	SortByDate(sorted)

	last := sorted[len(sorted)-1]
	switch {
	case last.Direction == DirectionReceived && !last.IsReplied:
		return ThreadNeedsAction
	case last.Direction == DirectionSent:
		return ThreadAwaitingResponse
	default:
		return ThreadCompleted
	}
}

// OpenItem is one open conversation (or standalone message) on the task list.
type OpenItem struct {
	ConversationID string       `json:"conversation_id"`
	Subject        string       `json:"subject"`
	Sender         string       `json:"sender"`
	SenderName     string       `json:"sender_name"`
	Date           string       `json:"date"`
	MessageCount   int          `json:"message_count"`
	Status         ThreadStatus `json:"status"`
	Participants   []string     `json:"participants"`
	Tags           []string     `json:"tags"`
}

// OpenItems builds the open-item list from an index metadata sample. Messages
// sharing a conversation id are analyzed as a thread; standalone received
// messages that were never replied to count as needing action.
func OpenItems(metas []MessageMeta) []OpenItem {
	threads := make(map[string][]MessageMeta)
	var items []OpenItem

	for _, meta := range metas {
		if meta.ConversationID != "" {
			threads[meta.ConversationID] = append(threads[meta.ConversationID], meta)
			continue
		}
		if meta.Direction == DirectionReceived && !meta.IsReplied {
			items = append(items, OpenItem{
				Subject:      meta.Subject,
				Sender:       meta.Sender,
				SenderName:   meta.SenderName,
				Date:         meta.Date,
				MessageCount: 1,
				Status:       ThreadNeedsAction,
				Participants: participants([]MessageMeta{meta}),
				Tags:         []string{},
			})
		}
	}

	for convID, members := range threads {
		status := ThreadStatusOf(members)
		if status == ThreadCompleted {
			continue
		}
		SortByDate(members)
		last := members[len(members)-1]
		items = append(items, OpenItem{
			ConversationID: convID,
			Subject:        last.Subject,
			Sender:         last.Sender,
			SenderName:     last.SenderName,
			Date:           last.Date,
			MessageCount:   len(members),
			Status:         status,
			Participants:   participants(members),
			Tags:           []string{},
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Date > items[j].Date
	})
	return items
}

func participants(metas []MessageMeta) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range metas {
		if m.Sender == "" || seen[m.Sender] {
			continue
		}
		seen[m.Sender] = true
		out = append(out, m.Sender)
	}
	return out
}
