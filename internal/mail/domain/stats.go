package domain

// Stats summarizes what is currently indexed.
type Stats struct {
	Total    int `json:"total"`
	Sent     int `json:"sent"`
	Received int `json:"received"`
	Unread   int `json:"unread"`
	Flagged  int `json:"flagged"`
}

// ComputeStats aggregates a metadata sample. Total is the collection count,
// which may exceed the sampled slice on very large mailboxes.
func ComputeStats(total int, metas []MessageMeta) Stats {
	stats := Stats{Total: total}
	for _, m := range metas {
		if m.Direction == DirectionSent {
			stats.Sent++
		} else {
			stats.Received++
		}
		if !m.IsRead {
			stats.Unread++
		}
		if m.IsFlagged {
			stats.Flagged++
		}
	}
	return stats
}
