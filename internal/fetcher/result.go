package fetcher

// Row is one record of a provider payload, keyed by column name.
type Row map[string]any

// Table is an ordered provider payload.
type Table []Row

// Result holds everything fetched for one symbol in one attempt.
// It is produced by the Dispatcher and consumed immediately by the storage
// writer. A kind is present only when its payload had at least one row.
type Result map[Kind]Table

// Kinds returns the kinds present in the result in canonical order.
func (r Result) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r))
	for k := range r {
		kinds = append(kinds, k)
	}
	SortKinds(kinds)
	return kinds
}

// Missing returns the requested kinds that are absent or empty in the result.
// Kinds that were not requested are never reported.
func (r Result) Missing(requested []Kind) []Kind {
	var missing []Kind
	for _, k := range requested {
		if len(r[k]) == 0 {
			missing = append(missing, k)
		}
	}
	return missing
}

// Rows returns the total number of rows across all kinds.
func (r Result) Rows() int {
	n := 0
	for _, t := range r {
		n += len(t)
	}
	return n
}
