package checkpoint

// Checkpoint is the batch cursor: the ordered item snapshot taken at the
// start of a batch and the index of the next unprocessed item. It is the
// sole resumption state across crashes and restarts.
type Checkpoint struct {
	NextIndex int      `json:"index"`
	Items     []string `json:"codes"`
}

// Reconcile validates a persisted checkpoint against the freshly computed
// work list. A list that differs in content or order invalidates the
// cursor: the batch restarts from zero over the fresh list. An unchanged
// list keeps the persisted index.
func Reconcile(cp Checkpoint, fresh []string) Checkpoint {
	if !equalItems(cp.Items, fresh) {
		return Checkpoint{NextIndex: 0, Items: fresh}
	}
	return cp
}

func equalItems(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
