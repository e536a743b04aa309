package durability

import (
	"sort"
)

// Orphan is a replica that may have missed an operation.
type Orphan struct {
	TxID      string `json:"tx_id"`
	ReplicaID string `json:"replica_id"`
}

// Report is the result of a recovery pass.
type Report struct {
	// Orphans lists every (transaction, replica) pair without a terminal result, sorted.
	Orphans []Orphan `json:"orphans,omitempty"`
	// Reconciled lists transactions where every replica reported a terminal result.
	Reconciled []string `json:"reconciled,omitempty"`
	// Repeatable lists unfinished idempotent transactions, they produce no orphans.
	Repeatable []string `json:"repeatable,omitempty"`
	// Malformed lists events that do not fit the invocation protocol.
	Malformed []Event `json:"malformed,omitempty"`
}

// OrphanedReplicas returns the distinct replica ids of all orphans, sorted.
func (r Report) OrphanedReplicas() []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, o := range r.Orphans {
		if _, ok := seen[o.ReplicaID]; !ok {
			seen[o.ReplicaID] = struct{}{}
			ids = append(ids, o.ReplicaID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Transactions returns every transaction id the report mentions, sorted.
func (r Report) Transactions() []string {
	seen := make(map[string]struct{})
	add := func(id string) { seen[id] = struct{}{} }
	for _, o := range r.Orphans {
		add(o.TxID)
	}
	for _, id := range r.Reconciled {
		add(id)
	}
	for _, id := range r.Repeatable {
		add(id)
	}
	for _, ev := range r.Malformed {
		add(ev.TxID)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clean reports whether recovery found nothing to resynchronize.
func (r Report) Clean() bool {
	return len(r.Orphans) == 0
}

// txFold is the folded state of one transaction
type txFold struct {
	invoked    bool
	replicas   []string
	idempotent bool
	results    map[string]Phase
	order      []string // replicas with results but no invoke, in seen order
}

// Recover folds ordered durability events into a report. It has no side effects,
// applying it twice to the same events yields the same report.
func Recover(events []Event) Report {
	sorted := append([]Event(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	var report Report
	txs := make(map[string]*txFold)
	var txOrder []string

	for _, ev := range sorted {
		tx, ok := txs[ev.TxID]
		if !ok {
			tx = &txFold{results: make(map[string]Phase)}
			txs[ev.TxID] = tx
			txOrder = append(txOrder, ev.TxID)
		}

		if ev.Phase == PhaseInvoke {
			if tx.invoked {
				report.Malformed = append(report.Malformed, ev)
				continue
			}
			tx.invoked = true
			tx.replicas = ev.Replicas
			tx.idempotent = ev.Idempotent
			continue
		}

		if !tx.invoked || !contains(tx.replicas, ev.ReplicaID) {
			report.Malformed = append(report.Malformed, ev)
			if !contains(tx.order, ev.ReplicaID) {
				tx.order = append(tx.order, ev.ReplicaID)
			}
			continue
		}
		if !tx.results[ev.ReplicaID].Terminal() || ev.Phase.Terminal() {
			tx.results[ev.ReplicaID] = ev.Phase
		}
	}

	for _, id := range txOrder {
		tx := txs[id]

		// results of replicas that were never invoked are always untrusted
		for _, replicaID := range tx.order {
			report.Orphans = append(report.Orphans, Orphan{TxID: id, ReplicaID: replicaID})
		}
		if !tx.invoked {
			continue
		}

		var missing []string
		for _, replicaID := range tx.replicas {
			if !tx.results[replicaID].Terminal() {
				missing = append(missing, replicaID)
			}
		}
		switch {
		case len(missing) == 0:
			if len(tx.order) == 0 {
				report.Reconciled = append(report.Reconciled, id)
			}
		case tx.idempotent:
			report.Repeatable = append(report.Repeatable, id)
		default:
			for _, replicaID := range missing {
				report.Orphans = append(report.Orphans, Orphan{TxID: id, ReplicaID: replicaID})
			}
		}
	}

	sort.Slice(report.Orphans, func(i, j int) bool {
		if report.Orphans[i].TxID != report.Orphans[j].TxID {
			return report.Orphans[i].TxID < report.Orphans[j].TxID
		}
		return report.Orphans[i].ReplicaID < report.Orphans[j].ReplicaID
	})
	sort.Strings(report.Reconciled)
	sort.Strings(report.Repeatable)
	return report
}
