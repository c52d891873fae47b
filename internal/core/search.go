package core

import "patientcore/pkg/domain"

// RedirectHits rewrites raw identifier-search hits so only live identities
// surface: a hit owned by a merged identity is replaced by its primary's
// current snapshot, already-emitted identities are suppressed, and the first
// occurrence keeps its position. Running the filter over an already-filtered
// set is a no-op.
func RedirectHits(view TransactionView, raw []SearchHit) []SearchHit {
	if len(raw) == 0 {
		return raw
	}
	emitted := map[string]bool{}
	out := make([]SearchHit, 0, len(raw))
	for _, hit := range raw {
		resolved := hit
		if p, ok := view.FindPatient(hit.PatientID); ok && p.IsMerged && p.MergedIntoID != nil {
			// The no-chain invariant is enforced at merge time, so one hop
			// always lands on a live identity.
			if primary, ok := view.FindPatient(*p.MergedIntoID); ok {
				resolved = domain.HitFromPatient(primary)
			}
		}
		if emitted[resolved.PatientID] {
			continue
		}
		emitted[resolved.PatientID] = true
		out = append(out, resolved)
	}
	return out
}
