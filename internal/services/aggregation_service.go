package services

import "sort"

// AggregationStore selects the already-materialized score rows of completed
// sessions. One inner slice per session; overall rows (empty subdomain id)
// may be included and are ignored by the accumulator. Aggregation never
// touches raw responses, so sessions with heterogeneous question-list
// snapshots mix freely.
type AggregationStore interface {
	ListCompletedSessionScores(organization string, codes []string) ([][]*SubdomainScore, error)
}

// AggregateScope selects sessions by organization name or by an explicit
// access-code list. At least one must be set.
type AggregateScope struct {
	Organization string   `json:"organization,omitempty"`
	Codes        []string `json:"codes,omitempty"`
}

// SubdomainAggregate is one subdomain of a collective report. Raw is the
// per-session raw scores weighted by each session's answered count in this
// subdomain, so sessions that answered more questions carry proportionally
// more confidence.
type SubdomainAggregate struct {
	SubdomainID       string  `json:"subdomain_id"`
	Raw               float64 `json:"raw_score"`
	Percent           float64 `json:"percentage"`
	Tier              Tier    `json:"maturity_tier"`
	QuestionsAnswered int     `json:"questions_answered"`
	Sessions          int     `json:"sessions"`
	Relevant          bool    `json:"relevant,omitempty"`
}

// OrganizationReport is the collective view over the sessions in scope. The
// overall figures weigh every subdomain equally, consistent with how a
// single session's overall score is computed.
type OrganizationReport struct {
	Organization   string                `json:"organization,omitempty"`
	Sessions       int                   `json:"sessions"`
	OverallRaw     float64               `json:"overall_raw_score"`
	OverallPercent float64               `json:"overall_percentage"`
	OverallTier    Tier                  `json:"overall_maturity_tier"`
	Subdomains     []*SubdomainAggregate `json:"subdomains"`
}

// OrgAccumulator folds completed sessions into a collective report one at a
// time. It keeps weight sums rather than running averages, so feeding the
// same sessions in any order, or all at once, lands on the same numbers.
type OrgAccumulator struct {
	sessions  int
	weighted  map[string]float64
	weights   map[string]int
	perSubSes map[string]int
}

func NewOrgAccumulator() *OrgAccumulator {
	return &OrgAccumulator{
		weighted:  map[string]float64{},
		weights:   map[string]int{},
		perSubSes: map[string]int{},
	}
}

// Add folds one completed session's score rows into the accumulator. Rows
// with zero answered questions and the session-overall row contribute
// nothing; a session without a row for some subdomain is simply absent from
// that subdomain's aggregate, it is not counted as zero.
func (a *OrgAccumulator) Add(rows []*SubdomainScore) {
	counted := false
	for _, row := range rows {
		if row == nil || row.SubdomainID == "" || row.QuestionsAnswered <= 0 {
			continue
		}
		a.weighted[row.SubdomainID] += row.Raw * float64(row.QuestionsAnswered)
		a.weights[row.SubdomainID] += row.QuestionsAnswered
		a.perSubSes[row.SubdomainID]++
		counted = true
	}
	if counted {
		a.sessions++
	}
}

// Report materializes the collective view. Tiers are re-derived from the
// aggregated numbers; a session's own tier label never survives aggregation
// since the aggregate is a new numeric value.
func (a *OrgAccumulator) Report() (*OrganizationReport, error) {
	if a.sessions == 0 || len(a.weights) == 0 {
		return nil, ErrEmptyScope
	}
	ids := make([]string, 0, len(a.weights))
	for id := range a.weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &OrganizationReport{Sessions: a.sessions}
	var overallSum float64
	for _, id := range ids {
		raw := a.weighted[id] / float64(a.weights[id])
		report.Subdomains = append(report.Subdomains, &SubdomainAggregate{
			SubdomainID:       id,
			Raw:               raw,
			Percent:           raw / 5.0 * 100,
			Tier:              Classify(raw),
			QuestionsAnswered: a.weights[id],
			Sessions:          a.perSubSes[id],
		})
		overallSum += raw
	}
	overall := overallSum / float64(len(ids))
	report.OverallRaw = overall
	report.OverallPercent = overall / 5.0 * 100
	report.OverallTier = Classify(overall)
	return report, nil
}

// AggregationService builds organization-level collective reports from
// completed, already-scored sessions.
type AggregationService struct {
	store AggregationStore
	roles *RoleFilter // optional; marks role-relevant subdomains in reports
}

func NewAggregationService(store AggregationStore, roles *RoleFilter) *AggregationService {
	return &AggregationService{store: store, roles: roles}
}

// AggregateOrganization combines the completed sessions matched by scope
// into one collective report. role, when non-empty, marks the subdomains
// relevant to that role; it does not change any number.
func (s *AggregationService) AggregateOrganization(scope AggregateScope, role string) (*OrganizationReport, error) {
	if scope.Organization == "" && len(scope.Codes) == 0 {
		return nil, NewInvalidError("scope requires an organization or a code list")
	}
	var relevant map[string]bool
	if role != "" {
		ids, err := s.roles.RelevantSubdomains(role)
		if err != nil {
			return nil, err
		}
		relevant = map[string]bool{}
		for _, id := range ids {
			relevant[id] = true
		}
	}
	sessions, err := s.store.ListCompletedSessionScores(scope.Organization, scope.Codes)
	if err != nil {
		return nil, err
	}
	acc := NewOrgAccumulator()
	for _, rows := range sessions {
		acc.Add(rows)
	}
	report, err := acc.Report()
	if err != nil {
		return nil, err
	}
	report.Organization = scope.Organization
	if relevant != nil {
		for _, sub := range report.Subdomains {
			sub.Relevant = relevant[sub.SubdomainID]
		}
	}
	return report, nil
}
