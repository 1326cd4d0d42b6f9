package api

import "github.com/quintile/maturity/internal/services"

type seedQuestion struct {
	id        string
	subdomain string
	priority  int
}

// A compact starter catalog spanning the five maturity subdomains. Real
// deployments load their own question bank; this one exists so a fresh
// instance can be exercised end to end.
var seedQuestions = []seedQuestion{
	{"q-gov-01", "governance", 1},
	{"q-gov-02", "governance", 0},
	{"q-gov-03", "governance", 0},
	{"q-qual-01", "quality", 1},
	{"q-qual-02", "quality", 0},
	{"q-arch-01", "architecture", 1},
	{"q-arch-02", "architecture", 0},
	{"q-lit-01", "literacy", 1},
	{"q-lit-02", "literacy", 0},
	{"q-sec-01", "security", 1},
	{"q-sec-02", "security", 0},
}

var seedOptionKeys = []string{"a", "b", "c", "d", "e", "f"}

// SeedSampleCatalog loads the starter question bank into the store and
// returns how many questions it added. Seeding is additive; questions
// already present are overwritten in place.
func SeedSampleCatalog(store Store) int {
	for order, sq := range seedQuestions {
		q := &services.Question{
			ID:           sq.id,
			SubdomainID:  sq.subdomain,
			Priority:     sq.priority,
			DisplayOrder: order + 1,
		}
		opts := make([]*services.AnswerOption, 0, len(seedOptionKeys))
		for i, key := range seedOptionKeys {
			opts = append(opts, &services.AnswerOption{
				QuestionID: sq.id,
				Key:        key,
				Score:      i,
			})
		}
		store.AddQuestion(q, opts)
	}
	return len(seedQuestions)
}

// DefaultRoleMapping is the role -> subdomain relevance table used when no
// mapping file is configured.
func DefaultRoleMapping() map[string][]string {
	return map[string][]string{
		"executive": {"governance", "literacy"},
		"engineer":  {"architecture", "quality", "security"},
		"analyst":   {"quality", "literacy"},
		"steward":   {"governance", "quality", "security"},
	}
}
