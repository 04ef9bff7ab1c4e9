package domain

// Metrics are the per-tenant recurring revenue figures. Monetary values are
// rounded to 2 decimals, rates to 1.
type Metrics struct {
	MRR                float64        `json:"mrr"`
	ActiveSubscribers  int            `json:"active_subscribers"`
	ARPU               float64        `json:"arpu"`
	ChurnRate          float64        `json:"churn_rate"`
	LTV                float64        `json:"ltv"`
	PlanMix            []PlanMixEntry `json:"plan_mix"`
	PaymentFailureRate float64        `json:"payment_failure_rate"`
}

type PlanMixEntry struct {
	Plan        string `json:"plan"`
	Subscribers int    `json:"subscribers"`
}

// EmptyMetrics is the result for a tenant with no sub-account or no customers.
func EmptyMetrics() *Metrics {
	return &Metrics{PlanMix: []PlanMixEntry{}}
}
