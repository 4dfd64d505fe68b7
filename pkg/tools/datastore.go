package tools

import "context"

// Domain records. The orchestrator treats the data layer as an external
// collaborator behind this interface; the bundled implementation is the
// in-memory store loaded from a YAML dataset.

// Plan is one monitoring plan with its sampling progress.
type Plan struct {
	Code        string `json:"code" yaml:"code"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	SamplesDue  int    `json:"samples_due" yaml:"samples_due"`
	SamplesDone int    `json:"samples_done" yaml:"samples_done"`
	Deadline    string `json:"deadline,omitempty" yaml:"deadline,omitempty"`

	// EstablishmentIDs are registration numbers of the involved
	// establishments.
	EstablishmentIDs []string `json:"establishment_ids,omitempty" yaml:"establishment_ids,omitempty"`
}

// Delayed reports whether the plan is behind on sampling.
func (p Plan) Delayed() bool {
	return p.SamplesDone < p.SamplesDue
}

// Establishment is one registered food-business operator site.
type Establishment struct {
	NumRegistration string  `json:"num_registration" yaml:"num_registration"`
	RagioneSociale  string  `json:"ragione_sociale" yaml:"ragione_sociale"`
	PartitaIVA      string  `json:"partita_iva,omitempty" yaml:"partita_iva,omitempty"`
	Address         string  `json:"address,omitempty" yaml:"address,omitempty"`
	Comune          string  `json:"comune,omitempty" yaml:"comune,omitempty"`
	ASL             string  `json:"asl,omitempty" yaml:"asl,omitempty"`
	Categoria       string  `json:"categoria,omitempty" yaml:"categoria,omitempty"`
	RiskScore       float64 `json:"risk_score,omitempty" yaml:"risk_score,omitempty"`
	LastInspection  string  `json:"last_inspection,omitempty" yaml:"last_inspection,omitempty"`
	Sanctions       int     `json:"sanctions,omitempty" yaml:"sanctions,omitempty"`
	Lat             float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lon             float64 `json:"lon,omitempty" yaml:"lon,omitempty"`
}

// Inspection is one past control at an establishment.
type Inspection struct {
	NumRegistration string `json:"num_registration" yaml:"num_registration"`
	Date            string `json:"date" yaml:"date"`
	Kind            string `json:"kind" yaml:"kind"`
	Outcome         string `json:"outcome" yaml:"outcome"`
	NonConformities int    `json:"non_conformities,omitempty" yaml:"non_conformities,omitempty"`
}

// ActivityRisk aggregates risk per activity category.
type ActivityRisk struct {
	Categoria string  `json:"categoria" yaml:"categoria"`
	AvgRisk   float64 `json:"avg_risk" yaml:"avg_risk"`
	Count     int     `json:"count" yaml:"count"`
}

// StaffMember is a contact in the staff directory.
type StaffMember struct {
	Name   string   `json:"name" yaml:"name"`
	Role   string   `json:"role" yaml:"role"`
	Unit   string   `json:"unit,omitempty" yaml:"unit,omitempty"`
	Topics []string `json:"topics,omitempty" yaml:"topics,omitempty"`
	Phone  string   `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email  string   `json:"email,omitempty" yaml:"email,omitempty"`
}

// Procedure is a documented operating procedure.
type Procedure struct {
	Topic     string `json:"topic" yaml:"topic"`
	Title     string `json:"title" yaml:"title"`
	Summary   string `json:"summary" yaml:"summary"`
	Reference string `json:"reference,omitempty" yaml:"reference,omitempty"`
}

// EstablishmentRef identifies an establishment by any of its keys.
type EstablishmentRef struct {
	NumRegistration string
	PartitaIVA      string
	RagioneSociale  string
}

// Datastore is the query surface the domain tools depend on. The asl
// argument, when non-empty, filters to the caller's territory.
type Datastore interface {
	Plan(ctx context.Context, code string) (Plan, error)
	Plans(ctx context.Context) ([]Plan, error)
	EstablishmentsByPlan(ctx context.Context, code string) ([]Establishment, error)

	NeverInspected(ctx context.Context, asl string) ([]Establishment, error)
	WithSanctions(ctx context.Context, asl string) ([]Establishment, error)
	RiskRanking(ctx context.Context, asl string, limit int) ([]Establishment, error)
	TopRiskActivities(ctx context.Context, asl string, limit int) ([]ActivityRisk, error)

	Establishment(ctx context.Context, ref EstablishmentRef) (Establishment, error)
	History(ctx context.Context, ref EstablishmentRef) ([]Inspection, error)
	Nearby(ctx context.Context, location string, radiusKm float64, limit int) ([]Establishment, error)

	StaffByTopic(ctx context.Context, topic string) ([]StaffMember, error)
	ProceduresByTopic(ctx context.Context, topic string) ([]Procedure, error)
}

// NotFoundError marks lookups with no matching record.
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return e.What + " " + e.Key + " non trovato"
}
