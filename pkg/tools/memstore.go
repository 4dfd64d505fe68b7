package tools

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// MemStore is the bundled Datastore: all records in memory, loaded from
// a YAML dataset at startup. Read-only after load, safe for concurrent
// use.
type MemStore struct {
	plans          map[string]Plan
	establishments map[string]Establishment
	inspections    map[string][]Inspection
	staff          []StaffMember
	procedures     []Procedure

	// comuni holds known locations for proximity queries.
	comuni map[string][2]float64
}

// Dataset is the YAML document shape for LoadDataset.
type Dataset struct {
	Plans          []Plan          `yaml:"plans"`
	Establishments []Establishment `yaml:"establishments"`
	Inspections    []Inspection    `yaml:"inspections"`
	Staff          []StaffMember   `yaml:"staff"`
	Procedures     []Procedure     `yaml:"procedures"`
	Comuni         []Comune        `yaml:"comuni"`
}

// Comune is a named location with coordinates.
type Comune struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// NewMemStore builds a store from an in-memory dataset.
func NewMemStore(ds Dataset) *MemStore {
	s := &MemStore{
		plans:          make(map[string]Plan, len(ds.Plans)),
		establishments: make(map[string]Establishment, len(ds.Establishments)),
		inspections:    make(map[string][]Inspection),
		staff:          ds.Staff,
		procedures:     ds.Procedures,
		comuni:         make(map[string][2]float64, len(ds.Comuni)),
	}
	for _, p := range ds.Plans {
		s.plans[strings.ToUpper(p.Code)] = p
	}
	for _, e := range ds.Establishments {
		s.establishments[e.NumRegistration] = e
	}
	for _, i := range ds.Inspections {
		s.inspections[i.NumRegistration] = append(s.inspections[i.NumRegistration], i)
	}
	for _, c := range ds.Comuni {
		s.comuni[strings.ToLower(c.Name)] = [2]float64{c.Lat, c.Lon}
	}
	return s
}

// LoadDataset reads and parses a YAML dataset file.
func LoadDataset(path string) (Dataset, error) {
	var ds Dataset
	data, err := os.ReadFile(path)
	if err != nil {
		return ds, fmt.Errorf("failed to read dataset: %w", err)
	}
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return ds, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return ds, nil
}

func (s *MemStore) Plan(_ context.Context, code string) (Plan, error) {
	p, ok := s.plans[strings.ToUpper(code)]
	if !ok {
		return Plan{}, &NotFoundError{What: "piano", Key: code}
	}
	return p, nil
}

func (s *MemStore) Plans(_ context.Context) ([]Plan, error) {
	out := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *MemStore) EstablishmentsByPlan(ctx context.Context, code string) ([]Establishment, error) {
	p, err := s.Plan(ctx, code)
	if err != nil {
		return nil, err
	}
	out := make([]Establishment, 0, len(p.EstablishmentIDs))
	for _, id := range p.EstablishmentIDs {
		if e, ok := s.establishments[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemStore) NeverInspected(_ context.Context, asl string) ([]Establishment, error) {
	var out []Establishment
	for _, e := range s.establishments {
		if len(s.inspections[e.NumRegistration]) == 0 && matchASL(e, asl) {
			out = append(out, e)
		}
	}
	sortByRegistration(out)
	return out, nil
}

func (s *MemStore) WithSanctions(_ context.Context, asl string) ([]Establishment, error) {
	var out []Establishment
	for _, e := range s.establishments {
		if e.Sanctions > 0 && matchASL(e, asl) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sanctions > out[j].Sanctions })
	return out, nil
}

func (s *MemStore) RiskRanking(_ context.Context, asl string, limit int) ([]Establishment, error) {
	var out []Establishment
	for _, e := range s.establishments {
		if matchASL(e, asl) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	return clamp(out, limit), nil
}

func (s *MemStore) TopRiskActivities(_ context.Context, asl string, limit int) ([]ActivityRisk, error) {
	sums := make(map[string]*ActivityRisk)
	for _, e := range s.establishments {
		if e.Categoria == "" || !matchASL(e, asl) {
			continue
		}
		agg, ok := sums[e.Categoria]
		if !ok {
			agg = &ActivityRisk{Categoria: e.Categoria}
			sums[e.Categoria] = agg
		}
		agg.AvgRisk += e.RiskScore
		agg.Count++
	}
	out := make([]ActivityRisk, 0, len(sums))
	for _, agg := range sums {
		agg.AvgRisk /= float64(agg.Count)
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgRisk > out[j].AvgRisk })
	return clamp(out, limit), nil
}

func (s *MemStore) Establishment(_ context.Context, ref EstablishmentRef) (Establishment, error) {
	if ref.NumRegistration != "" {
		if e, ok := s.establishments[ref.NumRegistration]; ok {
			return e, nil
		}
		return Establishment{}, &NotFoundError{What: "stabilimento", Key: ref.NumRegistration}
	}
	for _, e := range s.establishments {
		if ref.PartitaIVA != "" && e.PartitaIVA == ref.PartitaIVA {
			return e, nil
		}
		if ref.RagioneSociale != "" &&
			strings.Contains(strings.ToLower(e.RagioneSociale), strings.ToLower(ref.RagioneSociale)) {
			return e, nil
		}
	}
	key := ref.PartitaIVA
	if key == "" {
		key = ref.RagioneSociale
	}
	return Establishment{}, &NotFoundError{What: "stabilimento", Key: key}
}

func (s *MemStore) History(ctx context.Context, ref EstablishmentRef) ([]Inspection, error) {
	e, err := s.Establishment(ctx, ref)
	if err != nil {
		return nil, err
	}
	history := s.inspections[e.NumRegistration]
	sorted := make([]Inspection, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date > sorted[j].Date })
	return sorted, nil
}

func (s *MemStore) Nearby(_ context.Context, location string, radiusKm float64, limit int) ([]Establishment, error) {
	coords, ok := s.comuni[strings.ToLower(strings.TrimSpace(location))]
	if !ok {
		return nil, &NotFoundError{What: "luogo", Key: location}
	}
	if radiusKm <= 0 {
		radiusKm = 20
	}

	type withDist struct {
		e    Establishment
		dist float64
	}
	var candidates []withDist
	for _, e := range s.establishments {
		if e.Lat == 0 && e.Lon == 0 {
			continue
		}
		d := haversineKm(coords[0], coords[1], e.Lat, e.Lon)
		if d <= radiusKm {
			candidates = append(candidates, withDist{e: e, dist: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

	out := make([]Establishment, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.e)
	}
	return clamp(out, limit), nil
}

func (s *MemStore) StaffByTopic(_ context.Context, topic string) ([]StaffMember, error) {
	needle := strings.ToLower(topic)
	var out []StaffMember
	for _, m := range s.staff {
		for _, t := range m.Topics {
			if strings.Contains(strings.ToLower(t), needle) || strings.Contains(needle, strings.ToLower(t)) {
				out = append(out, m)
				break
			}
		}
	}
	return out, nil
}

// UnitFor resolves a staff member's organizational unit by name,
// case-insensitive. Backs the webhook's metadata enrichment.
func (s *MemStore) UnitFor(_ context.Context, username string) (string, bool) {
	needle := strings.ToLower(username)
	for _, m := range s.staff {
		if strings.Contains(strings.ToLower(m.Name), needle) && m.Unit != "" {
			return m.Unit, true
		}
	}
	return "", false
}

func (s *MemStore) ProceduresByTopic(_ context.Context, topic string) ([]Procedure, error) {
	needle := strings.ToLower(topic)
	var out []Procedure
	for _, p := range s.procedures {
		if strings.Contains(strings.ToLower(p.Topic), needle) ||
			strings.Contains(strings.ToLower(p.Title), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

func matchASL(e Establishment, asl string) bool {
	return asl == "" || strings.EqualFold(e.ASL, asl)
}

func sortByRegistration(items []Establishment) {
	sort.Slice(items, func(i, j int) bool { return items[i].NumRegistration < items[j].NumRegistration })
}

func clamp[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadiusKm = 6371
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

var _ Datastore = (*MemStore)(nil)
