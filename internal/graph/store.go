package graph

import (
	"sort"
	"strings"
	"sync"
)

// Store holds the knowledge graph. All mutation happens through UpsertUnit
// and RemoveUnit, which replace one source unit's contribution atomically:
// a reader never observes a unit half-retracted or half-applied.
//
// Claims whose target name is not declared anywhere materialize as edges to
// an unresolved placeholder entity. The moment a matching declaration
// arrives, those edges are rewritten to the real entity, regardless of the
// order units were indexed in.
type Store struct {
	mu sync.RWMutex

	entities     map[string]Entity // declared entities by ID
	placeholders map[string]Entity // unresolved placeholders by ID

	byQName map[string]string          // qualified name -> declared entity ID
	byName  map[string]map[string]bool // simple name -> declared entity IDs

	owners map[string]map[string]bool // entity ID -> unit IDs declaring it
	units  map[string]*unitState

	claims         map[claimKey]*claimState
	claimsByTarget map[string]map[claimKey]bool // raw target name -> claims

	out map[string]map[claimKey]bool // source entity ID -> claims
	in  map[string]map[claimKey]bool // materialized target ID -> claims
}

type unitState struct {
	entityIDs []string
	claims    []Claim
}

type claimKey struct {
	from   string
	target string
	kind   RelationKind
}

type claimState struct {
	claim  Claim
	owners map[string]bool
	to     string // current materialized target entity ID
}

// UnitContribution is one unit's recorded share of the graph, used by the
// persistence layer to survive restarts with per-unit replace semantics.
type UnitContribution struct {
	UnitID   string
	Entities []Entity
	Claims   []Claim
}

// NewStore creates an empty graph store.
func NewStore() *Store {
	return &Store{
		entities:       make(map[string]Entity),
		placeholders:   make(map[string]Entity),
		byQName:        make(map[string]string),
		byName:         make(map[string]map[string]bool),
		owners:         make(map[string]map[string]bool),
		units:          make(map[string]*unitState),
		claims:         make(map[claimKey]*claimState),
		claimsByTarget: make(map[string]map[claimKey]bool),
		out:            make(map[string]map[claimKey]bool),
		in:             make(map[string]map[claimKey]bool),
	}
}

// UpsertUnit replaces the unit's previous contribution with the given
// entities and claims. Re-applying an identical contribution is a no-op in
// terms of resulting graph state.
func (s *Store) UpsertUnit(unitID string, entities []Entity, claims []Claim) error {
	if err := validateContribution(unitID, entities, claims); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeUnitLocked(unitID)

	st := &unitState{}
	for _, e := range entities {
		s.addEntityLocked(unitID, e)
		st.entityIDs = append(st.entityIDs, e.ID)
	}
	for _, c := range claims {
		s.addClaimLocked(unitID, c)
		st.claims = append(st.claims, c)
	}
	s.units[unitID] = st

	// New declarations may satisfy references contributed by other units.
	for _, e := range entities {
		s.resolveClaimsTargetingLocked(e.QualifiedName)
		s.resolveClaimsTargetingLocked(e.Name)
	}
	return nil
}

// RemoveUnit retracts the unit's contribution. Entities still referenced by
// name from other units demote back to unresolved placeholders rather than
// leaving dangling edges.
func (s *Store) RemoveUnit(unitID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeUnitLocked(unitID)
}

// Promote re-resolves every claim currently pointing at a placeholder and
// returns how many edges were promoted to real entities. It is idempotent
// and safe to run at any time.
func (s *Store) Promote() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	promoted := 0
	for _, cs := range s.claims {
		if _, isPH := s.placeholders[cs.to]; !isPH {
			continue
		}
		if s.rematerializeLocked(cs) {
			promoted++
		}
	}
	return promoted
}

// Lookup returns the entity for an ID, including placeholders.
func (s *Store) Lookup(id string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e, ok := s.entities[id]; ok {
		return e, true
	}
	e, ok := s.placeholders[id]
	return e, ok
}

// ByQualifiedName returns the declared entity with the given qualified name.
func (s *Store) ByQualifiedName(name string) (Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byQName[name]
	if !ok {
		return Entity{}, false
	}
	return s.entities[id], true
}

// ByName returns all declared entities with the given simple name, ordered
// by qualified name.
func (s *Store) ByName(name string) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Entity
	for id := range s.byName[name] {
		result = append(result, s.entities[id])
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].QualifiedName < result[j].QualifiedName
	})
	return result
}

// Neighbors returns the edges touching the entity, filtered by relation kind
// (nil means all kinds) and direction, in deterministic order.
func (s *Store) Neighbors(id string, kinds []RelationKind, dir Direction) []Edge {
	allowed := map[RelationKind]bool{}
	for _, k := range kinds {
		allowed[k] = true
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[Edge]bool{}
	var edges []Edge
	collect := func(keys map[claimKey]bool) {
		for k := range keys {
			cs := s.claims[k]
			if cs == nil {
				continue
			}
			if len(allowed) > 0 && !allowed[k.kind] {
				continue
			}
			e := Edge{From: cs.claim.From, To: cs.to, Kind: k.kind}
			if !seen[e] {
				seen[e] = true
				edges = append(edges, e)
			}
		}
	}
	if dir == DirOut || dir == DirBoth {
		collect(s.out[id])
	}
	if dir == DirIn || dir == DirBoth {
		collect(s.in[id])
	}
	sortEdges(edges)
	return edges
}

// Edges returns all materialized edges, deduplicated and ordered.
func (s *Store) Edges() []Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[Edge]bool{}
	var edges []Edge
	for _, cs := range s.claims {
		e := Edge{From: cs.claim.From, To: cs.to, Kind: cs.claim.Kind}
		if !seen[e] {
			seen[e] = true
			edges = append(edges, e)
		}
	}
	sortEdges(edges)
	return edges
}

// Units returns every unit's recorded contribution, ordered by unit ID.
func (s *Store) Units() []UnitContribution {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []UnitContribution
	for unitID, st := range s.units {
		uc := UnitContribution{UnitID: unitID}
		for _, id := range st.entityIDs {
			if e, ok := s.entities[id]; ok {
				uc.Entities = append(uc.Entities, e)
			}
		}
		uc.Claims = append(uc.Claims, st.claims...)
		out = append(out, uc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

// UnresolvedNames lists the names currently standing as placeholders.
func (s *Store) UnresolvedNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for _, ph := range s.placeholders {
		names = append(names, ph.QualifiedName)
	}
	sort.Strings(names)
	return names
}

// Stats counts graph contents by kind.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{Unresolved: len(s.placeholders), Units: len(s.units)}
	for _, e := range s.entities {
		switch e.Kind {
		case KindPackage:
			st.Packages++
		case KindClass:
			st.Classes++
		case KindInterface:
			st.Interfaces++
		case KindEnum:
			st.Enums++
		case KindMethod:
			st.Methods++
		case KindField:
			st.Fields++
		}
	}
	seen := map[Edge]bool{}
	for _, cs := range s.claims {
		seen[Edge{From: cs.claim.From, To: cs.to, Kind: cs.claim.Kind}] = true
	}
	st.Edges = len(seen)
	return st
}

// --- internal, caller holds write lock ---

func (s *Store) addEntityLocked(unitID string, e Entity) {
	if _, exists := s.entities[e.ID]; !exists {
		s.byQName[e.QualifiedName] = e.ID
		if s.byName[e.Name] == nil {
			s.byName[e.Name] = make(map[string]bool)
		}
		s.byName[e.Name][e.ID] = true
	}
	// Last write wins for attributes; the ID is a pure function of kind
	// and qualified name, so the index entries stay valid.
	s.entities[e.ID] = e
	if s.owners[e.ID] == nil {
		s.owners[e.ID] = make(map[string]bool)
	}
	s.owners[e.ID][unitID] = true
}

func (s *Store) addClaimLocked(unitID string, c Claim) {
	k := claimKey{from: c.From, target: c.Target, kind: c.Kind}
	cs, ok := s.claims[k]
	if !ok {
		cs = &claimState{claim: c, owners: make(map[string]bool)}
		s.claims[k] = cs
		if s.out[c.From] == nil {
			s.out[c.From] = make(map[claimKey]bool)
		}
		s.out[c.From][k] = true
		if s.claimsByTarget[c.Target] == nil {
			s.claimsByTarget[c.Target] = make(map[claimKey]bool)
		}
		s.claimsByTarget[c.Target][k] = true
		cs.to = s.materializeTargetLocked(c.Target)
		s.linkInLocked(k, cs.to)
	}
	cs.owners[unitID] = true
}

func (s *Store) removeUnitLocked(unitID string) {
	st, ok := s.units[unitID]
	if !ok {
		return
	}
	delete(s.units, unitID)

	for _, c := range st.claims {
		k := claimKey{from: c.From, target: c.Target, kind: c.Kind}
		cs := s.claims[k]
		if cs == nil {
			continue
		}
		delete(cs.owners, unitID)
		if len(cs.owners) > 0 {
			continue
		}
		delete(s.claims, k)
		s.unlink(s.out, c.From, k)
		s.unlinkInLocked(k, cs.to)
		if tk := s.claimsByTarget[c.Target]; tk != nil {
			delete(tk, k)
			if len(tk) == 0 {
				delete(s.claimsByTarget, c.Target)
			}
		}
	}

	for _, id := range st.entityIDs {
		own := s.owners[id]
		if own == nil {
			continue
		}
		delete(own, unitID)
		if len(own) > 0 {
			continue
		}
		e := s.entities[id]
		delete(s.owners, id)
		delete(s.entities, id)
		if ids := s.byName[e.Name]; ids != nil {
			delete(ids, id)
			if len(ids) == 0 {
				delete(s.byName, e.Name)
			}
		}
		// A different unit may declare the same qualified name under
		// another kind; the index must keep pointing at a survivor.
		if s.byQName[e.QualifiedName] == id {
			delete(s.byQName, e.QualifiedName)
			survivor := ""
			for cand := range s.byName[e.Name] {
				if s.entities[cand].QualifiedName != e.QualifiedName {
					continue
				}
				if survivor == "" || cand < survivor {
					survivor = cand
				}
			}
			if survivor != "" {
				s.byQName[e.QualifiedName] = survivor
			}
		}
		// Claims from other units that pointed here fall back to a
		// placeholder instead of dangling.
		keys := make([]claimKey, 0, len(s.in[id]))
		for k := range s.in[id] {
			keys = append(keys, k)
		}
		for _, k := range keys {
			if cs := s.claims[k]; cs != nil {
				s.rematerializeLocked(cs)
			}
		}
	}
}

// materializeTargetLocked resolves a claim target name to a declared entity,
// creating or reusing a placeholder when the name is unknown or ambiguous.
func (s *Store) materializeTargetLocked(target string) string {
	if id, ok := s.byQName[target]; ok {
		return id
	}
	if !strings.Contains(target, ".") {
		if ids := s.byName[target]; len(ids) == 1 {
			for id := range ids {
				return id
			}
		}
	}
	phID := PlaceholderID(target)
	if _, ok := s.placeholders[phID]; !ok {
		s.placeholders[phID] = Entity{
			ID:            phID,
			Kind:          KindUnresolved,
			Name:          SimpleName(target),
			QualifiedName: target,
		}
	}
	return phID
}

// rematerializeLocked re-resolves a claim's target and reports whether the
// materialized edge changed.
func (s *Store) rematerializeLocked(cs *claimState) bool {
	newTo := s.materializeTargetLocked(cs.claim.Target)
	if newTo == cs.to {
		return false
	}
	k := claimKey{from: cs.claim.From, target: cs.claim.Target, kind: cs.claim.Kind}
	s.unlinkInLocked(k, cs.to)
	cs.to = newTo
	s.linkInLocked(k, newTo)
	return true
}

func (s *Store) resolveClaimsTargetingLocked(name string) {
	for k := range s.claimsByTarget[name] {
		if cs := s.claims[k]; cs != nil {
			s.rematerializeLocked(cs)
		}
	}
}

func (s *Store) linkInLocked(k claimKey, to string) {
	if s.in[to] == nil {
		s.in[to] = make(map[claimKey]bool)
	}
	s.in[to][k] = true
}

func (s *Store) unlinkInLocked(k claimKey, to string) {
	s.unlink(s.in, to, k)
	if _, isPH := s.placeholders[to]; isPH && len(s.in[to]) == 0 {
		delete(s.placeholders, to)
		delete(s.in, to)
	}
}

func (s *Store) unlink(adj map[string]map[claimKey]bool, node string, k claimKey) {
	if set := adj[node]; set != nil {
		delete(set, k)
		if len(set) == 0 {
			delete(adj, node)
		}
	}
}

// validateContribution enforces the structural invariants every extraction
// result must satisfy. A violation indicates an extractor bug.
func validateContribution(unitID string, entities []Entity, claims []Claim) error {
	ids := make(map[string]Kind, len(entities))
	for _, e := range entities {
		if e.ID == "" || e.QualifiedName == "" {
			return consistencyErr(unitID, "entity %q has empty identity", e.Name)
		}
		ids[e.ID] = e.Kind
	}

	declaredIn := make(map[string]int)
	for _, c := range claims {
		if _, ok := ids[c.From]; !ok {
			return consistencyErr(unitID, "claim %s from undeclared entity %s", c.Kind, c.From)
		}
		if c.Kind == RelDeclaredIn {
			declaredIn[c.From]++
		}
	}
	for _, e := range entities {
		if e.Kind == KindPackage || e.Kind == KindUnresolved {
			continue
		}
		if n := declaredIn[e.ID]; n != 1 {
			return consistencyErr(unitID, "entity %s has %d DECLARED_IN claims, want 1", e.QualifiedName, n)
		}
	}
	return nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		if edges[i].To != edges[j].To {
			return edges[i].To < edges[j].To
		}
		return edges[i].Kind < edges[j].Kind
	})
}
