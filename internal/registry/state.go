// Package registry implements the shared, concurrency-safe state one task
// universe (generate or embed) exposes: the endpoint list, per-endpoint
// health records, per-endpoint model lists, and the inverted model-to-
// endpoint routing index used to select and rotate upstreams.
//
// Lock ordering, when more than one of the three locks is held at once, is
// always: endpoints -> health -> index. The per-endpoint model map is an
// xsync.Map and takes no lock of its own. No operation ever holds locks
// belonging to two different task universes at the same time.
package registry

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

// State is one task universe's shared state. The zero value is not usable;
// construct with New.
type State struct {
	endpointsMu sync.RWMutex
	endpoints   []domain.Endpoint
	endpointIdx map[string]domain.Endpoint // url -> descriptor, rebuilt on Replace

	healthMu sync.Mutex
	health   map[string]domain.HealthRecord

	models *xsync.Map[string, []domain.ModelInfo] // url -> last reported model list

	indexMu sync.Mutex
	index   map[string][]string // model id -> ordered endpoint urls
}

func New() *State {
	return &State{
		endpointIdx: make(map[string]domain.Endpoint),
		health:      make(map[string]domain.HealthRecord),
		models:      xsync.NewMap[string, []domain.ModelInfo](),
		index:       make(map[string][]string),
	}
}

// Endpoints returns a snapshot of the currently configured endpoints.
func (s *State) Endpoints() []domain.Endpoint {
	s.endpointsMu.RLock()
	defer s.endpointsMu.RUnlock()
	out := make([]domain.Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}

// EndpointByURL returns the endpoint descriptor for a URL, if still configured.
func (s *State) EndpointByURL(url string) (domain.Endpoint, bool) {
	s.endpointsMu.RLock()
	defer s.endpointsMu.RUnlock()
	ep, ok := s.endpointIdx[url]
	return ep, ok
}

// Replace atomically swaps the endpoint list and clears every dependent
// map, exactly as /reload requires: old monitors detect their endpoint has
// vanished from this list on their next presence check and self-terminate;
// new monitors are the caller's responsibility to spawn.
func (s *State) Replace(endpoints []domain.Endpoint) {
	idx := make(map[string]domain.Endpoint, len(endpoints))
	for _, ep := range endpoints {
		idx[ep.URL] = ep
	}

	s.endpointsMu.Lock()
	s.endpoints = endpoints
	s.endpointIdx = idx
	s.endpointsMu.Unlock()

	s.healthMu.Lock()
	s.health = make(map[string]domain.HealthRecord)
	s.healthMu.Unlock()

	s.models.Range(func(url string, _ []domain.ModelInfo) bool {
		s.models.Delete(url)
		return true
	})

	s.indexMu.Lock()
	s.index = make(map[string][]string)
	s.indexMu.Unlock()
}

// RecordHealth applies a fresh probe outcome, mirroring the monitor's
// entry-or-insert update. changed reports whether the endpoint's routable
// status flipped, so callers can decide whether to log.
func (s *State) RecordHealth(url string, probe domain.HealthStatus, latencyMs int64, now time.Time, configuredInterval time.Duration) (domain.HealthRecord, bool) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	current, hasRecord := s.health[url]
	next := current.Next(hasRecord, probe, latencyMs, now, configuredInterval)
	s.health[url] = next

	changed := hasRecord && current.Status != next.Status
	return next, changed
}

// Health returns a snapshot of every endpoint's current health record.
func (s *State) Health() map[string]domain.HealthRecord {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	out := make(map[string]domain.HealthRecord, len(s.health))
	for k, v := range s.health {
		out[k] = v
	}
	return out
}

// HealthOf returns a single endpoint's health record, and whether one exists.
func (s *State) HealthOf(url string) (domain.HealthRecord, bool) {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	rec, ok := s.health[url]
	return rec, ok
}

// SetModels reconciles the model set an endpoint just reported against what
// it previously reported: ids present only in the new set are added to the
// inverted index, ids present only in the old set are removed from it.
func (s *State) SetModels(url string, models []domain.ModelInfo) {
	current, _ := s.models.Load(url)

	currentIDs := modelIDSet(current)
	newIDs := modelIDSet(models)

	var toAdd, toRemove []string
	for id := range newIDs {
		if _, ok := currentIDs[id]; !ok {
			toAdd = append(toAdd, id)
		}
	}
	for id := range currentIDs {
		if _, ok := newIDs[id]; !ok {
			toRemove = append(toRemove, id)
		}
	}

	s.models.Store(url, models)

	if len(toAdd) == 0 && len(toRemove) == 0 {
		return
	}

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	for _, id := range toAdd {
		list := s.index[id]
		if !containsStr(list, url) {
			s.index[id] = append(list, url)
		}
	}
	for _, id := range toRemove {
		list := s.index[id]
		list = removeStr(list, url)
		if len(list) == 0 {
			delete(s.index, id)
		} else {
			s.index[id] = list
		}
	}
}

// ClearModels removes an endpoint entirely from the model map and every
// inverted index entry it appeared in, used when a health probe fails.
func (s *State) ClearModels(url string) {
	s.models.Delete(url)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	for id, list := range s.index {
		filtered := removeStr(list, url)
		if len(filtered) == 0 {
			delete(s.index, id)
		} else {
			s.index[id] = filtered
		}
	}
}

// ModelsOf returns the model list an endpoint last reported.
func (s *State) ModelsOf(url string) []domain.ModelInfo {
	models, _ := s.models.Load(url)
	return models
}

// AllModels returns every endpoint's reported model list, keyed by URL.
func (s *State) AllModels() map[string][]domain.ModelInfo {
	out := make(map[string][]domain.ModelInfo)
	s.models.Range(func(url string, models []domain.ModelInfo) bool {
		out[url] = models
		return true
	})
	return out
}

// EndpointsForModel returns the ordered candidate list for a model id.
func (s *State) EndpointsForModel(modelID string) []string {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	list := s.index[modelID]
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// ModelToEndpoints returns the full inverted index.
func (s *State) ModelToEndpoints() map[string][]string {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	out := make(map[string][]string, len(s.index))
	for id, list := range s.index {
		cp := make([]string, len(list))
		copy(cp, list)
		out[id] = cp
	}
	return out
}

// Rotate moves url to the tail of modelID's candidate list, unconditionally
// and regardless of upstream outcome, so the next request for this model
// prefers a different endpoint. No-op if the model or URL is absent.
func (s *State) Rotate(modelID, url string) {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()

	list := s.index[modelID]
	filtered := removeStr(list, url)
	if len(filtered) == len(list) {
		return // url wasn't present; nothing to rotate
	}
	s.index[modelID] = append(filtered, url)
}

func modelIDSet(models []domain.ModelInfo) map[string]struct{} {
	set := make(map[string]struct{}, len(models))
	for _, m := range models {
		if id, ok := m.ID(); ok {
			set[id] = struct{}{}
		}
	}
	return set
}

func containsStr(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}

func removeStr(list []string, target string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
