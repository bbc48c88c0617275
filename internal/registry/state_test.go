package registry

import (
	"testing"
	"time"

	"github.com/arcbridge/gatekeeper/internal/core/domain"
)

func TestRecordHealth_FirstProbeFallsThroughToRepeatBranch(t *testing.T) {
	s := New()
	rec, changed := s.RecordHealth("http://e1", domain.StatusHealthy, 10, time.Now(), domain.MinCheckInterval)

	if changed {
		t.Errorf("first probe should never report a status change")
	}
	if rec.ConsecutiveChecks != 1 {
		t.Errorf("ConsecutiveChecks = %d, want 1", rec.ConsecutiveChecks)
	}
	want := domain.MinCheckInterval + 500*time.Millisecond
	if rec.CheckInterval != want {
		t.Errorf("CheckInterval = %v, want %v (initial+500ms quirk)", rec.CheckInterval, want)
	}
}

func TestRecordHealth_StatusFlipResetsInterval(t *testing.T) {
	s := New()
	s.RecordHealth("http://e1", domain.StatusHealthy, 10, time.Now(), domain.MinCheckInterval)
	s.RecordHealth("http://e1", domain.StatusHealthy, 10, time.Now(), domain.MinCheckInterval)

	rec, changed := s.RecordHealth("http://e1", domain.StatusUnhealthy, 0, time.Now(), domain.MinCheckInterval)
	if !changed {
		t.Errorf("expected status change to be reported")
	}
	if rec.ConsecutiveChecks != 1 || rec.CheckInterval != domain.MinCheckInterval {
		t.Errorf("got checks=%d interval=%v, want checks=1 interval=%v", rec.ConsecutiveChecks, rec.CheckInterval, domain.MinCheckInterval)
	}
}

func TestRecordHealth_IntervalNeverExceedsMax(t *testing.T) {
	s := New()
	var rec domain.HealthRecord
	for i := 0; i < 200; i++ {
		rec, _ = s.RecordHealth("http://e1", domain.StatusHealthy, 1, time.Now(), domain.MinCheckInterval)
	}
	if rec.CheckInterval > domain.MaxCheckInterval {
		t.Errorf("CheckInterval = %v exceeds max %v", rec.CheckInterval, domain.MaxCheckInterval)
	}
}

func someModel(id string) domain.ModelInfo {
	return domain.ModelInfo{"id": id}
}

func TestSetModels_ReconcilesInvertedIndex(t *testing.T) {
	s := New()
	s.SetModels("http://e1", []domain.ModelInfo{someModel("llama"), someModel("mistral")})

	if got := s.EndpointsForModel("llama"); len(got) != 1 || got[0] != "http://e1" {
		t.Fatalf("llama candidates = %v, want [http://e1]", got)
	}

	// llama dropped, mistral kept, gemma added
	s.SetModels("http://e1", []domain.ModelInfo{someModel("mistral"), someModel("gemma")})

	if got := s.EndpointsForModel("llama"); len(got) != 0 {
		t.Errorf("llama candidates after removal = %v, want empty", got)
	}
	if got := s.EndpointsForModel("mistral"); len(got) != 1 {
		t.Errorf("mistral candidates = %v, want len 1", got)
	}
	if got := s.EndpointsForModel("gemma"); len(got) != 1 {
		t.Errorf("gemma candidates = %v, want len 1", got)
	}
}

func TestSetModels_NoDuplicateURLOnRepeatReport(t *testing.T) {
	s := New()
	s.SetModels("http://e1", []domain.ModelInfo{someModel("llama")})
	s.SetModels("http://e1", []domain.ModelInfo{someModel("llama")})

	got := s.EndpointsForModel("llama")
	if len(got) != 1 {
		t.Fatalf("candidates = %v, want exactly one entry", got)
	}
}

func TestClearModels_RemovesFromEveryIndexEntry(t *testing.T) {
	s := New()
	s.SetModels("http://e1", []domain.ModelInfo{someModel("llama")})
	s.SetModels("http://e2", []domain.ModelInfo{someModel("llama")})

	s.ClearModels("http://e1")

	got := s.EndpointsForModel("llama")
	if len(got) != 1 || got[0] != "http://e2" {
		t.Fatalf("candidates after clear = %v, want [http://e2]", got)
	}
}

func TestRotate_PreservesOrderAndMovesToTail(t *testing.T) {
	s := New()
	s.SetModels("http://e1", []domain.ModelInfo{someModel("llama")})
	s.SetModels("http://e2", []domain.ModelInfo{someModel("llama")})
	s.SetModels("http://e3", []domain.ModelInfo{someModel("llama")})

	before := s.EndpointsForModel("llama")
	target := before[0]

	s.Rotate("llama", target)

	after := s.EndpointsForModel("llama")
	if len(after) != len(before) {
		t.Fatalf("rotation changed list length: %v -> %v", before, after)
	}
	if after[len(after)-1] != target {
		t.Errorf("rotated URL %s not at tail: %v", target, after)
	}
}

func TestReplace_ClearsAllDependentState(t *testing.T) {
	s := New()
	ep := domain.Endpoint{URL: "http://e1", Task: domain.TaskGenerate}
	s.Replace([]domain.Endpoint{ep})
	s.SetModels("http://e1", []domain.ModelInfo{someModel("llama")})
	s.RecordHealth("http://e1", domain.StatusHealthy, 1, time.Now(), domain.MinCheckInterval)

	s.Replace([]domain.Endpoint{})

	if got := s.Endpoints(); len(got) != 0 {
		t.Errorf("Endpoints after replace = %v, want empty", got)
	}
	if got := s.EndpointsForModel("llama"); len(got) != 0 {
		t.Errorf("index after replace = %v, want empty", got)
	}
	if _, ok := s.HealthOf("http://e1"); ok {
		t.Errorf("health record survived Replace")
	}
}
