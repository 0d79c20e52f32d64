package state

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/koaarchive/koa/internal/tap"
)

func TestStore_ObserveAndSnapshotClone(t *testing.T) {
	var s Store

	before := time.Now()
	s.Observe(tap.JobStatus{
		JobID:      "job1",
		Phase:      tap.PhaseExecuting,
		Parameters: []tap.Parameter{{ID: "format", Value: "ipac"}},
	})

	snap := s.Snapshot()
	if !snap.HasJob || snap.Job.JobID != "job1" || snap.Job.Phase != tap.PhaseExecuting {
		t.Fatalf("snapshot job = %#v, want job1 EXECUTING", snap.Job)
	}
	if snap.LastUpdated.Before(before) {
		t.Fatalf("LastUpdated = %v, want >= %v", snap.LastUpdated, before)
	}
	if snap.LastError != nil || snap.Done {
		t.Fatalf("LastError/Done = %v/%v, want nil/false", snap.LastError, snap.Done)
	}

	// Returned snapshot should be independent of the stored one.
	snap.Job.Parameters[0].Value = "csv"
	snap.History[0].Phase = tap.PhaseAborted
	snap2 := s.Snapshot()
	if snap2.Job.Parameters[0].Value != "ipac" {
		t.Fatalf("Snapshot should clone parameters; got %q want ipac", snap2.Job.Parameters[0].Value)
	}
	if snap2.History[0].Phase != tap.PhaseExecuting {
		t.Fatalf("Snapshot should clone history; got %q", snap2.History[0].Phase)
	}
}

func TestStore_HistoryRecordsPhaseChangesOnly(t *testing.T) {
	var s Store

	for _, p := range []tap.Phase{tap.PhaseQueued, tap.PhaseQueued, tap.PhaseExecuting, tap.PhaseExecuting, tap.PhaseCompleted} {
		s.Observe(tap.JobStatus{JobID: "job1", Phase: p})
	}

	snap := s.Snapshot()
	var got []tap.Phase
	for _, h := range snap.History {
		got = append(got, h.Phase)
	}
	want := []tap.Phase{tap.PhaseQueued, tap.PhaseExecuting, tap.PhaseCompleted}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("history = %v, want %v", got, want)
	}
	if snap.Elapsed(snap.History[0].At.Add(3*time.Second)) != 3*time.Second {
		t.Fatalf("Elapsed did not measure from first phase")
	}
}

func TestStore_FinishWithErrorKeepsJob(t *testing.T) {
	var s Store

	s.Observe(tap.JobStatus{JobID: "job1", Phase: tap.PhaseError, ErrorSummary: "bad column"})
	origErr := errors.New("boom")
	s.Finish("", origErr)

	snap := s.Snapshot()
	if !snap.Done || snap.Job.ErrorSummary != "bad column" {
		t.Fatalf("snapshot = %#v, want done with job kept", snap)
	}
	if snap.LastError == nil || snap.LastError.Error() != "boom" {
		t.Fatalf("LastError = %v, want boom", snap.LastError)
	}
	if reflect.ValueOf(snap.LastError).Pointer() == reflect.ValueOf(origErr).Pointer() {
		t.Fatalf("Snapshot should clone error instance")
	}
}

func TestStore_ZeroValue(t *testing.T) {
	var s Store
	snap := s.Snapshot()
	if snap.HasJob || snap.Done || snap.Elapsed(time.Now()) != 0 {
		t.Fatalf("zero snapshot = %#v", snap)
	}
}

func TestStore_ReportKeepsRunning(t *testing.T) {
	var s Store

	s.Observe(tap.JobStatus{JobID: "job1", Phase: tap.PhaseExecuting})
	s.Report(errors.New("connection reset"))

	snap := s.Snapshot()
	if snap.Done {
		t.Fatalf("Report ended the run")
	}
	if snap.LastError == nil || snap.LastError.Error() != "connection reset" {
		t.Fatalf("LastError = %v, want connection reset", snap.LastError)
	}

	s.Observe(tap.JobStatus{JobID: "job1", Phase: tap.PhaseExecuting})
	if err := s.Snapshot().LastError; err != nil {
		t.Fatalf("LastError after successful poll = %v, want nil", err)
	}
}
