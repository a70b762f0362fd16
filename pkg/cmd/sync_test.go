package cmd

import (
	"testing"

	"github.com/cortexlog/cortexlog/pkg/syncer"
)

func TestPrintSyncResultSuccess(t *testing.T) {
	result := syncer.Result{
		Success:            true,
		SessionsDiscovered: 5,
		SessionsProcessed:  5,
		MessagesInserted:   42,
	}
	if err := printSyncResult(result, false, false); err != nil {
		t.Errorf("printSyncResult(success): %v", err)
	}
}

func TestPrintSyncResultWithErrorsReturnsValidationError(t *testing.T) {
	result := syncer.Result{
		SessionsDiscovered: 3,
		SessionsProcessed:  2,
		Errors:             []syncer.SyncError{{SessionID: "s1", Message: "malformed json at line 4"}},
	}
	err := printSyncResult(result, false, false)
	if err == nil {
		t.Fatal("printSyncResult: expected error when result has session errors")
	}
}

func TestPrintSyncResultQuietMode(t *testing.T) {
	result := syncer.Result{Success: true, SessionsDiscovered: 1, SessionsProcessed: 1}
	if err := printSyncResult(result, true, false); err != nil {
		t.Errorf("printSyncResult(quiet): %v", err)
	}
}

func TestPrintSyncResultAborted(t *testing.T) {
	result := syncer.Result{Aborted: true, SessionsDiscovered: 10, SessionsProcessed: 4}
	if err := printSyncResult(result, false, true); err != nil {
		t.Errorf("printSyncResult(aborted): %v", err)
	}
}
