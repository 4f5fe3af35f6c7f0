package cases

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/disasterlens/civicguard/internal/cgerr"
	"github.com/disasterlens/civicguard/internal/model"
	"github.com/disasterlens/civicguard/internal/store"
	"github.com/google/go-cmp/cmp"
)

// recordingDispatcher counts alert dispatches instead of delivering them.
type recordingDispatcher struct {
	mu    sync.Mutex
	cases []string
	fail  error
}

func (d *recordingDispatcher) DispatchCritical(_ context.Context, c *model.IncidentCase) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail != nil {
		return d.fail
	}
	d.cases = append(d.cases, c.ID)
	return nil
}

func (d *recordingDispatcher) dispatched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.cases...)
}

func newTestService(t *testing.T, opts Options) (*Service, *store.SQLiteStore, *recordingDispatcher) {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), t.TempDir()+"/cases.db")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dispatcher := &recordingDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, dispatcher, logger, opts), st, dispatcher
}

func makeCase(id string, risk model.RiskLevel) *model.IncidentCase {
	return &model.IncidentCase{
		ID:           id,
		Timestamp:    1700000000000,
		SourceEngine: model.SourceDisasterAI,
		ImageURL:     "data:image/jpeg;base64,/9j/AAA=",
		EvidenceType: model.EvidenceImage,
		Location: model.GeoLocation{
			Latitude:  17.6868,
			Longitude: 83.2185,
			Address:   "Beach Road",
		},
		Analysis: model.AIRiskAnalysis{
			HazardType:               "Flood",
			RiskLevel:                risk,
			ConfidenceScore:          0.9,
			ImpactSeverity:           7,
			ImpactRadius:             "2km",
			UrgencyLevel:             model.UrgencyHigh,
			SafetyRecommendation:     []string{"Move to higher ground"},
			HumanReadableExplanation: "Rising water near the shoreline.",
			RiskFactors:              []string{"storm surge"},
		},
		City:       "Visakhapatnam",
		ReporterID: "uid-citizen-abc",
	}
}

func TestCreateSetsDefaultsAndChecksum(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	c := makeCase("CASE-1", model.RiskHigh)
	c.Status = ""
	if err := svc.Create(ctx, c, "Mozilla/5.0"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Get(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want PENDING", got.Status)
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1", got.Revision)
	}
	if got.DeviceFingerprint != "Mozilla/5.0-SECURE-FINGERPRINT" {
		t.Errorf("DeviceFingerprint = %q", got.DeviceFingerprint)
	}
	if got.IntegrityChecksum == "" {
		t.Error("IntegrityChecksum not assigned")
	}
	if len(got.History) != 1 {
		t.Fatalf("got %d history entries, want 1", len(got.History))
	}
	if got.History[0].Status != model.StatusPending || got.History[0].User != "uid-citizen-abc" {
		t.Errorf("seed history entry = %+v", got.History[0])
	}
	if got.Location.City != "Visakhapatnam" {
		t.Errorf("Location.City = %q, want case city", got.Location.City)
	}
}

func TestCreateReplacesAndBumpsRevision(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	if err := svc.Create(ctx, makeCase("CASE-1", model.RiskLow), "agent"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	replacement := makeCase("CASE-1", model.RiskModerate)
	replacement.Remarks = "resubmitted"
	if err := svc.Create(ctx, replacement, "agent"); err != nil {
		t.Fatalf("second Create: %v", err)
	}

	all, err := svc.Query(ctx, "")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d cases, want 1", len(all))
	}
	if all[0].Revision != 2 {
		t.Errorf("Revision = %d, want 2 after replace", all[0].Revision)
	}
	if all[0].Remarks != "resubmitted" {
		t.Errorf("Remarks = %q, want replacement value", all[0].Remarks)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*model.IncidentCase)
		wantMsg string
	}{
		{"empty id", func(c *model.IncidentCase) { c.ID = "" }, "id"},
		{"unsupported city", func(c *model.IncidentCase) { c.City = "Atlantis" }, "city"},
		{"image without url", func(c *model.IncidentCase) { c.ImageURL = "" }, "imageUrl"},
		{"bad confidence", func(c *model.IncidentCase) { c.Analysis.ConfidenceScore = 1.5 }, "confidenceScore"},
		{"bad severity", func(c *model.IncidentCase) { c.Analysis.ImpactSeverity = 0 }, "impactSeverity"},
		{"bad risk level", func(c *model.IncidentCase) { c.Analysis.RiskLevel = "EXTREME" }, "riskLevel"},
		{"city mismatch", func(c *model.IncidentCase) { c.Location.City = "Mumbai" }, "location.city"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := makeCase("CASE-bad", model.RiskLow)
			tt.mutate(c)
			err := svc.Create(ctx, c, "agent")
			var vErr *cgerr.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Create error = %v, want ValidationError", err)
			}
		})
	}
}

func TestCreateVideoEvidence(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	c := makeCase("CASE-vid", model.RiskLow)
	c.EvidenceType = model.EvidenceVideo
	c.ImageURL = ""
	err := svc.Create(ctx, c, "agent")
	var vErr *cgerr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Create without videoUrl = %v, want ValidationError", err)
	}

	c.VideoURL = "data:video/mp4;base64,AAAA"
	if err := svc.Create(ctx, c, "agent"); err != nil {
		t.Fatalf("Create with videoUrl: %v", err)
	}
}

func TestCriticalCaseDispatchesOneAlert(t *testing.T) {
	svc, _, dispatcher := newTestService(t, Options{})
	ctx := context.Background()

	if err := svc.Create(ctx, makeCase("CASE-crit", model.RiskCritical), "agent"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Create(ctx, makeCase("CASE-low", model.RiskLow), "agent"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if diff := cmp.Diff([]string{"CASE-crit"}, dispatcher.dispatched()); diff != "" {
		t.Errorf("dispatched alerts mismatch (-want +got):\n%s", diff)
	}
}

func TestAlertFailureDoesNotFailCreate(t *testing.T) {
	svc, _, dispatcher := newTestService(t, Options{})
	dispatcher.fail = errors.New("gateway down")
	ctx := context.Background()

	if err := svc.Create(ctx, makeCase("CASE-crit", model.RiskCritical), "agent"); err != nil {
		t.Fatalf("Create with failing dispatcher: %v", err)
	}
	if _, err := svc.Get(ctx, "CASE-crit"); err != nil {
		t.Errorf("case not committed despite alert failure: %v", err)
	}
}

func TestGetDetectsTampering(t *testing.T) {
	svc, st, _ := newTestService(t, Options{})
	ctx := context.Background()

	if err := svc.Create(ctx, makeCase("CASE-1", model.RiskLow), "agent"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Rewrite the stored record behind the service's back.
	tampered, err := st.GetCase(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("GetCase: %v", err)
	}
	tampered.Remarks = "edited out of band"
	if err := st.UpsertCase(ctx, tampered); err != nil {
		t.Fatalf("UpsertCase: %v", err)
	}

	_, err = svc.Get(ctx, "CASE-1")
	var vErr *cgerr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("Get on tampered case = %v, want ValidationError", err)
	}
}

func TestUpdateStatus(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	submitted := makeCase("CASE-1", model.RiskHigh)
	submitted.Responder = "Unit 7"
	if err := svc.Create(ctx, submitted, "agent"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.UpdateStatus(ctx, "CASE-1", model.StatusAcknowledged, "Strategic Ops Commander", "verified on site"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := svc.Get(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != model.StatusAcknowledged {
		t.Errorf("Status = %q, want ACKNOWLEDGED", got.Status)
	}
	if got.Remarks != "verified on site" {
		t.Errorf("Remarks = %q", got.Remarks)
	}
	// Status updates touch status, remarks, and history only.
	if got.Responder != "Unit 7" {
		t.Errorf("Responder = %q, want unchanged", got.Responder)
	}
	if got.Revision != 2 {
		t.Errorf("Revision = %d, want 2", got.Revision)
	}
	if len(got.History) != 2 {
		t.Fatalf("got %d history entries, want 2", len(got.History))
	}
	last := got.History[len(got.History)-1]
	if last.Status != got.Status {
		t.Errorf("last history status %q does not match case status %q", last.Status, got.Status)
	}
	if last.User != "Strategic Ops Commander" {
		t.Errorf("last history user = %q", last.User)
	}

	logs, err := svc.QueryLogs(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(logs))
	}
	if logs[0].Action != model.ActionStatusUpdate {
		t.Errorf("Action = %q", logs[0].Action)
	}
	var details model.StatusUpdateDetails
	if err := json.Unmarshal(logs[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	want := model.StatusUpdateDetails{
		PreviousStatus: model.StatusPending,
		NewStatus:      model.StatusAcknowledged,
		Remarks:        "verified on site",
	}
	if diff := cmp.Diff(want, details); diff != "" {
		t.Errorf("details mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateStatusDefaultsRemarks(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	if err := svc.Create(ctx, makeCase("CASE-1", model.RiskHigh), "agent"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.UpdateStatus(ctx, "CASE-1", model.StatusResolved, "ops", ""); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	got, err := svc.Get(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	// Empty remarks leave the case remarks alone; only the audit entry
	// carries the placeholder.
	if got.Remarks != "" {
		t.Errorf("case Remarks = %q, want empty", got.Remarks)
	}
	logs, _ := svc.QueryLogs(ctx, "CASE-1")
	var details model.StatusUpdateDetails
	if err := json.Unmarshal(logs[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if details.Remarks != NoRemarks {
		t.Errorf("audit remarks = %q, want %q", details.Remarks, NoRemarks)
	}
}

func TestUpdateStatusMissingCase(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	err := svc.UpdateStatus(ctx, "CASE-ghost", model.StatusResolved, "ops", "")
	var nfErr *cgerr.NotFoundError
	if !errors.As(err, &nfErr) {
		t.Fatalf("UpdateStatus = %v, want NotFoundError", err)
	}

	// The failed update leaves no audit trace.
	logs, err := svc.QueryLogs(ctx, "")
	if err != nil {
		t.Fatalf("QueryLogs: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("got %d audit entries after failed update, want 0", len(logs))
	}
}

func TestUpdateStatusIgnoreMissing(t *testing.T) {
	svc, _, _ := newTestService(t, Options{IgnoreMissing: true})
	ctx := context.Background()

	if err := svc.UpdateStatus(ctx, "CASE-ghost", model.StatusResolved, "ops", ""); err != nil {
		t.Fatalf("UpdateStatus with IgnoreMissing = %v, want nil", err)
	}
	logs, _ := svc.QueryLogs(ctx, "")
	if len(logs) != 0 {
		t.Errorf("got %d audit entries after ignored update, want 0", len(logs))
	}
}

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})

	err := svc.UpdateStatus(context.Background(), "CASE-1", "ON_FIRE", "ops", "")
	var vErr *cgerr.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("UpdateStatus = %v, want ValidationError", err)
	}
}

func TestLegacySnapshotCasesReadableAfterImport(t *testing.T) {
	svc, st, _ := newTestService(t, Options{})
	ctx := context.Background()

	// Browser-era records carry short random checksums and no revision.
	legacy := makeCase("CASE-legacy", model.RiskLow)
	legacy.Status = model.StatusPending
	legacy.IntegrityChecksum = "k3j4h5"
	legacy.History = []model.StatusChange{
		{Status: model.StatusPending, Timestamp: legacy.Timestamp, User: "reporter"},
	}
	snapshot, err := json.Marshal(map[string]any{
		"global_incident_log": []*model.IncidentCase{legacy},
	})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	if err := st.ImportLegacy(ctx, bytes.NewReader(snapshot)); err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}

	got, err := svc.Get(ctx, "CASE-legacy")
	if err != nil {
		t.Fatalf("Get after import: %v", err)
	}
	if got.IntegrityChecksum == "k3j4h5" {
		t.Error("legacy checksum not resealed on import")
	}
	if got.Revision != 1 {
		t.Errorf("Revision = %d, want 1", got.Revision)
	}
}

// lockCheckingDispatcher records whether the service write lock was held
// while the alert was being delivered.
type lockCheckingDispatcher struct {
	svc              *Service
	lockedDuringSend bool
}

func (d *lockCheckingDispatcher) DispatchCritical(context.Context, *model.IncidentCase) error {
	if d.svc.mu.TryLock() {
		d.svc.mu.Unlock()
	} else {
		d.lockedDuringSend = true
	}
	return nil
}

func TestAlertDispatchReleasesWriteLock(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	d := &lockCheckingDispatcher{svc: svc}
	svc.dispatcher = d

	if err := svc.Create(context.Background(), makeCase("CASE-crit", model.RiskCritical), "agent"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if d.lockedDuringSend {
		t.Error("alert delivered while holding the write lock")
	}
}

func TestSecureAccessGranted(t *testing.T) {
	svc, _, _ := newTestService(t, Options{})
	ctx := context.Background()

	granted, err := svc.SecureAccessGranted(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("SecureAccessGranted: %v", err)
	}
	if granted {
		t.Error("granted before any grant was logged")
	}

	err = svc.LogAction(ctx, "CASE-1", model.ActionSecureAccessGranted, "Strategic Ops Commander", model.SecureAccessDetails{
		AdminUID: "uid-admin-ab123",
	})
	if err != nil {
		t.Fatalf("LogAction: %v", err)
	}

	granted, err = svc.SecureAccessGranted(ctx, "CASE-1")
	if err != nil {
		t.Fatalf("SecureAccessGranted: %v", err)
	}
	if !granted {
		t.Error("grant not visible after logging")
	}
}
