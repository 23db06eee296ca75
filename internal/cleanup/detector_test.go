package cleanup

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/rpattn/histprune/internal/domain"
)

var detectorBase = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func widgetModel() domain.TrackedModel {
	return domain.TrackedModel{
		Name:         "widget",
		Table:        "widgets",
		HistoryTable: "widgets_history",
		Fields: []domain.FieldDefinition{
			{Name: "state", Type: domain.FieldTypeString},
		},
	}
}

func widgetVersion(entityID, versionID int64, minute int, state string, kind domain.ChangeKind) domain.VersionRecord {
	return domain.VersionRecord{
		Model:      "widget",
		EntityID:   entityID,
		VersionID:  versionID,
		RecordedAt: detectorBase.Add(time.Duration(minute) * time.Minute),
		ChangeKind: kind,
		Fields:     map[string]any{"state": state},
	}
}

func sortedIDs(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func assertIDs(t *testing.T, got []int64, want ...int64) {
	t.Helper()
	gotSorted := sortedIDs(got)
	if len(gotSorted) != len(want) {
		t.Fatalf("expected duplicates %v, got %v", want, gotSorted)
	}
	for i := range want {
		if gotSorted[i] != want[i] {
			t.Fatalf("expected duplicates %v, got %v", want, gotSorted)
		}
	}
}

// Entity 7, newest first: V5 state X, V4 state X, V3 state Y, V2 state Y,
// V1 state Y (created). The X run collapses onto V5, the Y run collapses onto
// V3 with V1 kept as the creation anchor, so exactly V4 and V2 are redundant.
func entitySevenFixture() []domain.VersionRecord {
	return []domain.VersionRecord{
		widgetVersion(7, 1, 1, "Y", domain.ChangeKindCreated),
		widgetVersion(7, 2, 2, "Y", domain.ChangeKindUpdated),
		widgetVersion(7, 3, 3, "Y", domain.ChangeKindUpdated),
		widgetVersion(7, 4, 4, "X", domain.ChangeKindUpdated),
		widgetVersion(7, 5, 5, "X", domain.ChangeKindUpdated),
	}
}

func fullRange() domain.IDRange {
	return domain.IDRange{Start: 0, End: DefaultStepSize}
}

func TestDetectorFindDuplicates_CollapsesRuns(t *testing.T) {
	repo := newStubHistoryRepo(entitySevenFixture()...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	ids, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, ids, 2, 4)
}

func TestDetectorFindDuplicates_ThreeWayRunKeepsSingleSurvivor(t *testing.T) {
	// Newest first: A, A, A, D. Both interior rows of the A run are flagged;
	// only the newest A and the anchoring D remain.
	repo := newStubHistoryRepo(
		widgetVersion(3, 10, 1, "D", domain.ChangeKindCreated),
		widgetVersion(3, 11, 2, "A", domain.ChangeKindUpdated),
		widgetVersion(3, 12, 3, "A", domain.ChangeKindUpdated),
		widgetVersion(3, 13, 4, "A", domain.ChangeKindUpdated),
	)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	ids, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, ids, 11, 12)
}

func TestDetectorFindDuplicates_OldestVersionNeverFlagged(t *testing.T) {
	repo := newStubHistoryRepo(
		widgetVersion(9, 20, 1, "A", domain.ChangeKindCreated),
		widgetVersion(9, 21, 2, "A", domain.ChangeKindUpdated),
		widgetVersion(9, 22, 3, "A", domain.ChangeKindUpdated),
	)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	ids, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, ids, 21)
	for _, id := range ids {
		if id == 20 {
			t.Fatalf("creation anchor must never be flagged")
		}
	}
}

func TestDetectorFindDuplicates_Idempotent(t *testing.T) {
	repo := newStubHistoryRepo(entitySevenFixture()...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	ids, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.DeleteVersions(context.Background(), widgetModel(), ids); err != nil {
		t.Fatalf("failed to delete: %v", err)
	}

	again, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second pass flagged %v, expected none", again)
	}
}

func TestDetectorFindDuplicates_RespectsIDRange(t *testing.T) {
	records := append(entitySevenFixture(),
		widgetVersion(150_007, 30, 1, "Z", domain.ChangeKindCreated),
		widgetVersion(150_007, 31, 2, "Z", domain.ChangeKindUpdated),
		widgetVersion(150_007, 32, 3, "Z", domain.ChangeKindUpdated),
	)
	repo := newStubHistoryRepo(records...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	ids, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, ids, 2, 4)

	ids, err = detector.FindDuplicates(context.Background(), domain.IDRange{Start: 100_000, End: 200_000}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, ids, 31)
}

func TestDetectorFindDuplicates_UnorderedInput(t *testing.T) {
	fixture := entitySevenFixture()
	shuffled := []domain.VersionRecord{fixture[3], fixture[0], fixture[4], fixture[2], fixture[1]}
	repo := newStubHistoryRepo(shuffled...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	ids, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, ids, 2, 4)
}

// With a cutoff between the first and second save of an unchanged entity, the
// second save is still redundant: the row just before the window proves the
// oldest in-window row is not the creation anchor.
func TestDetectorFindDuplicates_WindowBoundary(t *testing.T) {
	records := []domain.VersionRecord{
		widgetVersion(5, 40, 0, "A", domain.ChangeKindCreated),
		widgetVersion(5, 41, 10, "A", domain.ChangeKindUpdated),
		widgetVersion(5, 42, 20, "A", domain.ChangeKindUpdated),
	}
	repo := newStubHistoryRepo(records...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	full, err := detector.FindDuplicates(context.Background(), fullRange(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, full, 41)

	cutoff := detectorBase.Add(5 * time.Minute)
	windowed, err := detector.FindDuplicates(context.Background(), fullRange(), &cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertIDs(t, windowed, 41)
}

func TestDetectorFindDuplicates_WindowWithoutPreWindowRow(t *testing.T) {
	// The entity's first save is inside the window, so the oldest in-window row
	// really is the creation anchor and stays.
	records := []domain.VersionRecord{
		widgetVersion(6, 50, 10, "A", domain.ChangeKindCreated),
		widgetVersion(6, 51, 20, "A", domain.ChangeKindUpdated),
	}
	repo := newStubHistoryRepo(records...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	cutoff := detectorBase.Add(5 * time.Minute)
	ids, err := detector.FindDuplicates(context.Background(), fullRange(), &cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no duplicates, got %v", ids)
	}
}

func TestDetectorFindDuplicates_PreWindowRowNeverFlagged(t *testing.T) {
	records := []domain.VersionRecord{
		widgetVersion(8, 60, 0, "A", domain.ChangeKindCreated),
		widgetVersion(8, 61, 1, "A", domain.ChangeKindUpdated),
		widgetVersion(8, 62, 10, "A", domain.ChangeKindUpdated),
		widgetVersion(8, 63, 20, "B", domain.ChangeKindUpdated),
	}
	repo := newStubHistoryRepo(records...)
	detector, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	cutoff := detectorBase.Add(5 * time.Minute)
	ids, err := detector.FindDuplicates(context.Background(), fullRange(), &cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Row 61 matches its newer neighbour, but it lies before the window and may
	// only take part in comparisons, never in deletions.
	if len(ids) != 0 {
		t.Fatalf("expected no duplicates, got %v", ids)
	}
}

func TestDetectorFindDuplicates_WindowedMatchesPortable(t *testing.T) {
	records := append(entitySevenFixture(),
		widgetVersion(11, 70, 0, "A", domain.ChangeKindCreated),
		widgetVersion(11, 71, 10, "A", domain.ChangeKindUpdated),
		widgetVersion(11, 72, 20, "A", domain.ChangeKindUpdated),
		widgetVersion(11, 73, 30, "B", domain.ChangeKindUpdated),
	)
	repo := newStubHistoryRepo(records...)

	portable, err := NewDetector(repo, widgetModel(), false)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}
	windowed, err := NewDetector(repo, widgetModel(), true)
	if err != nil {
		t.Fatalf("failed to build detector: %v", err)
	}

	cutoffs := []*time.Time{nil}
	boundary := detectorBase.Add(5 * time.Minute)
	cutoffs = append(cutoffs, &boundary)

	for _, cutoff := range cutoffs {
		fromScan, err := portable.FindDuplicates(context.Background(), fullRange(), cutoff)
		if err != nil {
			t.Fatalf("portable scan failed: %v", err)
		}
		fromWindow, err := windowed.FindDuplicates(context.Background(), fullRange(), cutoff)
		if err != nil {
			t.Fatalf("windowed scan failed: %v", err)
		}

		scanIDs := sortedIDs(fromScan)
		windowIDs := sortedIDs(fromWindow)
		if len(scanIDs) != len(windowIDs) {
			t.Fatalf("strategies disagree: scan=%v window=%v", scanIDs, windowIDs)
		}
		for i := range scanIDs {
			if scanIDs[i] != windowIDs[i] {
				t.Fatalf("strategies disagree: scan=%v window=%v", scanIDs, windowIDs)
			}
		}
	}
}

func TestNewDetector_NoTrackedFields(t *testing.T) {
	model := domain.TrackedModel{
		Name:         "bare",
		HistoryTable: "bare_history",
	}
	if _, err := NewDetector(newStubHistoryRepo(), model, false); !errors.Is(err, domain.ErrNoTrackedFields) {
		t.Fatalf("expected ErrNoTrackedFields, got %v", err)
	}
}
