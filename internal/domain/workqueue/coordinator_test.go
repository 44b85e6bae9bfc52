package workqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gcasillas/clinical-imaging/internal/domain/admission"
	"github.com/gcasillas/clinical-imaging/internal/platform/dicomweb"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *admission.MemoryStore) {
	t.Helper()
	a, m := testDeps()
	store := admission.NewMemoryStore()
	catalog := NewStudyCatalog()
	catalog.Add(DemoStudy())
	return NewCoordinator(a, m, catalog, store, zerolog.Nop()), store
}

func seedAdmissions(t *testing.T, store admission.Store) {
	t.Helper()
	base := time.Date(2026, 2, 27, 9, 0, 0, 0, time.UTC)
	recs := []admission.Record{
		{ID: "PAT1", FullName: "JOHN DOE", Status: admission.StatusAdmitted, LastUpdated: base},
		{ID: "PAT2", FullName: "JANE DOE", Status: admission.StatusAdmitted, LastUpdated: base.Add(time.Minute)},
	}
	for _, r := range recs {
		if err := store.Upsert(context.Background(), r); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}
}

func TestCoordinator_Items(t *testing.T) {
	c, store := newTestCoordinator(t)
	seedAdmissions(t, store)

	items, err := c.Items(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		"study:1.2.840.113619.2.203.4.2147483647",
		"admission:PAT2",
		"admission:PAT1",
	}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(items))
	}
	for i, key := range want {
		if items[i].Key != key {
			t.Errorf("item %d: expected %q, got %q", i, key, items[i].Key)
		}
	}
	if items[0].Label != "CASILLAS, GABE" {
		t.Errorf("expected study label 'CASILLAS, GABE', got %q", items[0].Label)
	}
	if items[1].Status != "Admitted" || items[1].LastUpdated == nil {
		t.Errorf("expected admission status and timestamp, got %+v", items[1])
	}
}

func TestCoordinator_SelectAndToggle(t *testing.T) {
	c, _ := newTestCoordinator(t)
	id := c.Open()

	snap, err := c.SelectItem(context.Background(), id, "study:1.2.840.113619.2.203.4.2147483647")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if snap.ItemKey != "study:1.2.840.113619.2.203.4.2147483647" {
		t.Errorf("unexpected item key %q", snap.ItemKey)
	}

	snap, toggled, err := c.ToggleOverlay(id)
	if err != nil || !toggled {
		t.Fatalf("expected toggle, got toggled=%v err=%v", toggled, err)
	}
	if !snap.State.OverlayVisible() {
		t.Error("expected overlay shown")
	}

	got, err := c.Get(id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !got.State.OverlayVisible() {
		t.Error("expected stored state to keep the overlay")
	}
}

func TestCoordinator_SelectAdmission(t *testing.T) {
	c, store := newTestCoordinator(t)
	seedAdmissions(t, store)
	id := c.Open()

	snap, err := c.SelectItem(context.Background(), id, "admission:PAT2")
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	sel, _ := snap.State.Selected()
	if sel.Study.ID != "fhir-PAT2" {
		t.Errorf("expected fhir-PAT2, got %q", sel.Study.ID)
	}
	if _, toggled, _ := c.ToggleOverlay(id); toggled {
		t.Error("expected no overlay for a normal admission")
	}
}

func TestCoordinator_UnknownItem(t *testing.T) {
	c, _ := newTestCoordinator(t)
	id := c.Open()

	for _, key := range []string{"study:nope", "admission:nope", "series:1", "garbage", "study:"} {
		if _, err := c.SelectItem(context.Background(), id, key); !errors.Is(err, ErrUnknownItem) {
			t.Errorf("%q: expected ErrUnknownItem, got %v", key, err)
		}
	}
}

func TestCoordinator_SessionNotFound(t *testing.T) {
	c, _ := newTestCoordinator(t)
	missing := uuid.New()

	if _, err := c.Get(missing); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get: expected ErrSessionNotFound, got %v", err)
	}
	if _, _, err := c.ToggleOverlay(missing); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("ToggleOverlay: expected ErrSessionNotFound, got %v", err)
	}
	if err := c.Close(missing); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Close: expected ErrSessionNotFound, got %v", err)
	}
}

func TestCoordinator_Close(t *testing.T) {
	c, _ := newTestCoordinator(t)
	id := c.Open()
	if c.Sessions() != 1 {
		t.Fatalf("expected 1 session, got %d", c.Sessions())
	}
	if err := c.Close(id); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := c.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected closed session to be gone, got %v", err)
	}
}

func TestCoordinator_SessionsAreIsolated(t *testing.T) {
	c, store := newTestCoordinator(t)
	seedAdmissions(t, store)
	ctx := context.Background()

	viewerA := c.Open()
	viewerB := c.Open()
	if _, err := c.SelectItem(ctx, viewerA, "study:1.2.840.113619.2.203.4.2147483647"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.ToggleOverlay(viewerA); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SelectItem(ctx, viewerB, "admission:PAT1"); err != nil {
		t.Fatal(err)
	}

	a, _ := c.Get(viewerA)
	b, _ := c.Get(viewerB)
	if !a.State.OverlayVisible() {
		t.Error("expected viewer A overlay to survive viewer B's selection")
	}
	if b.State.OverlayVisible() {
		t.Error("expected viewer B overlay hidden")
	}
}

func TestCoordinator_ConcurrentToggles(t *testing.T) {
	c, _ := newTestCoordinator(t)
	id := c.Open()
	if _, err := c.SelectItem(context.Background(), id, "study:1.2.840.113619.2.203.4.2147483647"); err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.ToggleOverlay(id); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	snap, _ := c.Get(id)
	if snap.State.OverlayVisible() {
		t.Error("expected an even number of toggles to leave the overlay hidden")
	}
}

func TestCoordinator_AddStudy(t *testing.T) {
	c, _ := newTestCoordinator(t)
	md := dicomweb.Metadata{}.
		Set(dicomweb.TagPatientName, dicomweb.PersonNames("ROE, RICK")).
		Set(dicomweb.TagStudyInstanceUID, dicomweb.Strings("UI", "1.2.3.4"))

	item := c.AddStudy(md)
	if item.Key != "study:1.2.3.4" || item.Label != "ROE, RICK" {
		t.Errorf("unexpected item %+v", item)
	}

	items, _ := c.Items(context.Background())
	if len(items) != 2 || items[1].Key != "study:1.2.3.4" {
		t.Errorf("expected new study after the demo study, got %+v", items)
	}
}

func TestStudyCatalog_KeysAndReplace(t *testing.T) {
	cat := NewStudyCatalog()
	noUID := dicomweb.Metadata{}.Set(dicomweb.TagPatientName, dicomweb.PersonNames("A"))

	k1 := cat.Add(noUID)
	k2 := cat.Add(noUID)
	if k1 == k2 {
		t.Errorf("expected distinct keys for studies without a UID, got %q twice", k1)
	}

	uid := DemoStudy()
	cat.Add(uid)
	cat.Add(uid.Set(dicomweb.TagModality, dicomweb.Strings("CS", "CT")))
	if cat.Len() != 3 {
		t.Errorf("expected re-adding a UID to replace, got %d studies", cat.Len())
	}
	md, _ := cat.Get("1.2.840.113619.2.203.4.2147483647")
	if code, _ := md.String(dicomweb.TagModality); code != "CT" {
		t.Errorf("expected replaced modality CT, got %q", code)
	}
}

func TestProject(t *testing.T) {
	c, _ := newTestCoordinator(t)
	id := c.Open()

	idle, _ := c.Get(id)
	v := Project(idle)
	if v.Selected || v.Study != nil || v.OverlayAvailable {
		t.Errorf("expected empty view, got %+v", v)
	}
	if v.SessionID != id.String() {
		t.Errorf("expected session id %s, got %s", id, v.SessionID)
	}

	snap, _ := c.SelectItem(context.Background(), id, "study:1.2.840.113619.2.203.4.2147483647")
	v = Project(snap)
	if !v.Selected || !v.OverlayAvailable || v.OverlayVisible {
		t.Errorf("unexpected view flags %+v", v)
	}
	if v.MRN != "fhir-1.2.840.11" {
		t.Errorf("expected MRN excerpt 'fhir-1.2.840.11', got %q", v.MRN)
	}
	if v.Finding == nil || v.Finding.Segmentation == nil {
		t.Error("expected finding with segmentation")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("fhir-PAT1", 15); got != "fhir-PAT1" {
		t.Errorf("expected short id unchanged, got %q", got)
	}
	if got := truncate("fhir-TEMP_1772186400000", 15); got != "fhir-TEMP_17721" {
		t.Errorf("unexpected truncation %q", got)
	}
}
