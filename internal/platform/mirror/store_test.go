package mirror

import (
	"reflect"
	"sync"
	"testing"

	"github.com/aimed/aimed/internal/domain/entity"
)

func sampleSnapshot() entity.Snapshot {
	return entity.Snapshot{
		Users:         []entity.User{{ID: "u1", Role: entity.RolePatient}},
		Appointments:  []entity.Appointment{{ID: "a1", Status: entity.StatusScheduled}},
		Messages:      []entity.Message{{ID: "m2", Timestamp: 20}, {ID: "m1", Timestamp: 10}},
		Prescriptions: []entity.Prescription{{ID: "p1", Token: "ABC123"}},
		Medications:   []entity.Medication{{ID: "med1", Name: "Dipirona"}},
		Vitals:        []entity.VitalSign{{ID: "v1", Timestamp: 1}, {ID: "v2", Timestamp: 2}},
		Alerts:        []entity.Alert{{ID: "al1", Timestamp: 1}, {ID: "al2", Timestamp: 5}},
	}
}

func TestStore_ReplaceInstallsEveryCollection(t *testing.T) {
	s := New()
	before := s.Version()
	s.Replace(sampleSnapshot())

	if s.Version() != before+1 {
		t.Errorf("expected version to advance by one, got %d", s.Version())
	}
	snap := s.Snapshot()
	if len(snap.Users) != 1 || len(snap.Appointments) != 1 || len(snap.Prescriptions) != 1 || len(snap.Medications) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Messages[0].ID != "m1" {
		t.Errorf("expected messages sorted ascending, got %+v", snap.Messages)
	}
	if snap.Vitals[0].ID != "v2" || snap.Alerts[0].ID != "al2" {
		t.Errorf("expected vitals and alerts newest first, got %+v / %+v", snap.Vitals, snap.Alerts)
	}
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	s := New()
	s.Replace(sampleSnapshot())
	snap := s.Snapshot()
	snap.Appointments[0].Status = entity.StatusCanceled
	if a, _ := s.Appointment("a1"); a.Status != entity.StatusScheduled {
		t.Error("mutating a snapshot must not change the store")
	}
}

func TestStore_Clear(t *testing.T) {
	s := New()
	s.Replace(sampleSnapshot())
	s.Clear()
	if !s.Snapshot().Empty() {
		t.Error("expected all collections to be empty")
	}
}

func TestStore_ClearDropsWritesFromEarlierEpoch(t *testing.T) {
	s := New()
	s.Replace(sampleSnapshot())
	epoch := s.Epoch()
	s.Replace(sampleSnapshot())
	if s.Epoch() != epoch {
		t.Fatal("Replace must not start a new epoch")
	}

	s.Clear()
	v := s.Version()
	if s.AppendAppointment(epoch, entity.Appointment{ID: "late"}) {
		t.Error("expected append from a cleared epoch to be dropped")
	}
	if s.AppendMessage(epoch, entity.Message{ID: "late"}) || s.PrependAlert(epoch, entity.Alert{ID: "late"}) {
		t.Error("expected writes from a cleared epoch to be dropped")
	}
	if !s.Snapshot().Empty() || s.Version() != v {
		t.Errorf("expected mirror untouched, got %+v", s.Snapshot())
	}

	if !s.AppendAppointment(s.Epoch(), entity.Appointment{ID: "fresh"}) {
		t.Error("expected append in the current epoch to apply")
	}
}

func TestStore_AppointmentPatches(t *testing.T) {
	s := New()
	s.Replace(sampleSnapshot())

	if !s.SetAppointmentStatus(s.Epoch(), "a1", entity.StatusWaiting) {
		t.Fatal("expected status patch to apply")
	}
	if !s.SetAppointmentSummary(s.Epoch(), "a1", "fever") {
		t.Fatal("expected summary patch to apply")
	}
	a, ok := s.Appointment("a1")
	if !ok || a.Status != entity.StatusWaiting || a.SymptomsSummary != "fever" {
		t.Errorf("unexpected appointment: %+v", a)
	}
	v := s.Version()
	if s.SetAppointmentStatus(s.Epoch(), "missing", entity.StatusWaiting) {
		t.Error("expected patch on unknown id to report false")
	}
	if s.Version() != v {
		t.Error("a failed patch must not advance the version")
	}
}

func TestStore_AppendMessageKeepsOrder(t *testing.T) {
	s := New()
	s.AppendMessage(s.Epoch(), entity.Message{ID: "late", Timestamp: 30})
	s.AppendMessage(s.Epoch(), entity.Message{ID: "early", Timestamp: 10})
	s.AppendMessage(s.Epoch(), entity.Message{ID: "mid", Timestamp: 20})

	var ids []string
	for _, m := range s.Messages() {
		ids = append(ids, m.ID)
	}
	if !reflect.DeepEqual(ids, []string{"early", "mid", "late"}) {
		t.Errorf("unexpected order: %v", ids)
	}
}

func TestStore_PrependVitalAndAlert(t *testing.T) {
	s := New()
	s.Replace(sampleSnapshot())
	s.PrependVital(s.Epoch(), entity.VitalSign{ID: "v3", Timestamp: 3})
	s.PrependAlert(s.Epoch(), entity.Alert{ID: "al3", Timestamp: 9})

	if s.Vitals()[0].ID != "v3" {
		t.Errorf("expected new vital first, got %+v", s.Vitals())
	}
	if s.Alerts()[0].ID != "al3" {
		t.Errorf("expected new alert first, got %+v", s.Alerts())
	}
	if !s.ResolveAlert(s.Epoch(), "al3") || !s.Alerts()[0].Resolved {
		t.Error("expected alert to be resolved")
	}
	if s.ResolveAlert(s.Epoch(), "nope") {
		t.Error("expected resolve on unknown id to report false")
	}
}

func TestStore_Prescriptions(t *testing.T) {
	s := New()
	s.Replace(sampleSnapshot())
	s.AppendPrescription(s.Epoch(), entity.Prescription{ID: "p2", Token: "ZZZ999"})

	if p, ok := s.PrescriptionByToken("ZZZ999"); !ok || p.ID != "p2" {
		t.Errorf("expected p2, got %+v ok=%v", p, ok)
	}
	if _, ok := s.PrescriptionByToken("zzz999"); ok {
		t.Error("PrescriptionByToken is case-sensitive")
	}
	if !s.HasToken("abc123") {
		t.Error("HasToken should ignore case")
	}
}

func TestStore_Medications(t *testing.T) {
	s := New()
	s.AppendMedication(s.Epoch(), entity.Medication{ID: "m1", Name: "A"})
	if !s.ReplaceMedication(s.Epoch(), entity.Medication{ID: "m1", Name: "B"}) {
		t.Fatal("expected replace to apply")
	}
	if s.Medications()[0].Name != "B" {
		t.Errorf("unexpected medications: %+v", s.Medications())
	}
	if s.ReplaceMedication(s.Epoch(), entity.Medication{ID: "m2"}) {
		t.Error("expected replace on unknown id to report false")
	}
}

func TestStore_UpsertUser(t *testing.T) {
	s := New()
	s.UpsertUser(s.Epoch(), entity.User{ID: "u1", Name: "Ana"})
	s.UpsertUser(s.Epoch(), entity.User{ID: "u1", Name: "Ana Maria"})
	s.UpsertUser(s.Epoch(), entity.User{ID: "u2", Name: "Bruno"})
	if len(s.Users()) != 2 {
		t.Fatalf("expected 2 users, got %d", len(s.Users()))
	}
	if u, _ := s.User("u1"); u.Name != "Ana Maria" {
		t.Errorf("expected updated name, got %q", u.Name)
	}
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Replace(sampleSnapshot())
		}()
		go func() {
			defer wg.Done()
			s.SetAppointmentStatus(s.Epoch(), "a1", entity.StatusWaiting)
			_ = s.Snapshot()
		}()
	}
	wg.Wait()
	if len(s.Appointments()) != 1 {
		t.Errorf("expected a single appointment after concurrent replaces, got %d", len(s.Appointments()))
	}
}
