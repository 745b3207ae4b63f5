package session

import "testing"

func TestSession_Lifecycle(t *testing.T) {
	s := New()
	if s.State() != StateNotLoggedIn {
		t.Fatalf("expected not-logged-in, got %s", s.State())
	}

	s.Identify(" CC ", " 1020304050 ", "3")
	if s.State() != StateIdentified {
		t.Fatalf("expected identified, got %s", s.State())
	}
	snap := s.Snapshot()
	if snap.DocumentType != "CC" || snap.DocumentNumber != "1020304050" || snap.SecondaryKey != "3" {
		t.Errorf("unexpected identity in snapshot: %+v", snap)
	}

	s.MarkBooked("00098765")
	if s.State() != StateEncounterBooked {
		t.Fatalf("expected encounter-booked, got %s", s.State())
	}

	s.MarkDocumentsUploaded()
	if s.State() != StateDocumentsPending {
		t.Fatalf("expected documents-pending, got %s", s.State())
	}

	s.Close()
	if s.State() != StateClosed {
		t.Fatalf("expected closed, got %s", s.State())
	}
	snap = s.Snapshot()
	if !snap.FolioClosed || snap.FolioLocked {
		t.Errorf("expected closed and unlocked, got %+v", snap)
	}

	s.Clear()
	if s.State() != StateNotLoggedIn {
		t.Fatalf("expected not-logged-in after clear, got %s", s.State())
	}
	if s.Snapshot().DocumentNumber != "" {
		t.Error("expected identity cleared")
	}
}

func TestSession_BookingReplacesSecondaryKey(t *testing.T) {
	s := New()
	s.Identify("CC", "1020304050", "3")
	s.MarkBooked("00098765")

	snap := s.Snapshot()
	if snap.SecondaryKey != "00098765" {
		t.Errorf("expected secondary key 00098765, got %s", snap.SecondaryKey)
	}
	if !snap.EncounterBooked {
		t.Error("expected encounter booked")
	}
	if !snap.FolioLocked {
		t.Error("expected folio locked")
	}
	if snap.FolioClosed {
		t.Error("expected folio not closed")
	}
}

func TestSession_LockedImpliesBooked(t *testing.T) {
	s := New()
	s.Identify("CC", "1", "1")
	s.MarkDocumentsUploaded()
	s.Close()
	if snap := s.Snapshot(); snap.FolioLocked && !snap.EncounterBooked {
		t.Error("folio locked without a booked encounter")
	}
}

func TestSession_ExitGate(t *testing.T) {
	for _, booked := range []bool{false, true} {
		for _, uploaded := range []bool{false, true} {
			s := New()
			s.Identify("CC", "1", "1")
			if booked {
				s.MarkBooked("2")
			}
			if uploaded {
				s.MarkDocumentsUploaded()
			}

			want := !(booked && !uploaded)
			if got := s.CanExitApplication(); got != want {
				t.Errorf("booked=%v uploaded=%v: CanExitApplication = %v, want %v", booked, uploaded, got, want)
			}
			if got := s.CanNavigateBack(); got != want {
				t.Errorf("booked=%v uploaded=%v: CanNavigateBack = %v, want %v", booked, uploaded, got, want)
			}
			snap := s.Snapshot()
			if snap.CanExit != want || snap.CanNavigateBack != want {
				t.Errorf("booked=%v uploaded=%v: snapshot gates disagree: %+v", booked, uploaded, snap)
			}
		}
	}
}

func TestSession_NotLoggedInCanExit(t *testing.T) {
	if !New().CanExitApplication() {
		t.Error("expected empty session to allow exit")
	}
}

func TestSession_IdentifyDiscardsPreviousFolio(t *testing.T) {
	s := New()
	s.Identify("CC", "1", "1")
	s.MarkBooked("99")
	s.SetObservation("urgente")

	s.Identify("TI", "2", "5")
	snap := s.Snapshot()
	if snap.EncounterBooked || snap.FolioLocked || snap.Observation != "" {
		t.Errorf("expected fresh folio, got %+v", snap)
	}
	if snap.SecondaryKey != "5" {
		t.Errorf("expected secondary key 5, got %s", snap.SecondaryKey)
	}
}

func TestSession_ClearIfClosed(t *testing.T) {
	s := New()
	s.Identify("CC", "1", "2")
	if s.ClearIfClosed() {
		t.Fatal("expected an open folio to survive")
	}
	if !s.IsIdentified() {
		t.Fatal("expected folio still identified")
	}

	s.MarkBooked("3")
	s.MarkDocumentsUploaded()
	s.Close()
	if !s.ClearIfClosed() {
		t.Fatal("expected closed folio cleared")
	}
	if s.State() != StateNotLoggedIn {
		t.Errorf("expected not-logged-in, got %s", s.State())
	}

	// A new folio opened before the delayed clear fires is kept.
	s.Identify("TI", "9", "1")
	if s.ClearIfClosed() || !s.IsIdentified() {
		t.Error("expected the new folio to be kept")
	}
}
