package rfq

import "testing"

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"submitted to review", StatusSubmitted, StatusUnderReview, true},
		{"review to invited", StatusUnderReview, StatusInvited, true},
		{"invited to offers published", StatusInvited, StatusOffersPublished, true},
		{"offers published to accepted", StatusOffersPublished, StatusAccepted, true},
		{"delivered to closed", StatusDelivered, StatusClosed, true},
		{"skip a stage", StatusSubmitted, StatusInvited, false},
		{"backwards", StatusInvited, StatusSubmitted, false},
		{"cancel while in production", StatusInProduction, StatusCancelled, true},
		{"cancel from draft", StatusDraft, StatusCancelled, true},
		{"closed is terminal", StatusClosed, StatusCancelled, false},
		{"cancelled is terminal", StatusCancelled, StatusSubmitted, false},
		{"closed cannot reopen", StatusClosed, StatusDelivered, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{
		StatusDraft, StatusSubmitted, StatusUnderReview, StatusInvited,
		StatusOffersPublished, StatusAccepted, StatusInProduction,
		StatusInspection, StatusShipped, StatusDelivered, StatusClosed,
		StatusCancelled,
	} {
		if !ValidStatus(s) {
			t.Errorf("expected %s to be valid", s)
		}
	}
	if ValidStatus("archived") {
		t.Error("expected unknown status to be invalid")
	}
}
