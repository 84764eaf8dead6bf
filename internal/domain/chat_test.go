package domain

import "testing"

func TestConversationID_SortsParticipants(t *testing.T) {
	tests := []struct {
		a, b string
		want string
	}{
		{a: "A", b: "B", want: "A_B"},
		{a: "B", b: "A", want: "A_B"},
		{a: "user-2", b: "user-10", want: "user-10_user-2"},
	}
	for _, tt := range tests {
		if got := ConversationID(tt.a, tt.b); got != tt.want {
			t.Fatalf("ConversationID(%q, %q) = %q, want %q", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAppointmentStatus_Transitions(t *testing.T) {
	tests := []struct {
		name string
		from AppointmentStatus
		to   AppointmentStatus
		want bool
	}{
		{name: "confirm pending", from: AppointmentPending, to: AppointmentConfirmed, want: true},
		{name: "cancel pending", from: AppointmentPending, to: AppointmentCancelled, want: true},
		{name: "complete pending", from: AppointmentPending, to: AppointmentCompleted, want: false},
		{name: "complete confirmed", from: AppointmentConfirmed, to: AppointmentCompleted, want: true},
		{name: "cancel confirmed", from: AppointmentConfirmed, to: AppointmentCancelled, want: true},
		{name: "reopen cancelled", from: AppointmentCancelled, to: AppointmentPending, want: false},
		{name: "cancel completed", from: AppointmentCompleted, to: AppointmentCancelled, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppointmentStatus_Active(t *testing.T) {
	if !AppointmentPending.Active() || !AppointmentConfirmed.Active() {
		t.Fatalf("pending and confirmed must be active")
	}
	if AppointmentCancelled.Active() || AppointmentCompleted.Active() {
		t.Fatalf("cancelled and completed must not be active")
	}
}
