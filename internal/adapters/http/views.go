package web

import (
	"time"

	"runclub/internal/application/orchestrators"
	"runclub/internal/application/projections"
	"runclub/internal/domain/attendance"
	"runclub/internal/domain/booking"
	"runclub/internal/domain/identity"
	"runclub/internal/domain/invitation"
	"runclub/internal/domain/outbox"
	"runclub/internal/domain/run"
)

// runView is the JSON shape of a run.
type runView struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	DescriptionHTML    string     `json:"description_html,omitempty"`
	RunDate            string     `json:"run_date"`
	StartTime          string     `json:"start_time"`
	MeetingPoint       string     `json:"meeting_point"`
	DistanceKm         float64    `json:"distance_km"`
	MaxParticipants    int        `json:"max_participants"`
	LirfsRequired      int        `json:"lirfs_required"`
	Status             string     `json:"status"`
	CreatedBy          string     `json:"created_by"`
	RecurrenceGroupID  string     `json:"recurrence_group_id,omitempty"`
	RecurrenceRule     string     `json:"recurrence_rule,omitempty"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

func viewRun(r run.Run) runView {
	return runView{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		DescriptionHTML:    renderMarkdown(r.Description),
		RunDate:            r.RunDate,
		StartTime:          r.StartTime,
		MeetingPoint:       r.MeetingPoint,
		DistanceKm:         r.DistanceKm,
		MaxParticipants:    r.MaxParticipants,
		LirfsRequired:      r.LirfsRequired,
		Status:             r.Status,
		CreatedBy:          r.CreatedBy,
		RecurrenceGroupID:  r.RecurrenceGroupID,
		RecurrenceRule:     r.RecurrenceRule,
		StartedAt:          timePtr(r.StartedAt),
		CompletedAt:        timePtr(r.CompletedAt),
		CancelledAt:        timePtr(r.CancelledAt),
		CancellationReason: r.CancellationReason,
	}
}

type lirfSlotView struct {
	Slot     int    `json:"slot"`
	MemberID string `json:"member_id"`
	Name     string `json:"name"`
}

func viewSlots(slots []projections.LirfSlot) []lirfSlotView {
	out := make([]lirfSlotView, 0, len(slots))
	for _, s := range slots {
		out = append(out, lirfSlotView{Slot: s.Slot, MemberID: s.MemberID, Name: s.Name})
	}
	return out
}

// runCardView is one row of the run list.
type runCardView struct {
	Run            runView        `json:"run"`
	ActiveBookings int            `json:"active_bookings"`
	SpacesLeft     int            `json:"spaces_left"`
	OpenLirfSlots  int            `json:"open_lirf_slots"`
	Lirfs          []lirfSlotView `json:"lirfs"`
	BookedByMe     bool           `json:"booked_by_me"`
	LeadingIt      bool           `json:"leading_it"`
}

type runListView struct {
	From string        `json:"from"`
	To   string        `json:"to"`
	Runs []runCardView `json:"runs"`
}

func viewRunList(res projections.RunListResult) runListView {
	out := runListView{From: res.From, To: res.To, Runs: make([]runCardView, 0, len(res.Runs))}
	for _, c := range res.Runs {
		out.Runs = append(out.Runs, runCardView{
			Run:            viewRun(c.Run),
			ActiveBookings: c.ActiveBookings,
			SpacesLeft:     c.SpacesLeft,
			OpenLirfSlots:  c.OpenLirfSlots,
			Lirfs:          viewSlots(c.Lirfs),
			BookedByMe:     c.BookedByMe,
			LeadingIt:      c.LeadingIt,
		})
	}
	return out
}

// availabilityView is the run detail with the caller's standing.
type availabilityView struct {
	Run            runView        `json:"run"`
	ActiveBookings int            `json:"active_bookings"`
	SpacesLeft     int            `json:"spaces_left"`
	IsFull         bool           `json:"is_full"`
	MyBookingID    string         `json:"my_booking_id,omitempty"`
	MySlot         int            `json:"my_slot,omitempty"`
	OpenLirfSlots  int            `json:"open_lirf_slots"`
	Lirfs          []lirfSlotView `json:"lirfs"`
	CanBook        bool           `json:"can_book"`
	CanLead        bool           `json:"can_lead"`
}

func viewAvailability(av projections.RunAvailability) availabilityView {
	return availabilityView{
		Run:            viewRun(av.Run),
		ActiveBookings: av.ActiveBookings,
		SpacesLeft:     av.SpacesLeft,
		IsFull:         av.IsFull,
		MyBookingID:    av.MyBookingID,
		MySlot:         av.MySlot,
		OpenLirfSlots:  av.OpenLirfSlots,
		Lirfs:          viewSlots(av.Lirfs),
		CanBook:        av.CanBook,
		CanLead:        av.CanLead,
	}
}

type participantView struct {
	MemberID              string `json:"member_id"`
	Name                  string `json:"name"`
	BookingID             string `json:"booking_id,omitempty"`
	ManualAddition        bool   `json:"manual_addition"`
	Marked                bool   `json:"marked"`
	Present               bool   `json:"present"`
	Phone                 string `json:"phone,omitempty"`
	EmergencyContactName  string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string `json:"emergency_contact_phone,omitempty"`
	HealthNotes           string `json:"health_notes,omitempty"`
}

type participantsView struct {
	Run          runView           `json:"run"`
	Participants []participantView `json:"participants"`
	PresentCount int               `json:"present_count"`
	CanRecord    bool              `json:"can_record"`
}

func viewParticipants(res projections.RunParticipantsResult) participantsView {
	out := participantsView{
		Run:          viewRun(res.Run),
		Participants: make([]participantView, 0, len(res.Participants)),
		PresentCount: res.PresentCount,
		CanRecord:    res.CanRecord,
	}
	for _, p := range res.Participants {
		out.Participants = append(out.Participants, participantView{
			MemberID:              p.MemberID,
			Name:                  p.Name,
			BookingID:             p.BookingID,
			ManualAddition:        p.ManualAddition,
			Marked:                p.Marked,
			Present:               p.Present,
			Phone:                 p.Phone,
			EmergencyContactName:  p.EmergencyContactName,
			EmergencyContactPhone: p.EmergencyContactPhone,
			HealthNotes:           p.HealthNotes,
		})
	}
	return out
}

type bookingView struct {
	ID                 string     `json:"id"`
	RunID              string     `json:"run_id"`
	MemberID           string     `json:"member_id"`
	BookedAt           time.Time  `json:"booked_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty"`
}

func viewBooking(b booking.Booking) bookingView {
	return bookingView{
		ID:                 b.ID,
		RunID:              b.RunID,
		MemberID:           b.MemberID,
		BookedAt:           b.BookedAt,
		CancelledAt:        timePtr(b.CancelledAt),
		CancellationReason: b.CancellationReason,
	}
}

type memberBookingView struct {
	Booking      bookingView `json:"booking"`
	RunTitle     string      `json:"run_title"`
	RunDate      string      `json:"run_date"`
	StartTime    string      `json:"start_time"`
	MeetingPoint string      `json:"meeting_point"`
	RunStatus    string      `json:"run_status"`
	Upcoming     bool        `json:"upcoming"`
}

func viewMemberBookings(list []projections.MemberBooking) []memberBookingView {
	out := make([]memberBookingView, 0, len(list))
	for _, mb := range list {
		out = append(out, memberBookingView{
			Booking:      viewBooking(mb.Booking),
			RunTitle:     mb.RunTitle,
			RunDate:      mb.RunDate,
			StartTime:    mb.StartTime,
			MeetingPoint: mb.MeetingPoint,
			RunStatus:    mb.RunStatus,
			Upcoming:     mb.Upcoming,
		})
	}
	return out
}

// invitationView never carries the token; it only travels by email.
type invitationView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	AccessLevel string    `json:"access_level"`
	InvitedBy   string    `json:"invited_by"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewInvitation(inv invitation.Invitation) invitationView {
	return invitationView{
		ID:          inv.ID,
		Email:       inv.Email,
		AccessLevel: inv.AccessLevel,
		InvitedBy:   inv.InvitedBy,
		ExpiresAt:   inv.ExpiresAt,
		CreatedAt:   inv.CreatedAt,
	}
}

type identityView struct {
	AccountID   string `json:"account_id"`
	MemberID    string `json:"member_id"`
	Email       string `json:"email"`
	AccessLevel string `json:"access_level"`
}

func viewIdentity(who identity.Identity) identityView {
	return identityView{
		AccountID:   who.AccountID,
		MemberID:    who.MemberID,
		Email:       who.Email,
		AccessLevel: who.AccessLevel,
	}
}

type outboxEntryView struct {
	ID              string     `json:"id"`
	ActionType      string     `json:"action_type"`
	Status          string     `json:"status"`
	Attempts        int        `json:"attempts"`
	MaxAttempts     int        `json:"max_attempts"`
	LastAttemptedAt *time.Time `json:"last_attempted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ExternalID      string     `json:"external_id,omitempty"`
	ErrorMessage    string     `json:"error_message,omitempty"`
}

func viewOutboxEntries(entries []outbox.Entry) []outboxEntryView {
	out := make([]outboxEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, outboxEntryView{
			ID:              e.ID,
			ActionType:      e.ActionType,
			Status:          e.Status,
			Attempts:        e.Attempts,
			MaxAttempts:     e.MaxAttempts,
			LastAttemptedAt: timePtr(e.LastAttemptedAt),
			CreatedAt:       e.CreatedAt,
			ExternalID:      e.ExternalID,
			ErrorMessage:    e.ErrorMessage,
		})
	}
	return out
}

type attendanceRecordView struct {
	MemberID       string    `json:"member_id"`
	Present        bool      `json:"present"`
	ManualAddition bool      `json:"manual_addition"`
	MarkedBy       string    `json:"marked_by"`
	MarkedAt       time.Time `json:"marked_at"`
}

type attendanceResultView struct {
	Records      []attendanceRecordView `json:"records"`
	ManualAdded  int                    `json:"manual_added"`
	PresentCount int                    `json:"present_count"`
	AbsentCount  int                    `json:"absent_count"`
}

func viewAttendance(res orchestrators.RecordAttendanceResult) attendanceResultView {
	out := attendanceResultView{
		Records:      make([]attendanceRecordView, 0, len(res.Records)),
		ManualAdded:  res.ManualAdded,
		PresentCount: res.PresentCount,
		AbsentCount:  res.AbsentCount,
	}
	for _, rec := range res.Records {
		out.Records = append(out.Records, attendanceRecordView{
			MemberID:       rec.MemberID,
			Present:        rec.Present,
			ManualAddition: rec.ManualAddition,
			MarkedBy:       rec.MarkedBy,
			MarkedAt:       rec.MarkedAt,
		})
	}
	return out
}

// marksFrom converts request marks into domain marks.
func marksFrom(in []markRequest) []attendance.Mark {
	out := make([]attendance.Mark, 0, len(in))
	for _, m := range in {
		out = append(out, attendance.Mark{MemberID: m.MemberID, Present: m.Present})
	}
	return out
}
