package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/polyphonica/booking/internal/domain"
)

const (
	longDate  = "Monday, 02 January 2006"
	clockTime = "03:04 PM"
)

// Notifier turns ledger changes into buyer emails and staff alerts
type Notifier struct {
	mailer  Mailer
	alerter Alerter
	signOff string
}

// NewNotifier signs emails with orgName
func NewNotifier(mailer Mailer, alerter Alerter, orgName string) *Notifier {
	if orgName == "" {
		orgName = "Polyphonica Recorder Trio"
	}
	return &Notifier{mailer: mailer, alerter: alerter, signOff: orgName}
}

func firstName(name, email string) string {
	if first, _ := domain.SplitName(name); first != "" {
		return first
	}
	return email
}

func (n *Notifier) footer() string {
	return "\nBest regards,\n" + n.signOff + "\n"
}

func workshopTimes(w *domain.Workshop) string {
	return fmt.Sprintf("Date: %s\nTime: %s - %s",
		w.Date.Format(longDate),
		w.StartTime.On(w.Date).Format(clockTime),
		w.EndTime.On(w.Date).Format(clockTime),
	)
}

// RegistrationConfirmed emails the attendee after payment
func (n *Notifier) RegistrationConfirmed(ctx context.Context, w *domain.Workshop, r *domain.WorkshopRegistration) error {
	var location []string
	if w.IsInPerson() && w.Venue.Name != "" {
		location = append(location, fmt.Sprintf("Venue: %s, %s, %s", w.Venue.Name, w.Venue.Address, w.Venue.Postcode))
	}
	if w.IsOnline() {
		location = append(location, "Online access details will be sent closer to the workshop date.")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName(r.Name, r.Email))
	b.WriteString("Thank you for registering for our workshop!\n\n")
	fmt.Fprintf(&b, "%s\n%s\n", w.Title, workshopTimes(w))
	if len(location) > 0 {
		b.WriteString(strings.Join(location, "\n") + "\n")
	}
	fmt.Fprintf(&b, "\nAmount paid: %s\n\nWe look forward to seeing you!\n", r.AmountPaid)
	b.WriteString(n.footer())

	return n.mailer.Send(ctx, &Email{
		To:      r.Email,
		Subject: "Registration Confirmed - " + w.Title,
		Body:    b.String(),
	})
}

// TicketsConfirmed emails the buyer their order summary
func (n *Notifier) TicketsConfirmed(ctx context.Context, c *domain.Concert, o *domain.ConcertTicketOrder) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\nThank you for your ticket purchase!\n\n", o.Name)
	fmt.Fprintf(&b, "BOOKING CONFIRMATION\n--------------------\nOrder ID: #%s\n\n", o.ID)
	fmt.Fprintf(&b, "CONCERT DETAILS\n---------------\n%s\n\n", c.Title)
	fmt.Fprintf(&b, "Date: %s\nTime: %s\n", c.Date.Format(longDate), c.Time.On(c.Date).Format(clockTime))
	if c.DoorsOpen != nil {
		fmt.Fprintf(&b, "Doors open: %s\n", c.DoorsOpen.On(c.Date).Format(clockTime))
	}
	if c.Venue.Name != "" {
		fmt.Fprintf(&b, "\nVenue: %s\n%s\n%s\n", c.Venue.Name, c.Venue.Address, c.Venue.Postcode)
	}
	fmt.Fprintf(&b, "\nTICKETS\n-------\nType: %s\nQuantity: %d\nTotal paid: %s\n\n",
		c.TierLabel(o.TicketType), o.Quantity, o.TotalPrice)
	b.WriteString("Please bring this email or show it on your phone at the door.\n\nWe look forward to seeing you!\n")
	b.WriteString(n.footer())

	return n.mailer.Send(ctx, &Email{
		To:      o.Email,
		Subject: "Ticket Confirmation - " + c.Title,
		Body:    b.String(),
	})
}

// RegistrationCancelled tells the attendee whether a refund is on its way
func (n *Notifier) RegistrationCancelled(ctx context.Context, w *domain.Workshop, r *domain.WorkshopRegistration, refund domain.Pence, cutoffDays int) error {
	refundText := fmt.Sprintf("As this cancellation was made less than %d days before the workshop, no refund is available per our cancellation policy.", cutoffDays)
	if refund > 0 {
		refundText = fmt.Sprintf("A full refund of %s will be processed to your original payment method within 5-10 business days.", refund)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", firstName(r.Name, r.Email))
	b.WriteString("Your registration for the following workshop has been cancelled:\n\n")
	fmt.Fprintf(&b, "%s\n%s\n\n%s\n", w.Title, workshopTimes(w), refundText)
	b.WriteString(n.footer())

	return n.mailer.Send(ctx, &Email{
		To:      r.Email,
		Subject: "Registration Cancelled - " + w.Title,
		Body:    b.String(),
	})
}

// PaymentReceived alerts staff to a paid booking
func (n *Notifier) PaymentReceived(ctx context.Context, e domain.LedgerEntry) error {
	what := "Workshop registration"
	if e.Kind == domain.KindConcert {
		what = fmt.Sprintf("%d ticket(s)", e.Quantity)
	}
	return n.alerter.Alert(ctx, fmt.Sprintf("New booking: %s for %s (%s)\n%s <%s>\nPaid %s",
		what, e.EventTitle, e.EventDate.Format("02 Jan 2006"), e.DisplayName(), e.BuyerEmail, e.Amount))
}

// BookingCancelled alerts staff to a cancellation or refund
func (n *Notifier) BookingCancelled(ctx context.Context, e domain.LedgerEntry, reason string) error {
	return n.alerter.Alert(ctx, fmt.Sprintf("Booking %s: %s (%s)\n%s <%s>\nReason: %s",
		e.Status, e.EventTitle, e.EventDate.Format("02 Jan 2006"), e.DisplayName(), e.BuyerEmail, reason))
}
