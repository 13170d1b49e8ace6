package notify

import (
	"context"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg *Email) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type mockAlerter struct {
	mock.Mock
}

func (m *mockAlerter) Alert(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

type fakeBot struct {
	sent []tgbotapi.Chattable
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.sent = append(b.sent, c)
	return tgbotapi.Message{}, nil
}

func testWorkshop() *domain.Workshop {
	return &domain.Workshop{
		ID:        "w1",
		Title:     "Consort Playing",
		Date:      domain.Date(2025, time.June, 14),
		StartTime: domain.NewClockTime(10, 0),
		EndTime:   domain.NewClockTime(16, 30),
		Delivery:  domain.DeliveryHybrid,
		Venue:     domain.Venue{Name: "St Mary's Hall", Address: "1 High St", Postcode: "OX1 1AA"},
		Price:     4500,
	}
}

func TestRegistrationConfirmed(t *testing.T) {
	mailer := &mockMailer{}
	var sent *Email
	mailer.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		sent = args.Get(1).(*Email)
	}).Return(nil)

	n := NewNotifier(mailer, &mockAlerter{}, "")
	reg := &domain.WorkshopRegistration{Name: "Ada Lovelace", Email: "ada@example.com", AmountPaid: 4500}

	require.NoError(t, n.RegistrationConfirmed(context.Background(), testWorkshop(), reg))
	require.NotNil(t, sent)

	assert.Equal(t, "ada@example.com", sent.To)
	assert.Equal(t, "Registration Confirmed - Consort Playing", sent.Subject)
	assert.Contains(t, sent.Body, "Hello Ada,")
	assert.Contains(t, sent.Body, "Date: Saturday, 14 June 2025")
	assert.Contains(t, sent.Body, "Time: 10:00 AM - 04:30 PM")
	assert.Contains(t, sent.Body, "Venue: St Mary's Hall, 1 High St, OX1 1AA")
	assert.Contains(t, sent.Body, "Online access details")
	assert.Contains(t, sent.Body, "Amount paid: £45.00")
	assert.True(t, strings.HasSuffix(sent.Body, "Polyphonica Recorder Trio\n"))
}

func TestRegistrationCancelled_RefundWording(t *testing.T) {
	tests := []struct {
		name   string
		refund domain.Pence
		want   string
	}{
		{"refunded", 4500, "A full refund of £45.00"},
		{"late", 0, "less than 7 days before the workshop"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := &mockMailer{}
			mailer.On("Send", mock.Anything, mock.MatchedBy(func(e *Email) bool {
				return strings.Contains(e.Body, tt.want)
			})).Return(nil)

			n := NewNotifier(mailer, &mockAlerter{}, "")
			reg := &domain.WorkshopRegistration{Name: "Ada", Email: "ada@example.com"}
			require.NoError(t, n.RegistrationCancelled(context.Background(), testWorkshop(), reg, tt.refund, 7))
			mailer.AssertExpectations(t)
		})
	}
}

func TestTicketsConfirmed_UsesTierLabel(t *testing.T) {
	mailer := &mockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(e *Email) bool {
		return e.Subject == "Ticket Confirmation - Winter Fantasias" &&
			strings.Contains(e.Body, "Type: Student") &&
			strings.Contains(e.Body, "Quantity: 2") &&
			strings.Contains(e.Body, "Total paid: £16.00")
	})).Return(nil)

	discount := domain.Pence(800)
	c := &domain.Concert{
		Title:         "Winter Fantasias",
		Date:          domain.Date(2025, time.December, 6),
		Time:          domain.NewClockTime(19, 30),
		DiscountPrice: &discount,
		DiscountLabel: "Student",
	}
	o := &domain.ConcertTicketOrder{ID: "o1", Name: "Grace", Email: "g@example.com", TicketType: domain.TicketDiscount, Quantity: 2, TotalPrice: 1600}

	n := NewNotifier(mailer, &mockAlerter{}, "")
	require.NoError(t, n.TicketsConfirmed(context.Background(), c, o))
	mailer.AssertExpectations(t)
}

func TestPaymentReceived_AlertsStaff(t *testing.T) {
	alerter := &mockAlerter{}
	alerter.On("Alert", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "2 ticket(s) for Winter Fantasias") && strings.Contains(text, "Paid £30.00")
	})).Return(nil)

	n := NewNotifier(&mockMailer{}, alerter, "")
	err := n.PaymentReceived(context.Background(), domain.LedgerEntry{
		Kind:       domain.KindConcert,
		EventTitle: "Winter Fantasias",
		Quantity:   2,
		Amount:     3000,
		BuyerEmail: "g@example.com",
	})
	require.NoError(t, err)
	alerter.AssertExpectations(t)
}

func TestTelegramAlerter(t *testing.T) {
	disabled, err := NewTelegramAlerter("", 0, logger.Get())
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	assert.NoError(t, disabled.Alert(context.Background(), "ignored"))

	bot := &fakeBot{}
	a := &TelegramAlerter{bot: bot, chatID: 42, log: logger.Get()}
	require.NoError(t, a.Alert(context.Background(), "hello"))
	require.Len(t, bot.sent, 1)

	msg, ok := bot.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(42), msg.ChatID)
	assert.Equal(t, "hello", msg.Text)
}
