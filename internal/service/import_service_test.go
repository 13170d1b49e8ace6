package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripeExport = "\ufeffCustomer Email,Card Name,Amount,Fee,PaymentIntent ID,Created date (UTC),id\n" +
	"Ada@Example.com,Ada Lovelace,45.00,0.88,pi_aaa111,2024-11-02 09:15:00,ch_aaa111\n" +
	"grace@example.com,Grace Hopper,\"1,045.00\",15.88,pi_bbb222,02/11/2024 10:30,ch_bbb222\n"

func TestParseLegacyCSV(t *testing.T) {
	rows, err := ParseLegacyCSV(strings.NewReader(stripeExport))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, 1, first.Row)
	assert.Equal(t, "ada@example.com", first.Email)
	assert.Equal(t, "Ada", first.FirstName)
	assert.Equal(t, "Lovelace", first.LastName)
	assert.Equal(t, domain.Pence(4500), first.Gross)
	assert.Equal(t, domain.Pence(88), first.Fee)
	assert.Equal(t, "ch_aaa111", first.ChargeID)
	if !first.Date.Equal(time.Date(2024, time.November, 2, 9, 15, 0, 0, domain.London)) {
		t.Errorf("Expected London wall-clock time, got %v", first.Date)
	}

	assert.Equal(t, domain.Pence(104500), rows[1].Gross, "thousands separators are accepted")
	assert.Equal(t, 2024, rows[1].Date.Year())
	assert.Equal(t, time.November, rows[1].Date.Month(), "slashed dates are day first")
}

func TestParseLegacyCSV_AliasFallsBackPerRow(t *testing.T) {
	csv := "email,name,customer name,amount,fee,payment_intent_id,date\n" +
		"a@example.com,,Ann Other,10.00,0.35,pi_1,2024-10-01\n"

	rows, err := ParseLegacyCSV(strings.NewReader(csv))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ann Other", rows[0].Name)
}

func TestParseLegacyCSV_FirstAndLastNameColumns(t *testing.T) {
	csv := "email,first_name,last_name,amount,fee,payment_intent_id,date,phone\n" +
		"b@example.com,Bea,Smith,12.00,0.38,pi_2,2024-10-01,07700 900123\n"

	rows, err := ParseLegacyCSV(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, "Bea Smith", rows[0].Name)
	assert.Equal(t, "07700 900123", rows[0].Phone)
}

func TestParseLegacyCSV_Errors(t *testing.T) {
	const header = "email,name,amount,fee,payment_intent_id,date\n"

	tests := []struct {
		name     string
		input    string
		wantErr  error
		problems []string
	}{
		{
			name:    "empty file",
			input:   "",
			wantErr: domain.ErrImportEmpty,
		},
		{
			name:    "header only",
			input:   header,
			wantErr: domain.ErrImportEmpty,
		},
		{
			name:    "missing columns",
			input:   "email,name,amount\nx@example.com,X,1.00\n",
			wantErr: domain.ErrImportHeaders,
		},
		{
			name: "every bad row is reported",
			input: header +
				"ok@example.com,Ok,10.00,0.35,pi_ok,2024-10-01\n" +
				"not-an-email,Bad,10.00,0.35,pi_x,2024-10-01\n" +
				"c@example.com,C,ten,0.35,pi_y,2024-10-01\n" +
				"d@example.com,D,10.00,0.35,ch_z,2024-10-01\n" +
				"e@example.com,E,10.00,0.35,pi_w,yesterday\n" +
				"f@example.com,F,1.00,2.00,pi_v,2024-10-01\n",
			wantErr: domain.ErrImportInvalid,
			problems: []string{
				"Row 2: invalid email: not-an-email",
				"Row 3: invalid amount: ten",
				"Row 4: invalid payment_intent_id (should start with 'pi_'): ch_z",
				"Row 5: could not parse date: yesterday",
				"Row 6: fee £2.00 is larger than amount £1.00",
			},
		},
		{
			name: "duplicate emails",
			input: header +
				"dup@example.com,One,10.00,0.35,pi_1,2024-10-01\n" +
				"DUP@example.com,Two,10.00,0.35,pi_2,2024-10-01\n",
			wantErr:  domain.ErrImportInvalid,
			problems: []string{"Duplicate emails in file: dup@example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLegacyCSV(strings.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %v, got %v", tt.wantErr, err)
			}
			if tt.problems != nil {
				var verr *ImportValidationError
				require.ErrorAs(t, err, &verr)
				assert.Equal(t, tt.problems, verr.Problems)
			}
		})
	}
}

func TestImportLegacy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, func(w *domain.Workshop) {
		w.MaxParticipants = 10
		w.LegacyBookings = 3
	})
	svc := NewImportService(env.repos, env.clock.Now)

	t.Run("dry run writes nothing", func(t *testing.T) {
		report, err := svc.ImportLegacy(ctx, ImportRequest{WorkshopRef: w.ID, File: strings.NewReader(stripeExport), DryRun: true})
		require.NoError(t, err)
		assert.Equal(t, 2, report.New)
		assert.Nil(t, report.Outcome)

		regs, err := env.repos.Ledger.ListRegistrations(ctx, w.ID, "")
		require.NoError(t, err)
		assert.Empty(t, regs)
	})

	t.Run("import by slug", func(t *testing.T) {
		report, err := svc.ImportLegacy(ctx, ImportRequest{WorkshopRef: w.Slug, File: strings.NewReader(stripeExport)})
		require.NoError(t, err)
		require.NotNil(t, report.Outcome)
		assert.Equal(t, domain.ImportOutcome{UsersCreated: 2, RegistrationsCreated: 2, FeeRecordsCreated: 2, LegacyBookingsLeft: 1}, *report.Outcome)

		regs, err := env.repos.Ledger.ListRegistrations(ctx, w.ID, domain.StatusPaid)
		require.NoError(t, err)
		assert.Len(t, regs, 2)

		got, err := env.catalog.GetWorkshop(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.CurrentRegistrations)
	})

	t.Run("second run skips existing", func(t *testing.T) {
		report, err := svc.ImportLegacy(ctx, ImportRequest{WorkshopRef: w.ID, File: strings.NewReader(stripeExport)})
		require.NoError(t, err)
		assert.Equal(t, 2, report.Skipped)
		assert.Equal(t, 0, report.New)
		assert.Nil(t, report.Outcome)
		for _, row := range report.Rows {
			assert.True(t, row.Skip)
		}
	})

	t.Run("imported income is reported", func(t *testing.T) {
		s, err := env.finance.IncomeSummary(ctx, domain.TaxYearStarting(2024), domain.FinanceFilter{})
		require.NoError(t, err)
		assert.Equal(t, domain.Pence(4500+104500), s.Workshops.Gross)
		assert.Equal(t, 2, s.Workshops.Count)
	})
}

func TestImportLegacy_ExistingAccountIsReused(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	w := env.workshop(t, func(w *domain.Workshop) { w.MaxParticipants = 10 })
	env.user("user-ada", "ada@example.com", "Ada", "Lovelace")
	svc := NewImportService(env.repos, env.clock.Now)

	report, err := svc.ImportLegacy(ctx, ImportRequest{WorkshopRef: w.ID, File: strings.NewReader(stripeExport)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outcome.UsersCreated)
	assert.Equal(t, 2, report.Outcome.RegistrationsCreated)

	reg, err := env.repos.Ledger.GetRegistrationForUser(ctx, w.ID, "user-ada")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, reg.Status)
	assert.Equal(t, "pi_aaa111", reg.PaymentIntentID)
}

func TestImportLegacy_UnknownWorkshop(t *testing.T) {
	env := newTestEnv(t)
	svc := NewImportService(env.repos, env.clock.Now)

	_, err := svc.ImportLegacy(context.Background(), ImportRequest{WorkshopRef: "no-such-workshop", File: strings.NewReader(stripeExport)})
	assert.ErrorIs(t, err, domain.ErrWorkshopNotFound)
}
