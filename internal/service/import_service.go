package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/internal/repository"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ImportService loads historical paid bookings for a workshop from a processor export
type ImportService interface {
	ImportLegacy(ctx context.Context, req ImportRequest) (*ImportReport, error)
}

// ImportRequest names the workshop by id or slug
type ImportRequest struct {
	WorkshopRef string
	File        io.Reader
	DryRun      bool
}

// ImportReport is the preview and, unless dry-run, what was written
type ImportReport struct {
	WorkshopID    string                 `json:"workshop_id"`
	WorkshopTitle string                 `json:"workshop_title"`
	DryRun        bool                   `json:"dry_run"`
	Rows          []domain.LegacyBooking `json:"rows"`
	Total         int                    `json:"total"`
	New           int                    `json:"new"`
	Skipped       int                    `json:"skipped"`
	Outcome       *domain.ImportOutcome  `json:"outcome,omitempty"`
}

// ImportValidationError lists every bad row; it matches domain.ErrImportInvalid
type ImportValidationError struct {
	Problems []string
}

func (e *ImportValidationError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrImportInvalid, strings.Join(e.Problems, "; "))
}

func (e *ImportValidationError) Is(target error) bool {
	return target == domain.ErrImportInvalid
}

// legacy columns; per row the first alias with a value wins
var legacyColumns = map[string][]string{
	"email":          {"email", "customer email"},
	"name":           {"name", "card name", "customer name"},
	"amount":         {"amount", "gross_amount", "gross"},
	"fee":            {"fee", "stripe_fee"},
	"payment_intent": {"payment_intent_id", "paymentintent id", "payment_intent"},
	"date":           {"date", "created date (utc)", "created (utc)", "transaction_date", "created"},
	"phone":          {"phone", "customer phone"},
	"charge_id":      {"charge_id", "id"},
	"balance_txn":    {"balance_transaction_id", "balance_txn"},
}

var requiredLegacyColumns = []string{"email", "amount", "fee", "payment_intent", "date"}

var legacyDateFormats = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"02/01/2006",
	"02/01/2006 15:04",
	"02-01-2006",
	"01/02/2006",
}

type importService struct {
	catalog repository.CatalogRepository
	imports repository.ImportRepository
	log     *logger.Logger
	now     Clock
}

// NewImportService creates a new ImportService
func NewImportService(repos *repository.Repositories, now Clock) ImportService {
	return &importService{
		catalog: repos.Catalog,
		imports: repos.Import,
		log:     logger.Get().Named("import"),
		now:     clockOrSystem(now),
	}
}

func (s *importService) ImportLegacy(ctx context.Context, req ImportRequest) (*ImportReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.import.legacy", attribute.String("workshop", req.WorkshopRef), attribute.Bool("dry_run", req.DryRun))
	defer span.End()

	w, err := s.resolveWorkshop(ctx, req.WorkshopRef)
	if err != nil {
		return nil, err
	}

	rows, err := ParseLegacyCSV(req.File)
	if err != nil {
		return nil, err
	}

	emails := make([]string, len(rows))
	for i, r := range rows {
		emails[i] = r.Email
	}
	registered, err := s.imports.RegisteredEmails(ctx, w.ID, emails)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{
		WorkshopID:    w.ID,
		WorkshopTitle: w.Title,
		DryRun:        req.DryRun,
		Total:         len(rows),
	}
	for i := range rows {
		if registered[rows[i].Email] {
			rows[i].Skip = true
			report.Skipped++
		}
	}
	report.Rows = rows
	report.New = report.Total - report.Skipped

	if req.DryRun || report.New == 0 {
		return report, nil
	}

	outcome, err := s.imports.ImportLegacyBookings(ctx, w.ID, rows, s.now())
	if err != nil {
		telemetry.SetSpanError(ctx, err)
		return nil, fmt.Errorf("import legacy bookings: %w", err)
	}
	report.Outcome = outcome

	s.log.Info("legacy bookings imported",
		zap.String("workshop_id", w.ID),
		zap.Int("users_created", outcome.UsersCreated),
		zap.Int("registrations_created", outcome.RegistrationsCreated),
		zap.Int("fee_records_created", outcome.FeeRecordsCreated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (s *importService) resolveWorkshop(ctx context.Context, ref string) (*domain.Workshop, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, domain.ErrWorkshopNotFound
	}
	if _, err := uuid.Parse(ref); err == nil {
		return s.catalog.GetWorkshop(ctx, ref)
	}
	return s.catalog.GetWorkshopBySlug(ctx, ref)
}

// ParseLegacyCSV validates a whole export. Every bad row is reported, and a
// duplicate email anywhere rejects the file.
func ParseLegacyCSV(r io.Reader) ([]domain.LegacyBooking, error) {
	if r == nil {
		return nil, domain.ErrImportEmpty
	}
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.ErrImportEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrImportInvalid, err)
	}
	cols := resolveLegacyHeader(header)
	if missing := cols.missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrImportHeaders, strings.Join(missing, ", "))
	}

	var (
		rows     []domain.LegacyBooking
		problems []string
		seen     = make(map[string]int)
		dupes    []string
	)
	for n := 1; ; n++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			problems = append(problems, fmt.Sprintf("Row %d: %v", n, err))
			continue
		}

		row, err := cols.parse(record, n)
		if err != nil {
			problems = append(problems, fmt.Sprintf("Row %d: %v", n, err))
			continue
		}
		seen[row.Email]++
		if seen[row.Email] == 2 {
			dupes = append(dupes, row.Email)
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 && len(problems) == 0 {
		return nil, domain.ErrImportEmpty
	}
	if len(problems) > 0 {
		return nil, &ImportValidationError{Problems: problems}
	}
	if len(dupes) > 0 {
		return nil, &ImportValidationError{Problems: []string{"Duplicate emails in file: " + strings.Join(dupes, ", ")}}
	}
	return rows, nil
}

// legacyHeader maps each logical column to the positions of its aliases, in alias order
type legacyHeader struct {
	index     map[string][]int
	firstName int
	lastName  int
}

func resolveLegacyHeader(header []string) legacyHeader {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := positions[key]; !dup {
			positions[key] = i
		}
	}
	lookup := func(aliases ...string) int {
		for _, a := range aliases {
			if i, ok := positions[a]; ok {
				return i
			}
		}
		return -1
	}

	h := legacyHeader{
		index:     make(map[string][]int, len(legacyColumns)),
		firstName: lookup("first_name"),
		lastName:  lookup("last_name"),
	}
	for col, aliases := range legacyColumns {
		for _, a := range aliases {
			if i, ok := positions[a]; ok {
				h.index[col] = append(h.index[col], i)
			}
		}
	}
	return h
}

func (h legacyHeader) missing() []string {
	var out []string
	for _, col := range requiredLegacyColumns {
		if len(h.index[col]) == 0 {
			out = append(out, col)
		}
	}
	if len(h.index["name"]) == 0 && h.firstName < 0 {
		out = append(out, "name")
	}
	return out
}

// value returns the first non-empty cell among the aliases' columns
func (h legacyHeader) value(record []string, col string) string {
	for _, i := range h.index[col] {
		if v := cell(record, i); v != "" {
			return v
		}
	}
	return ""
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func (h legacyHeader) parse(record []string, n int) (domain.LegacyBooking, error) {
	row := domain.LegacyBooking{Row: n}

	rawEmail := h.value(record, "email")
	if rawEmail == "" {
		return row, errors.New("missing email")
	}
	email, err := domain.NormalizeEmail(rawEmail)
	if err != nil {
		return row, fmt.Errorf("invalid email: %s", rawEmail)
	}
	row.Email = email

	if name := h.value(record, "name"); name != "" {
		row.Name = name
		row.FirstName, row.LastName = domain.SplitName(name)
	} else if h.firstName >= 0 {
		row.FirstName = cell(record, h.firstName)
		row.LastName = cell(record, h.lastName)
		row.Name = strings.TrimSpace(row.FirstName + " " + row.LastName)
	}
	if row.Name == "" {
		return row, errors.New("name is empty")
	}

	if row.Gross, err = parseLegacyAmount(h.value(record, "amount"), "amount"); err != nil {
		return row, err
	}
	if row.Fee, err = parseLegacyAmount(h.value(record, "fee"), "fee"); err != nil {
		return row, err
	}
	if row.Fee > row.Gross {
		return row, fmt.Errorf("fee %s is larger than amount %s", row.Fee, row.Gross)
	}

	pi := h.value(record, "payment_intent")
	if pi == "" {
		return row, errors.New("missing payment_intent_id")
	}
	if !strings.HasPrefix(pi, "pi_") {
		return row, fmt.Errorf("invalid payment_intent_id (should start with 'pi_'): %s", pi)
	}
	row.PaymentIntentID = pi

	rawDate := h.value(record, "date")
	if rawDate == "" {
		return row, errors.New("missing date")
	}
	date, ok := parseLegacyDate(rawDate)
	if !ok {
		return row, fmt.Errorf("could not parse date: %s", rawDate)
	}
	row.Date = date

	row.Phone = h.value(record, "phone")
	row.ChargeID = h.value(record, "charge_id")
	row.BalanceTransactionID = h.value(record, "balance_txn")
	return row, nil
}

func parseLegacyAmount(raw, field string) (domain.Pence, error) {
	if raw == "" {
		return 0, fmt.Errorf("missing %s", field)
	}
	p, err := domain.ParsePounds(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", field, raw)
	}
	return p, nil
}

// parseLegacyDate reads the export's wall-clock times as London time
func parseLegacyDate(raw string) (time.Time, bool) {
	for _, layout := range legacyDateFormats {
		if t, err := time.ParseInLocation(layout, raw, domain.London); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
