package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresCatalogRepository implements CatalogRepository using PostgreSQL
type PostgresCatalogRepository struct {
	db *database.PostgresDB
}

// NewPostgresCatalogRepository creates a new PostgreSQL catalog repository
func NewPostgresCatalogRepository(db *database.PostgresDB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

const workshopColumns = `
	id, title, slug, description, short_description, date, start_time, end_time,
	delivery_method, venue_name, venue_address, venue_postcode, map_url,
	meeting_url, meeting_password, prerequisites, materials_needed,
	price_pence, max_participants, current_registrations, legacy_bookings,
	hide_availability, status, created_at, updated_at
`

const concertColumns = `
	id, title, slug, description, date, time, doors_open,
	venue_name, venue_address, venue_postcode, map_url, programme_id,
	ticket_source, external_ticket_url, full_price_pence, discount_price_pence,
	discount_label, capacity, tickets_sold, status, created_at, updated_at
`

// CreateWorkshop inserts a workshop
func (r *PostgresCatalogRepository) CreateWorkshop(ctx context.Context, w *domain.Workshop) error {
	query := `INSERT INTO workshops (` + workshopColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25
	)`

	_, err := r.db.Pool().Exec(ctx, query, workshopArgs(w)...)
	if err != nil {
		if database.IsUniqueViolation(err, "workshops_slug_key") {
			return domain.ErrSlugTaken
		}
		return fmt.Errorf("failed to create workshop: %w", err)
	}
	return nil
}

// UpdateWorkshop writes every staff-editable field; cached counts are left to the ledger
func (r *PostgresCatalogRepository) UpdateWorkshop(ctx context.Context, w *domain.Workshop) error {
	query := `
		UPDATE workshops SET
			title = $2, slug = $3, description = $4, short_description = $5,
			date = $6, start_time = $7, end_time = $8, delivery_method = $9,
			venue_name = $10, venue_address = $11, venue_postcode = $12, map_url = $13,
			meeting_url = $14, meeting_password = $15, prerequisites = $16, materials_needed = $17,
			price_pence = $18, max_participants = $19, legacy_bookings = $20,
			hide_availability = $21, status = $22, updated_at = $23
		WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query,
		w.ID, w.Title, w.Slug, w.Description, w.ShortDescription,
		w.Date, pgTime(w.StartTime), pgTime(w.EndTime), string(w.Delivery),
		w.Venue.Name, w.Venue.Address, w.Venue.Postcode, w.Venue.MapURL,
		w.MeetingURL, w.MeetingPassword, w.Prerequisites, w.MaterialsNeeded,
		int64(w.Price), w.MaxParticipants, w.LegacyBookings,
		w.HideAvailability, string(w.Status), w.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "workshops_slug_key") {
			return domain.ErrSlugTaken
		}
		return fmt.Errorf("failed to update workshop: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrWorkshopNotFound
	}
	return nil
}

// GetWorkshop retrieves a workshop by ID
func (r *PostgresCatalogRepository) GetWorkshop(ctx context.Context, id string) (*domain.Workshop, error) {
	query := `SELECT ` + workshopColumns + ` FROM workshops WHERE id = $1`
	return scanWorkshop(r.db.Pool().QueryRow(ctx, query, id))
}

// GetWorkshopBySlug retrieves a workshop by slug
func (r *PostgresCatalogRepository) GetWorkshopBySlug(ctx context.Context, slug string) (*domain.Workshop, error) {
	query := `SELECT ` + workshopColumns + ` FROM workshops WHERE slug = $1`
	return scanWorkshop(r.db.Pool().QueryRow(ctx, query, slug))
}

// ListWorkshops lists workshops by date ascending
func (r *PostgresCatalogRepository) ListWorkshops(ctx context.Context, q EventQuery) ([]*domain.Workshop, error) {
	where, args := eventWhere(q, false)
	query := `SELECT ` + workshopColumns + ` FROM workshops` + where + ` ORDER BY date, start_time`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workshops: %w", err)
	}
	defer rows.Close()

	var workshops []*domain.Workshop
	for rows.Next() {
		w, err := scanWorkshop(rows)
		if err != nil {
			return nil, err
		}
		workshops = append(workshops, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workshops: %w", err)
	}
	return workshops, nil
}

// CreateConcert inserts a concert
func (r *PostgresCatalogRepository) CreateConcert(ctx context.Context, c *domain.Concert) error {
	query := `INSERT INTO concerts (` + concertColumns + `) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22
	)`

	_, err := r.db.Pool().Exec(ctx, query, concertArgs(c)...)
	if err != nil {
		if database.IsUniqueViolation(err, "concerts_slug_key") {
			return domain.ErrSlugTaken
		}
		return fmt.Errorf("failed to create concert: %w", err)
	}
	return nil
}

// UpdateConcert writes every staff-editable field; tickets_sold is left to the ledger
func (r *PostgresCatalogRepository) UpdateConcert(ctx context.Context, c *domain.Concert) error {
	query := `
		UPDATE concerts SET
			title = $2, slug = $3, description = $4, date = $5, time = $6, doors_open = $7,
			venue_name = $8, venue_address = $9, venue_postcode = $10, map_url = $11, programme_id = $12,
			ticket_source = $13, external_ticket_url = $14, full_price_pence = $15, discount_price_pence = $16,
			discount_label = $17, capacity = $18, status = $19, updated_at = $20
		WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query,
		c.ID, c.Title, c.Slug, c.Description, c.Date, pgTime(c.Time), pgTimePtr(c.DoorsOpen),
		c.Venue.Name, c.Venue.Address, c.Venue.Postcode, c.Venue.MapURL, c.ProgrammeID,
		string(c.TicketSource), c.ExternalTicketURL, int64(c.FullPrice), penceArg(c.DiscountPrice),
		c.DiscountLabel, c.Capacity, string(c.Status), c.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "concerts_slug_key") {
			return domain.ErrSlugTaken
		}
		return fmt.Errorf("failed to update concert: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.ErrConcertNotFound
	}
	return nil
}

// GetConcert retrieves a concert by ID
func (r *PostgresCatalogRepository) GetConcert(ctx context.Context, id string) (*domain.Concert, error) {
	query := `SELECT ` + concertColumns + ` FROM concerts WHERE id = $1`
	return scanConcert(r.db.Pool().QueryRow(ctx, query, id))
}

// GetConcertBySlug retrieves a concert by slug
func (r *PostgresCatalogRepository) GetConcertBySlug(ctx context.Context, slug string) (*domain.Concert, error) {
	query := `SELECT ` + concertColumns + ` FROM concerts WHERE slug = $1`
	return scanConcert(r.db.Pool().QueryRow(ctx, query, slug))
}

// ListConcerts lists concerts by date ascending
func (r *PostgresCatalogRepository) ListConcerts(ctx context.Context, q EventQuery) ([]*domain.Concert, error) {
	where, args := eventWhere(q, true)
	query := `SELECT ` + concertColumns + ` FROM concerts` + where + ` ORDER BY date, time`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query concerts: %w", err)
	}
	defer rows.Close()

	var concerts []*domain.Concert
	for rows.Next() {
		c, err := scanConcert(rows)
		if err != nil {
			return nil, err
		}
		concerts = append(concerts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate concerts: %w", err)
	}
	return concerts, nil
}

// SlugExists checks whether slug is taken by another event of the same kind
func (r *PostgresCatalogRepository) SlugExists(ctx context.Context, kind domain.EventKind, slug, excludeID string) (bool, error) {
	table := "workshops"
	if kind == domain.KindConcert {
		table = "concerts"
	}
	query := `SELECT EXISTS (SELECT 1 FROM ` + table + ` WHERE slug = $1 AND ($2::text = '' OR id::text <> $2))`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, slug, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

func eventWhere(q EventQuery, concerts bool) (string, []any) {
	var conds []string
	var args []any
	if q.From != nil {
		args = append(args, *q.From)
		conds = append(conds, fmt.Sprintf("date >= $%d", len(args)))
	}
	if q.To != nil {
		args = append(args, *q.To)
		conds = append(conds, fmt.Sprintf("date <= $%d", len(args)))
	}
	if q.PublishedOnly {
		conds = append(conds, "status = 'published'")
	}
	if concerts && q.InternalOnly {
		conds = append(conds, "ticket_source = 'internal'")
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func workshopArgs(w *domain.Workshop) []any {
	return []any{
		w.ID, w.Title, w.Slug, w.Description, w.ShortDescription,
		w.Date, pgTime(w.StartTime), pgTime(w.EndTime), string(w.Delivery),
		w.Venue.Name, w.Venue.Address, w.Venue.Postcode, w.Venue.MapURL,
		w.MeetingURL, w.MeetingPassword, w.Prerequisites, w.MaterialsNeeded,
		int64(w.Price), w.MaxParticipants, w.CurrentRegistrations, w.LegacyBookings,
		w.HideAvailability, string(w.Status), w.CreatedAt, w.UpdatedAt,
	}
}

func concertArgs(c *domain.Concert) []any {
	return []any{
		c.ID, c.Title, c.Slug, c.Description, c.Date, pgTime(c.Time), pgTimePtr(c.DoorsOpen),
		c.Venue.Name, c.Venue.Address, c.Venue.Postcode, c.Venue.MapURL, c.ProgrammeID,
		string(c.TicketSource), c.ExternalTicketURL, int64(c.FullPrice), penceArg(c.DiscountPrice),
		c.DiscountLabel, c.Capacity, c.TicketsSold, string(c.Status), c.CreatedAt, c.UpdatedAt,
	}
}

// scanWorkshop scans a single workshop from a row
func scanWorkshop(row pgx.Row) (*domain.Workshop, error) {
	var w domain.Workshop
	var start, end pgtype.Time
	var delivery, status string
	var price int64

	err := row.Scan(
		&w.ID, &w.Title, &w.Slug, &w.Description, &w.ShortDescription,
		&w.Date, &start, &end, &delivery,
		&w.Venue.Name, &w.Venue.Address, &w.Venue.Postcode, &w.Venue.MapURL,
		&w.MeetingURL, &w.MeetingPassword, &w.Prerequisites, &w.MaterialsNeeded,
		&price, &w.MaxParticipants, &w.CurrentRegistrations, &w.LegacyBookings,
		&w.HideAvailability, &status, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrWorkshopNotFound
		}
		return nil, fmt.Errorf("failed to scan workshop: %w", err)
	}

	w.StartTime = clockFrom(start)
	w.EndTime = clockFrom(end)
	w.Delivery = domain.DeliveryMethod(delivery)
	w.Status = domain.EventStatus(status)
	w.Price = domain.Pence(price)
	return &w, nil
}

// scanConcert scans a single concert from a row
func scanConcert(row pgx.Row) (*domain.Concert, error) {
	var c domain.Concert
	var at, doors pgtype.Time
	var source, status string
	var full int64
	var discount *int64

	err := row.Scan(
		&c.ID, &c.Title, &c.Slug, &c.Description, &c.Date, &at, &doors,
		&c.Venue.Name, &c.Venue.Address, &c.Venue.Postcode, &c.Venue.MapURL, &c.ProgrammeID,
		&source, &c.ExternalTicketURL, &full, &discount,
		&c.DiscountLabel, &c.Capacity, &c.TicketsSold, &status, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrConcertNotFound
		}
		return nil, fmt.Errorf("failed to scan concert: %w", err)
	}

	c.Time = clockFrom(at)
	c.DoorsOpen = clockPtrFrom(doors)
	c.TicketSource = domain.TicketSource(source)
	c.Status = domain.EventStatus(status)
	c.FullPrice = domain.Pence(full)
	c.DiscountPrice = pencePtr(discount)
	return &c, nil
}

var _ CatalogRepository = (*PostgresCatalogRepository)(nil)
