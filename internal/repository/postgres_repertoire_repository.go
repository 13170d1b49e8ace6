package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/polyphonica/booking/internal/domain"
	"github.com/polyphonica/booking/pkg/database"
)

// PostgresRepertoireRepository implements RepertoireRepository using PostgreSQL
type PostgresRepertoireRepository struct {
	db *database.PostgresDB
}

// NewPostgresRepertoireRepository creates a new PostgresRepertoireRepository
func NewPostgresRepertoireRepository(db *database.PostgresDB) *PostgresRepertoireRepository {
	return &PostgresRepertoireRepository{db: db}
}

const composerColumns = `id, name, birth_year, birth_year_qualifier, death_year, death_year_qualifier, nationality, bio, created_at`

// CreateComposer inserts a composer
func (r *PostgresRepertoireRepository) CreateComposer(ctx context.Context, c *domain.Composer) error {
	_, err := r.db.Pool().Exec(ctx, `INSERT INTO composers (`+composerColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Name, c.BirthYear, string(c.BirthYearQualifier), c.DeathYear, string(c.DeathYearQualifier),
		c.Nationality, c.Bio, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create composer: %w", err)
	}
	return nil
}

// GetComposer retrieves a composer by ID
func (r *PostgresRepertoireRepository) GetComposer(ctx context.Context, id string) (*domain.Composer, error) {
	c, err := scanComposer(r.db.Pool().QueryRow(ctx, `SELECT `+composerColumns+` FROM composers WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrComposerNotFound
		}
		return nil, err
	}
	return c, nil
}

// ListComposers lists composers by name
func (r *PostgresRepertoireRepository) ListComposers(ctx context.Context) ([]*domain.Composer, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT `+composerColumns+` FROM composers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query composers: %w", err)
	}
	defer rows.Close()

	var composers []*domain.Composer
	for rows.Next() {
		c, err := scanComposer(rows)
		if err != nil {
			return nil, err
		}
		composers = append(composers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate composers: %w", err)
	}
	return composers, nil
}

// CreatePiece inserts a piece and its movements
func (r *PostgresRepertoireRepository) CreatePiece(ctx context.Context, p *domain.Piece) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO pieces (id, title, composer_id, duration_minutes, catalogue_number, instrumentation, notes, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.Title, p.ComposerID, p.DurationMinutes, p.CatalogueNumber, p.Instrumentation, p.Notes, p.CreatedAt,
		)
		if err != nil {
			if database.IsForeignKeyViolation(err, "") {
				return domain.ErrComposerNotFound
			}
			return fmt.Errorf("failed to create piece: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range p.Movements {
			batch.Queue(`INSERT INTO movements (piece_id, position, name) VALUES ($1, $2, $3)`, p.ID, m.Order, m.Name)
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to create movements: %w", err)
		}
		return nil
	})
}

const pieceSelect = `
	SELECT p.id, p.title, p.composer_id, p.duration_minutes, p.catalogue_number, p.instrumentation, p.notes, p.created_at,
		c.id, c.name, c.birth_year, c.birth_year_qualifier, c.death_year, c.death_year_qualifier, c.nationality, c.bio, c.created_at
	FROM pieces p
	JOIN composers c ON c.id = p.composer_id
`

// GetPiece retrieves a piece with its composer and movements
func (r *PostgresRepertoireRepository) GetPiece(ctx context.Context, id string) (*domain.Piece, error) {
	p, err := scanPiece(r.db.Pool().QueryRow(ctx, pieceSelect+` WHERE p.id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrPieceNotFound
		}
		return nil, err
	}
	pieces := map[string]*domain.Piece{p.ID: p}
	if err := r.loadMovements(ctx, pieces); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PostgresRepertoireRepository) loadMovements(ctx context.Context, pieces map[string]*domain.Piece) error {
	if len(pieces) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pieces))
	for id := range pieces {
		ids = append(ids, id)
	}

	rows, err := r.db.Pool().Query(ctx, `SELECT piece_id, position, name FROM movements WHERE piece_id = ANY($1::uuid[]) ORDER BY position`, ids)
	if err != nil {
		return fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var pieceID string
		var m domain.Movement
		if err := rows.Scan(&pieceID, &m.Order, &m.Name); err != nil {
			return fmt.Errorf("failed to scan movement: %w", err)
		}
		if p, ok := pieces[pieceID]; ok {
			p.Movements = append(p.Movements, m)
		}
	}
	return rows.Err()
}

// CreateProgramme inserts an empty programme
func (r *PostgresRepertoireRepository) CreateProgramme(ctx context.Context, p *domain.Programme) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO programmes (id, title, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Title, p.Status, p.Notes, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create programme: %w", err)
	}
	return nil
}

// GetProgramme loads the programme with its items in order
func (r *PostgresRepertoireRepository) GetProgramme(ctx context.Context, id string) (*domain.Programme, error) {
	var p domain.Programme
	err := r.db.Pool().QueryRow(ctx, `SELECT id, title, status, notes, created_at, updated_at FROM programmes WHERE id = $1`, id).
		Scan(&p.ID, &p.Title, &p.Status, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrProgrammeNotFound
		}
		return nil, fmt.Errorf("failed to get programme: %w", err)
	}

	rows, err := r.db.Pool().Query(ctx, `
		SELECT id, programme_id, position, item_type, piece_id::text, title, speaker, talk_text, custom_duration, notes
		FROM programme_items WHERE programme_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query programme items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.ProgrammeItem
		var itemType string
		if err := rows.Scan(&it.ID, &it.ProgrammeID, &it.Order, &itemType, &it.PieceID,
			&it.Title, &it.Speaker, &it.TalkText, &it.CustomDuration, &it.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan programme item: %w", err)
		}
		it.Type = domain.ItemType(itemType)
		p.Items = append(p.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate programme items: %w", err)
	}
	rows.Close()

	pieces, err := r.piecesFor(ctx, p.Items)
	if err != nil {
		return nil, err
	}
	for i := range p.Items {
		if p.Items[i].PieceID != nil {
			p.Items[i].Piece = pieces[*p.Items[i].PieceID]
		}
	}
	return &p, nil
}

func (r *PostgresRepertoireRepository) piecesFor(ctx context.Context, items []domain.ProgrammeItem) (map[string]*domain.Piece, error) {
	var ids []string
	for _, it := range items {
		if it.PieceID != nil {
			ids = append(ids, *it.PieceID)
		}
	}
	pieces := make(map[string]*domain.Piece)
	if len(ids) == 0 {
		return pieces, nil
	}

	rows, err := r.db.Pool().Query(ctx, pieceSelect+` WHERE p.id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query pieces: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		piece, err := scanPiece(rows)
		if err != nil {
			return nil, err
		}
		pieces[piece.ID] = piece
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pieces: %w", err)
	}
	rows.Close()

	if err := r.loadMovements(ctx, pieces); err != nil {
		return nil, err
	}
	return pieces, nil
}

// AddProgrammeItem inserts an item at its position
func (r *PostgresRepertoireRepository) AddProgrammeItem(ctx context.Context, item *domain.ProgrammeItem) error {
	_, err := r.db.Pool().Exec(ctx, `
		INSERT INTO programme_items (id, programme_id, position, item_type, piece_id, title, speaker, talk_text, custom_duration, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		item.ID, item.ProgrammeID, item.Order, string(item.Type), item.PieceID,
		item.Title, item.Speaker, item.TalkText, item.CustomDuration, item.Notes,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "programme_items_position_key"):
			return domain.ErrDuplicateItemOrder
		case database.IsForeignKeyViolation(err, "programme_items_piece_id_fkey"):
			return domain.ErrPieceNotFound
		case database.IsForeignKeyViolation(err, ""):
			return domain.ErrProgrammeNotFound
		}
		return fmt.Errorf("failed to add programme item: %w", err)
	}
	return nil
}

func scanComposer(row pgx.Row) (*domain.Composer, error) {
	var c domain.Composer
	var birthQ, deathQ string
	err := row.Scan(&c.ID, &c.Name, &c.BirthYear, &birthQ, &c.DeathYear, &deathQ, &c.Nationality, &c.Bio, &c.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan composer: %w", err)
	}
	c.BirthYearQualifier = domain.YearQualifier(birthQ)
	c.DeathYearQualifier = domain.YearQualifier(deathQ)
	return &c, nil
}

func scanPiece(row pgx.Row) (*domain.Piece, error) {
	var p domain.Piece
	var c domain.Composer
	var birthQ, deathQ string
	err := row.Scan(
		&p.ID, &p.Title, &p.ComposerID, &p.DurationMinutes, &p.CatalogueNumber, &p.Instrumentation, &p.Notes, &p.CreatedAt,
		&c.ID, &c.Name, &c.BirthYear, &birthQ, &c.DeathYear, &deathQ, &c.Nationality, &c.Bio, &c.CreatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan piece: %w", err)
	}
	c.BirthYearQualifier = domain.YearQualifier(birthQ)
	c.DeathYearQualifier = domain.YearQualifier(deathQ)
	p.Composer = &c
	return &p, nil
}

var _ RepertoireRepository = (*PostgresRepertoireRepository)(nil)
