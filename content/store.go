package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/briefing/errors"
)

// Store persists presentations and their slides.
type Store struct {
	db *sql.DB
}

// NewStore creates a new content store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreatePresentation inserts a presentation. Slides are saved separately.
func (s *Store) CreatePresentation(ctx context.Context, p *Presentation) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO presentations (id, name, description, is_template, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.IsTemplate,
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to create presentation %s", p.ID)
	}
	return nil
}

// GetPresentation loads a presentation with its slide IDs in order.
// A missing row returns an error marked errors.ErrContentNotFound.
func (s *Store) GetPresentation(ctx context.Context, id string) (*Presentation, error) {
	var p Presentation
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, is_template, created_at, updated_at
		FROM presentations WHERE id = ?`, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.IsTemplate, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewContentNotFoundError("presentation", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get presentation %s", id)
	}

	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse created_at for presentation %s", id)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, errors.Wrapf(err, "failed to parse updated_at for presentation %s", id)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM slides WHERE presentation_id = ? ORDER BY position ASC`, id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list slides of %s", id)
	}
	defer rows.Close()

	p.SlideIDs = []string{}
	for rows.Next() {
		var slideID string
		if err := rows.Scan(&slideID); err != nil {
			return nil, errors.Wrap(err, "failed to scan slide id")
		}
		p.SlideIDs = append(p.SlideIDs, slideID)
	}
	return &p, rows.Err()
}

// GetTemplate loads a presentation and requires it to be a template.
func (s *Store) GetTemplate(ctx context.Context, id string) (*Presentation, error) {
	p, err := s.GetPresentation(ctx, id)
	if err != nil {
		if errors.Is(err, errors.ErrContentNotFound) {
			return nil, errors.NewContentNotFoundError("template", id)
		}
		return nil, err
	}
	if !p.IsTemplate {
		return nil, errors.NewContentNotFoundError("template", id)
	}
	return p, nil
}

// ListPresentations returns presentations ordered by name.
// templates filters on IsTemplate when non-nil.
func (s *Store) ListPresentations(ctx context.Context, templates *bool) ([]*Presentation, error) {
	query := `SELECT id, name, description, is_template, created_at, updated_at FROM presentations`
	var args []interface{}
	if templates != nil {
		query += ` WHERE is_template = ?`
		args = append(args, *templates)
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list presentations")
	}
	defer rows.Close()

	var out []*Presentation
	for rows.Next() {
		var p Presentation
		var createdAt, updatedAt string
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.IsTemplate, &createdAt, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan presentation")
		}
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveSlide inserts or replaces a slide, including its elements.
func (s *Store) SaveSlide(ctx context.Context, slide *Slide) error {
	elements, err := json.Marshal(slide.Elements)
	if err != nil {
		return errors.Wrapf(err, "failed to encode elements of slide %s", slide.ID)
	}

	var background interface{}
	if slide.BackgroundImage != nil {
		background = *slide.BackgroundImage
	}

	slide.UpdatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO slides (id, presentation_id, position, background_image, elements, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			background_image = excluded.background_image,
			elements = excluded.elements,
			updated_at = excluded.updated_at`,
		slide.ID, slide.PresentationID, slide.Position, background, string(elements),
		slide.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save slide %s", slide.ID)
	}
	return nil
}

// SaveSlides saves slides in one transaction.
func (s *Store) SaveSlides(ctx context.Context, slides []*Slide) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin slide transaction")
	}
	for _, slide := range slides {
		elements, err := json.Marshal(slide.Elements)
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to encode elements of slide %s", slide.ID)
		}
		var background interface{}
		if slide.BackgroundImage != nil {
			background = *slide.BackgroundImage
		}
		slide.UpdatedAt = time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE slides SET elements = ?, background_image = ?, updated_at = ?
			WHERE id = ?`,
			string(elements), background, slide.UpdatedAt.Format(time.RFC3339), slide.ID,
		); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "failed to update slide %s", slide.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit slides")
}

// GetSlides loads the slides of a presentation ordered by position.
func (s *Store) GetSlides(ctx context.Context, presentationID string) ([]*Slide, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, presentation_id, position, background_image, elements, updated_at
		FROM slides WHERE presentation_id = ? ORDER BY position ASC`, presentationID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get slides of %s", presentationID)
	}
	defer rows.Close()

	var slides []*Slide
	for rows.Next() {
		var slide Slide
		var background sql.NullString
		var elements, updatedAt string
		if err := rows.Scan(&slide.ID, &slide.PresentationID, &slide.Position, &background, &elements, &updatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan slide")
		}
		if background.Valid {
			slide.BackgroundImage = &background.String
		}
		if err := json.Unmarshal([]byte(elements), &slide.Elements); err != nil {
			return nil, errors.Wrapf(err, "failed to decode elements of slide %s", slide.ID)
		}
		slide.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		slides = append(slides, &slide)
	}
	return slides, rows.Err()
}

// DeletePresentation removes a presentation and its slides. Jobs that still
// reference it fail at their next execution with a content-not-found error.
func (s *Store) DeletePresentation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM presentations WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "failed to delete presentation %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewContentNotFoundError("presentation", id)
	}
	return nil
}
