package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/maxmoniot/DiaporamaMp4/internal/models"
)

var (
	// ErrProjectNotFound is returned when no project matches the requested id.
	ErrProjectNotFound = errors.New("project not found")

	// ErrExportInProgress is returned by StartExport when another export
	// already holds the processing slot for this project.
	ErrExportInProgress = errors.New("export already in progress")
)

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	photos, err := models.MarshalJSONB(project.Photos)
	if err != nil {
		return fmt.Errorf("failed to marshal photos: %w", err)
	}
	settings, err := models.MarshalJSONB(project.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	var music models.JSONB
	if project.Music != nil {
		if music, err = models.MarshalJSONB(project.Music); err != nil {
			return fmt.Errorf("failed to marshal music: %w", err)
		}
	}

	query := `
		INSERT INTO projects (
			id, photos, music, settings, export_status, export_progress, export_file
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.ID, photos, music, settings,
		project.Export.Status, project.Export.Progress, project.Export.OutputFile,
	).Scan(&project.CreatedAt)
}

func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `
		SELECT id, photos, music, settings, export_status, export_progress, export_file, created_at
		FROM projects
		WHERE id = $1
	`

	var (
		project models.Project
		photos  models.JSONB
		music   models.JSONB
		sett    models.JSONB
	)

	err := db.QueryRowContext(ctx, query, id).Scan(
		&project.ID, &photos, &music, &sett,
		&project.Export.Status, &project.Export.Progress, &project.Export.OutputFile,
		&project.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &project.Photos); err != nil {
			return nil, fmt.Errorf("failed to decode photos document: %w", err)
		}
	}
	if len(music) > 0 {
		project.Music = &models.MusicTrack{}
		if err := json.Unmarshal(music, project.Music); err != nil {
			return nil, fmt.Errorf("failed to decode music document: %w", err)
		}
	}
	if len(sett) > 0 {
		if err := json.Unmarshal(sett, &project.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode settings document: %w", err)
		}
	}

	return &project, nil
}

// UpdatePhotos replaces the project's photo document wholesale. Reorder,
// duration updates, deletions, and preview regeneration all go through here.
func (db *DB) UpdatePhotos(ctx context.Context, id uuid.UUID, photos []models.Photo) error {
	doc, err := models.MarshalJSONB(photos)
	if err != nil {
		return fmt.Errorf("failed to marshal photos: %w", err)
	}

	return db.execOnProject(ctx, id,
		`UPDATE projects SET photos = $1 WHERE id = $2`, doc, id)
}

// UpdateMusic replaces the project's music track. A nil track clears it.
func (db *DB) UpdateMusic(ctx context.Context, id uuid.UUID, track *models.MusicTrack) error {
	var doc models.JSONB
	if track != nil {
		var err error
		if doc, err = models.MarshalJSONB(track); err != nil {
			return fmt.Errorf("failed to marshal music: %w", err)
		}
	}

	return db.execOnProject(ctx, id,
		`UPDATE projects SET music = $1 WHERE id = $2`, doc, id)
}

func (db *DB) UpdateSettings(ctx context.Context, id uuid.UUID, settings models.ProjectSettings) error {
	doc, err := models.MarshalJSONB(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	return db.execOnProject(ctx, id,
		`UPDATE projects SET settings = $1 WHERE id = $2`, doc, id)
}

// StartExport claims the processing slot for a new export run. The conditional
// UPDATE is the mutual exclusion: while a run is processing, a second start
// affects zero rows and is rejected instead of racing on the same state.
func (db *DB) StartExport(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE projects
		SET export_status = $1, export_progress = 0, export_file = NULL
		WHERE id = $2 AND export_status <> $1
	`

	res, err := db.ExecContext(ctx, query, models.ExportStatusProcessing, id)
	if err != nil {
		return fmt.Errorf("failed to start export: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to start export: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows: either the project is missing or an export already runs.
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to start export: %w", err)
	}
	if !exists {
		return ErrProjectNotFound
	}
	return ErrExportInProgress
}

func (db *DB) UpdateExportProgress(ctx context.Context, id uuid.UUID, progress float64) error {
	return db.execOnProject(ctx, id,
		`UPDATE projects SET export_progress = $1 WHERE id = $2`, progress, id)
}

func (db *DB) CompleteExport(ctx context.Context, id uuid.UUID, outputFile string) error {
	query := `
		UPDATE projects
		SET export_status = $1, export_progress = 100, export_file = $2
		WHERE id = $3
	`
	return db.execOnProject(ctx, id, query, models.ExportStatusCompleted, outputFile, id)
}

func (db *DB) FailExport(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE projects
		SET export_status = $1, export_file = NULL
		WHERE id = $2
	`
	return db.execOnProject(ctx, id, query, models.ExportStatusError, id)
}

func (db *DB) execOnProject(ctx context.Context, id uuid.UUID, query string, args ...interface{}) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if affected == 0 {
		return ErrProjectNotFound
	}
	return nil
}
