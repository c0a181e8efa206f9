package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/instancer/internal/region"
)

// TemplateRepository stores instance templates and regions in PostgreSQL.
// Implements region.Store.
type TemplateRepository struct {
	pool *pgxpool.Pool
}

var _ region.Store = (*TemplateRepository)(nil)

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(pool *pgxpool.Pool) *TemplateRepository {
	return &TemplateRepository{pool: pool}
}

// SpawnDescriptors implements region.Store.
func (r *TemplateRepository) SpawnDescriptors(ctx context.Context, name string) ([]region.SpawnDescriptor, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM instance_templates WHERE name = $1)`, name,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("querying template %q: %w", name, err)
	}
	if !exists {
		return nil, fmt.Errorf("spawn descriptors %q: %w", name, region.ErrTemplateNotFound)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT class_type, x, y, z, heading, spawn_template_id
		FROM template_spawns
		WHERE template_name = $1
		ORDER BY seq`, name)
	if err != nil {
		return nil, fmt.Errorf("loading spawns of template %q: %w", name, err)
	}
	defer rows.Close()

	out := make([]region.SpawnDescriptor, 0, 16)
	for rows.Next() {
		var (
			d       region.SpawnDescriptor
			heading int32
		)
		if err := rows.Scan(&d.ClassType, &d.Location.X, &d.Location.Y, &d.Location.Z, &heading, &d.SpawnTemplateID); err != nil {
			return nil, fmt.Errorf("scanning spawn row of template %q: %w", name, err)
		}
		d.Location.Heading = uint16(heading)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spawn rows of template %q: %w", name, err)
	}
	return out, nil
}

// RegionName implements region.Store.
func (r *TemplateRepository) RegionName(ctx context.Context, regionID int32) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM regions WHERE region_id = $1`, regionID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("region %d: %w", regionID, region.ErrRegionNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying region %d: %w", regionID, err)
	}
	return name, nil
}

// Partitions implements region.Store.
func (r *TemplateRepository) Partitions(ctx context.Context, regionID int32) ([]region.PartitionDescriptor, error) {
	if _, err := r.RegionName(ctx, regionID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT partition_id, name, x, y, width, height
		FROM region_partitions
		WHERE region_id = $1
		ORDER BY partition_id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("loading partitions of region %d: %w", regionID, err)
	}
	defer rows.Close()

	var out []region.PartitionDescriptor
	for rows.Next() {
		var p region.PartitionDescriptor
		if err := rows.Scan(&p.ID, &p.Name, &p.X, &p.Y, &p.Width, &p.Height); err != nil {
			return nil, fmt.Errorf("scanning partition row of region %d: %w", regionID, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partitions of region %d: %w", regionID, err)
	}
	return out, nil
}

// StaticEntities implements region.Store.
func (r *TemplateRepository) StaticEntities(ctx context.Context, regionID int32) ([]region.EntityDescriptor, error) {
	if _, err := r.RegionName(ctx, regionID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT class_type, name, x, y, z, heading, template_id, props
		FROM region_entities
		WHERE region_id = $1
		ORDER BY seq`, regionID)
	if err != nil {
		return nil, fmt.Errorf("loading entities of region %d: %w", regionID, err)
	}
	defer rows.Close()

	var out []region.EntityDescriptor
	for rows.Next() {
		var (
			e       region.EntityDescriptor
			heading int32
		)
		if err := rows.Scan(&e.ClassType, &e.Name, &e.Location.X, &e.Location.Y, &e.Location.Z,
			&heading, &e.TemplateID, &e.Props); err != nil {
			return nil, fmt.Errorf("scanning entity row of region %d: %w", regionID, err)
		}
		e.Location.Heading = uint16(heading)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entities of region %d: %w", regionID, err)
	}
	return out, nil
}

// SpawnPoints implements region.Store.
func (r *TemplateRepository) SpawnPoints(ctx context.Context, regionID int32) ([]region.SpawnPoint, error) {
	if _, err := r.RegionName(ctx, regionID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT spawn_point_id, class_type, x, y, z, heading, template_id, count, respawn_delay
		FROM region_spawn_points
		WHERE region_id = $1
		ORDER BY spawn_point_id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("loading spawn points of region %d: %w", regionID, err)
	}
	defer rows.Close()

	var out []region.SpawnPoint
	for rows.Next() {
		var (
			sp      region.SpawnPoint
			heading int32
		)
		if err := rows.Scan(&sp.ID, &sp.ClassType, &sp.Location.X, &sp.Location.Y, &sp.Location.Z,
			&heading, &sp.TemplateID, &sp.Count, &sp.RespawnDelay); err != nil {
			return nil, fmt.Errorf("scanning spawn point row of region %d: %w", regionID, err)
		}
		sp.Location.Heading = uint16(heading)
		out = append(out, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating spawn points of region %d: %w", regionID, err)
	}
	return out, nil
}

// Areas implements region.Store.
func (r *TemplateRepository) Areas(ctx context.Context, regionID int32) ([]region.AreaDescriptor, error) {
	if _, err := r.RegionName(ctx, regionID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT area_id, partition_id, name, kind, shape, min_z, max_z, nodes, radius, params
		FROM region_areas
		WHERE region_id = $1
		ORDER BY area_id`, regionID)
	if err != nil {
		return nil, fmt.Errorf("loading areas of region %d: %w", regionID, err)
	}
	defer rows.Close()

	var out []region.AreaDescriptor
	for rows.Next() {
		var a region.AreaDescriptor
		if err := rows.Scan(&a.ID, &a.PartitionID, &a.Name, &a.Kind, &a.Shape,
			&a.MinZ, &a.MaxZ, &a.Nodes, &a.Radius, &a.Params); err != nil {
			return nil, fmt.Errorf("scanning area row of region %d: %w", regionID, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating areas of region %d: %w", regionID, err)
	}
	return out, nil
}

// SaveTemplate validates and stores a template, replacing any template of
// the same name.
func (r *TemplateRepository) SaveTemplate(ctx context.Context, t region.Template) error {
	if err := t.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for template %q: %w", t.Name, err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO instance_templates (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, t.Name,
	); err != nil {
		return fmt.Errorf("inserting template %q: %w", t.Name, err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM template_spawns WHERE template_name = $1`, t.Name); err != nil {
		return fmt.Errorf("deleting old spawns of template %q: %w", t.Name, err)
	}

	if len(t.Spawns) > 0 {
		rows := make([][]any, 0, len(t.Spawns))
		for i, s := range t.Spawns {
			rows = append(rows, []any{
				t.Name, int32(i), s.ClassType,
				s.Location.X, s.Location.Y, s.Location.Z, int32(s.Location.Heading),
				s.SpawnTemplateID,
			})
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"template_spawns"},
			[]string{"template_name", "seq", "class_type", "x", "y", "z", "heading", "spawn_template_id"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("inserting spawns of template %q: %w", t.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction for template %q: %w", t.Name, err)
	}

	slog.Debug("template saved", "template", t.Name, "spawns", len(t.Spawns))
	return nil
}

// SaveRegion validates and stores a region, replacing any region with the same id.
func (r *TemplateRepository) SaveRegion(ctx context.Context, reg region.Region) error {
	if err := reg.Validate(); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction for region %d: %w", reg.ID, err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `DELETE FROM regions WHERE region_id = $1`, reg.ID); err != nil {
		return fmt.Errorf("deleting old region %d: %w", reg.ID, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO regions (region_id, name) VALUES ($1, $2)`, reg.ID, reg.Name,
	); err != nil {
		return fmt.Errorf("inserting region %d: %w", reg.ID, err)
	}

	// Порядок важен: areas ссылаются на partitions.
	batch := &pgx.Batch{}
	for _, p := range reg.Partitions {
		batch.Queue(
			`INSERT INTO region_partitions (region_id, partition_id, name, x, y, width, height)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			reg.ID, p.ID, p.Name, p.X, p.Y, p.Width, p.Height,
		)
	}
	for i, e := range reg.Entities {
		batch.Queue(
			`INSERT INTO region_entities (region_id, seq, class_type, name, x, y, z, heading, template_id, props)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			reg.ID, int32(i), e.ClassType, e.Name,
			e.Location.X, e.Location.Y, e.Location.Z, int32(e.Location.Heading),
			e.TemplateID, nonNil(e.Props),
		)
	}
	for _, sp := range reg.SpawnPoints {
		batch.Queue(
			`INSERT INTO region_spawn_points
			 (region_id, spawn_point_id, class_type, x, y, z, heading, template_id, count, respawn_delay)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			reg.ID, sp.ID, sp.ClassType,
			sp.Location.X, sp.Location.Y, sp.Location.Z, int32(sp.Location.Heading),
			sp.TemplateID, sp.Count, sp.RespawnDelay,
		)
	}
	for _, a := range reg.Areas {
		nodes := a.Nodes
		if nodes == nil {
			nodes = []region.Point{}
		}
		batch.Queue(
			`INSERT INTO region_areas
			 (region_id, area_id, partition_id, name, kind, shape, min_z, max_z, nodes, radius, params)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			reg.ID, a.ID, a.PartitionID, a.Name, a.Kind, a.Shape,
			a.MinZ, a.MaxZ, nodes, a.Radius, nonNil(a.Params),
		)
	}

	if n := batch.Len(); n > 0 {
		br := tx.SendBatch(ctx, batch)
		for range n {
			if _, err := br.Exec(); err != nil {
				br.Close() //nolint:errcheck
				return fmt.Errorf("inserting contents of region %d: %w", reg.ID, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch of region %d: %w", reg.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction for region %d: %w", reg.ID, err)
	}

	slog.Debug("region saved",
		"regionID", reg.ID,
		"partitions", len(reg.Partitions),
		"entities", len(reg.Entities),
		"spawnPoints", len(reg.SpawnPoints),
		"areas", len(reg.Areas))
	return nil
}

// Import copies every template and region of src into the database.
func (r *TemplateRepository) Import(ctx context.Context, src *region.MemoryStore) (templates, regions int, err error) {
	for _, name := range src.TemplateNames() {
		t, ok := src.Template(name)
		if !ok {
			continue
		}
		if err := r.SaveTemplate(ctx, t); err != nil {
			return templates, regions, fmt.Errorf("importing template %q: %w", name, err)
		}
		templates++
	}
	for _, id := range src.RegionIDs() {
		reg, ok := src.Region(id)
		if !ok {
			continue
		}
		if err := r.SaveRegion(ctx, reg); err != nil {
			return templates, regions, fmt.Errorf("importing region %d: %w", id, err)
		}
		regions++
	}

	slog.Info("templates imported", "templates", templates, "regions", regions)
	return templates, regions, nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		slog.Error("rollback failed", "error", err)
	}
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
