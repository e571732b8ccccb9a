package catalog

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var cityColumns = []string{"id", "id_numeric", "name", "population", "region_name", "district", "lat", "lon"}

func selectCities() sq.SelectBuilder {
	return psql.Select(cityColumns...).From("cities").OrderBy("ord ASC")
}

func upsertCity(ord int, c City) sq.InsertBuilder {
	var pop, region, district, lat, lon any
	if c.Population != nil {
		pop = *c.Population
	}
	if c.Region != nil {
		region, district = c.Region.Name, nullIfEmpty(c.Region.District)
	}
	if c.Coords != nil {
		lat, lon = c.Coords.Lat, c.Coords.Lon
	}
	return psql.Insert("cities").
		Columns(append([]string{"ord"}, cityColumns...)...).
		Values(ord, c.ID.String(), c.ID.Numeric(), c.Name, pop, region, district, lat, lon).
		Suffix(`ON CONFLICT (id) DO UPDATE SET ord=EXCLUDED.ord, id_numeric=EXCLUDED.id_numeric,
            name=EXCLUDED.name, population=EXCLUDED.population, region_name=EXCLUDED.region_name,
            district=EXCLUDED.district, lat=EXCLUDED.lat, lon=EXCLUDED.lon`)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// 按导入顺序从 cities 表读取数据集
func LoadPostgres(ctx context.Context, db *sql.DB) ([]City, error) {
	q, args, err := selectCities().ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query cities: %w", err)
	}
	defer rows.Close()
	var out []City
	for rows.Next() {
		var (
			id               string
			numeric          bool
			c                City
			pop              sql.NullInt64
			region, district sql.NullString
			lat, lon         sql.NullFloat64
		)
		if err := rows.Scan(&id, &numeric, &c.Name, &pop, &region, &district, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan city: %w", err)
		}
		c.ID = ID{key: id, numeric: numeric}
		if pop.Valid {
			p := pop.Int64
			c.Population = &p
		}
		if region.Valid {
			c.Region = &Region{Name: region.String, District: district.String}
		}
		if lat.Valid && lon.Valid {
			c.Coords = &Coords{Lat: lat.Float64, Lon: lon.Float64}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// 单事务批量 UPSERT，保留原始顺序
func SavePostgres(ctx context.Context, db *sql.DB, cities []City) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()
	for i, c := range cities {
		q, args, err := upsertCity(i, c).ToSql()
		if err != nil {
			return i, err
		}
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return i, fmt.Errorf("upsert city %s: %w", c.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(cities), nil
}
