package goose

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

var (
	ErrNoCurrentVersion  = errors.New("no current version found")
	ErrNoNextVersion     = errors.New("no next version found")
	ErrNoPreviousVersion = errors.New("no previous version found")
)

const (
	minVersion = int64(0)
	maxVersion = int64((1 << 63) - 1)
)

// Migrations is a list of migrations sorted by version.
type Migrations []*Migration

func (ms Migrations) Len() int      { return len(ms) }
func (ms Migrations) Swap(i, j int) { ms[i], ms[j] = ms[j], ms[i] }
func (ms Migrations) Less(i, j int) bool {
	if ms[i].Version == ms[j].Version {
		panic(fmt.Sprintf("goose: duplicate version %v detected:\n%v\n%v", ms[i].Version, ms[i].Source, ms[j].Source))
	}
	return ms[i].Version < ms[j].Version
}

// Current returns the migration with the given version.
func (ms Migrations) Current(current int64) (*Migration, error) {
	for i, migration := range ms {
		if migration.Version == current {
			return ms[i], nil
		}
	}

	return nil, ErrNoCurrentVersion
}

// Next returns the first migration with a version greater than current.
func (ms Migrations) Next(current int64) (*Migration, error) {
	for i, migration := range ms {
		if migration.Version > current {
			return ms[i], nil
		}
	}

	return nil, ErrNoNextVersion
}

// Previous returns the last migration with a version lower than current.
func (ms Migrations) Previous(current int64) (*Migration, error) {
	for i := len(ms) - 1; i >= 0; i-- {
		if ms[i].Version < current {
			return ms[i], nil
		}
	}

	return nil, ErrNoPreviousVersion
}

// Last returns the migration with the highest version.
func (ms Migrations) Last() (*Migration, error) {
	if len(ms) == 0 {
		return nil, ErrNoNextVersion
	}

	return ms[len(ms)-1], nil
}

func (ms Migrations) String() string {
	str := ""
	for _, m := range ms {
		str += fmt.Sprintln(m)
	}
	return str
}

func sortAndConnectMigrations(migrations Migrations) Migrations {
	sort.Sort(migrations)

	// now that we're sorted in the appropriate direction,
	// populate next and previous for each migration
	for i, m := range migrations {
		prev := int64(-1)
		if i > 0 {
			prev = migrations[i-1].Version
			migrations[i-1].Next = m.Version
		}
		migrations[i].Previous = prev
	}

	return migrations
}

func versionFilter(v, current, target int64) bool {
	if target > current {
		return v > current && v <= target
	}

	if target < current {
		return v <= current && v > target
	}

	return false
}

// collectMigrations returns the registered Go migrations, plus the .sql
// migrations found in dir when dir is not empty, whose versions are in
// (current, target].
func (c *Client) collectMigrations(dir string, current, target int64) (Migrations, error) {
	var migrations Migrations

	if dir != "" {
		sqlMigrations, err := filepath.Glob(filepath.Join(dir, "*.sql"))
		if err != nil {
			return nil, err
		}
		for _, file := range sqlMigrations {
			v, err := NumericComponent(file)
			if err != nil {
				return nil, err
			}
			if versionFilter(v, current, target) {
				migrations = append(migrations, &Migration{Version: v, Next: -1, Previous: -1, Source: file})
			}
		}
	}

	for _, migration := range c.Migrations {
		if versionFilter(migration.Version, current, target) {
			migrations = append(migrations, &Migration{
				Version:  migration.Version,
				Next:     -1,
				Previous: -1,
				Source:   migration.Source,
				UpFn:     migration.UpFn,
				DownFn:   migration.DownFn,
			})
		}
	}

	return sortAndConnectMigrations(migrations), nil
}
