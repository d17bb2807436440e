package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/montanaflynn/stats"
)

// PRStat describes one merged pull request.
type PRStat struct {
	Repo         string
	Number       int
	FilesChanged int
	Additions    int
	Deletions    int
	Commits      int
	HoursOpen    float64
	MergedAt     time.Time
}

// Distribution summarizes one metric over the merged PRs.
type Distribution struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
}

// StatsSummary is served by the stats endpoint.
type StatsSummary struct {
	Repo         string       `json:"repo,omitempty"`
	Count        int          `json:"count"`
	FilesChanged Distribution `json:"files_changed"`
	HoursToMerge Distribution `json:"hours_to_merge"`
}

// StatsRepo stores merged PR statistics.
type StatsRepo struct {
	db *DB
}

func NewStatsRepo(db *DB) *StatsRepo {
	return &StatsRepo{db: db}
}

// Record upserts the statistics of a merged PR.
func (r *StatsRepo) Record(ctx context.Context, s PRStat) error {
	const query = `
		INSERT INTO pr_statistics (repo, pr_number, files_changed, additions, deletions, commits, hours_open, merged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo, pr_number) DO UPDATE SET
			files_changed = excluded.files_changed,
			additions     = excluded.additions,
			deletions     = excluded.deletions,
			commits       = excluded.commits,
			hours_open    = excluded.hours_open,
			merged_at     = excluded.merged_at`
	_, err := r.db.Writer.ExecContext(ctx, query,
		s.Repo, s.Number, s.FilesChanged, s.Additions, s.Deletions, s.Commits, s.HoursOpen, formatTime(s.MergedAt))
	if err != nil {
		return fmt.Errorf("record stats for %s#%d: %w", s.Repo, s.Number, err)
	}
	return nil
}

// List returns the stored PRs of repo, or of every repo when repo is "".
func (r *StatsRepo) List(ctx context.Context, repo string) ([]PRStat, error) {
	query := `SELECT repo, pr_number, files_changed, additions, deletions, commits, hours_open, merged_at FROM pr_statistics`
	var args []any
	if repo != "" {
		query += ` WHERE repo = ?`
		args = append(args, repo)
	}
	query += ` ORDER BY merged_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stats: %w", err)
	}
	defer rows.Close()

	var out []PRStat
	for rows.Next() {
		var (
			s        PRStat
			mergedAt string
		)
		if err := rows.Scan(&s.Repo, &s.Number, &s.FilesChanged, &s.Additions, &s.Deletions, &s.Commits, &s.HoursOpen, &mergedAt); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		if s.MergedAt, err = parseTime(mergedAt); err != nil {
			return nil, fmt.Errorf("parse merged_at for %s#%d: %w", s.Repo, s.Number, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return out, nil
}

// Summary aggregates the stored PRs of repo ("" for all repos).
func (r *StatsRepo) Summary(ctx context.Context, repo string) (StatsSummary, error) {
	prs, err := r.List(ctx, repo)
	if err != nil {
		return StatsSummary{}, err
	}
	out := StatsSummary{Repo: repo, Count: len(prs)}
	if len(prs) == 0 {
		return out, nil
	}

	files := make(stats.Float64Data, 0, len(prs))
	hours := make(stats.Float64Data, 0, len(prs))
	for _, p := range prs {
		files = append(files, float64(p.FilesChanged))
		hours = append(hours, p.HoursOpen)
	}
	if out.FilesChanged, err = distribution(files); err != nil {
		return StatsSummary{}, err
	}
	if out.HoursToMerge, err = distribution(hours); err != nil {
		return StatsSummary{}, err
	}
	return out, nil
}

func distribution(data stats.Float64Data) (Distribution, error) {
	var (
		d   Distribution
		err error
	)
	if d.Mean, err = data.Mean(); err != nil {
		return d, fmt.Errorf("mean: %w", err)
	}
	if d.Median, err = data.Median(); err != nil {
		return d, fmt.Errorf("median: %w", err)
	}
	// nearest rank: always a value from the sample
	if d.P90, err = data.PercentileNearestRank(90); err != nil {
		return d, fmt.Errorf("p90: %w", err)
	}
	return d, nil
}
