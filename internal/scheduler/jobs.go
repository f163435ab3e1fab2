package scheduler

import (
	"context"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tanq16/octoftp/internal/utils"
)

// Resolver is what job building needs from an engine.
type Resolver interface {
	FileSize(ctx context.Context, path string) (int64, error)
	ListRecursive(ctx context.Context, path string) ([]utils.FileEntry, error)
}

type JobDefaults struct {
	Connections    int
	RotateInterval time.Duration
	Checksum       string
	MaxSpeed       float64
}

// BuildJobs turns batch entries into download jobs. An entry naming a remote
// directory expands to every file below it, placed under destDir with its
// path relative to the directory's parent, so the directory itself is
// recreated locally.
func BuildJobs(ctx context.Context, r Resolver, entries []utils.BatchEntry, destDir string, d JobDefaults) ([]utils.DownloadJob, error) {
	log := utils.GetLogger("scheduler")
	var jobs []utils.DownloadJob
	newJob := func(remote, out, algorithm string) utils.DownloadJob {
		if algorithm == "" {
			algorithm = d.Checksum
		}
		return utils.DownloadJob{
			ID:             uuid.NewString(),
			RemotePath:     remote,
			OutputPath:     out,
			Connections:    d.Connections,
			RotateInterval: d.RotateInterval,
			MaxSpeed:       d.MaxSpeed,
			Checksum:       algorithm,
		}
	}
	for _, entry := range entries {
		_, sizeErr := r.FileSize(ctx, entry.Remote)
		if sizeErr == nil {
			out := entry.OutputPath
			if out == "" {
				out = filepath.Join(destDir, path.Base(entry.Remote))
			}
			job := newJob(entry.Remote, out, entry.Checksum)
			job.ExpectedDigest = entry.Digest
			jobs = append(jobs, job)
			continue
		}
		log.Debug().Err(sizeErr).Str("remote", entry.Remote).Msg("Not a file, trying as directory")
		files, err := r.ListRecursive(ctx, entry.Remote)
		if err != nil {
			return nil, sizeErr
		}
		base := destDir
		if entry.OutputPath != "" {
			base = entry.OutputPath
		}
		parent := path.Dir(path.Clean(entry.Remote))
		for _, f := range files {
			jobs = append(jobs, newJob(f.Path, utils.LocalPathFor(base, parent, f.Path), entry.Checksum))
		}
		log.Info().Str("remote", entry.Remote).Int("files", len(files)).Msg("Directory expanded")
	}
	return jobs, nil
}
