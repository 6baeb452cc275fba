// Package provenance records where a training run came from: the source commit of the
// working directory and the host it ran on.
package provenance

import (
	"errors"
	"log/slog"
	"runtime"
	"strings"

	ggit "github.com/go-git/go-git/v5"
	"github.com/klauspost/cpuid/v2"

	"git.home.luguber.info/inful/progan/internal/version"
)

// Info is attached to RunStarted and to reports.
type Info struct {
	Commit   string   `json:"commit,omitempty"`
	Branch   string   `json:"branch,omitempty"`
	Dirty    bool     `json:"dirty,omitempty"`
	CPU      string   `json:"cpu"`
	Cores    int      `json:"cores"`
	Features []string `json:"features,omitempty"`
	GOARCH   string   `json:"goarch"`
	Version  string   `json:"version"`
}

// simdFeatures are the vector extensions worth reporting for CPU backends.
var simdFeatures = []cpuid.FeatureID{cpuid.SSE4, cpuid.AVX, cpuid.AVX2, cpuid.FMA3, cpuid.AVX512F, cpuid.AVX512DQ, cpuid.ASIMD}

// Collect gathers provenance for the repository containing dir. A directory outside any
// git repository yields host information only.
func Collect(dir string) Info {
	info := Host()
	commit, branch, dirty, err := Source(dir)
	if err != nil {
		if !errors.Is(err, ggit.ErrRepositoryNotExists) {
			slog.Debug("Source provenance unavailable", "path", dir, "error", err)
		}
		return info
	}
	info.Commit, info.Branch, info.Dirty = commit, branch, dirty
	return info
}

// Host describes the machine and build.
func Host() Info {
	info := Info{
		CPU:     strings.TrimSpace(cpuid.CPU.BrandName),
		Cores:   cpuid.CPU.LogicalCores,
		GOARCH:  runtime.GOARCH,
		Version: version.String(),
	}
	if info.CPU == "" {
		info.CPU = cpuid.CPU.VendorString
	}
	if info.Cores == 0 {
		info.Cores = runtime.NumCPU()
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f) {
			info.Features = append(info.Features, f.String())
		}
	}
	return info
}

// Source returns HEAD's hash, the branch name (empty when detached) and whether the
// worktree has uncommitted changes.
func Source(dir string) (commit, branch string, dirty bool, err error) {
	repo, err := ggit.PlainOpenWithOptions(dir, &ggit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", "", false, err
	}
	ref, err := repo.Head()
	if err != nil {
		return "", "", false, err
	}
	commit = ref.Hash().String()
	if ref.Name().IsBranch() {
		branch = ref.Name().Short()
	}
	if wt, err := repo.Worktree(); err == nil {
		if status, err := wt.Status(); err == nil {
			dirty = !status.IsClean()
		}
	}
	return commit, branch, dirty, nil
}

// ShortCommit is the first 8 characters of the commit hash.
func (i Info) ShortCommit() string {
	if len(i.Commit) > 8 {
		return i.Commit[:8]
	}
	return i.Commit
}
