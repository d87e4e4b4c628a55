package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/rs/zerolog"

	"github.com/cockatrice/testatrice/internal/core/domain"
	"github.com/cockatrice/testatrice/internal/core/ports"
)

// ImageBuilder is the subset of the Docker client used to build images.
type ImageBuilder interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options build.ImageBuildOptions) (build.ImageBuildResponse, error)
}

// Adapter builds images from a local directory or a cloned git repository
// and relays the build output to the logger.
type Adapter struct {
	cli    ImageBuilder
	log    zerolog.Logger
	labels map[string]string
}

var _ ports.BuilderService = (*Adapter)(nil)

func NewBuilderAdapter(cli ImageBuilder, log zerolog.Logger, labels map[string]string) *Adapter {
	return &Adapter{cli: cli, log: log, labels: labels}
}

// BuildImage builds spec.Tag. When spec.Repository is set it is shallow
// cloned and replaces spec.ContextDir as the build context.
func (a *Adapter) BuildImage(ctx context.Context, spec domain.BuildSpec) error {
	dir := spec.ContextDir
	if spec.Repository != "" {
		tmpDir, err := os.MkdirTemp("", "testatrice-build-*")
		if err != nil {
			return fmt.Errorf("failed to create temp dir: %w", err)
		}
		defer os.RemoveAll(tmpDir)

		if err := a.clone(ctx, spec.Repository, spec.Ref, tmpDir); err != nil {
			return err
		}
		dir = tmpDir
	}

	buildCtx, err := Context(dir)
	if err != nil {
		return err
	}
	defer buildCtx.Close()

	a.log.Info().Str("image", spec.Tag).Str("dockerfile", spec.Dockerfile).Msg("building image")
	resp, err := a.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        []string{spec.Tag},
		Dockerfile:  filepath.ToSlash(spec.Dockerfile),
		NoCache:     spec.NoCache,
		Remove:      true,
		ForceRemove: true,
		Labels:      a.labels,
	})
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	return Relay(resp.Body, a.log.With().Str("image", spec.Tag).Logger())
}

func (a *Adapter) clone(ctx context.Context, repoURL, ref, dir string) error {
	a.log.Info().Str("repository", repoURL).Str("ref", ref).Msg("cloning build context")
	opts := &git.CloneOptions{
		URL:   repoURL,
		Depth: 1,
	}
	if ref != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
		opts.SingleBranch = true
	}
	if _, err := git.PlainCloneContext(ctx, dir, false, opts); err != nil {
		return fmt.Errorf("failed to clone repo: %w", err)
	}
	return nil
}

// Context tars dir into a build context, honouring its .dockerignore.
func Context(dir string) (io.ReadCloser, error) {
	excludes, err := readDockerignore(dir)
	if err != nil {
		return nil, err
	}
	tar, err := archive.TarWithOptions(dir, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return nil, fmt.Errorf("failed to create build context: %w", err)
	}
	return tar, nil
}

func readDockerignore(dir string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, ".dockerignore"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open .dockerignore: %w", err)
	}
	defer f.Close()

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read .dockerignore: %w", err)
	}
	return patterns, nil
}

// Relay decodes a build output stream and logs every "stream" line at debug
// level. An error message in the stream fails the build.
func Relay(r io.Reader, log zerolog.Logger) error {
	dec := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read build output: %w", err)
		}

		if msg.Error != nil {
			return fmt.Errorf("build failed: %w", msg.Error)
		}
		for _, line := range strings.Split(strings.TrimRight(msg.Stream, "\n"), "\n") {
			if line != "" {
				log.Debug().Msg(line)
			}
		}
		if msg.Status != "" {
			log.Debug().Str("id", msg.ID).Msg(msg.Status)
		}
	}
}
