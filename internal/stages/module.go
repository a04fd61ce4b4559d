package stages

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"text/template"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/forge/internal/core/domain"
	"go.trai.ch/forge/internal/core/ports"
)

var _ ports.StageExecutor = (*ModuleExecutor)(nil)

// builtinTemplateName labels the built-in module template in errors and
// fingerprint provenance.
const builtinTemplateName = "builtin"

// TemplateRule maps an environment name pattern to a module template file.
type TemplateRule struct {
	Pattern string
	Path    string
}

// ModuleOptions configure module file generation.
type ModuleOptions struct {
	// Rules are evaluated in order against the environment name; the first
	// match selects the template file.
	Rules []TemplateRule

	// DefaultPath is the template used when no rule matches. Empty falls
	// back to the built-in template.
	DefaultPath string

	// Bucket is the registry bucket, used to derive the image reference
	// the module file points at.
	Bucket string

	// CacheDir is the package build cache exposed to module consumers.
	CacheDir string
}

// moduleRule is a template rule with its pattern compiled.
type moduleRule struct {
	pattern *regexp.Regexp
	path    string
}

// moduleData is the input of a module file template.
type moduleData struct {
	Description string
	Packages    []string
	CacheDir    string
	Build       moduleBuildInfo
}

// moduleBuildInfo carries the build provenance rendered into a module file.
type moduleBuildInfo struct {
	ID      string
	Image   string
	Created string
	Updated string
}

// ModuleExecutor renders the environment module file from a template
// selected by first-match over the configured name patterns, falling back to
// the default template.
type ModuleExecutor struct {
	cache  ports.CacheStore
	logger ports.Logger
	opts   ModuleOptions
	rules  []moduleRule
}

// NewModuleExecutor creates a new ModuleExecutor. Every rule pattern is
// compiled up front so a bad pattern fails process startup instead of a run.
func NewModuleExecutor(cache ports.CacheStore, logger ports.Logger, opts ModuleOptions) (*ModuleExecutor, error) {
	rules := make([]moduleRule, 0, len(opts.Rules))
	for _, r := range opts.Rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			ruleErr := zerr.With(domain.ErrInvalidTemplatePattern, "pattern", r.Pattern)
			ruleErr = zerr.With(ruleErr, "cause", err.Error())
			return nil, ruleErr
		}
		rules = append(rules, moduleRule{pattern: re, path: r.Path})
	}

	return &ModuleExecutor{cache: cache, logger: logger, opts: opts, rules: rules}, nil
}

// Stage identifies the pipeline stage this executor implements.
func (e *ModuleExecutor) Stage() domain.Stage {
	return domain.StageGenerateModule
}

// Execute runs the module generation stage for the given job.
func (e *ModuleExecutor) Execute(ctx context.Context, job domain.StageJob) (domain.StageResult, error) {
	started := time.Now().UTC()

	lock, ok := job.Dependency(domain.StageConcretize)
	if !ok {
		depErr := zerr.With(domain.ErrMissingDependency, "stage", string(domain.StageConcretize))
		return failedResult(job, "", started, depErr, 0), depErr
	}

	name := job.Manifest.Name()
	source, origin, err := e.selectTemplate(name)
	if err != nil {
		stageErr := zerr.Wrap(err, domain.ErrModuleGeneration.Error())
		return failedResult(job, "", started, stageErr, 0), stageErr
	}

	d := newDigest(domain.StageGenerateModule)
	d.writeString(name)
	d.writeString(job.Manifest.Environment.Description)
	d.writeStrings(job.Manifest.Environment.Packages)
	if err := d.writeFile(lock.OutputRef); err != nil {
		return failedResult(job, "", started, err, 0), err
	}
	d.writeBytes(source)
	fp := d.Sum()

	ref, state, err := consultFile(e.cache, fp)
	if err != nil {
		return failedResult(job, fp, started, err, 0), err
	}
	if state == cacheHit {
		e.logger.Info(fmt.Sprintf("serving module file from cache: %s", ref))
		return cachedResult(job, fp, started, ref), nil
	}

	if err := ensureWorkspace(job.Workspace); err != nil {
		return failedResult(job, fp, started, err, 0), err
	}

	tmpl, err := template.New(origin).Parse(string(source))
	if err != nil {
		parseErr := zerr.With(zerr.Wrap(err, domain.ErrTemplateParseFailed.Error()), "template", origin)
		stageErr := zerr.Wrap(parseErr, domain.ErrModuleGeneration.Error())
		return failedResult(job, fp, started, stageErr, 1), stageErr
	}

	data := moduleData{
		Description: job.Manifest.Environment.Description,
		Packages:    job.Manifest.Environment.Packages,
		CacheDir:    e.opts.CacheDir,
		Build: moduleBuildInfo{
			ID:      job.RunID,
			Image:   fmt.Sprintf("s3://%s/%s", e.opts.Bucket, domain.ArtifactKey(name, job.Version, domain.ImageFileName)),
			Created: job.CreatedAt.UTC().Format(time.RFC3339),
			Updated: time.Now().UTC().Format(time.RFC3339),
		},
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		stageErr := zerr.With(
			zerr.Wrap(err, domain.ErrModuleGeneration.Error()),
			"template", origin,
		)
		return failedResult(job, fp, started, stageErr, 1), stageErr
	}

	modulePath := filepath.Join(job.Workspace, domain.ModuleFileName)
	if err := os.WriteFile(modulePath, buf.Bytes(), domain.FilePerm); err != nil {
		wErr := zerr.With(zerr.Wrap(err, "failed to write module file"), "path", modulePath)
		return failedResult(job, fp, started, wErr, 1), wErr
	}

	if state != cacheStale {
		if err := e.cache.Store(fp, modulePath); err != nil {
			return failedResult(job, fp, started, err, 1), err
		}
	}

	e.logger.Info(fmt.Sprintf("module file generated from %s template: %s", origin, modulePath))
	return succeededResult(job, fp, started, modulePath, 1), nil
}

// selectTemplate picks the template for an environment name and returns its
// source together with its origin for error reporting.
func (e *ModuleExecutor) selectTemplate(name string) ([]byte, string, error) {
	for _, rule := range e.rules {
		if rule.pattern.MatchString(name) {
			source, err := readTemplate(rule.path)
			return source, rule.path, err
		}
	}

	if e.opts.DefaultPath != "" {
		source, err := readTemplate(e.opts.DefaultPath)
		return source, e.opts.DefaultPath, err
	}

	return []byte(defaultModuleTemplate), builtinTemplateName, nil
}

func readTemplate(path string) ([]byte, error) {
	source, err := os.ReadFile(path) //nolint:gosec // Path comes from trusted configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, zerr.With(domain.ErrTemplateNotFound, "path", path)
		}
		return nil, zerr.With(zerr.Wrap(err, "failed to read template"), "path", path)
	}
	return source, nil
}
