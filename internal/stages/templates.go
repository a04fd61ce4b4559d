package stages

import (
	"bytes"
	"text/template"

	"go.trai.ch/zerr"
)

// recipeData is the input of the container build recipe templates.
type recipeData struct {
	Environment   string
	BuilderImage  string
	BaseImage     string
	PrebuiltImage string
	Prebuilt      bool
	Packages      []string
	CacheDir      string
}

// buildRecipeTemplate is the recipe for the from-source build stage. It
// installs the pinned environment inside the builder image; the result is
// materialized as a sandbox directory the final stage copies from. When a
// build cache is configured, every package is pushed to it after the
// install.
const buildRecipeTemplate = `Bootstrap: docker
From: {{ .BuilderImage }}

Stage: build

%files
    manifest.yaml /opt/environment/spack.yaml
    environment.lock /opt/environment/spack.lock

%post
    cd /opt/environment
    spack env activate .
    spack install --fail-fast
    spack gc -y
{{- if .CacheDir }}
    # spack build cache
{{- range .Packages }}
    spack --env . buildcache push --allow-root --force {{ $.CacheDir }} {{ . }}
{{- end }}
{{- end }}
`

// finalRecipeTemplate is the recipe for the runtime stage. It copies the
// built software out of the build sandbox into the base image. A prebuilt
// override replaces the whole stage with the prebuilt image reference; no
// sandbox exists in that case.
const finalRecipeTemplate = `{{ if .Prebuilt -}}
Bootstrap: docker
From: {{ .PrebuiltImage }}
{{ else -}}
Bootstrap: docker
From: {{ .BaseImage }}

%files
    build/opt/environment /opt/environment
    build/opt/software /opt/software

%environment
    export PATH=/opt/software/bin:$PATH
{{ end }}
%labels
    forge.environment {{ .Environment }}
`

// defaultModuleTemplate is the built-in module file template, used when no
// configured pattern matches the environment name and no default template
// path is configured.
const defaultModuleTemplate = `#%Module

proc ModulesHelp { } {
    puts stderr "{{ .Description }}"
}

module-whatis "{{ .Description }}"
module-whatis "packages: {{ range $i, $p := .Packages }}{{ if $i }}, {{ end }}{{ $p }}{{ end }}"

set     image   {{ .Build.Image }}
set     build   {{ .Build.ID }}
set     created {{ .Build.Created }}
set     updated {{ .Build.Updated }}
{{- if .CacheDir }}
set     cache   {{ .CacheDir }}
{{- end }}

setenv  FORGE_ENVIRONMENT_IMAGE $image
`

var (
	buildRecipe = template.Must(template.New("build").Parse(buildRecipeTemplate))
	finalRecipe = template.Must(template.New("final").Parse(finalRecipeTemplate))
)

// renderRecipe renders one build recipe.
func renderRecipe(t *template.Template, data recipeData) ([]byte, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to render recipe"), "recipe", t.Name())
	}
	return buf.Bytes(), nil
}
