package config

import (
	"time"
)

type Config struct {
	Version       int           `toml:"version"`
	Analysis      Analysis      `toml:"analysis"`
	Paths         Paths         `toml:"paths"`
	Visibility    Visibility    `toml:"visibility"`
	Resolver      Resolver      `toml:"resolver"`
	Store         Store         `toml:"store"`
	Observability Observability `toml:"observability"`
	Watch         Watch         `toml:"watch"`
}

type Analysis struct {
	Workers      int  `toml:"workers"`
	IncludeTests bool `toml:"include_tests"`
}

type Paths struct {
	Roots        []string `toml:"roots"`
	ExcludeDirs  []string `toml:"exclude_dirs"`
	ExcludeFiles []string `toml:"exclude_files"`
}

// Visibility controls how leaf names map to public/private.
type Visibility struct {
	// DunderPublic treats __name__ style names as public.
	DunderPublic *bool `toml:"dunder_public"`
	// MangledPrivate treats __name (double leading underscore, no trailing) as private.
	MangledPrivate bool `toml:"mangled_private"`
}

type Resolver struct {
	// ExternalSentinel routes builtins and external imports to <external> instead of <unresolved>.
	ExternalSentinel      *bool `toml:"external_sentinel"`
	CheckArity            bool  `toml:"check_arity"`
	ReportExternalImports *bool `toml:"report_external_imports"`
}

type Store struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type Observability struct {
	MetricsAddr  string `toml:"metrics_addr"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

type Watch struct {
	Debounce             time.Duration `toml:"debounce"`
	MaxRebuildsPerSecond float64       `toml:"max_rebuilds_per_second"`
}

func (v Visibility) DunderIsPublic() bool {
	return v.DunderPublic == nil || *v.DunderPublic
}

func (r Resolver) UseExternalSentinel() bool {
	return r.ExternalSentinel == nil || *r.ExternalSentinel
}

func (r Resolver) ShouldReportExternalImports() bool {
	return r.ReportExternalImports == nil || *r.ReportExternalImports
}
