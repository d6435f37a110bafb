package api

// Federation is the root configuration of a federated repository. It names
// the backing sources and how each one is projected into the repository.
type Federation struct {
	// Name of the repository, used in logs and the HTTP API.
	Name string `json:"name" yaml:"name" hcl:"name"`
	// NoContributionTTL bounds how long "nothing here" answers and failed
	// sources are trusted (e.g. "30s"). Defaults to one minute.
	NoContributionTTL string `json:"no_contribution_ttl,omitempty" yaml:"no_contribution_ttl,omitempty" hcl:"no_contribution_ttl,optional"`
	// Cache stores merged nodes. Optional.
	Cache *Cache `json:"cache,omitempty" yaml:"cache,omitempty" hcl:"cache,block"`
	// Sources are the backing repositories, the cache included.
	Sources []Source `json:"sources" yaml:"sources" hcl:"source,block"`
	// Projections map sources into the repository, in precedence order.
	Projections []Projection `json:"projections" yaml:"projections" hcl:"projection,block"`
}

// Cache selects the source that stores merged nodes.
type Cache struct {
	// Source names an entry of Sources.
	Source string `json:"source" yaml:"source" hcl:"source"`
	// Rules default to "/ => /".
	Rules []string `json:"rules,omitempty" yaml:"rules,omitempty" hcl:"rules,optional"`
}

// Source describes one backing repository.
type Source struct {
	Name string `json:"name" yaml:"name" hcl:"name,label"`
	// Kind is one of memory, sqlite, redis, fs, memfs or json.
	Kind string `json:"kind" yaml:"kind" hcl:"kind"`
	// TTL is the default cache lifetime of the source's answers (e.g.
	// "10m"); empty or zero means they never expire.
	TTL string `json:"ttl,omitempty" yaml:"ttl,omitempty" hcl:"ttl,optional"`

	// Path is the database file (sqlite), directory (fs) or document (json).
	Path string `json:"path,omitempty" yaml:"path,omitempty" hcl:"path,optional"`
	// Selector roots a json source at the first JSONPath match.
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty" hcl:"selector,optional"`

	// Redis connection settings.
	Address  string `json:"address,omitempty" yaml:"address,omitempty" hcl:"address,optional"`
	Password string `json:"password,omitempty" yaml:"password,omitempty" hcl:"password,optional"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty" hcl:"db,optional"`
	URL      string `json:"url,omitempty" yaml:"url,omitempty" hcl:"url,optional"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty" hcl:"prefix,optional"`
}

// Projection maps one source into the repository.
type Projection struct {
	Source string `json:"source" yaml:"source" hcl:"source,label"`
	// Rules use the "repoPath => sourcePath $ exception" syntax.
	Rules    []string `json:"rules" yaml:"rules" hcl:"rules"`
	ReadOnly bool     `json:"read_only,omitempty" yaml:"read_only,omitempty" hcl:"read_only,optional"`
}
