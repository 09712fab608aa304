package config

// File represents the structure of the .clinicscan configuration file.
type File struct {
	// Scope bounds the crawl.
	Scope ScopeConfig `yaml:"scope,omitempty"`

	// Rules tunes the extraction heuristics. Empty lists keep the built-in rules.
	Rules RulesConfig `yaml:"rules,omitempty"`

	// Defaults contains HTTP settings applied to every archive host
	// unless overridden in Hosts.
	Defaults HostConfig `yaml:"defaults,omitempty"`

	// Hosts maps archive hostnames (e.g. "web.archive.org") to their settings.
	Hosts map[string]HostConfig `yaml:"hosts,omitempty"`
}

// ScopeConfig holds the crawl boundary.
type ScopeConfig struct {
	// Prefix is the original-site prefix captures must fall under.
	Prefix string `yaml:"prefix,omitempty"`

	// Collection is the path segment preceding the capture timestamp
	// ("web" on the Wayback Machine).
	Collection string `yaml:"collection,omitempty"`
}

// RulesConfig holds the site-specific vocabulary used by the extractors.
type RulesConfig struct {
	// Containers are the primary-content selectors, in priority order.
	Containers []string `yaml:"containers,omitempty"`

	// HeadingSelectors locate the clinic heading, in priority order.
	HeadingSelectors []string `yaml:"headingSelectors,omitempty"`

	GreetingPrefixes    []string `yaml:"greetingPrefixes,omitempty"`
	ExcludedTitles      []string `yaml:"excludedTitles,omitempty"`
	BreadcrumbSelectors []string `yaml:"breadcrumbSelectors,omitempty"`
	TitleSeparators     []string `yaml:"titleSeparators,omitempty"`
	StreetWords         []string `yaml:"streetWords,omitempty"`
	RegionAbbreviations []string `yaml:"regionAbbreviations,omitempty"`
	ServiceMarkers      []string `yaml:"serviceMarkers,omitempty"`
	GenericPhones       []string `yaml:"genericPhones,omitempty"`

	// MaxServiceLength rejects fallback service lists with longer items.
	MaxServiceLength int `yaml:"maxServiceLength,omitempty"`
}

// HostConfig holds HTTP settings for one archive host.
type HostConfig struct {
	// UserAgent overrides the global User-Agent.
	UserAgent string `yaml:"userAgent,omitempty"`

	// Cookie is an HTTP cookie sent with every request.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers included in requests.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// GetHostConfig returns the configuration for an archive host.
// It merges the host-specific configuration with defaults.
func (cf *File) GetHostConfig(host string) HostConfig {
	result := HostConfig{
		UserAgent: cf.Defaults.UserAgent,
		Cookie:    cf.Defaults.Cookie,
	}
	if len(cf.Defaults.Headers) > 0 {
		result.Headers = make(map[string]string, len(cf.Defaults.Headers))
		for k, v := range cf.Defaults.Headers {
			result.Headers[k] = v
		}
	}

	hostConfig, ok := cf.Hosts[host]
	if !ok {
		return result
	}
	if hostConfig.UserAgent != "" {
		result.UserAgent = hostConfig.UserAgent
	}
	if hostConfig.Cookie != "" {
		result.Cookie = hostConfig.Cookie
	}
	if len(hostConfig.Headers) > 0 {
		if result.Headers == nil {
			result.Headers = make(map[string]string)
		}
		for k, v := range hostConfig.Headers {
			result.Headers[k] = v
		}
	}
	return result
}
