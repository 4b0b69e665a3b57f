package config

// SiteConfig holds site-specific configuration for a single host.
// This allows customizing snapshot behavior per site: some sites need a
// login cookie to render, others need crawl patterns to avoid logout
// links or infinite calendars.
type SiteConfig struct {
	// Cookie is an HTTP cookie to send when fetching this site.
	// Format: "name=value" or "name1=value1; name2=value2"
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are custom HTTP headers to include in requests to this site.
	Headers map[string]string `yaml:"headers,omitempty"`

	// UserAgent overrides the global User-Agent for this site.
	UserAgent string `yaml:"userAgent,omitempty"`

	// RestrictPathPrefix limits crawling of this site to URLs whose
	// path begins with this prefix.
	RestrictPathPrefix string `yaml:"restrictPathPrefix,omitempty"`

	// IgnorePatterns are URL path patterns to skip during crawling.
	// Patterns are matched against the URL path using glob syntax.
	IgnorePatterns []string `yaml:"ignorePatterns,omitempty"`

	// FollowPatterns are URL path patterns to follow during crawling.
	// If specified, only URLs matching these patterns are crawled.
	FollowPatterns []string `yaml:"followPatterns,omitempty"`
}

// File represents the structure of the .sitesnap configuration file.
type File struct {
	// Sites maps hostnames to their site-specific configurations.
	// Keys are bare hostnames (e.g., "example.com").
	Sites map[string]SiteConfig `yaml:"sites,omitempty"`

	// Defaults contains default site configuration applied to all sites
	// unless overridden in the site-specific configuration.
	Defaults SiteConfig `yaml:"defaults,omitempty"`
}

// GetSiteConfig returns the configuration for a specific host.
// It merges the site-specific configuration with defaults.
func (cf *File) GetSiteConfig(host string) SiteConfig {
	result := cf.Defaults

	if siteConfig, ok := cf.Sites[host]; ok {
		if siteConfig.Cookie != "" {
			result.Cookie = siteConfig.Cookie
		}
		if siteConfig.UserAgent != "" {
			result.UserAgent = siteConfig.UserAgent
		}
		if siteConfig.RestrictPathPrefix != "" {
			result.RestrictPathPrefix = siteConfig.RestrictPathPrefix
		}
		if len(siteConfig.Headers) > 0 {
			// Copy before merging so the shared defaults map is never mutated.
			merged := make(map[string]string, len(result.Headers)+len(siteConfig.Headers))
			for k, v := range result.Headers {
				merged[k] = v
			}
			for k, v := range siteConfig.Headers {
				merged[k] = v
			}
			result.Headers = merged
		}
		if len(siteConfig.IgnorePatterns) > 0 {
			result.IgnorePatterns = siteConfig.IgnorePatterns
		}
		if len(siteConfig.FollowPatterns) > 0 {
			result.FollowPatterns = siteConfig.FollowPatterns
		}
	}

	return result
}
