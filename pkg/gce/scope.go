package gce

import "strings"

// DefaultBaseURL is used for self-links when no public URL is configured.
const DefaultBaseURL = "https://www.googleapis.com/compute/v1/"

// Scope is the addressing context of a resource: a project and, for zonal
// resources, a zone.
type Scope struct {
	Project string
	Zone    string
}

// GlobalScope returns the project-wide scope of project.
func GlobalScope(project string) Scope {
	return Scope{Project: project}
}

// IsGlobal reports whether the scope carries no zone.
func (s Scope) IsGlobal() bool {
	return s.Zone == ""
}

// Global returns the project-wide scope of s.
func (s Scope) Global() Scope {
	return GlobalScope(s.Project)
}

// Path returns the relative path of the scope, e.g.
// "projects/p/zones/z" or "projects/p/global".
func (s Scope) Path() string {
	if s.IsGlobal() {
		return "projects/" + s.Project + "/global"
	}
	return "projects/" + s.Project + "/zones/" + s.Zone
}

// Qualifier builds fully qualified resource references (self-links).
type Qualifier struct {
	BaseURL string
}

// NewQualifier returns a Qualifier rooted at baseURL, falling back to
// DefaultBaseURL when it is empty.
func NewQualifier(baseURL string) Qualifier {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return Qualifier{BaseURL: baseURL}
}

// Qualify returns the self-link of the resource of the given kind and name in
// scope.
func (q Qualifier) Qualify(kind, name string, scope Scope) string {
	return q.base() + scope.Path() + "/" + kind + "/" + name
}

// ScopeLink returns the self-link of the scope itself. For a zonal scope this
// is the zone link carried in the "zone" field of zonal resources.
func (q Qualifier) ScopeLink(scope Scope) string {
	return q.base() + scope.Path()
}

func (q Qualifier) base() string {
	if q.BaseURL == "" {
		return DefaultBaseURL
	}
	return q.BaseURL
}
