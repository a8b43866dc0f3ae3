package workspace

import (
	"regexp"
	"strings"

	appErr "github.com/cloudconsole/engine/pkg/errors"
)

const (
	deploymentsRoot = "deployments/"
	templatesRoot   = "terraform/"

	// idMarker separates the project name from its id in a working prefix.
	idMarker = " (project_id: "
)

var prefixPattern = regexp.MustCompile(`deployments/(.+?) \(project_id: (.+?)\)/`)

// Project identifies one deployment. Name and ID are kept structured and
// only rendered into a prefix or directory name at the boundary.
type Project struct {
	Name string
	ID   string
}

// Prefix renders the working prefix "deployments/<name> (project_id: <id>)/".
func (p Project) Prefix() string {
	return deploymentsRoot + p.Name + idMarker + p.ID + ")/"
}

// DirName renders the local directory name "<name> (project_id= <id>)".
func (p Project) DirName() string {
	return p.Name + " (project_id= " + p.ID + ")"
}

// TemplatePrefix renders "terraform/<template>/".
func TemplatePrefix(template string) string {
	return templatesRoot + template + "/"
}

// ParsePrefix recovers the project from a working prefix.
func ParsePrefix(prefix string) (Project, error) {
	m := prefixPattern.FindStringSubmatch(prefix)
	if m == nil {
		return Project{}, appErr.Newf(appErr.CodePrefixMalformed, "malformed working prefix %q", prefix)
	}
	return Project{Name: m[1], ID: m[2]}, nil
}

// ValidName reports whether name renders to a prefix that parses back to
// itself and to a single local path segment.
func ValidName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if strings.Contains(name, idMarker) || strings.ContainsAny(name, `/\`) {
		return false
	}
	return name != "." && name != ".."
}
