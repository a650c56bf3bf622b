package process

import (
	"context"
	"os/exec"

	"github.com/hairizuan-noorazman/screenshot-orchestrator/logger"
)

// Dependency is a tool the targets may shell out to. Any one of Alternatives
// satisfies it.
type Dependency struct {
	Name         string
	Alternatives []string
}

// DefaultDependencies lists the tools used by the built-in targets.
func DefaultDependencies() []Dependency {
	return []Dependency{
		{Name: "flutter", Alternatives: []string{"flutter"}},
		{Name: "node", Alternatives: []string{"node"}},
		{Name: "adb", Alternatives: []string{"adb"}},
		{Name: "chrome", Alternatives: []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}},
	}
}

// LookPathFunc resolves an executable name.
type LookPathFunc func(file string) (string, error)

// CheckDependencies logs a warning for each missing tool and returns their names.
// Missing tools are never fatal here; the target that needs one fails later.
func CheckDependencies(ctx context.Context, deps []Dependency, lookPath LookPathFunc, log logger.Logger) []string {
	if lookPath == nil {
		lookPath = exec.LookPath
	}

	var missing []string
	for _, dep := range deps {
		found := ""
		for _, alt := range dep.Alternatives {
			if path, err := lookPath(alt); err == nil {
				found = path
				break
			}
		}
		if found == "" {
			missing = append(missing, dep.Name)
			log.Warn(ctx, "dependency not found", map[string]interface{}{
				"dependency":   dep.Name,
				"alternatives": dep.Alternatives,
			})
			continue
		}
		log.Debug(ctx, "dependency found", map[string]interface{}{"dependency": dep.Name, "path": found})
	}
	return missing
}
