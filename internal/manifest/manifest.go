// Package manifest extracts registry dependencies from a Cargo.toml. Only
// entries that carry a registry version requirement participate in a check;
// path/git dependencies have no index entry to compare against and are
// skipped.
package manifest

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Dependency 是清单中一个指向注册表的依赖。
type Dependency struct {
	Name        string
	Requirement string
	Section     string
}

// 依赖段落按 Cargo 的惯例顺序收集。
var sections = []string{"dependencies", "build-dependencies", "dev-dependencies"}

type rawManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
}

// Load 读取 Cargo.toml 并抽取全部注册表依赖。同名依赖只保留最先出现
// 的版本要求（正式依赖优先于 build/dev 依赖）。
func Load(path string) ([]Dependency, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m rawManifest
	if err := toml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	tables := map[string]map[string]any{
		"dependencies":       m.Dependencies,
		"build-dependencies": m.BuildDependencies,
		"dev-dependencies":   m.DevDependencies,
	}

	seen := map[string]struct{}{}
	var deps []Dependency
	for _, section := range sections {
		for name, value := range tables[section] {
			requirement, ok := requirementOf(value)
			if !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			deps = append(deps, Dependency{
				Name:        name,
				Requirement: requirement,
				Section:     section,
			})
		}
	}

	return deps, nil
}

// requirementOf 同时支持 `foo = "1.2"` 与 `foo = { version = "1.2" }`
// 两种写法；path/git 依赖没有 version 键，返回 false。
func requirementOf(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, v != ""
	case map[string]any:
		requirement, ok := v["version"].(string)
		return requirement, ok && requirement != ""
	default:
		return "", false
	}
}
