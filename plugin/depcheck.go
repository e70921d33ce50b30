package plugin

import (
	"github.com/Masterminds/semver/v3"
	"go.uber.org/zap"

	"github.com/teranos/plugcfg/errors"
	"github.com/teranos/plugcfg/logger"
)

// DependencyChecker verifies the dependency specs and api constraints of
// registered descriptors. It only reads the registry.
type DependencyChecker struct {
	hostAPI string
	logger  *zap.SugaredLogger
}

// NewDependencyChecker creates a checker. hostAPI is the api version the host
// implements; descriptors whose api field is a semver constraint are checked
// against it. An empty hostAPI skips api checks.
func NewDependencyChecker(hostAPI string, l *zap.SugaredLogger) *DependencyChecker {
	if l == nil {
		l = logger.ComponentLogger("depcheck")
	}
	return &DependencyChecker{hostAPI: hostAPI, logger: l}
}

// Check returns one error per unsatisfied dependency or api constraint,
// keyed by plugin id. An empty map means everything is satisfied.
func (c *DependencyChecker) Check(r *Registry) map[string][]error {
	problems := make(map[string][]error)
	descriptors := r.List()
	byID := make(map[string]*Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	for _, d := range descriptors {
		if err := c.checkAPI(d); err != nil {
			problems[d.ID] = append(problems[d.ID], err)
		}
		for _, dep := range d.Depends {
			target, ok := byID[dep.Name]
			if !ok {
				problems[d.ID] = append(problems[d.ID], errors.Newf("missing dependency: %s", dep.Name))
				c.logger.Errorw("Missing dependency",
					logger.FieldPlugin, d.ID,
					logger.FieldDependency, dep.Name)
				continue
			}
			if dep.MinVersion == "" {
				continue
			}
			if err := satisfies(target.Version, dep.MinVersion); err != nil {
				problems[d.ID] = append(problems[d.ID], errors.Wrapf(err, "incompatible dependency version for %s", dep.Name))
				c.logger.Errorw("Incompatible dependency version",
					logger.FieldPlugin, d.ID,
					logger.FieldDependency, dep.Name,
					"required", dep.MinVersion,
					"actual", target.Version)
			}
		}
	}
	return problems
}

func (c *DependencyChecker) checkAPI(d *Descriptor) error {
	if d.API == "" || c.hostAPI == "" {
		return nil
	}
	host, err := semver.NewVersion(c.hostAPI)
	if err != nil {
		return errors.Wrapf(err, "invalid host api version %s", c.hostAPI)
	}
	constraint, err := semver.NewConstraint(d.API)
	if err != nil {
		return errors.Wrapf(err, "invalid api constraint %s", d.API)
	}
	if !constraint.Check(host) {
		return errors.Newf("plugin requires api %s, but host provides %s", d.API, c.hostAPI)
	}
	return nil
}

// satisfies checks version >= min. Versions semver can parse go through a
// ">=" constraint; longer dotted versions fall back to CompareVersions.
func satisfies(version, min string) error {
	if version == "" {
		return errors.Newf("version unknown, need >= %s", min)
	}
	v, verr := semver.NewVersion(version)
	constraint, cerr := semver.NewConstraint(">= " + min)
	if verr == nil && cerr == nil {
		if !constraint.Check(v) {
			return errors.Newf("version %s does not satisfy >= %s", version, min)
		}
		return nil
	}
	if CompareVersions(version, min) < 0 {
		return errors.Newf("version %s does not satisfy >= %s", version, min)
	}
	return nil
}

// LoadOrder returns registered ids with dependencies before dependents.
// Ties keep registration order. Missing dependencies are ignored here;
// Check reports them. A cycle is an error naming its members.
func (c *DependencyChecker) LoadOrder(r *Registry) ([]string, error) {
	descriptors := r.List()
	edges := make(map[string][]string, len(descriptors))
	for _, d := range descriptors {
		for _, dep := range d.Depends {
			edges[d.ID] = append(edges[d.ID], dep.Name)
		}
	}
	known := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		known[d.ID] = true
	}

	var (
		sorted  []string
		visited = make(map[string]bool)
		onPath  = make(map[string]bool)
		path    []string
	)
	var visit func(id string) error
	visit = func(id string) error {
		if onPath[id] {
			start := 0
			for i, p := range path {
				if p == id {
					start = i
					break
				}
			}
			cycle := append(append([]string(nil), path[start:]...), id)
			return errors.Newf("dependency cycle: %v", cycle)
		}
		if visited[id] || !known[id] {
			return nil
		}
		onPath[id] = true
		path = append(path, id)
		for _, dep := range edges[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		onPath[id] = false
		visited[id] = true
		sorted = append(sorted, id)
		return nil
	}

	for _, d := range descriptors {
		if err := visit(d.ID); err != nil {
			return nil, err
		}
	}
	c.logger.Debugw("Computed load order", logger.FieldCount, len(sorted), "order", sorted)
	return sorted, nil
}
