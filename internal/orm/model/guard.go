package model

// checkLazyLoading applies the lazy loading policy. Allowed relations are
// listed either by name ("posts") or qualified by type ("User.posts").
func (m *Manager) checkLazyLoading(t *Type, relation string) error {
	policy := m.cfg.LazyLoading
	if !policy.Prevent {
		return nil
	}
	if policy.AllowTesting && m.cfg.IsTesting() {
		return nil
	}
	qualified := t.desc.Name + "." + relation
	for _, allowed := range policy.AllowedRelations {
		if allowed == relation || allowed == qualified {
			return nil
		}
	}
	return &LazyLoadingViolationError{Entity: t.desc.Name, Relation: relation}
}
