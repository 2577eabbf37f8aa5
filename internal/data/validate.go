package data

import "fmt"

// Validate cross-checks scenes against the prefab table and returns every
// problem found: unknown prefabs, zero or repeated scene ids (ids are
// unique across all scenes), and parents that are missing or declared
// after their children. The server skips such objects at load time; this
// reports them up front.
func (t *SceneTable) Validate(prefabs *PrefabTable) []error {
	var errs []error
	owner := make(map[uint64]string)
	t.Each(func(s *SceneDef) {
		declared := make(map[uint64]bool, len(s.Objects))
		for i, o := range s.Objects {
			where := fmt.Sprintf("scene %q object #%d", s.Name, i)
			if o.SceneID == 0 {
				errs = append(errs, fmt.Errorf("%s: scene_id must be non-zero", where))
				continue
			}
			where = fmt.Sprintf("scene %q object %d", s.Name, o.SceneID)
			if prev, dup := owner[o.SceneID]; dup {
				errs = append(errs, fmt.Errorf("%s: scene_id already used in scene %q", where, prev))
			} else {
				owner[o.SceneID] = s.Name
			}
			if prefabs.Get(o.Prefab) == nil {
				errs = append(errs, fmt.Errorf("%s: unknown prefab %d", where, o.Prefab))
			}
			if o.Parent != 0 && !declared[o.Parent] {
				errs = append(errs, fmt.Errorf("%s: parent %d not declared earlier in the scene", where, o.Parent))
			}
			declared[o.SceneID] = true
		}
	})
	return errs
}
