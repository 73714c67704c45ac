// Package registry persists the project catalog in registry.json under
// the state root. Slugs are unique across live projects; ids are minted
// once and never change. A conflicting upsert reports both the incumbent
// and the incoming record without mutating state.
package registry
