package world

import "errors"

// Spawn / despawn rejection reasons. Callers compare with errors.Is.
var (
	ErrNilObject           = errors.New("object is nil")
	ErrNoAuthority         = errors.New("no server authority")
	ErrNotEligible         = errors.New("object not eligible for predicted action")
	ErrAlreadySpawned      = errors.New("object already spawned")
	ErrNotSpawned          = errors.New("object not spawned")
	ErrParentNotSpawned    = errors.New("parent not spawned")
	ErrNotRoot             = errors.New("object is not a root")
	ErrSceneObjectNotFound = errors.New("scene object not registered")
	ErrPredictedIDMismatch = errors.New("predicted id does not match queue head")
)

// Identifier namespace errors.
var (
	ErrIDsExhausted  = errors.New("object id namespace exhausted")
	ErrDoubleRelease = errors.New("object id released twice")
	ErrIDOutOfRange  = errors.New("object id outside namespace")
)

// Registry errors.
var (
	ErrUnknownPrefab    = errors.New("unknown prefab")
	ErrInvalidSceneID   = errors.New("scene object has no scene id")
	ErrDuplicateSceneID = errors.New("scene id already registered")
	ErrNoChildSlot      = errors.New("no free nested child slot")
)
