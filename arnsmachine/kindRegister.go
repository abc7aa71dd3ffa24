package arnsmachine

import (
	"fmt"

	"github.com/sasha-s/go-deadlock"
)

var validKinds = make(map[string]string)
var kindsMutex = &deadlock.Mutex{}

// WhichMindForKind returns the engine that owns an action kind.
func WhichMindForKind(kind string) (string, bool) {
	kindsMutex.Lock()
	defer kindsMutex.Unlock()
	mind, ok := validKinds[kind]
	return mind, ok
}

// RegisterKinds records which engine owns each action kind. A kind can only be owned once.
func RegisterKinds(kinds []string, mind string) error {
	kindsMutex.Lock()
	defer kindsMutex.Unlock()
	for _, kind := range kinds {
		_mind, ok := validKinds[kind]
		if ok && _mind != mind {
			return fmt.Errorf("kind %s has already been registered by %s", kind, _mind)
		}
		validKinds[kind] = mind
	}
	return nil
}

func GetAllKinds() map[string]string {
	kindsMutex.Lock()
	defer kindsMutex.Unlock()
	m := make(map[string]string, len(validKinds))
	for k, v := range validKinds {
		m[k] = v
	}
	return m
}
