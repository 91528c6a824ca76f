package loader

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// ScriptCache is the hash-keyed cache of verified scripts. Unlike the
// module cache it carries no transactional-append machinery: a
// Script is built completely (including failure) before insert is ever
// called, so insertion is a single atomic map write.
type ScriptCache struct {
	mu      sync.RWMutex
	scripts map[ScriptHash]*Script

	log     *logrus.Entry
	metrics cacheMetrics
}

func newScriptCache(log *logrus.Entry, metrics cacheMetrics) *ScriptCache {
	return &ScriptCache{
		scripts: make(map[ScriptHash]*Script),
		log:     log,
		metrics: metrics,
	}
}

// get returns the cached Script for hash, if any.
func (sc *ScriptCache) get(hash ScriptHash) (*Script, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	s, ok := sc.scripts[hash]
	if ok {
		sc.metrics.incHit("script")
	} else {
		sc.metrics.incMiss("script")
	}
	return s, ok
}

// Len reports the number of cached scripts. Exposed for the CLI's
// `inspect cache` command.
func (sc *ScriptCache) Len() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.scripts)
}

// insert publishes script under hash, double-checking under the write
// lock so a losing racer gets the winner's Script back rather than
// clobbering it -- the cache never overwrites an existing entry.
func (sc *ScriptCache) insert(hash ScriptHash, script *Script) *Script {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if existing, ok := sc.scripts[hash]; ok {
		return existing
	}
	sc.scripts[hash] = script
	sc.metrics.incPublish("script")
	sc.log.WithField("script_hash", hash.String()).Debug("script published")
	return script
}
