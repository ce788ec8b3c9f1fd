package cache

import "strings"

// Key identifies one remote resource in the cache
type Key string

const (
	ClientsKey    Key = "clients"
	ClustersKey   Key = "clusters"
	ExecutionsKey Key = "executions"
	WorkloadsKey  Key = "workloads"
)

// ExecutionKey is the key of one execution's status
func ExecutionKey(id string) Key {
	return Key("execution/" + id)
}

// MetricsKey is the key of one execution's metrics window
func MetricsKey(id string) Key {
	return Key("metrics/" + id)
}

// SuggestionKey is the key of a quick network suggestion
func SuggestionKey(cluster, storageType string) Key {
	return Key("suggestion/" + cluster + "/" + storageType)
}

// ProfileKey is the key of a full network profile of a cluster
func ProfileKey(cluster string) Key {
	return Key("profile/" + cluster)
}

// Resource returns the resource kind of the key, e.g. "execution"
func (k Key) Resource() string {
	s := string(k)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		return s[:i]
	}
	return s
}
