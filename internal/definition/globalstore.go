package definition

import (
	"strconv"
	"strings"
	"sync"
)

// Per-endpoint scratch values shared by converters (debounce state, press
// tracking). Entries live until cleared or until the device leaves.
var globalStore = struct {
	sync.Mutex
	values map[string]map[string]any
}{values: make(map[string]map[string]any)}

func storeKey(ep Endpoint) string {
	return ep.DeviceIEEE() + "/" + strconv.Itoa(int(ep.ID()))
}

func PutValue(ep Endpoint, key string, value any) {
	globalStore.Lock()
	defer globalStore.Unlock()
	k := storeKey(ep)
	if globalStore.values[k] == nil {
		globalStore.values[k] = make(map[string]any)
	}
	globalStore.values[k][key] = value
}

func GetValue(ep Endpoint, key string) (any, bool) {
	globalStore.Lock()
	defer globalStore.Unlock()
	v, ok := globalStore.values[storeKey(ep)][key]
	return v, ok
}

func HasValue(ep Endpoint, key string) bool {
	_, ok := GetValue(ep, key)
	return ok
}

func ClearValue(ep Endpoint, key string) {
	globalStore.Lock()
	defer globalStore.Unlock()
	delete(globalStore.values[storeKey(ep)], key)
}

// ClearDevice drops every value stored for the device's endpoints.
func ClearDevice(ieee string) {
	globalStore.Lock()
	defer globalStore.Unlock()
	for k := range globalStore.values {
		if strings.HasPrefix(k, ieee+"/") {
			delete(globalStore.values, k)
		}
	}
}
