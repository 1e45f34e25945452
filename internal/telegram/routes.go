package telegram

import (
	"sort"
	"sync"
)

// Routes maps restaurants to the owner chats subscribed to their progress.
type Routes struct {
	mu    sync.RWMutex
	chats map[string]map[int64]struct{}
}

func NewRoutes() *Routes {
	return &Routes{
		chats: make(map[string]map[int64]struct{}),
	}
}

// Get returns the subscribed chats for restaurantID in ascending order.
func (r *Routes) Get(restaurantID string) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.chats[restaurantID]
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Routes) Subscribe(restaurantID string, chatID int64) {
	r.mu.Lock()
	set, ok := r.chats[restaurantID]
	if !ok {
		set = make(map[int64]struct{})
		r.chats[restaurantID] = set
	}
	set[chatID] = struct{}{}
	r.mu.Unlock()
}

func (r *Routes) Unsubscribe(restaurantID string, chatID int64) {
	r.mu.Lock()
	if set, ok := r.chats[restaurantID]; ok {
		delete(set, chatID)
		if len(set) == 0 {
			delete(r.chats, restaurantID)
		}
	}
	r.mu.Unlock()
}
