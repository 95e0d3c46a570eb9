package a2a

import "sync/atomic"

// atomicStatus is a tiny typed wrapper around atomic.Value for string
// status fields read far more often than written.
type atomicStatus struct {
	v atomic.Value
}

func (a *atomicStatus) Store(s string) { a.v.Store(s) }

func (a *atomicStatus) Load() string {
	v, _ := a.v.Load().(string)
	return v
}
