package launcher

import (
	"errors"
	"sort"
	"sync"
	"time"

	"captionbot/agent/internal/types"
)

var (
	ErrInstanceExists = errors.New("instance already exists")
	ErrUnknownBot     = errors.New("unknown bot")
)

// Registry holds one record per bot id. Exited records stay listed until a
// new deployment reuses the id.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*types.Instance
	byName    map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*types.Instance),
		byName:    make(map[string]string),
	}
}

// Reserve claims inst.BotID. It fails with ErrInstanceExists while a live
// record holds the id or the instance's port.
func (r *Registry) Reserve(inst types.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.instances[inst.BotID]; ok && cur.State != types.InstanceExited {
		return ErrInstanceExists
	}
	for _, cur := range r.instances {
		if cur.State != types.InstanceExited && cur.Port == inst.Port {
			return ErrPortInUse
		}
	}
	inst.State = types.InstanceStarting
	r.instances[inst.BotID] = &inst
	r.byName[inst.ContainerName] = inst.BotID
	return nil
}

// Release drops a reservation whose start failed.
func (r *Registry) Release(botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[botID]; ok {
		delete(r.byName, inst.ContainerName)
		delete(r.instances, botID)
	}
}

func (r *Registry) MarkRunning(botID, runtimeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst, ok := r.instances[botID]; ok && inst.State == types.InstanceStarting {
		inst.State = types.InstanceRunning
		inst.RuntimeID = runtimeID
	}
}

// MarkExited records the end of the instance called name and frees its
// id and port.
func (r *Registry) MarkExited(name string, code int, at time.Time) (types.Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return types.Instance{}, false
	}
	inst := r.instances[id]
	inst.State = types.InstanceExited
	inst.ExitCode = code
	inst.ExitedAt = &at
	delete(r.byName, name)
	return *inst, true
}

func (r *Registry) Get(botID string) (types.Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[botID]
	if !ok {
		return types.Instance{}, false
	}
	return *inst, true
}

// List returns every record, oldest first.
func (r *Registry) List() []types.Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, *inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// HeldPorts returns the ports of live records.
func (r *Registry) HeldPorts() map[int]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]bool, len(r.instances))
	for _, inst := range r.instances {
		if inst.State != types.InstanceExited {
			out[inst.Port] = true
		}
	}
	return out
}

// Live counts records that are starting or running.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, inst := range r.instances {
		if inst.State != types.InstanceExited {
			n++
		}
	}
	return n
}
