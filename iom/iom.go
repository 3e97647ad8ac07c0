// Package iom defines the pluggable persistence backend contract
// (spec.md §4.3) and the process-wide name -> Backend registry
// (spec.md §4.4). Concrete backends live in the sibling fileiom,
// buntiom, tableiom, and s3iom packages.
/*
 * Copyright (c) 2024, Sandia National Laboratories.
 */
package iom

import (
	"github.com/sandialabs/kelpie/cmn"
	"github.com/sandialabs/kelpie/cmn/nlog"
	"github.com/sandialabs/kelpie/dataobj"
)

// Availability mirrors the subset of cell lifecycle states a backend can
// answer for: a backend never reports InLocalMemory/Requested/
// InRemoteMemory, only whether it holds the object on disk.
type Availability int

const (
	Unavailable Availability = iota
	InDisk
)

// ObjectInfo is what GetInfo returns: availability plus size, matching
// the col_availability/col_user_bytes fields of spec.md §3 "Object
// info".
type ObjectInfo struct {
	Availability Availability
	UserBytes    int64
}

// ObjectCapacities is the result of a wildcard List (spec.md §4.3/§4.5):
// parallel slices of matching keys and their user-visible byte sizes.
type ObjectCapacities struct {
	Keys       []cmn.Key
	Capacities []int64
}

// KeyVal pairs a Key with a DO for batch writes/reads.
type KeyVal struct {
	Key cmn.Key
	DO  dataobj.DO
}

// Backend is the contract every persistence backend implements
// (spec.md §4.3's table, transcribed 1:1 into a Go interface).
type Backend interface {
	WriteObject(bucket cmn.Bucket, key cmn.Key, do dataobj.DO) error

	// WriteObjects is all-or-best-effort per backend: fileiom and s3iom
	// attempt every entry and return the last error encountered, if any;
	// buntiom and tableiom write the batch as one unit and return its
	// first error.
	WriteObjects(bucket cmn.Bucket, kvs []KeyVal) error

	ReadObject(bucket cmn.Bucket, key cmn.Key) (dataobj.DO, error)

	// ReadObjects returns everything found plus the keys that were
	// missing, and cmn.Recheck (rather than cmn.Ok) whenever the
	// missing list is non-empty.
	ReadObjects(bucket cmn.Bucket, keys []cmn.Key) (found []KeyVal, missing []cmn.Key, kind cmn.Kind)

	GetInfo(bucket cmn.Bucket, key cmn.Key) (ObjectInfo, error)

	// List matches a (possibly wildcarded) key against the backend's
	// contents. The default embedded in BaseBackend returns NotFound;
	// backends that can enumerate override it.
	List(bucket cmn.Bucket, pattern cmn.Key) (ObjectCapacities, error)

	// Settings returns every recognized, resolved setting for this
	// backend instance.
	Settings() map[string]string
	Setting(name string) (string, bool)

	Name() string

	// Close releases any resources (file handles, DB handles,
	// sessions) the backend holds.
	Close() error
}

// SettingDescriptor documents one recognized backend setting, used by
// the "Configuration filtering" rule in spec.md §4.3: unknown settings
// passed to a backend constructor are discarded, known ones are kept.
type SettingDescriptor struct {
	Name        string
	Description string
}

// FilterSettings keeps only the settings whose name appears in
// recognized, dropping everything else (spec.md §4.3 "Configuration
// filtering").
func FilterSettings(raw map[string]string, recognized []SettingDescriptor) map[string]string {
	known := make(map[string]struct{}, len(recognized))
	for _, d := range recognized {
		known[d.Name] = struct{}{}
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if _, ok := known[k]; ok {
			out[k] = v
		}
	}
	return out
}

// BaseBackend provides the default, NotFound-returning List
// implementation spec.md §4.3 describes ("default impl returns
// NotFound and warns"), plus the Settings/Setting bookkeeping shared by
// every concrete backend. Embed it and override List/Name/Close as
// needed.
type BaseBackend struct {
	name     string
	settings map[string]string
}

func NewBaseBackend(name string, settings map[string]string) BaseBackend {
	return BaseBackend{name: name, settings: settings}
}

func (b *BaseBackend) Name() string { return b.name }

func (b *BaseBackend) Settings() map[string]string {
	out := make(map[string]string, len(b.settings))
	for k, v := range b.settings {
		out[k] = v
	}
	return out
}

func (b *BaseBackend) Setting(name string) (string, bool) {
	v, ok := b.settings[name]
	return v, ok
}

func (b *BaseBackend) List(cmn.Bucket, cmn.Key) (ObjectCapacities, error) {
	nlog.Warnf("backend %s does not implement list", b.name)
	return ObjectCapacities{}, cmn.NewErr(cmn.NotFound, "backend %s does not implement list", b.name)
}
