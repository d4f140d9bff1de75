// Package config defines the configuration document an external
// collaborator hands to cmd/iec104-device: which device variant to
// build, its identity, its neighbors, and its variant-specific
// parameters. Parsing a configuration file into this struct is out of
// scope; DeviceConfig only carries json tags so a caller can
// json.Unmarshal directly into it, mirroring
// iec104devicelauncher.py's expected top-level keys (module, class,
// guid, in, out, parameters).
package config

// Device class names, matching simplepowergrid.py's class names.
const (
	ClassSource       = "Source"
	ClassTransmission = "Transmission"
	ClassLoad         = "Load"
)

// DeviceConfig is the parsed shape of one device's configuration.
type DeviceConfig struct {
	// Module and Class name the Python class the original source would
	// dynamically import (module.ClassName); this Go port has no
	// equivalent dynamic dispatch, so Class is matched against the
	// ClassSource/ClassTransmission/ClassLoad constants by
	// cmd/iec104-device instead. Module is carried only so a config
	// document produced for the original launcher still round-trips.
	Module string `json:"module"`
	Class  string `json:"class"`

	GUID     uint32   `json:"guid"`
	Inbound  []uint32 `json:"in"`
	Outbound []uint32 `json:"out"`

	Parameters VariantParameters `json:"parameters"`

	// ListenAddr/BroadcastAddr configure the simulation bus socket.
	// Inferring a broadcast address from the default route is fragile
	// across hosts, so this config requires an explicit address instead.
	ListenAddr    string `json:"listen_addr"`
	BroadcastAddr string `json:"broadcast_addr"`

	// AllowConcurrent permits more than one SCADA connection to be
	// served at once; the zero value (false) limits a device to a
	// single concurrent connection.
	AllowConcurrent bool `json:"allow_concurrent"`
}

// VariantParameters holds the union of every variant's construction
// parameters. simplepowergrid.py's Source/Transmission/Load take
// disjoint keyword arguments (voltage; state+loads; load); Go has no
// keyword arguments, so they are flattened into one struct and
// cmd/iec104-device reads only the fields relevant to Class.
type VariantParameters struct {
	// Voltage is used by ClassSource.
	Voltage float32 `json:"voltage,omitempty"`
	// State and Loads are used by ClassTransmission: State is the
	// initial breaker bitfield, Loads the per-branch resistance in ohms.
	State uint32    `json:"state,omitempty"`
	Loads []float32 `json:"loads,omitempty"`
	// Load is used by ClassLoad: the equivalent resistance in ohms.
	Load float32 `json:"load,omitempty"`
}
