// Package sysprofile defines the structured host-facts type (component B,
// spec §3) consumed by every downstream resolver. Detection of these facts
// (probing apt/dnf/systemd/gpu/etc.) is an external collaborator per §1 —
// this package only defines the shape and the normalization helpers that
// pin version comparisons to a single representation.
package sysprofile

// Arch is a normalized CPU architecture identifier.
type Arch string

const (
	ArchAMD64 Arch = "amd64"
	ArchARM64 Arch = "arm64"
	ArchARMv7 Arch = "armv7"
	ArchARMhf Arch = "armhf"
	ArchI386  Arch = "i386"
)

// Family is one of the package-manager ecosystems a distro belongs to.
type Family string

const (
	FamilyDebian Family = "debian"
	FamilyRHEL   Family = "rhel"
	FamilyAlpine Family = "alpine"
	FamilyArch   Family = "arch"
	FamilySUSE   Family = "suse"
	FamilyMacOS  Family = "macos"
)

// Distro carries distribution identity (mandatory, §3).
type Distro struct {
	ID           string `json:"id"`
	Family       Family `json:"family"`
	Version      string `json:"version"`
	VersionTuple [3]int `json:"version_tuple"`
	Codename     string `json:"codename,omitempty"`
}

// PackageManager carries the primary and available system package managers (mandatory, §3).
type PackageManager struct {
	Primary       string   `json:"primary"`
	Available     []string `json:"available"`
	SnapAvailable bool     `json:"snap_available"`
}

// Capabilities carries host privilege/environment facts (mandatory, §3).
type Capabilities struct {
	HasSudo          bool `json:"has_sudo"`
	PasswordlessSudo bool `json:"passwordless_sudo"`
	HasSystemd       bool `json:"has_systemd"`
	IsRoot           bool `json:"is_root"`
	InContainer      bool `json:"in_container"`
	InWSL            bool `json:"in_wsl"`
}

// Libc describes the host's C library (optional deep tier).
type Libc struct {
	Type    string `json:"type"` // glibc|musl
	Version string `json:"version,omitempty"`
}

// Hardware carries optional resource facts used for source-build budgeting.
type Hardware struct {
	CPUCores     int      `json:"cpu_cores,omitempty"`
	RAMTotalMB   int      `json:"ram_total_mb,omitempty"`
	DiskFreeGB   int      `json:"disk_free_gb,omitempty"`
	CPUFeatures  []string `json:"cpu_features,omitempty"`
}

// NvidiaGPU describes an NVIDIA accelerator, if present.
type NvidiaGPU struct {
	Present           bool   `json:"present"`
	Driver            string `json:"driver,omitempty"`
	CUDA              string `json:"cuda,omitempty"`
	ComputeCapability string `json:"compute_capability,omitempty"`
	CUDNN             string `json:"cudnn,omitempty"`
}

// AMDGPU describes an AMD accelerator, if present.
type AMDGPU struct {
	Present bool   `json:"present"`
	ROCm    string `json:"rocm,omitempty"`
}

// IntelGPU describes an Intel accelerator, if present.
type IntelGPU struct {
	Present bool `json:"present"`
}

// GPU groups the optional accelerator facts (§3, used by E2's rocm/cuda selection).
type GPU struct {
	Nvidia NvidiaGPU `json:"nvidia"`
	AMD    AMDGPU    `json:"amd"`
	Intel  IntelGPU  `json:"intel"`
}

// Kernel carries optional kernel facts relevant to driver/module installs.
type Kernel struct {
	Version         string `json:"version,omitempty"`
	HeadersInstalled bool  `json:"headers_installed,omitempty"`
	ModulesLoaded    []string `json:"modules_loaded,omitempty"`
	SecureBoot       bool  `json:"secure_boot,omitempty"`
	DKMSAvailable    bool  `json:"dkms_available,omitempty"`
}

// BuildToolchain carries optional compiler/build-tool presence facts,
// consumed by the Method Selector's `source` candidate check (§4.5) and
// the Plan Builder's `toolchain_missing` error (§4.7).
type BuildToolchain struct {
	CC              string `json:"cc,omitempty"`
	CXX             string `json:"cxx,omitempty"`
	CMake           string `json:"cmake,omitempty"`
	Make            string `json:"make,omitempty"`
	Ninja           string `json:"ninja,omitempty"`
	Rustc           string `json:"rustc,omitempty"`
	Cargo           string `json:"cargo,omitempty"`
	Go              string `json:"go,omitempty"`
	GCCIsClangAlias bool   `json:"gcc_is_clang_alias,omitempty"`
}

// InitSystemType names the supported service-management backends (§4.7 service step).
type InitSystemType string

const (
	InitSystemd InitSystemType = "systemd"
	InitInitd   InitSystemType = "initd"
	InitOpenRC  InitSystemType = "openrc"
	InitLaunchd InitSystemType = "launchd"
	InitNone    InitSystemType = "none"
)

// InitSystem carries optional service-management facts.
type InitSystem struct {
	Type     InitSystemType `json:"type,omitempty"`
	CanEnable bool          `json:"can_enable,omitempty"`
}

// Network carries optional connectivity facts consumed by the binary/curl_pipe
// candidate check (§4.5) and the dynamic choice fallback chain (§4.3).
type Network struct {
	Proxy                string          `json:"proxy,omitempty"`
	RegistriesReachable  map[string]bool `json:"registries_reachable,omitempty"`
}

// Python carries optional interpreter facts for pip-method recipes.
type Python struct {
	DefaultVersion   string `json:"default_version,omitempty"`
	PEP668Enforced   bool   `json:"pep668_enforced,omitempty"`
}

// Profile is the structured SystemProfile from §3: a product type with
// mandatory fields and an optional deep tier, supplied by an external
// detector this core never invokes directly.
type Profile struct {
	System         string         `json:"system"` // linux|darwin|windows
	Arch           Arch           `json:"arch"`
	Distro         Distro         `json:"distro"`
	PackageManager PackageManager `json:"package_manager"`
	Capabilities   Capabilities   `json:"capabilities"`

	Libc           *Libc           `json:"libc,omitempty"`
	Libraries      []string        `json:"libraries,omitempty"`
	Hardware       *Hardware       `json:"hardware,omitempty"`
	GPU            *GPU            `json:"gpu,omitempty"`
	Kernel         *Kernel         `json:"kernel,omitempty"`
	BuildToolchain *BuildToolchain `json:"build_toolchain,omitempty"`
	InitSystem     *InitSystem     `json:"init_system,omitempty"`
	Network        *Network        `json:"network,omitempty"`
	Python         *Python         `json:"python,omitempty"`
}

// HasPackageManager reports whether name is in the host's available system
// package managers (used by the Method Selector's system-PM candidate check).
func (p *Profile) HasPackageManager(name string) bool {
	for _, pm := range p.PackageManager.Available {
		if pm == name {
			return true
		}
	}
	return false
}

// RegistryReachable reports whether the named registry was reachable at
// detection time, defaulting to true when the optional Network tier is absent
// (a detector that didn't probe connectivity shouldn't silently disable
// binary/curl_pipe candidates).
func (p *Profile) RegistryReachable(name string) bool {
	if p.Network == nil || p.Network.RegistriesReachable == nil {
		return true
	}
	reachable, ok := p.Network.RegistriesReachable[name]
	if !ok {
		return true
	}
	return reachable
}
