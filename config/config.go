// Package config holds bbrdb's configuration surface: device identification
// overrides, transport timeouts, and the diagnostic HTTP server's listen
// address.
//
// Grounded on envsrv/cfg.go's plain YAML-tagged struct and
// cmd/multiserver/main.go's koanf layering (a struct-provider default
// overridden by an optional YAML file, tolerating a missing file).
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
)

// Config holds the device identification, transport timeout, and
// diagnostic HTTP settings. cmd/bbrdbtool applies only HTTPAddr and
// Verbose; VendorIDs, ProductID and Timeout are loaded but not passed on,
// and usbbulk uses its own VendorIDs, ProductID and DefaultTimeout.
type Config struct {
	// VendorIDs are the USB vendor IDs the console's debug interface may
	// enumerate under (retail and development units).
	VendorIDs []uint16 `koanf:"vendorids"`

	// ProductID is the console's debug interface's USB product ID.
	ProductID uint16 `koanf:"productid"`

	// Timeout is a per-transfer USB bulk timeout.
	Timeout time.Duration `koanf:"timeout"`

	// HTTPAddr is the listen address for the diagnostic status API.
	HTTPAddr string `koanf:"httpaddr"`

	// Verbose enables the root bbrdb package's diagnostic logging
	// (bbrdb.Verbose).
	Verbose bool `koanf:"verbose"`
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	return Config{
		VendorIDs: []uint16{0x1527, 0xBB3D},
		ProductID: 0xBBDB,
		Timeout:   10 * time.Second,
		HTTPAddr:  ":8080",
	}
}

// Load layers an optional YAML file at path over Defaults(), tolerating a
// missing file exactly as cmd/multiserver/main.go's setupconfig does.
func Load(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return Config{}, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			return Config{}, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
