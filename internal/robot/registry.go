package robot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"flexfinder/internal/macaddr"
)

// DefaultDeviceFile is where the registered robot is stored.
const DefaultDeviceFile = "device_config.json"

// ErrNotRegistered is returned when no device file exists yet.
var ErrNotRegistered = errors.New("no device registered")

// Device is the registered robot.
type Device struct {
	Name string `json:"name"`
	MAC  string `json:"mac"`
	// LastIP is only written after a verified resolution.
	LastIP string `json:"last_ip,omitempty"`
}

// LastAddr returns the persisted address, if any.
func (d *Device) LastAddr() (netip.Addr, bool) {
	if d.LastIP == "" {
		return netip.Addr{}, false
	}

	addr, err := netip.ParseAddr(d.LastIP)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, false
	}

	return addr, true
}

// Registry persists one Device as JSON.
type Registry struct {
	path string
}

func NewRegistry(path string) *Registry {
	if path == "" {
		path = DefaultDeviceFile
	}

	return &Registry{path: path}
}

func (r *Registry) Path() string {
	return r.path
}

// Load reads the registered device.
func (r *Registry) Load() (*Device, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotRegistered
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read file '%s': %w", r.path, err)
	}

	d := &Device{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON from '%s': %w", r.path, err)
	}

	if _, err := macaddr.Parse(d.MAC); err != nil {
		return nil, fmt.Errorf("device file '%s': %w", r.path, err)
	}

	return d, nil
}

// Register validates mac and stores it, replacing any previous device. The
// last known address survives when the same robot is registered again.
func (r *Registry) Register(name, mac string) (*Device, error) {
	if _, err := macaddr.Parse(mac); err != nil {
		return nil, err
	}

	d := &Device{Name: name, MAC: mac}

	if prev, err := r.Load(); err == nil && macaddr.Equal(prev.MAC, mac) {
		d.LastIP = prev.LastIP
	}

	return d, r.Save(d)
}

// RememberIP persists addr as the device's last verified address.
func (r *Registry) RememberIP(d *Device, addr netip.Addr) error {
	d.LastIP = addr.String()

	return r.Save(d)
}

// Save writes d atomically.
func (r *Registry) Save(d *Device) error {
	data, err := json.MarshalIndent(d, "", "    ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".device-*.json")
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", r.path, err)
	}

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write '%s': %w", r.path, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return fmt.Errorf("failed to write '%s': %w", r.path, err)
	}

	return os.Rename(tmp.Name(), r.path)
}
