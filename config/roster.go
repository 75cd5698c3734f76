package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/AltairaLabs/CareBridge/profile"
)

// CallerRoster is the K8s-style manifest listing the callers the bridge may
// be connected to. A BridgeConfig references one through spec.roster.
type CallerRoster struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   metav1.ObjectMeta `yaml:"metadata,omitempty"`
	Spec       RosterSpec        `yaml:"spec"`
}

// RosterSpec holds the roster entries.
type RosterSpec struct {
	Callers []CallerEntry `yaml:"callers"`
}

// CallerEntry is one caller in a roster manifest.
type CallerEntry struct {
	ID          string   `yaml:"id"`
	FirstName   string   `yaml:"firstName,omitempty"`
	LastName    string   `yaml:"lastName,omitempty"`
	Phone       string   `yaml:"phone"`
	DateOfBirth string   `yaml:"dateOfBirth,omitempty"`
	Conditions  []string `yaml:"conditions,omitempty"`
	Medications []string `yaml:"medications,omitempty"`

	EmergencyContact string `yaml:"emergencyContact,omitempty"`
	Physician        string `yaml:"physician,omitempty"`
	Notes            string `yaml:"notes,omitempty"`
}

// LoadRoster reads and parses a CallerRoster manifest file.
func LoadRoster(filename string) ([]*profile.CallerProfile, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster parses CallerRoster manifest data into caller profiles.
func ParseRoster(data []byte) ([]*profile.CallerProfile, error) {
	if err := ValidateRoster(data); err != nil {
		return nil, err
	}

	var roster CallerRoster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	// Schema validation already confirmed required fields and kind value
	// are correct.
	if err := CheckAPIVersion(roster.APIVersion); err != nil {
		return nil, err
	}

	profiles := make([]*profile.CallerProfile, 0, len(roster.Spec.Callers))
	for _, entry := range roster.Spec.Callers {
		profiles = append(profiles, &profile.CallerProfile{
			ID:               entry.ID,
			FirstName:        entry.FirstName,
			LastName:         entry.LastName,
			Phone:            entry.Phone,
			DateOfBirth:      entry.DateOfBirth,
			Conditions:       entry.Conditions,
			Medications:      entry.Medications,
			EmergencyContact: entry.EmergencyContact,
			Physician:        entry.Physician,
			Notes:            entry.Notes,
		})
	}
	return profiles, nil
}

// RosterStore builds an in-memory profile store from the loaded roster.
// Entries with unusable phone numbers fail here, at startup, rather than on
// the first call.
func (c *BridgeConfig) RosterStore() (*profile.MemoryStore, error) {
	store := profile.NewMemoryStore()
	for _, p := range c.Roster {
		if err := store.Add(p); err != nil {
			return nil, fmt.Errorf("roster entry %s: %w", p.ID, err)
		}
	}
	return store, nil
}
