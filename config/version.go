package config

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

const (
	// APIGroup is the manifest API group for all CareBridge kinds.
	APIGroup = "carebridge.altairalabs.ai"

	// APIVersion is the apiVersion new manifests should declare.
	APIVersion = APIGroup + "/v1"

	// supportedRange is the semver range of manifest versions this binary
	// accepts: v1 manifests of any minor revision load, v2 requires a
	// newer binary.
	supportedRange = ">=1.0.0, <2.0.0"
)

// CheckAPIVersion verifies that a manifest's apiVersion belongs to the
// CareBridge API group and falls within the supported version range.
func CheckAPIVersion(apiVersion string) error {
	group, ver, found := strings.Cut(apiVersion, "/")
	if !found {
		return fmt.Errorf("invalid apiVersion %q: expected %s/<version>", apiVersion, APIGroup)
	}
	if group != APIGroup {
		return fmt.Errorf("unsupported API group %q: expected %s", group, APIGroup)
	}

	v, err := semver.NewVersion(strings.TrimPrefix(ver, "v"))
	if err != nil {
		return fmt.Errorf("invalid apiVersion %q: %w", apiVersion, err)
	}

	rng, err := semver.NewConstraint(supportedRange)
	if err != nil {
		return fmt.Errorf("invalid version constraint %q: %w", supportedRange, err)
	}
	if !rng.Check(v) {
		return fmt.Errorf("unsupported apiVersion %q: this binary supports %s versions %s", apiVersion, APIGroup, supportedRange)
	}
	return nil
}
