package contracts

import (
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/chain/ethabi"
)

type PolicyAPI int

const (
	UnknownPolicyAPI PolicyAPI = iota
	// LegacyPolicyAPI registers policies with the 6-argument addPolicy.
	LegacyPolicyAPI
	// ExtendedPolicyAPI takes identity-disclosure operations as a 7th argument.
	ExtendedPolicyAPI
)

func (p PolicyAPI) String() string {
	switch p {
	case LegacyPolicyAPI:
		return "legacy"
	case ExtendedPolicyAPI:
		return "extended"
	}
	return "unknown"
}

type BucketAPI int

const (
	UnknownBucketAPI BucketAPI = iota
	// LegacyBucketAPI registers buckets with the 4-argument addBucket.
	LegacyBucketAPI
	// AllowlistBucketAPI takes a per-policy useAllowlists list.
	AllowlistBucketAPI
)

func (b BucketAPI) String() string {
	switch b {
	case LegacyBucketAPI:
		return "legacy"
	case AllowlistBucketAPI:
		return "allowlist"
	}
	return "unknown"
}

// PolicyCapabilities describes what the configured policy registry supports.
type PolicyCapabilities struct {
	Policy PolicyAPI
	Bucket BucketAPI

	HasDisclosureSetter bool
	HasDisclosureGetter bool
}

// CanSetDisclosure reports whether disclosure operations can be applied to
// a policy, either inline at registration or with the setter.
func (c PolicyCapabilities) CanSetDisclosure() bool {
	return c.Policy == ExtendedPolicyAPI || c.HasDisclosureSetter
}

const (
	methodAddPolicy       = "addPolicy"
	methodAddBucket       = "addBucket"
	methodSetDisclosure   = "setIdentityDisclosureOperations"
	methodGetDisclosure   = "getIdentityDisclosureOperations"
	methodGetQueryByIndex = "getQueryByUserIndex"
	resultOutputName      = "result"
	defaultResultSlot     = 2
)

// NegotiatePolicy inspects a policy registry ABI once and returns the
// capabilities callers switch on.
func NegotiatePolicy(a *ethabi.ABI) (PolicyCapabilities, error) {
	var caps PolicyCapabilities

	switch {
	case a.HasMethod(methodAddPolicy, 7):
		caps.Policy = ExtendedPolicyAPI
	case a.HasMethod(methodAddPolicy, 6):
		caps.Policy = LegacyPolicyAPI
	default:
		return caps, xerrors.Errorf("policy registry exposes no supported %s signature", methodAddPolicy)
	}

	switch {
	case a.HasMethod(methodAddBucket, 5):
		caps.Bucket = AllowlistBucketAPI
	case a.HasMethod(methodAddBucket, 4):
		caps.Bucket = LegacyBucketAPI
	default:
		return caps, xerrors.Errorf("policy registry exposes no supported %s signature", methodAddBucket)
	}

	caps.HasDisclosureSetter = a.HasMethod(methodSetDisclosure, 2)
	caps.HasDisclosureGetter = a.HasMethod(methodGetDisclosure, 1)
	return caps, nil
}

// ResultSlot returns the position of the result field in a
// getQueryByUserIndex row.
func ResultSlot(a *ethabi.ABI) int {
	m, ok := a.Method(methodGetQueryByIndex)
	if !ok {
		return defaultResultSlot
	}
	if i := m.OutputIndex(resultOutputName); i >= 0 {
		return i
	}
	return defaultResultSlot
}
