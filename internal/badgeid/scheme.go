package badgeid

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Scheme selects one of the derivation rules.
type Scheme uint8

const (
	SchemeLegacyPoint Scheme = iota
	SchemePoint
	SchemeBadge
)

func (s Scheme) String() string {
	switch s {
	case SchemeLegacyPoint:
		return "legacy-point"
	case SchemePoint:
		return "point"
	case SchemeBadge:
		return "badge"
	default:
		return fmt.Sprintf("Scheme(%d)", uint8(s))
	}
}

func ParseScheme(s string) (Scheme, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "legacy-point", "legacy", "v2":
		return SchemeLegacyPoint, nil
	case "point":
		return SchemePoint, nil
	case "badge":
		return SchemeBadge, nil
	}
	return 0, fmt.Errorf("%w: unknown scheme %q", ErrInvalidInput, s)
}

// ID derives the identifier of name under s.
func (s Scheme) ID(contract common.Address, name string) (*uint256.Int, error) {
	switch s {
	case SchemeLegacyPoint:
		return LegacyPointID(contract, name)
	case SchemePoint:
		return PointID(contract, name)
	case SchemeBadge:
		return BadgeID(contract, name)
	}
	return nil, fmt.Errorf("%w: %s", ErrInvalidInput, s)
}

// Registry tracks the names registered against one contract and refuses a name whose
// truncated hash collides with a different, already registered name.
//
// A Registry is not safe for concurrent use.
type Registry struct {
	contract common.Address
	names    map[Scheme]map[[32]byte]string
	derive   func(Scheme, common.Address, string) (*uint256.Int, error)
}

func NewRegistry(contract common.Address) *Registry {
	return &Registry{
		contract: contract,
		names:    make(map[Scheme]map[[32]byte]string),
		derive:   Scheme.ID,
	}
}

func (r *Registry) Contract() common.Address {
	return r.contract
}

// Register derives the identifier of name and records it. Registering the same name twice
// is a no-op.
func (r *Registry) Register(s Scheme, name string) (*uint256.Int, error) {
	id, err := r.derive(s, r.contract, name)
	if err != nil {
		return nil, err
	}
	byID, ok := r.names[s]
	if !ok {
		byID = make(map[[32]byte]string)
		r.names[s] = byID
	}
	key := id.Bytes32()
	if existing, ok := byID[key]; ok && existing != name {
		return nil, fmt.Errorf("%w: %q and %q both map to %s under %s", ErrIDCollision, existing, name, id.Hex(), s)
	}
	byID[key] = name
	return id, nil
}

// Name returns the registered name for id, if any.
func (r *Registry) Name(s Scheme, id *uint256.Int) (string, bool) {
	name, ok := r.names[s][id.Bytes32()]
	return name, ok
}
