package schema

import "fmt"

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for common numeric fields.
type ScaleSpec struct {
	PriceScale    Scale
	QuantityScale Scale
	NotionalScale Scale
	FeeScale      Scale
}

// UnderlyingID is the numeric identifier for an underlying instrument.
type UnderlyingID uint16

// ContractID is the numeric identifier for an option contract.
type ContractID uint32

// Underlying describes the instrument an option series is written on.
type Underlying struct {
	ID   UnderlyingID
	Name string
}

// Contract describes one tradable option contract.
type Contract struct {
	ID           ContractID
	UnderlyingID UnderlyingID
	Name         string
	Expiry       int64 // trading day as yyyymmdd, 0 if unknown
	Scale        ScaleSpec
}

// Registry stores underlying and contract mappings in a compact form.
type Registry struct {
	underlyings      []Underlying
	contracts        []Contract
	underlyingByName map[string]UnderlyingID
	contractByName   map[string]ContractID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		underlyingByName: make(map[string]UnderlyingID),
		contractByName:   make(map[string]ContractID),
	}
}

// AddUnderlying registers a new underlying and returns its ID.
func (r *Registry) AddUnderlying(name string) (UnderlyingID, error) {
	if name == "" {
		return 0, fmt.Errorf("underlying name is empty")
	}
	if id, ok := r.underlyingByName[name]; ok {
		return id, fmt.Errorf("underlying already exists: %s", name)
	}
	id := UnderlyingID(len(r.underlyings) + 1)
	r.underlyings = append(r.underlyings, Underlying{ID: id, Name: name})
	r.underlyingByName[name] = id
	return id, nil
}

// AddContract registers a new contract and returns its ID.
func (r *Registry) AddContract(name string, underlyingID UnderlyingID, expiry int64, scale ScaleSpec) (ContractID, error) {
	if name == "" {
		return 0, fmt.Errorf("contract name is empty")
	}
	if underlyingID == 0 {
		return 0, fmt.Errorf("underlying id is invalid")
	}
	if _, ok := r.Underlying(underlyingID); !ok {
		return 0, fmt.Errorf("underlying id not found: %d", underlyingID)
	}
	if id, ok := r.contractByName[name]; ok {
		return id, fmt.Errorf("contract already exists: %s", name)
	}
	id := ContractID(len(r.contracts) + 1)
	r.contracts = append(r.contracts, Contract{
		ID:           id,
		UnderlyingID: underlyingID,
		Name:         name,
		Expiry:       expiry,
		Scale:        scale,
	})
	r.contractByName[name] = id
	return id, nil
}

// Underlying returns the underlying by ID.
func (r *Registry) Underlying(id UnderlyingID) (Underlying, bool) {
	if id == 0 || int(id) > len(r.underlyings) {
		return Underlying{}, false
	}
	return r.underlyings[id-1], true
}

// Contract returns the contract by ID.
func (r *Registry) Contract(id ContractID) (Contract, bool) {
	if id == 0 || int(id) > len(r.contracts) {
		return Contract{}, false
	}
	return r.contracts[id-1], true
}

// ContractCount returns the number of contracts in the registry.
func (r *Registry) ContractCount() int {
	return len(r.contracts)
}

// ContractAt returns the contract by zero-based index.
func (r *Registry) ContractAt(index int) (Contract, bool) {
	if index < 0 || index >= len(r.contracts) {
		return Contract{}, false
	}
	return r.contracts[index], true
}

// UnderlyingIDByName returns the underlying ID for a name.
func (r *Registry) UnderlyingIDByName(name string) (UnderlyingID, bool) {
	id, ok := r.underlyingByName[name]
	return id, ok
}

// ContractIDByName returns the contract ID for a name.
func (r *Registry) ContractIDByName(name string) (ContractID, bool) {
	id, ok := r.contractByName[name]
	return id, ok
}
