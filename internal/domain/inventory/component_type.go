package inventory

// ComponentType is a typed fraction of a unit. Donation types use the same
// values: a WHOLE_BLOOD donation yields every type, any other donation yields
// only its own type.
type ComponentType string

const (
	ComponentRBC        ComponentType = "RBC"
	ComponentPlasma     ComponentType = "PLASMA"
	ComponentPlatelets  ComponentType = "PLATELETS"
	ComponentWholeBlood ComponentType = "WHOLE_BLOOD"
)

// AllComponentTypes lists the types in separation order.
var AllComponentTypes = []ComponentType{
	ComponentRBC, ComponentPlasma, ComponentPlatelets, ComponentWholeBlood,
}

// IsValid checks if the component type is known
func (t ComponentType) IsValid() bool {
	switch t {
	case ComponentRBC, ComponentPlasma, ComponentPlatelets, ComponentWholeBlood:
		return true
	}
	return false
}

// String returns the string representation
func (t ComponentType) String() string {
	return string(t)
}

// IDPrefix is the prefix of component ids of this type, e.g. "RBC" in RBC-1024.
func (t ComponentType) IDPrefix() string {
	switch t {
	case ComponentPlasma:
		return "PLASMA"
	case ComponentPlatelets:
		return "PLT"
	case ComponentWholeBlood:
		return "WB"
	default:
		return "RBC"
	}
}
