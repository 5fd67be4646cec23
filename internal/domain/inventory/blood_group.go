package inventory

// BloodGroup is an ABO/Rh group.
type BloodGroup string

const (
	BloodGroupAPos  BloodGroup = "A+"
	BloodGroupANeg  BloodGroup = "A-"
	BloodGroupBPos  BloodGroup = "B+"
	BloodGroupBNeg  BloodGroup = "B-"
	BloodGroupABPos BloodGroup = "AB+"
	BloodGroupABNeg BloodGroup = "AB-"
	BloodGroupOPos  BloodGroup = "O+"
	BloodGroupONeg  BloodGroup = "O-"
)

// AllBloodGroups lists every group in display order.
var AllBloodGroups = []BloodGroup{
	BloodGroupAPos, BloodGroupANeg, BloodGroupBPos, BloodGroupBNeg,
	BloodGroupABPos, BloodGroupABNeg, BloodGroupOPos, BloodGroupONeg,
}

// IsValid checks if the blood group is known
func (g BloodGroup) IsValid() bool {
	for _, v := range AllBloodGroups {
		if g == v {
			return true
		}
	}
	return false
}

// String returns the string representation
func (g BloodGroup) String() string {
	return string(g)
}
