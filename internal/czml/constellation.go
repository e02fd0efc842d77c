package czml

// Family is a GNSS constellation.
type Family string

const (
	GPS Family = "GPS"
	BDS Family = "BDS"
	GAL Family = "GAL"
	GLO Family = "GLO"
)

// familyPrefix and prefixFamily are fixed at init and never written after.
var (
	familyPrefix = map[Family]byte{
		GPS: 'G',
		BDS: 'C',
		GAL: 'E',
		GLO: 'R',
	}
	prefixFamily = invert(familyPrefix)
)

func invert(m map[Family]byte) map[byte]Family {
	out := make(map[byte]Family, len(m))
	for f, p := range m {
		out[p] = f
	}
	return out
}

// Families returns every known constellation in a stable order.
func Families() []Family {
	return []Family{GPS, BDS, GAL, GLO}
}

// FamilyOf returns the constellation of a satellite id such as "G01". Ids
// with an unknown prefix (LEO satellites) report false.
func FamilyOf(id string) (Family, bool) {
	if id == "" {
		return "", false
	}
	f, ok := prefixFamily[id[0]]
	return f, ok
}

// Prefix returns the one-letter id prefix of f, or "" if f is unknown.
func (f Family) Prefix() string {
	p, ok := familyPrefix[f]
	if !ok {
		return ""
	}
	return string(p)
}
