package runconfig

import "strings"

// linearUnitNames maps each configurable source unit system to the linear
// unit names a dataset's spatial reference may report for it.
var linearUnitNames = map[string][]string{
	"feet":  {"us survey foot"},
	"meter": {"meter", "metre"},
}

// UnitMatches reports whether a dataset's reported linear unit name belongs
// to the run's configured source unit system.
func (p *Params) UnitMatches(linearUnit string) bool {
	for _, name := range linearUnitNames[p.SourceUnits] {
		if strings.EqualFold(linearUnit, name) {
			return true
		}
	}
	return false
}
