package manuf

/*------------------------------------------------------------------
 *
 * Purpose:	KNX manufacturer ID -> name lookup (spec.md §1: the table's
 *		*content* is an external collaborator; this file is the
 *		typed accessor around it spec.md §4.8/§9 calls for — a
 *		single map behind a Name function, not direct lookups
 *		scattered through the bus-scan path).
 *
 *------------------------------------------------------------------*/

import "fmt"

// names holds the subset of the official KNX manufacturer ID registry
// most often seen on deployed gateways and bus devices.
var names = map[uint16]string{
	1:   "Siemens",
	2:   "ABB",
	4:   "Albrecht Jung",
	5:   "Bticino",
	6:   "Berker",
	7:   "Busch-Jaeger Elektro",
	9:   "Gira Giersiepen",
	10:  "Hager Electro",
	11:  "Insta GmbH",
	12:  "LEGRAND Appareillage électrique",
	13:  "Merten",
	17:  "Siedle & Söhne",
	18:  "Eltako",
	28:  "Eberle",
	29:  "GEZE",
	30:  "HDL",
	66:  "Preussen Automation",
	69:  "Hensel",
	71:  "Lingg & Janke",
	85:  "WAGO Kontakttechnik",
	101: "MDT technologies",
	103: "Schneider Electric",
	122: "Hensel",
	149: "Zennio",
}

// Name returns the manufacturer name for id, or a placeholder carrying
// the raw id when it is not in the table.
func Name(id uint16) string {
	if name, ok := names[id]; ok {
		return name
	}

	return fmt.Sprintf("Unknown (0x%04x)", id)
}

// Known reports whether id has a known name.
func Known(id uint16) bool {
	_, ok := names[id]

	return ok
}
