package store

import (
	"fmt"
	"strings"
)

// Key namespaces. Everything an entity owns lives under obj:<global>; the
// day: namespace is the global per-day index used by timeline queries.
//
//	obj:<global>                    presence marker
//	obj:<global>:f:<field>          scalar field (set-if-unset)
//	obj:<global>:ctr:<label>        additive counter
//	obj:<global>:s:<set>:<member>   set membership
//	obj:<global>:tl:<name>:<ts>     ordered timeline entry (padded ts)
//	day:<yyyymmdd>:<global>         per-day membership index
const (
	objPrefix = "obj:"
	dayPrefix = "day:"
)

// ObjKey is the presence marker key for a global id.
func ObjKey(global string) string { return objPrefix + global }

// FieldKey addresses one scalar field of an object.
func FieldKey(global, field string) string {
	return objPrefix + global + ":f:" + field
}

// CounterKey addresses one additive counter of an object.
func CounterKey(global, label string) string {
	return objPrefix + global + ":ctr:" + label
}

// SetKey addresses one member of a named set on an object.
func SetKey(global, set, member string) string {
	return objPrefix + global + ":s:" + set + ":" + member
}

// SetPrefix is the scan prefix for a named set on an object.
func SetPrefix(global, set string) string {
	return objPrefix + global + ":s:" + set + ":"
}

// TimelineKey addresses an ordered timeline entry; the zero-padded timestamp
// keeps Pebble's key order chronological and the member keeps entries with
// equal timestamps distinct.
func TimelineKey(global, name string, ts int64, member string) string {
	return fmt.Sprintf("%s%s:tl:%s:%020d:%s", objPrefix, global, name, ts, member)
}

// TimelinePrefix is the scan prefix for a named timeline on an object.
func TimelinePrefix(global, name string) string {
	return objPrefix + global + ":tl:" + name + ":"
}

// DayKey indexes an object as active on a YYYYMMDD day.
func DayKey(date, global string) string {
	return dayPrefix + date + ":" + global
}

// DayPrefix is the scan prefix for all objects active on a day.
func DayPrefix(date string) string { return dayPrefix + date + ":" }

// Member extracts the trailing set member from a key returned by a
// SetPrefix scan.
func Member(key, prefix string) string {
	return strings.TrimPrefix(key, prefix)
}
