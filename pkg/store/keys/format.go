package keys

const (
	// notation dictionary for key formats:
	// r  = row
	// ix = secondary index entry (non-unique, one key per row)
	// ux = unique index entry (one key per value)
	// Segments are separated by ":"; values are escaped so they never
	// contain a raw ":".
	// <...> = variable segment

	RowKey    = "r:%s:%s"        // r:<table>:<id>
	IndexKey  = "ix:%s:%s:%s:%s" // ix:<table>:<index>:<value>:<id>
	UniqueKey = "ux:%s:%s:%s"    // ux:<table>:<index>:<value>

	RowPrefix   = "r:%s:"        // r:<table>:
	IndexPrefix = "ix:%s:%s:%s:" // ix:<table>:<index>:<value>:

	RowsPrefix    = "r:"
	IndexesPrefix = "ix:"
	UniquesPrefix = "ux:"

	// system keys
	SystemVersionKey = "system:version"
	SchemaVersion    = "1"
)
