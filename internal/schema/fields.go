// Package schema declares the requirement vocabulary: every multi-valued
// field and its matching mode. Normalisation, the matcher's predicate, and
// the store's multi-value rows each name the fields themselves; none of
// them reads the Fields table.
package schema

// Mode is the matching semantics applied to a multi-valued field.
type Mode int

const (
	// PositiveInclusion: TQ with no value accepts anything; otherwise the
	// resource's values must overlap the TQ's set.
	PositiveInclusion Mode = iota
	// NegativeExclusion: any resource value present in the TQ's set
	// excludes the TQ.
	NegativeExclusion
	// OrderedFamily is PositiveInclusion under a configured partial order
	// (Platforms) rather than plain set overlap.
	OrderedFamily
)

// Field describes one multi-valued requirement field.
type Field struct {
	Name string
	Mode Mode
}

// Fields lists the multi-valued field names and their matching mode.
// Tags/RequiredTags are listed as PositiveInclusion; the matcher applies the
// specific tag rules (see matcher.tagsMatch) rather than generic
// PositiveInclusion.
var Fields = []Field{
	{Name: "Sites", Mode: PositiveInclusion},
	{Name: "BannedSites", Mode: NegativeExclusion},
	{Name: "GridCEs", Mode: PositiveInclusion},
	{Name: "Platforms", Mode: OrderedFamily},
	{Name: "Tags", Mode: PositiveInclusion},
	{Name: "RequiredTags", Mode: PositiveInclusion},
	{Name: "JobTypes", Mode: PositiveInclusion},
	{Name: "SubmitPools", Mode: PositiveInclusion},
	{Name: "PilotTypes", Mode: PositiveInclusion},
}

// FieldNames returns the plain list of multi-valued field names, in the
// declared order, for storage types that need to range over every field.
func FieldNames() []string {
	names := make([]string, len(Fields))
	for i, f := range Fields {
		names[i] = f.Name
	}
	return names
}
