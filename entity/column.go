package entity

// Column describes one field of an entity: its storage name, how values are
// transformed between storage and API representations, and the names under
// which it is exposed and filterable.
//
// Decode and Encode default to the codec selected by Type; supplying either
// overrides the default for that direction. OmitRead excludes the column
// from every read (it never appears in API output); OmitWrite excludes it
// from every write (it is never taken from request bodies).
type Column struct {
	// Name is the storage column name. Required, unique within an entity.
	Name string

	// Type selects the default codec (opaque, date-time or decimal).
	Type ColumnType

	// Decode overrides the read transform (storage value to API value).
	Decode DecodeFunc

	// Encode overrides the write transform (API value to storage value).
	Encode EncodeFunc

	// OmitRead excludes the column from the readable subset.
	OmitRead bool

	// OmitWrite excludes the column from the writeable subset.
	OmitWrite bool

	// Exposed is the column name in the API. Defaults to Name.
	Exposed string

	// Alias is an alternate name usable in query filters.
	Alias string
}

// resolve fills in defaults: the exposed name and the codec functions for
// the declared type.
func (c Column) resolve() Column {
	if c.Exposed == "" {
		c.Exposed = c.Name
	}
	if c.Decode == nil && !c.OmitRead {
		c.Decode = defaultDecode(c.Type)
	}
	if c.Encode == nil && !c.OmitWrite {
		c.Encode = defaultEncode(c.Type)
	}
	return c
}

func (c Column) readable() bool  { return !c.OmitRead }
func (c Column) writeable() bool { return !c.OmitWrite }
