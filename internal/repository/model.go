package repository

// Metadata holds versioning info for optimistic locking.
type Metadata struct {
	LastUpdate int64 `json:"lastUpdate"` // Unix timestamp in milliseconds
}

// Document represents the persisted JSON structure: a titled document made of
// ordered sections.
type Document struct {
	Metadata Metadata  `json:"metadata"`
	Title    string    `json:"title" validate:"required"`
	Sections []Section `json:"sections" validate:"dive"`
	Order    []string  `json:"order"`
	Tags     []string  `json:"tags"`
}

// Section models a single block of document content.
type Section struct {
	ID      string `json:"id" validate:"required"`
	Heading string `json:"heading" validate:"required"`
	Body    string `json:"body"`
	Pinned  *bool  `json:"pinned"`
}

// ApplyDefaults sets fallback values after decode.
func (d *Document) ApplyDefaults() {
	if d.Sections == nil {
		d.Sections = []Section{}
	}
	if d.Order == nil {
		d.Order = []string{}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	for si := range d.Sections {
		d.Sections[si].applyDefaults()
	}
}

func (s *Section) applyDefaults() {
	if s.Pinned == nil {
		v := false
		s.Pinned = &v
	}
}

// Content returns the document without its metadata, the value fed to the
// autosave scheduler. Metadata carries the persistence timestamp and must not
// influence change detection.
func (d Document) Content() Document {
	d.Metadata = Metadata{}
	return d
}
