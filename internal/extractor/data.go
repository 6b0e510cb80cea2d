package extractor

// Candidate is a raw discovered reference. Candidates carry no judgement:
// resolution against the page base and scope filtering happen in the
// normalizer, never here.
type Candidate struct {
	// Raw is the attribute value exactly as it appeared in the document.
	Raw string
	// Attribute names the HTML attribute the reference was found in.
	Attribute string
}
