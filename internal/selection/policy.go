package selection

var acceptedMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

// HEIC/HEIF are admitted by extension because many platforms report no MIME
// type for them.
var acceptedExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"heic": true,
	"heif": true,
}

// Accept reports whether the candidate may join a selection.
func Accept(c Candidate) bool {
	return acceptedMIMETypes[c.MIMEType] || acceptedExtensions[c.Ext]
}

// Filter returns the accepted members of batch in their original order.
func Filter(batch []Candidate) []Candidate {
	accepted := make([]Candidate, 0, len(batch))
	for _, c := range batch {
		if Accept(c) {
			accepted = append(accepted, c)
		}
	}
	return accepted
}
