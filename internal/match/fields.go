package match

// Canonical field names shared by onboarding forms and document
// extraction results. Comparison strategy is declared per field, so the
// matcher never has to guess from the value shape.
const (
	FieldName       = "name"
	FieldDOB        = "dob"
	FieldAddress    = "address"
	FieldEmail      = "email"
	FieldPhone      = "phone"
	FieldPAN        = "pan"
	FieldAadhaar    = "aadhaar"
	FieldPassportNo = "passport_no"
)

// Kind selects the normalization and scoring strategy for a field.
type Kind int

const (
	// KindText compares case-folded, punctuation-stripped strings.
	KindText Kind = iota
	// KindDate compares calendar dates, falling back to text similarity
	// when either value does not parse.
	KindDate
	// KindIdentifier requires an exact match after separator stripping.
	// Checksum-bearing identifiers get no partial credit.
	KindIdentifier
)

// fieldOrder fixes iteration order for deterministic results.
var fieldOrder = []string{
	FieldName,
	FieldDOB,
	FieldAddress,
	FieldEmail,
	FieldPhone,
	FieldPAN,
	FieldAadhaar,
	FieldPassportNo,
}

var fieldKinds = map[string]Kind{
	FieldName:       KindText,
	FieldDOB:        KindDate,
	FieldAddress:    KindText,
	FieldEmail:      KindText,
	FieldPhone:      KindIdentifier,
	FieldPAN:        KindIdentifier,
	FieldAadhaar:    KindIdentifier,
	FieldPassportNo: KindIdentifier,
}

// KindOf returns the comparison strategy for a field name. Unknown
// fields compare as free text.
func KindOf(field string) Kind {
	if k, ok := fieldKinds[field]; ok {
		return k
	}
	return KindText
}
