package models

// VerdictKind names the single augmentation branch chosen for a message.
type VerdictKind string

const (
	VerdictNone      VerdictKind = "none"
	VerdictImage     VerdictKind = "image"
	VerdictFile      VerdictKind = "file"
	VerdictCode      VerdictKind = "code"
	VerdictStructure VerdictKind = "structure"
	VerdictSearch    VerdictKind = "search"
)

// Verdict is the classifier's decision. It is produced per request and never stored.
// The boolean fields mirror what the model answered; Kind is what dispatch uses.
type Verdict struct {
	Kind        VerdictKind `json:"kind"`
	ImagePrompt string      `json:"image_prompt"`
	FileID      string      `json:"file_id"`
	NumberRange []int       `json:"number_range"`

	ImageGeneration bool `json:"image_generation"`
	InternetSearch  bool `json:"internet_search"`
	FileIntent      bool `json:"file_intent"`
	CodeIntent      bool `json:"code_intent"`
	CodeStructure   bool `json:"code_structure"`
}

// DefaultVerdict is the all-negative verdict used whenever classification fails.
func DefaultVerdict() Verdict {
	return Verdict{Kind: VerdictNone, NumberRange: []int{}}
}

// ResolveKind applies the fixed precedence image > file > code > structure > search.
func (v Verdict) ResolveKind() VerdictKind {
	switch {
	case v.ImageGeneration:
		return VerdictImage
	case v.FileIntent:
		return VerdictFile
	case v.CodeIntent:
		return VerdictCode
	case v.CodeStructure:
		return VerdictStructure
	case v.InternetSearch:
		return VerdictSearch
	default:
		return VerdictNone
	}
}
